package validation

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestIsValidEthAddress(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", true},
		{"0x0000000000000000000000000000000000000000", true},
		{"833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", false},
		{"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA0291", false},
		{"0xZZ3589fCD6eDb6E08f4c7C32D4f71b54bdA02913", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidEthAddress(tt.addr), tt.addr)
	}
}

func TestIsValidTxHash(t *testing.T) {
	good := "0x" + strings.Repeat("ab", 32)
	assert.True(t, IsValidTxHash(good))
	assert.False(t, IsValidTxHash(good[:65]))
	assert.False(t, IsValidTxHash(strings.Repeat("ab", 32)))
	assert.False(t, IsValidTxHash("0x"+strings.Repeat("zz", 32)))
}

func TestIsValidSymbolAndCurrency(t *testing.T) {
	assert.True(t, IsValidSymbol("BTC"))
	assert.True(t, IsValidSymbol("1INCH"))
	assert.False(t, IsValidSymbol(""))
	assert.False(t, IsValidSymbol("BTC-USD"))
	assert.False(t, IsValidSymbol(strings.Repeat("A", 16)))

	assert.True(t, IsValidCurrency("usd"))
	assert.True(t, IsValidCurrency("USDT"))
	assert.False(t, IsValidCurrency("US"))
	assert.False(t, IsValidCurrency("US1"))
}

func TestSanitizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", SanitizeAddress("  0xABCDEF0123456789abcdef0123456789ABCDEF01 "))
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", SanitizeAddress("abcdef0123456789abcdef0123456789abcdef01"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello  ", 100))
	assert.Equal(t, "hel", SanitizeString("hello", 3))
	assert.Equal(t, "ab", SanitizeString("a\x00b", 100))
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("name", ""),
		ValidAddress("tokenAddress", "0x123"),
		ValidTxHash("txHash", "0xabc"),
		MaxLength("title", "short", 100),
	)
	assert.Len(t, errs, 3)
	assert.Equal(t, "name: is required", errs.Error())
	assert.Equal(t, "name is required", errs.Messages()[0])

	assert.Nil(t, Validate(Required("name", "dao"), ValidAddress("tokenAddress", "")))
}

func TestValidAmount(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"", false},
		{"1", false},
		{"0.001", false},
		{"0", true},
		{"0.00", true},
		{"1.2.3", true},
		{".5", true},
		{"5.", true},
		{"-1", true},
		{"1e5", true},
	}
	for _, tt := range tests {
		err := ValidAmount("amount", tt.value)()
		assert.Equal(t, tt.wantErr, err != nil, tt.value)
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestSizeMiddleware(8))
	r.POST("/", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
