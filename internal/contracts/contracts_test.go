package contracts

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleABI = `[
	{"type":"constructor","inputs":[{"name":"owner","type":"address"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"who","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"set","stateMutability":"nonpayable","inputs":[
		{"name":"flag","type":"bool"},
		{"name":"small","type":"uint8"},
		{"name":"delta","type":"int256"},
		{"name":"tag","type":"bytes32"},
		{"name":"blob","type":"bytes"},
		{"name":"ids","type":"uint256[]"},
		{"name":"pair","type":"address[2]"}
	],"outputs":[]},
	{"type":"function","name":"configure","stateMutability":"nonpayable","inputs":[
		{"name":"cfg","type":"tuple","components":[{"name":"limit","type":"uint64"},{"name":"label","type":"string"}]}
	],"outputs":[]},
	{"type":"function","name":"info","stateMutability":"view","inputs":[],"outputs":[
		{"name":"owner","type":"address"},{"name":"supply","type":"uint256"},{"name":"tag","type":"bytes4"}
	]}
]`

func TestParseABI(t *testing.T) {
	parsed, err := ParseABI(sampleABI)
	require.NoError(t, err)
	assert.Contains(t, parsed.Methods, "balanceOf")

	asJSON := []any{map[string]any{"type": "function", "name": "f", "inputs": []any{}, "outputs": []any{}, "stateMutability": "pure"}}
	parsed, err = ParseABI(asJSON)
	require.NoError(t, err)
	assert.True(t, IsReadOnly(parsed.Methods["f"]))

	_, err = ParseABI("not json")
	assert.ErrorIs(t, err, ErrInvalidABI)
	_, err = ParseABI(nil)
	assert.ErrorIs(t, err, ErrInvalidABI)
}

func TestMethod(t *testing.T) {
	parsed, err := ParseABI(sampleABI)
	require.NoError(t, err)

	m, err := Method(parsed, "set")
	require.NoError(t, err)
	assert.False(t, IsReadOnly(m))

	_, err = Method(parsed, "missing")
	assert.ErrorIs(t, err, ErrUnknownFunction)
}

func TestCoerceArgs_PacksEveryKind(t *testing.T) {
	parsed, err := ParseABI(sampleABI)
	require.NoError(t, err)
	m := parsed.Methods["set"]

	values := []any{
		"true",
		float64(7),
		"-5",
		"0x11" + strings.Repeat("00", 31),
		"0xdeadbeef",
		[]any{"1", float64(2), "0x03"},
		[]any{"0x000000000000000000000000000000000000dEaD", "0x000000000000000000000000000000000000bEEF"},
	}
	args, err := CoerceArgs(m.Inputs, values)
	require.NoError(t, err)

	assert.Equal(t, true, args[0])
	assert.Equal(t, uint8(7), args[1])
	assert.Equal(t, big.NewInt(-5), args[2])
	assert.Equal(t, byte(0x11), args[3].([32]byte)[0])
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, args[4])
	assert.Equal(t, []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}, args[5])
	assert.Equal(t, [2]common.Address{
		common.HexToAddress("0x000000000000000000000000000000000000dEaD"),
		common.HexToAddress("0x000000000000000000000000000000000000bEEF"),
	}, args[6])

	_, err = parsed.Pack("set", args...)
	assert.NoError(t, err)
}

func TestCoerceArgs_Tuple(t *testing.T) {
	parsed, err := ParseABI(sampleABI)
	require.NoError(t, err)
	m := parsed.Methods["configure"]

	for _, v := range []any{
		map[string]any{"limit": "10", "label": "x"},
		[]any{float64(10), "x"},
	} {
		args, err := CoerceArgs(m.Inputs, []any{v})
		require.NoError(t, err)
		_, err = parsed.Pack("configure", args...)
		assert.NoError(t, err)
	}
}

func TestCoerceArgs_Errors(t *testing.T) {
	parsed, err := ParseABI(sampleABI)
	require.NoError(t, err)
	set := parsed.Methods["set"]
	balanceOf := parsed.Methods["balanceOf"]

	_, err = CoerceArgs(balanceOf.Inputs, nil)
	assert.EqualError(t, err, "expected 1 arguments, got 0")

	_, err = CoerceArgs(balanceOf.Inputs, []any{"0x12"})
	assert.ErrorContains(t, err, "argument who (address)")

	base := []any{true, float64(1), "1", "0x", "0x", []any{}, []any{"0x000000000000000000000000000000000000dEaD", "0x000000000000000000000000000000000000dEaD"}}
	_, err = CoerceArgs(set.Inputs, base)
	assert.ErrorContains(t, err, "expected 32 bytes")

	overflow := append([]any{}, base...)
	overflow[1] = float64(256)
	overflow[3] = "0x" + strings.Repeat("ff", 32)
	_, err = CoerceArgs(set.Inputs, overflow)
	assert.ErrorContains(t, err, "overflows uint8")

	_, err = CoerceArgs(set.Inputs, []any{true, float64(1.5), "1", "0x", "0x", []any{}, []any{}})
	assert.ErrorContains(t, err, "invalid integer")

	signed := append([]any{}, overflow...)
	signed[1] = float64(1)
	signed[2] = "-" + new(big.Int).Lsh(big.NewInt(1), 255).String()
	_, err = CoerceArgs(set.Inputs, signed)
	assert.NoError(t, err, "int256 minimum fits")

	signed[2] = new(big.Int).Lsh(big.NewInt(1), 255).String()
	_, err = CoerceArgs(set.Inputs, signed)
	assert.ErrorContains(t, err, "overflows int256")
}

func TestDecodeOutputs(t *testing.T) {
	parsed, err := ParseABI(sampleABI)
	require.NoError(t, err)

	owner := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	data, err := parsed.Methods["info"].Outputs.Pack(owner, big.NewInt(1000), [4]byte{0xca, 0xfe, 0, 1})
	require.NoError(t, err)
	values, err := parsed.Unpack("info", data)
	require.NoError(t, err)

	assert.Equal(t, []any{owner.Hex(), "1000", "0xcafe0001"}, DecodeOutputs(values))
	assert.Equal(t, "42", DecodeOutputs([]any{big.NewInt(42)}))
	assert.Equal(t, "9", JSONValue(uint8(9)))
	assert.Equal(t, map[string]any{"limit": "3", "label": "y"}, JSONValue(struct {
		Limit uint64
		Label string
	}{3, "y"}))
}

func TestParseBytecode(t *testing.T) {
	code, err := ParseBytecode("0x6080")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, code)

	_, err = ParseBytecode("0x")
	assert.ErrorIs(t, err, ErrInvalidBytecode)
	_, err = ParseBytecode("zz")
	assert.ErrorIs(t, err, ErrInvalidBytecode)
}

func TestValidateABI(t *testing.T) {
	opts := ValidateOptions{Bytecode: "0x60", ValidateConstructor: true, ValidateFunctions: true, ValidateEvents: true}

	res := ValidateABI(sampleABI, opts)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)

	broken := `[
		{"type":"function","name":"noOutputs","inputs":[]},
		{"type":"function","inputs":[],"outputs":[]},
		{"type":"event","name":"Ping"}
	]`
	res = ValidateABI(broken, opts)
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{
		"Invalid function definition: noOutputs",
		"Invalid function definition: unnamed",
		"Invalid event definition: Ping",
	}, res.Errors)
	assert.Equal(t, []string{"No constructor found in ABI"}, res.Warnings)

	res = ValidateABI(map[string]any{"type": "function"}, opts)
	assert.Equal(t, &Validation{IsValid: false, Errors: []string{"ABI must be an array"}, Warnings: []string{}}, res)

	res = ValidateABI(broken, ValidateOptions{})
	assert.True(t, res.IsValid, "no checks selected")
}
