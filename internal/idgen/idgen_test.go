package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a, b)
	assert.True(t, Valid(a))
	assert.Len(t, a, 36)
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("rcpt_")
	assert.True(t, strings.HasPrefix(id, "rcpt_"))
	assert.Len(t, id, len("rcpt_")+24)
	assert.NotEqual(t, id, WithPrefix("rcpt_"))
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("not-a-uuid"))
	assert.True(t, Valid("9b2d3c1e-7a51-4c0e-9f55-2a1de3b0c8f4"))
}
