// Package contracts parses user-supplied ABIs and converts JSON tool
// arguments to and from the Go values go-ethereum's ABI codec expects.
package contracts

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	ErrInvalidABI      = errors.New("invalid ABI")
	ErrInvalidBytecode = errors.New("invalid bytecode")
	ErrUnknownFunction = errors.New("function not found in ABI")
)

// ParseABI accepts an ABI as a JSON string or as already-decoded JSON
// (the array form tool arguments arrive in).
func ParseABI(v any) (abi.ABI, error) {
	var raw string
	switch t := v.(type) {
	case string:
		raw = t
	case nil:
		return abi.ABI{}, fmt.Errorf("%w: ABI is required", ErrInvalidABI)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return abi.ABI{}, fmt.Errorf("%w: %v", ErrInvalidABI, err)
		}
		raw = string(data)
	}
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("%w: %v", ErrInvalidABI, err)
	}
	return parsed, nil
}

// Method returns the named function, or ErrUnknownFunction.
func Method(parsed abi.ABI, name string) (abi.Method, error) {
	m, ok := parsed.Methods[name]
	if !ok {
		return abi.Method{}, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	return m, nil
}

// IsReadOnly reports whether m can be answered with eth_call.
func IsReadOnly(m abi.Method) bool {
	return m.IsConstant()
}

// ParseBytecode decodes 0x-prefixed creation code.
func ParseBytecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidBytecode)
	}
	code, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBytecode, err)
	}
	return code, nil
}
