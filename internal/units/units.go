// Package units converts between human-readable decimal amounts and
// integer base units (wei, USDC micro-units, token base units).
//
// All amounts are big.Int in the smallest unit; decimal strings never pass
// through float64.
package units

import (
	"errors"
	"math/big"
	"strings"
)

// Common decimal precisions.
const (
	EtherDecimals = 18
	GweiDecimals  = 9
	USDCDecimals  = 6
)

var (
	ErrEmpty     = errors.New("units: empty amount")
	ErrNegative  = errors.New("units: negative amounts not allowed")
	ErrMalformed = errors.New("units: invalid amount format")
)

// Parse converts a decimal string (e.g. "1.50") to base units for the given
// number of decimals. Fractional digits beyond the precision are truncated.
func Parse(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmpty
	}
	if strings.HasPrefix(s, "-") {
		return nil, ErrNegative
	}
	s = strings.TrimPrefix(s, "+")

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, ErrMalformed
	}
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" && frac == "" {
		return nil, ErrMalformed
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, ErrMalformed
	}

	// Pad or trim to the precision
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, ErrMalformed
	}
	return result, nil
}

// Format renders base units as a decimal string with trailing zeros trimmed
// ("1.5", "0.000021", "3").
func Format(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	neg := amount.Sign() < 0
	s := new(big.Int).Abs(amount).String()

	if decimals > 0 {
		if len(s) <= decimals {
			s = strings.Repeat("0", decimals-len(s)+1) + s
		}
		point := len(s) - decimals
		whole, frac := s[:point], strings.TrimRight(s[point:], "0")
		s = whole
		if frac != "" {
			s += "." + frac
		}
	}

	if neg {
		return "-" + s
	}
	return s
}

// FormatFixed renders base units with exactly places fractional digits,
// truncating (never rounding) extra precision.
func FormatFixed(amount *big.Int, decimals, places int) string {
	if amount == nil {
		amount = new(big.Int)
	}
	full := Format(amount, decimals)
	whole, frac, _ := strings.Cut(full, ".")
	if len(frac) > places {
		frac = frac[:places]
	}
	frac += strings.Repeat("0", places-len(frac))
	if places == 0 {
		return whole
	}
	return whole + "." + frac
}

// ParseEther parses an ETH amount into wei.
func ParseEther(s string) (*big.Int, error) { return Parse(s, EtherDecimals) }

// ParseGwei parses a gwei amount into wei.
func ParseGwei(s string) (*big.Int, error) { return Parse(s, GweiDecimals) }

// FormatEther renders wei as ETH.
func FormatEther(wei *big.Int) string { return Format(wei, EtherDecimals) }

// FormatGwei renders wei as gwei.
func FormatGwei(wei *big.Int) string { return Format(wei, GweiDecimals) }

// ParseBig parses a base-10 integer string, as explorers return amounts.
func ParseBig(s string) (*big.Int, bool) {
	if s == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(s, 10)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
