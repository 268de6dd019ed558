// Package clanker checks token parameters before a Clanker deployment.
package clanker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxNameLength   = 50
	MaxSymbolLength = 10
	ImagePrefix     = "ipfs://"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// Token is the deploy request being checked.
type Token struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Image  string `json:"image"`
}

// Validation lists every rule the token breaks.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate applies the Clanker naming rules.
func Validate(t Token) Validation {
	errs := []string{}

	name := strings.TrimSpace(t.Name)
	switch {
	case name == "":
		errs = append(errs, "Token name cannot be empty")
	case utf8.RuneCountInString(t.Name) > MaxNameLength:
		errs = append(errs, "Token name cannot exceed 50 characters")
	}

	symbol := strings.TrimSpace(t.Symbol)
	switch {
	case symbol == "":
		errs = append(errs, "Token symbol cannot be empty")
	default:
		if utf8.RuneCountInString(t.Symbol) > MaxSymbolLength {
			errs = append(errs, "Token symbol cannot exceed 10 characters")
		}
		if !symbolPattern.MatchString(t.Symbol) {
			errs = append(errs, "Token symbol must contain only uppercase letters and numbers")
		}
	}

	if !strings.HasPrefix(t.Image, ImagePrefix) {
		errs = append(errs, "Image URI must start with 'ipfs://'")
	}

	return Validation{Valid: len(errs) == 0, Errors: errs}
}
