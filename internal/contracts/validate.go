package contracts

import (
	"encoding/json"
	"fmt"
)

// ValidateOptions select which checks ValidateABI runs.
type ValidateOptions struct {
	Bytecode            string
	ValidateConstructor bool
	ValidateFunctions   bool
	ValidateEvents      bool
}

// Validation is the validate_abi result.
type Validation struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ValidateABI checks the shape of a JSON ABI without compiling it. v may
// be decoded JSON or a string holding it.
func ValidateABI(v any, opts ValidateOptions) *Validation {
	res := &Validation{IsValid: true, Errors: []string{}, Warnings: []string{}}

	if s, ok := v.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			v = decoded
		}
	}
	entries, ok := v.([]any)
	if !ok {
		res.IsValid = false
		res.Errors = append(res.Errors, "ABI must be an array")
		return res
	}

	items := make([]map[string]any, 0, len(entries))
	for i, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("Invalid ABI entry at index %d", i))
			continue
		}
		items = append(items, m)
	}

	if opts.ValidateConstructor && opts.Bytecode != "" {
		if !hasType(items, "constructor") {
			res.Warnings = append(res.Warnings, "No constructor found in ABI")
		}
	}

	if opts.ValidateFunctions {
		for _, it := range ofType(items, "function") {
			if !hasName(it) || !has(it, "inputs") || !has(it, "outputs") {
				res.Errors = append(res.Errors, "Invalid function definition: "+nameOr(it))
			}
		}
	}

	if opts.ValidateEvents {
		for _, it := range ofType(items, "event") {
			if !hasName(it) || !has(it, "inputs") {
				res.Errors = append(res.Errors, "Invalid event definition: "+nameOr(it))
			}
		}
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

func ofType(items []map[string]any, typ string) []map[string]any {
	var out []map[string]any
	for _, it := range items {
		if it["type"] == typ {
			out = append(out, it)
		}
	}
	return out
}

func hasType(items []map[string]any, typ string) bool {
	return len(ofType(items, typ)) > 0
}

func has(it map[string]any, key string) bool {
	v, ok := it[key]
	return ok && v != nil
}

func hasName(it map[string]any) bool {
	s, _ := it["name"].(string)
	return s != ""
}

func nameOr(it map[string]any) string {
	if s, _ := it["name"].(string); s != "" {
		return s
	}
	return "unnamed"
}
