package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrConflictingOptions is returned when both the current and the deprecated override flags are used.
	ErrConflictingOptions = errors.New("--options and --cfg-options cannot be both specified, --options is deprecated in favor of --cfg-options")

	// ErrMalformedOption is returned for an override that is not of the form key=value
	// or whose value cannot be parsed.
	ErrMalformedOption = errors.New("config: malformed override, expected key=value")
)

// ResolveOverrides picks the active override list. It reports whether the deprecated form was used
// so the caller can warn.
func ResolveOverrides(cfgOptions, legacyOptions []string) (opts []string, deprecated bool, err error) {
	if len(cfgOptions) > 0 && len(legacyOptions) > 0 {
		return nil, false, ErrConflictingOptions
	}
	if len(legacyOptions) > 0 {
		return legacyOptions, true, nil
	}
	return cfgOptions, false, nil
}

// ParseOptions turns "key=value" strings into an override dict. Later keys win.
func ParseOptions(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, a := range args {
		key, val, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedOption, a)
		}
		v, err := ParseValue(val)
		if err != nil {
			return nil, fmt.Errorf("override %q: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

// ParseValue interprets an override value. "[a,b]" and "(a,b)" become lists (nesting allowed),
// a bare "a,b" becomes a list, and scalars become int, float, bool, nil or string.
// Quotes around the whole value are dropped and whitespace is ignored.
// Brackets must be balanced and properly nested.
func ParseValue(val string) (any, error) {
	val = strings.Trim(val, `'"`)
	val = strings.ReplaceAll(val, " ", "")
	if err := checkBrackets(val); err != nil {
		return nil, err
	}
	return parseValue(val)
}

// parseValue expects val to have balanced brackets, which every piece it recurses on keeps.
func parseValue(val string) (any, error) {
	wrapped := len(val) >= 2 && (val[0] == '(' || val[0] == '[') && closingIndex(val) == len(val)-1
	switch {
	case wrapped:
		val = val[1 : len(val)-1]
	case !strings.Contains(val, ","):
		return parseScalar(val), nil
	case nextComma(val) == len(val):
		// e.g. "(a,b)c": every comma is nested but the value is not a single bracketed list
		return nil, fmt.Errorf("%w: cannot split %q into list items", ErrMalformedOption, val)
	}

	values := []any{}
	for len(val) > 0 {
		idx := nextComma(val)
		v, err := parseValue(val[:idx])
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if idx >= len(val) {
			break
		}
		val = val[idx+1:]
	}
	return values, nil
}

// checkBrackets reports unbalanced or crossed brackets such as "[a,b" or "(a,b]".
func checkBrackets(val string) error {
	var stack []rune
	for _, r := range val {
		switch r {
		case '(', '[':
			stack = append(stack, r)
		case ')', ']':
			open := '('
			if r == ']' {
				open = '['
			}
			if len(stack) == 0 || stack[len(stack)-1] != open {
				return fmt.Errorf("%w: unbalanced brackets in %q", ErrMalformedOption, val)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("%w: unbalanced brackets in %q", ErrMalformedOption, val)
	}
	return nil
}

// closingIndex returns the index of the bracket closing the one at s[0], or -1.
func closingIndex(s string) int {
	depth := 0
	for i, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// nextComma finds the first comma outside any brackets, or len(s).
func nextComma(s string) int {
	depth := 0
	for i, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				return i
			}
		}
	}
	return len(s)
}

func parseScalar(val string) any {
	if i, err := strconv.Atoi(val); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		return f
	}
	switch strings.ToLower(val) {
	case "true":
		return true
	case "false":
		return false
	case "none", "null":
		return nil
	}
	return val
}
