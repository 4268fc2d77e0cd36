package model

import (
	"errors"
	"strings"
)

var (
	ErrEmptyIdentifier   = errors.New("identifier is empty")
	ErrInvalidIdentifier = errors.New("identifier is not a valid phone number")
)

// NormalizeIdentifier canonicalizes a phone-number-like string into the
// +<digits> form used as the engine's identifier key. Separators are
// stripped, a 00 international prefix becomes +, and bare digit strings
// are assumed to already carry a country code.
func NormalizeIdentifier(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", ErrEmptyIdentifier
	}

	var b strings.Builder
	for i, r := range v {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separators
		default:
			return "", ErrInvalidIdentifier
		}
	}
	out := b.String()
	if strings.HasPrefix(out, "00") {
		out = "+" + out[2:]
	}
	if !strings.HasPrefix(out, "+") {
		out = "+" + out
	}

	digits := len(out) - 1
	if digits < 8 || digits > 15 {
		return "", ErrInvalidIdentifier
	}
	if out[1] == '0' {
		return "", ErrInvalidIdentifier
	}
	return out, nil
}
