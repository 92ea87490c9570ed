// Package msisdn canonicalizes Kenyan subscriber numbers into the 254-prefixed
// wire format expected by the payment gateway.
package msisdn

import "errors"

// ErrInvalidFormat indicates a subscriber number that cannot be canonicalized
var ErrInvalidFormat = errors.New("invalid subscriber number format")

// Normalize canonicalizes a raw subscriber number. Exactly three shapes are
// accepted: "7XXXXXXXX" (9 digits), "07XXXXXXXX" (10 digits), and
// "2547XXXXXXXX" (12 digits). The result is always the 12-digit form.
// Normalize is pure and idempotent.
func Normalize(raw string) (string, error) {
	if !digitsOnly(raw) {
		return "", ErrInvalidFormat
	}

	switch {
	case len(raw) == 9 && raw[0] == '7':
		return "254" + raw, nil
	case len(raw) == 10 && raw[0] == '0' && raw[1] == '7':
		return "254" + raw[1:], nil
	case len(raw) == 12 && raw[:3] == "254":
		return raw, nil
	}

	return "", ErrInvalidFormat
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
