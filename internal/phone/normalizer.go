package phone

import (
	"errors"
	"fmt"
	"strings"
)

// Candidates expands one phone string into the set of representations used for
// lead matching. Stored phone data is inconsistently formatted at ingestion, so
// lookups try every shape rather than normalizing at write time.
//
// Order is significant: earlier candidates are closer to the input and are
// preferred by callers that stop at the first match.
//
// Pure string transformation: no locale data, no network, no side effects.
func Candidates(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	var out []string
	seen := make(map[string]struct{}, 4)
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	add(trimmed)

	digits := digitsOnly(trimmed)
	add(digits)

	// "1XXXXXXXXXX" also appears stored without the country prefix.
	if len(digits) == 11 && digits[0] == '1' {
		add(digits[1:])
	}

	// Ten digits with no prefix: assume NANP and try the E.164 form too.
	if len(digits) == 10 {
		add("+1" + digits)
	}

	return out
}

// Reason codes for dialable-form validation failures. These are part of the
// Initiate API contract; callers build user-facing messages from them.
const (
	ReasonTooShort         = "too_short"
	ReasonAmbiguousCountry = "ambiguous_country"
	ReasonUnparseable      = "unparseable"
)

// ValidationError reports why a phone string cannot be dialed.
type ValidationError struct {
	Reason string
	Input  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("phone: %s: %q", e.Reason, e.Input)
}

// IsValidation reports whether err is a phone validation error and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Dialable reduces a phone string to a single E.164 form suitable for the
// provider's call-create API.
//
// Accepted inputs:
//   - "+<country><number>" with 11-15 digits total
//   - 10 digits (assumed NANP, prefixed with +1)
//   - 11 digits starting with 1 (NANP with country code)
func Dialable(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &ValidationError{Reason: ReasonTooShort, Input: raw}
	}

	hasPlus := strings.HasPrefix(trimmed, "+")
	digits := digitsOnly(trimmed)

	if digits == "" {
		return "", &ValidationError{Reason: ReasonUnparseable, Input: raw}
	}
	if len(digits) < 10 {
		return "", &ValidationError{Reason: ReasonTooShort, Input: raw}
	}

	if hasPlus {
		// Country code plus a national number: 11 digits minimum.
		if len(digits) < 11 {
			return "", &ValidationError{Reason: ReasonTooShort, Input: raw}
		}
		if len(digits) > 15 {
			return "", &ValidationError{Reason: ReasonUnparseable, Input: raw}
		}
		return "+" + digits, nil
	}

	switch {
	case len(digits) == 10:
		return "+1" + digits, nil
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, nil
	case len(digits) <= 15:
		// Long number, no + prefix: we cannot tell which country code applies.
		return "", &ValidationError{Reason: ReasonAmbiguousCountry, Input: raw}
	default:
		return "", &ValidationError{Reason: ReasonUnparseable, Input: raw}
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
