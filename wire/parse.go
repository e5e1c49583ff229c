package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Field prefixes used in controller replies, e.g. "Pos:120 Attn:3.25 Done".
const (
	posField  = "Pos:"
	attnField = "Attn:"
)

// Complete reports whether the accumulated response text contains the
// terminal marker.
func Complete(s string) bool {
	return strings.Contains(s, Done)
}

// FindFault scans the accumulated response text for a fault token and
// returns it when present. The token runs from the Error- prefix to the
// next whitespace. A bare prefix with no code after it is not yet a
// token: the code may still be in flight in a later chunk.
func FindFault(s string) (string, bool) {
	i := strings.Index(s, ErrorPrefix)
	if i < 0 {
		return "", false
	}
	end := i + len(ErrorPrefix)
	for end < len(s) && !isSpace(s[end]) {
		end++
	}
	if end == i+len(ErrorPrefix) {
		return "", false
	}
	return s[i:end], true
}

// Position extracts the "Pos:" field from a reply. The second return is
// false when the field is absent; a non-nil error means the field is
// present but its value does not parse.
func Position(s string) (int, bool, error) {
	token, ok := field(s, posField)
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.Atoi(token)
	if err != nil {
		return 0, true, fmt.Errorf("parse %s field: %w", posField, err)
	}
	return v, true, nil
}

// Attenuation extracts the "Attn:" field from a reply, tolerating a units
// suffix such as "dB" directly after the number.
func Attenuation(s string) (float64, bool, error) {
	token, ok := field(s, attnField)
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, true, fmt.Errorf("parse %s field: %w", attnField, err)
	}
	return v, true, nil
}

// field returns the numeric token following the given prefix: optional
// spaces, then a run of sign/digit/decimal-point characters, ending at
// whitespace or a units suffix. ok is true whenever the prefix appears,
// even if the token turns out to be empty.
func field(s, prefix string) (string, bool) {
	i := strings.Index(s, prefix)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(prefix):]
	j := 0
	for j < len(rest) && rest[j] == ' ' {
		j++
	}
	start := j
	for j < len(rest) && isNumeric(rest[j]) {
		j++
	}
	return rest[start:j], true
}

func isNumeric(c byte) bool {
	return c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
