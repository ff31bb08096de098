package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSeatRef is returned when a seat reference cannot be reduced to
// a positive numeric identifier.  Callers should treat it as a validation
// failure, never as an infrastructure error.
var ErrInvalidSeatRef = errors.New("invalid seat reference")

// NormalizeSeatID converts a seat reference into its canonical numeric id.
// Seat references arrive in several shapes depending on the caller: a bare
// integer, a numeric string ("42"), or a prefixed label such as "seat_42".
// For string input the first embedded run of digits is used, so
// "seat_42" and "42" both normalize to 42.  Zero and negative values are
// rejected because seat ids are always positive.
func NormalizeSeatID(ref interface{}) (uint64, error) {
	switch v := ref.(type) {
	case uint64:
		if v == 0 {
			return 0, fmt.Errorf("%w: zero id", ErrInvalidSeatRef)
		}
		return v, nil
	case uint:
		return NormalizeSeatID(uint64(v))
	case uint32:
		return NormalizeSeatID(uint64(v))
	case int:
		if v <= 0 {
			return 0, fmt.Errorf("%w: non-positive id %d", ErrInvalidSeatRef, v)
		}
		return uint64(v), nil
	case int64:
		if v <= 0 {
			return 0, fmt.Errorf("%w: non-positive id %d", ErrInvalidSeatRef, v)
		}
		return uint64(v), nil
	case float64:
		// JSON numbers decode as float64; accept only whole positive values.
		if v <= 0 || v != float64(uint64(v)) {
			return 0, fmt.Errorf("%w: non-integral id %v", ErrInvalidSeatRef, v)
		}
		return uint64(v), nil
	case string:
		return normalizeSeatString(v)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidSeatRef, ref)
	}
}

// normalizeSeatString extracts the first embedded integer from a seat
// reference string.  Pure numeric strings parse directly; otherwise the
// string is scanned for its first run of digits.
func normalizeSeatString(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSeatRef)
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		if n == 0 {
			return 0, fmt.Errorf("%w: zero id", ErrInvalidSeatRef)
		}
		return n, nil
	}
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, fmt.Errorf("%w: no digits in %q", ErrInvalidSeatRef, s)
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.ParseUint(s[start:end], 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSeatRef, s)
	}
	return n, nil
}
