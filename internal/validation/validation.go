package validation

import (
	"errors"
	"strings"
	"unicode"
)

// Name length bounds for city queries, in runes.
const (
	MinCityNameLen = 1
	MaxCityNameLen = 85
)

// ErrCityNameEmpty is returned when the name is empty or whitespace-only after trim.
var ErrCityNameEmpty = errors.New("city name is required")

// ErrCityNameTooLong is returned when the name exceeds MaxCityNameLen.
var ErrCityNameTooLong = errors.New("city name too long")

// ErrCityNameInvalidChars is returned when the name contains disallowed characters.
var ErrCityNameInvalidChars = errors.New("city name contains invalid characters")

// ValidateCityName trims the input, enforces length bounds and restricts it to
// letters (Unicode), digits, space, comma, hyphen, apostrophe and period.
// Inner runs of whitespace collapse to a single space.
func ValidateCityName(input string) (string, error) {
	s := strings.Join(strings.Fields(input), " ")
	n := len([]rune(s))
	if n < MinCityNameLen {
		return "", ErrCityNameEmpty
	}
	if n > MaxCityNameLen {
		return "", ErrCityNameTooLong
	}
	for _, c := range s {
		if !isAllowedCityRune(c) {
			return "", ErrCityNameInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '\'', '.':
		return true
	}
	return false
}
