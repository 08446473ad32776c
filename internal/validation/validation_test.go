package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCityName_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCityName(tc.input)
			if !errors.Is(err, ErrCityNameEmpty) {
				t.Errorf("error = %v, want ErrCityNameEmpty", err)
			}
		})
	}
}

func TestValidateCityName_TooLong(t *testing.T) {
	_, err := ValidateCityName(strings.Repeat("a", MaxCityNameLen+1))
	if !errors.Is(err, ErrCityNameTooLong) {
		t.Errorf("error = %v, want ErrCityNameTooLong", err)
	}
}

func TestValidateCityName_InvalidChars(t *testing.T) {
	for _, input := range []string{"Rome;DROP", "Milan<script>", "a/b", "Paris!"} {
		if _, err := ValidateCityName(input); !errors.Is(err, ErrCityNameInvalidChars) {
			t.Errorf("ValidateCityName(%q) error = %v, want ErrCityNameInvalidChars", input, err)
		}
	}
}

func TestValidateCityName_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Rome", "Rome"},
		{"  Milan  ", "Milan"},
		{"Reggio nell'Emilia", "Reggio nell'Emilia"},
		{"St. Louis", "St. Louis"},
		{"New   York", "New York"},
		{"São Paulo, BR", "São Paulo, BR"},
		{"Saint-Étienne", "Saint-Étienne"},
	}
	for _, tc := range tests {
		got, err := ValidateCityName(tc.input)
		if err != nil {
			t.Errorf("ValidateCityName(%q) error = %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ValidateCityName(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
