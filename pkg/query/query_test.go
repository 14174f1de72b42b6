package query

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		country   string
		month     string
		year      string
		want      Query
		wantField string
	}{
		{
			name:    "valid input",
			country: "Finland",
			month:   "September",
			year:    "2025",
			want:    Query{Country: "Finland", Month: "September", Year: "2025"},
		},
		{
			name:    "surrounding whitespace trimmed",
			country: "  Finland ",
			month:   "\tSeptember",
			year:    " 2025 ",
			want:    Query{Country: "Finland", Month: "September", Year: "2025"},
		},
		{
			name:    "long country truncated",
			country: strings.Repeat("a", 150),
			month:   "May",
			year:    "2024",
			want:    Query{Country: strings.Repeat("a", 100), Month: "May", Year: "2024"},
		},
		{
			name:    "long month truncated",
			country: "Chile",
			month:   strings.Repeat("m", 30),
			year:    "2024",
			want:    Query{Country: "Chile", Month: strings.Repeat("m", 20), Year: "2024"},
		},
		{name: "two digit year", country: "Finland", month: "September", year: "25", wantField: "year"},
		{name: "letters as year", country: "Finland", month: "September", year: "abcd", wantField: "year"},
		{name: "five digit year", country: "Finland", month: "September", year: "20255", wantField: "year"},
		{name: "missing year", country: "Finland", month: "September", year: "", wantField: "year"},
		{name: "missing country", country: "  ", month: "September", year: "2025", wantField: "country"},
		{name: "missing month", country: "Finland", month: "", year: "2025", wantField: "month"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.country, tt.month, tt.year)
			if tt.wantField != "" {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("Normalize() error = %v, want *ValidationError", err)
				}
				if verr.Field != tt.wantField {
					t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
				}
				if !errors.Is(err, ErrInvalidQuery) {
					t.Error("error should match ErrInvalidQuery")
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalize_TruncatesRunes(t *testing.T) {
	country := strings.Repeat("ä", 120)
	q, err := Normalize(country, "Mai", "2025")
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if n := len([]rune(q.Country)); n != MaxCountryLength {
		t.Errorf("country length = %d runes, want %d", n, MaxCountryLength)
	}
}
