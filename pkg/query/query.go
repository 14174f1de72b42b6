// Package query normalizes and validates astronomy event search parameters.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxCountryLength is the maximum number of characters kept from a country name.
	MaxCountryLength = 100

	// MaxMonthLength is the maximum number of characters kept from a month name.
	MaxMonthLength = 20
)

// Validation reasons.
const (
	ReasonRequired   = "is required"
	ReasonYearFormat = "must be a 4-digit number"
)

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// ErrInvalidQuery is the root of every validation failure.
var ErrInvalidQuery = errors.New("invalid query")

// ValidationError describes which parameter was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidQuery.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidQuery
}

// Query is a normalized (country, month, year) search.
type Query struct {
	Country string `json:"country"`
	Month   string `json:"month"`
	Year    string `json:"year"`
}

// Normalize trims the inputs, bounds country and month length, and requires
// the year to be exactly four digits.
func Normalize(country, month, year string) (Query, error) {
	q := Query{
		Country: truncate(strings.TrimSpace(country), MaxCountryLength),
		Month:   truncate(strings.TrimSpace(month), MaxMonthLength),
		Year:    strings.TrimSpace(year),
	}

	if q.Country == "" {
		return Query{}, &ValidationError{Field: "country", Reason: ReasonRequired}
	}
	if q.Month == "" {
		return Query{}, &ValidationError{Field: "month", Reason: ReasonRequired}
	}
	if q.Year == "" {
		return Query{}, &ValidationError{Field: "year", Reason: ReasonRequired}
	}
	if !yearPattern.MatchString(q.Year) {
		return Query{}, &ValidationError{Field: "year", Reason: ReasonYearFormat}
	}

	return q, nil
}

// String renders the query for logs.
func (q Query) String() string {
	return fmt.Sprintf("%s/%s/%s", q.Country, q.Month, q.Year)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
