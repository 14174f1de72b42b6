package events

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// SortOrder selects how events are ordered for display.
type SortOrder string

const (
	SortNone           SortOrder = ""
	SortDate           SortOrder = "date"
	SortDateDesc       SortOrder = "date-desc"
	SortTitle          SortOrder = "title"
	SortTitleDesc      SortOrder = "title-desc"
	SortNakedEyeFirst  SortOrder = "naked-eye-first"
	SortTelescopeFirst SortOrder = "telescope-first"
)

// SortOrders lists every accepted order except SortNone.
var SortOrders = []SortOrder{
	SortDate, SortDateDesc, SortTitle, SortTitleDesc, SortNakedEyeFirst, SortTelescopeFirst,
}

// ParseSortOrder validates s.
func ParseSortOrder(s string) (SortOrder, error) {
	o := SortOrder(strings.ToLower(strings.TrimSpace(s)))
	if o == SortNone || slices.Contains(SortOrders, o) {
		return o, nil
	}
	return SortNone, fmt.Errorf("unknown sort order %q", s)
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// parseDate returns the Unix time of d, or 0 if d matches no known layout.
func parseDate(d string) int64 {
	d = strings.TrimSpace(d)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, d); err == nil {
			return t.Unix()
		}
	}
	return 0
}

func compareTitle(a, b Event) int {
	return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
}

func visibilityFirst(want string) func(a, b Event) int {
	rank := func(e Event) int {
		if e.Visibility == want {
			return 0
		}
		return 1
	}
	return func(a, b Event) int {
		if c := rank(a) - rank(b); c != 0 {
			return c
		}
		return compareTitle(a, b)
	}
}

// Sort returns a sorted copy of events. Dates that cannot be parsed sort as
// the zero time. SortNone keeps the original order.
func Sort(events []Event, order SortOrder) []Event {
	out := slices.Clone(events)

	var cmp func(a, b Event) int
	switch order {
	case SortDate:
		cmp = func(a, b Event) int { return compareInt(parseDate(a.Date), parseDate(b.Date)) }
	case SortDateDesc:
		cmp = func(a, b Event) int { return compareInt(parseDate(b.Date), parseDate(a.Date)) }
	case SortTitle:
		cmp = compareTitle
	case SortTitleDesc:
		cmp = func(a, b Event) int { return compareTitle(b, a) }
	case SortNakedEyeFirst:
		cmp = visibilityFirst(VisibilityNakedEye)
	case SortTelescopeFirst:
		cmp = visibilityFirst(VisibilityTelescope)
	default:
		return out
	}

	slices.SortStableFunc(out, cmp)
	return out
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
