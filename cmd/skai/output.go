package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sternrassler/skai/pkg/client"
	"github.com/Sternrassler/skai/pkg/events"
	"github.com/Sternrassler/skai/pkg/query"
)

// printResponse writes resp for q. asJSON writes the payload untouched.
func printResponse(w io.Writer, q query.Query, resp *client.Response, order events.SortOrder, asJSON bool, now time.Time) error {
	if asJSON {
		_, err := fmt.Fprintf(w, "%s\n", resp.Data)
		return err
	}

	fmt.Fprintf(w, "Astronomy events for %s, %s %s (%s)\n", q.Country, q.Month, q.Year, describeSource(resp, now))

	payload, err := events.Decode(resp.Data)
	if err != nil {
		return err
	}
	if payload.Kind == events.KindUnknown {
		_, err := fmt.Fprintf(w, "%s\n", resp.Data)
		return err
	}
	if len(payload.Events) == 0 {
		fmt.Fprintln(w, "  No events found.")
		return nil
	}

	for _, e := range events.Sort(payload.Events, order) {
		fmt.Fprintf(w, "\n  %s  %s", e.Date, e.Title)
		if e.Visibility != "" {
			fmt.Fprintf(w, " [%s]", visibilityLabel(e))
		}
		fmt.Fprintln(w)
		if e.Description != "" {
			fmt.Fprintf(w, "    %s\n", e.Description)
		}
		if e.Tips != "" {
			fmt.Fprintf(w, "    Tip: %s\n", e.Tips)
		}
	}
	return nil
}

func describeSource(resp *client.Response, now time.Time) string {
	switch resp.Source {
	case client.SourceDurableCache:
		return "cached " + humanize.RelTime(now.Add(-resp.CacheAge), now, "ago", "from now")
	case client.SourceServerCacheHit:
		return "served from proxy cache"
	case client.SourceDirect:
		return "fresh from AI provider"
	default:
		return "fresh"
	}
}

func visibilityLabel(e events.Event) string {
	switch {
	case e.NakedEye():
		return "naked eye"
	case e.Visibility == events.VisibilityTelescope:
		return "telescope"
	default:
		return e.Visibility
	}
}
