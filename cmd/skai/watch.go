package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/Sternrassler/skai/pkg/client"
	"github.com/Sternrassler/skai/pkg/debounce"
	"github.com/Sternrassler/skai/pkg/events"
	"github.com/Sternrassler/skai/pkg/query"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "read COUNTRY,MONTH,YEAR lines from stdin and show the latest result",
		Description: "Every line restarts the debounce window and cancels the search in flight, " +
			"so only the result for the most recent line is printed.",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "quiet period before a search is sent",
				Value: debounce.DefaultWindow,
			},
			&cli.StringFlag{
				Name:  "sort",
				Usage: sortOrderUsage(),
			},
		},
		Action: watchAction,
	}
}

func watchAction(ctx context.Context, cmd *cli.Command) error {
	order, err := events.ParseSortOrder(cmd.String("sort"))
	if err != nil {
		return err
	}

	rt, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.Root().Writer
	coord := debounce.New(rt.dispatcher, func(o debounce.Outcome) {
		if o.Err != nil {
			fmt.Fprintf(out, "Error: %s\n", client.UserMessage(o.Err))
			return
		}
		q := o.Query
		if n, err := query.Normalize(q.Country, q.Month, q.Year); err == nil {
			q = n
		}
		if err := printResponse(out, q, o.Response, order, false, time.Now()); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}, debounce.WithWindow(cmd.Duration("debounce")), debounce.WithBaseContext(ctx))
	defer coord.Close()

	triggered, err := feedLines(cmd.Root().Reader, coord)
	if err != nil {
		return err
	}
	if !triggered {
		return nil
	}
	return awaitSettled(ctx, coord)
}

// feedLines triggers a search per well-formed line.
func feedLines(r io.Reader, coord *debounce.Coordinator) (bool, error) {
	triggered := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			return triggered, fmt.Errorf("malformed line %q, want COUNTRY,MONTH,YEAR", line)
		}
		if err := coord.Trigger(parts[0], parts[1], parts[2]); err != nil {
			return triggered, err
		}
		triggered = true
	}
	return triggered, scanner.Err()
}

// awaitSettled waits until the last search resolved or was cancelled.
func awaitSettled(ctx context.Context, coord *debounce.Coordinator) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		switch coord.State() {
		case debounce.Resolved, debounce.Cancelled:
			return nil
		}
		select {
		case <-ctx.Done():
			coord.Cancel()
			return nil
		case <-ticker.C:
		}
	}
}
