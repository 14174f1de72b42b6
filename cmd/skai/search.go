package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/Sternrassler/skai/pkg/client"
	"github.com/Sternrassler/skai/pkg/events"
	"github.com/Sternrassler/skai/pkg/query"
)

func sortOrderUsage() string {
	names := make([]string, len(events.SortOrders))
	for i, o := range events.SortOrders {
		names[i] = string(o)
	}
	return "event order: " + strings.Join(names, ", ")
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "list astronomy events for one month",
		ArgsUsage: "COUNTRY MONTH YEAR",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sort",
				Usage: sortOrderUsage(),
				Validator: func(v string) error {
					_, err := events.ParseSortOrder(v)
					return err
				},
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the raw events payload",
			},
		},
		Action: searchAction,
	}
}

func searchAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 3 {
		return fmt.Errorf("search needs COUNTRY MONTH YEAR, got %d arguments", cmd.Args().Len())
	}
	order, err := events.ParseSortOrder(cmd.String("sort"))
	if err != nil {
		return err
	}

	rt, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	country, month, year := cmd.Args().Get(0), cmd.Args().Get(1), cmd.Args().Get(2)
	resp, err := rt.dispatcher.GetAstronomyEvents(ctx, country, month, year)
	if err != nil {
		if msg := client.UserMessage(err); msg != "" {
			return errors.New(msg)
		}
		return nil
	}

	q, _ := query.Normalize(country, month, year)
	return printResponse(cmd.Root().Writer, q, resp, order, cmd.Bool("json"), time.Now())
}
