package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/Sternrassler/skai/pkg/client"
	"github.com/Sternrassler/skai/pkg/prefetch"
)

func warmCommand() *cli.Command {
	return &cli.Command{
		Name:      "warm",
		Usage:     "fill the durable cache with all twelve months of a year",
		ArgsUsage: "COUNTRY YEAR",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "parallel requests",
				Value: prefetch.DefaultConfig().MaxConcurrency,
			},
		},
		Action: warmAction,
	}
}

func warmAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("warm needs COUNTRY YEAR, got %d arguments", cmd.Args().Len())
	}

	rt, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := prefetch.DefaultConfig()
	cfg.MaxConcurrency = int(cmd.Int("concurrency"))
	warmer := prefetch.NewWarmer(rt.dispatcher, cfg)

	results, err := warmer.WarmYear(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
	if errors.Is(err, client.ErrValidation) {
		return err
	}

	out := cmd.Root().Writer
	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			if msg := client.UserMessage(r.Err); msg != "" {
				failed++
				fmt.Fprintf(out, "%-10s failed: %s\n", r.Month, msg)
			} else {
				fmt.Fprintf(out, "%-10s cancelled\n", r.Month)
			}
		case r.Response == nil:
			fmt.Fprintf(out, "%-10s skipped\n", r.Month)
		case r.Response.FromCache:
			fmt.Fprintf(out, "%-10s cached\n", r.Month)
		default:
			fmt.Fprintf(out, "%-10s fetched\n", r.Month)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d months failed", failed, len(results))
	}
	return nil
}
