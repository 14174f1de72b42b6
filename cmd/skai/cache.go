package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "manage the durable cache",
		Commands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "remove every cached astronomy events record",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					rt, err := openSession(ctx, cmd)
					if err != nil {
						return err
					}
					defer rt.Close()

					rt.store.Clear(ctx)
					fmt.Fprintln(cmd.Root().Writer, "Durable cache cleared.")
					return nil
				},
			},
		},
	}
}
