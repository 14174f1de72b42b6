package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/Sternrassler/skai/internal/config"
	"github.com/Sternrassler/skai/pkg/cache"
	"github.com/Sternrassler/skai/pkg/client"
	"github.com/Sternrassler/skai/pkg/logging"
	"github.com/Sternrassler/skai/pkg/provider"
)

// newApp builds the command tree. Flag defaults come from the environment
// configuration, so flags override env.
func newApp(cfg config.ClientConfig, in io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "skai",
		Usage:     "find notable astronomy events for a country and month",
		UsageText: "skai [global options] command [arguments]",
		Reader:    in,
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags:     globalFlags(cfg),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level, err := logging.ParseLevel(cmd.String("log-level"))
			if err != nil {
				return ctx, err
			}
			logging.Setup(logging.Config{Level: level, Pretty: true, Output: cmd.Root().ErrWriter})
			return ctx, nil
		},
		Commands: []*cli.Command{
			searchCommand(),
			watchCommand(),
			warmCommand(),
			cacheCommand(),
		},
	}
}

func globalFlags(cfg config.ClientConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "proxy-url",
			Usage: "astronomy events endpoint of the skai proxy",
			Value: cfg.ProxyURL,
		},
		&cli.BoolFlag{
			Name:  "direct",
			Usage: "call the AI provider directly (needs OPENAI_API_KEY)",
			Value: cfg.Direct,
		},
		&cli.StringFlag{
			Name:        "api-key",
			Usage:       "AI provider key for --direct",
			Value:       cfg.APIKey,
			HideDefault: true,
		},
		&cli.StringFlag{
			Name:      "cache",
			Usage:     "durable cache backend: file, redis, sqlite or memory",
			Value:     cfg.Cache,
			Validator: config.ValidateCacheBackend,
		},
		&cli.StringFlag{
			Name:  "cache-dir",
			Usage: "directory of the file cache",
			Value: cfg.CacheDir,
		},
		&cli.StringFlag{
			Name:  "redis-url",
			Usage: "redis URL for --cache redis",
			Value: cfg.RedisURL,
		},
		&cli.StringFlag{
			Name:  "sqlite-path",
			Usage: "database file for --cache sqlite",
			Value: cfg.SQLitePath,
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn, error or disabled",
			Value: cfg.LogLevel,
		},
	}
}

// session holds what a command needs to answer searches.
type session struct {
	store      *cache.DurableStore
	dispatcher *client.Client
	closers    []func() error
}

func (r *session) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// openSession builds the durable store and the dispatcher from the global
// flags.
func openSession(ctx context.Context, cmd *cli.Command) (*session, error) {
	rt := &session{}

	backend, err := openBackend(ctx, cmd, rt)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.store = cache.NewDurableStore(backend)

	fetcher, err := newFetcher(cmd)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.dispatcher, err = client.New(client.Config{Store: rt.store, Fetcher: fetcher})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func openBackend(ctx context.Context, cmd *cli.Command, rt *session) (cache.Backend, error) {
	switch name := cmd.String("cache"); name {
	case config.CacheMemory:
		return cache.NewMemoryBackend(), nil

	case config.CacheRedis:
		opts, err := redis.ParseURL(cmd.String("redis-url"))
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rc := redis.NewClient(opts)
		rt.closers = append(rt.closers, rc.Close)
		if err := rc.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return cache.NewRedisBackend(rc, cache.DefaultTTL), nil

	case config.CacheSQLite:
		path := cmd.String("sqlite-path")
		if path == "" {
			dir, err := cacheDir(cmd)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create cache dir: %w", err)
			}
			path = filepath.Join(dir, "skai.db")
		}
		b, err := cache.OpenSQLiteBackend(ctx, path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, b.Close)
		return b, nil

	case config.CacheFile:
		dir, err := cacheDir(cmd)
		if err != nil {
			return nil, err
		}
		b, err := cache.NewFileBackend(dir)
		if err != nil {
			return nil, err
		}
		return b, nil

	default:
		return nil, config.ValidateCacheBackend(name)
	}
}

func cacheDir(cmd *cli.Command) (string, error) {
	if dir := cmd.String("cache-dir"); dir != "" {
		return dir, nil
	}
	dir, ok := cache.CacheDir()
	if !ok {
		return "", errors.New("no cache directory available, set --cache-dir")
	}
	return dir, nil
}

func newFetcher(cmd *cli.Command) (client.Fetcher, error) {
	if !cmd.Bool("direct") {
		return client.NewServerlessFetcher(cmd.String("proxy-url"), nil)
	}

	cfg := provider.DefaultConfig()
	cfg.APIKey = cmd.String("api-key")
	cfg.MaxRetries = 2
	generator, err := provider.NewOpenAI(cfg)
	if err != nil {
		return nil, err
	}
	return client.NewDirectFetcher(generator)
}
