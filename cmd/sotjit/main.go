// Command sotjit is a small CLI over the translator (SPEC_FULL §3),
// adapted from the teacher's cmd/hey idiom: a urfave/cli/v3 root command
// with a config flag set and subcommands, rather than one main() doing
// everything.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/wudi/sotjit/config"
	"github.com/wudi/sotjit/internal/tracelog"
)

func main() {
	var cfg *config.Config

	app := &cli.Command{
		Name:  "sotjit",
		Usage: "a just-in-time symbolic translator for a tensor bytecode VM",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML config file"},
			&cli.BoolFlag{Name: "strict", Usage: "re-raise translation errors instead of falling back"},
			&cli.IntFlag{Name: "log-level", Usage: "tracelog verbosity, 0 (silent) to 5 (per-instruction)", Value: -1},
			&cli.StringFlag{Name: "cache-db", Usage: "SQLite file used to persist guard-hit statistics"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			loaded, err := config.Load(cmd.String("config"))
			if err != nil {
				return ctx, err
			}
			if cmd.Bool("strict") {
				loaded.StrictMode = true
			}
			if cmd.IsSet("log-level") {
				loaded.LogLevel = int(cmd.Int("log-level"))
			}
			if cmd.IsSet("cache-db") {
				loaded.CacheDB = cmd.String("cache-db")
			}
			tracelog.SetLevel(loaded.LogLevel)
			cfg = loaded
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "demo",
				Usage: "run a handful of toy frames through the cache and print a report",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runDemo(cfg)
				},
			},
			{
				Name:  "repl",
				Usage: "interactively translate toy frame descriptions",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runRepl(cfg)
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runDemo(cfg)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "sotjit: %v\n", err)
		os.Exit(1)
	}
}
