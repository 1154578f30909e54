package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/AreaLayer/daisy/internal/config"
	"github.com/AreaLayer/daisy/internal/metrics"
	"github.com/AreaLayer/daisy/internal/query"
)

var app = &cli.App{
	Name:  "daisy",
	Usage: "query and publish to nostr relays, merging what every relay returns",
	Commands: []*cli.Command{
		feed,
		mentions,
		profile,
		profiles,
		thread,
		req,
		publish,
		react,
		repost,
		follow,
		keygen,
	},
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "relay",
			Aliases: []string{"r"},
			Usage:   "relay to use instead of the configured list (repeatable)",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			EnvVars: []string{"LOG_LEVEL"},
		},
	},
	Before: func(c *cli.Context) error {
		InitLogger(os.Stderr, c.String("log-level"))
		return nil
	},
	After: func(c *cli.Context) error {
		slog.Debug("relay stats", "stats", metrics.Snapshot())
		return nil
	},
}

// newClient builds the query client from config, applying --relay overrides.
func newClient(c *cli.Context) *query.Client {
	cfg := config.Load()
	if relays := config.NormalizeRelays(c.StringSlice("relay")); len(relays) > 0 {
		cfg.Relays = relays
	}
	return query.New(cfg)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
