package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cnosuke/report-scraper/config"
	"github.com/cnosuke/report-scraper/logger"
	"github.com/cnosuke/report-scraper/orchestrator"
	"github.com/cnosuke/report-scraper/server"
	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	// Version and Revision are replaced when building.
	// To set specific version, edit Makefile.
	Version  = "0.0.1"
	Revision = "xxx"

	Name  = "report-scraper"
	Usage = "Scrape weekly real estate market reports through rotating proxies"
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s (%s)", Version, Revision)
	app.Name = Name
	app.Usage = Usage

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "config.yml",
			Usage:   "path to the configuration file",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:    "scrape",
			Aliases: []string{"s"},
			Usage:   "Fetch, parse and store new weekly reports",
			Action:  withConfig(runScrape),
		},
		{
			Name:   "check-proxies",
			Usage:  "Probe the configured gateway or proxy pool",
			Action: withConfig(runCheckProxies),
		},
		{
			Name:   "server",
			Usage:  "Start the MCP server on stdio",
			Action: withConfig(runServer),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withConfig loads the configuration and initializes the logger before
// running action.
func withConfig(action func(ctx context.Context, cfg *config.Config) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.LoadConfig(c.String("config"))
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}

		if err := logger.InitLogger(cfg.Log.Debug, cfg.Log.Path); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return action(ctx, cfg)
	}
}

func runScrape(ctx context.Context, cfg *config.Config) error {
	o, closeStore, err := orchestrator.Setup(ctx, cfg)
	if err != nil {
		zap.S().Errorw("failed to set up scraper", "error", err)
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			zap.S().Warnw("failed to close store", "error", err)
		}
	}()

	summary, err := o.Run(ctx)
	if summary != nil {
		if encErr := printJSON(summary); encErr != nil {
			return encErr
		}
	}
	return err
}

func runCheckProxies(ctx context.Context, cfg *config.Config) error {
	resp, err := orchestrator.CheckProxies(ctx, cfg)
	if err != nil {
		return err
	}
	if err := printJSON(resp); err != nil {
		return err
	}
	if resp.Exhausted {
		return cli.Exit("no healthy proxies", 2)
	}
	return nil
}

func runServer(_ context.Context, cfg *config.Config) error {
	return server.Run(cfg, cfg.Server.Name, Version, Revision)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "failed to write output")
}
