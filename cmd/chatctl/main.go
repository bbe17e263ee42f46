package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/omochice/chat-sdk/internal/config"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

func main() {
	if err := setupLogger("info"); err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	flags := &Flags{}

	app := &cli.Command{
		Name:      "chatctl",
		Usage:     "Talk to a chat service from the terminal",
		UsageText: "chatctl [global options] command [command options]",
		Version:   fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("CHATCTL_CONFIG"),
				Value:       config.DefaultPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error); overrides the config file",
				Sources:     cli.EnvVars("CHATCTL_LOG_LEVEL"),
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "base-url",
				Usage:       "service base URL; overrides the config file",
				Sources:     cli.EnvVars("CHATCTL_BASE_URL"),
				Destination: &flags.BaseURL,
			},
			&cli.StringFlag{
				Name:        "as",
				Usage:       "identity handle to act as",
				Sources:     cli.EnvVars("CHATCTL_HANDLE"),
				Destination: &flags.Handle,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.Load(flags.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if flags.BaseURL != "" {
				cfg.Service.BaseURL = flags.BaseURL
			}
			if flags.LogLevel != "" {
				cfg.Logging.Level = flags.LogLevel
			}
			if err := setupLogger(cfg.Logging.Level); err != nil {
				return ctx, err
			}
			flags.Config = cfg
			return ctx, nil
		},
	}

	app = NewSignupCmd(flags).Register(app)
	app = NewWhoamiCmd(flags).Register(app)
	app = NewIdentitiesCmd(flags).Register(app)
	app = NewSendCmd(flags).Register(app)
	app = NewMessagesCmd(flags).Register(app)
	app = NewFriendsCmd(flags).Register(app)
	app = NewWatchCmd(flags).Register(app)

	if err := app.Run(ctx, os.Args); err != nil {
		color.New(color.FgRed).Fprint(os.Stderr, "error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogger(level string) error {
	if level == "" {
		level = "info"
	}
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(parsedLevel)
	return nil
}
