// Command server runs the in-memory chat service for local development.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/omochice/chat-sdk/internal/chattest"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		addr     string
		logLevel string
	)

	app := &cli.Command{
		Name:  "server",
		Usage: "Run an in-memory chat service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "address to listen on for HTTP and realtime connections",
				Sources:     cli.EnvVars("CHAT_SERVER_ADDR"),
				Value:       ":8080",
				Destination: &addr,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("CHAT_SERVER_LOG_LEVEL"),
				Value:       "info",
				Destination: &logLevel,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("failed to parse log level: %w", err)
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

			l, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}

			if err := chattest.Serve(ctx, l, chattest.Options{Logger: log.Logger}); err != nil {
				return err
			}
			log.Info().Msg("server stopped")
			return nil
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
