package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/omochice/chat-sdk/pkg/client"
	"github.com/omochice/chat-sdk/pkg/events"
	"github.com/omochice/chat-sdk/pkg/models"
)

type WatchCmd struct {
	flags   *Flags
	handles []string
}

// NewWatchCmd creates a new watch command
func NewWatchCmd(flags *Flags) *WatchCmd {
	return &WatchCmd{flags: flags}
}

// Register adds the watch command to the application
func (cmd *WatchCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "watch",
		Usage:       "Print realtime notifications until interrupted",
		UsageText:   "chatctl watch [--handle <handle>...]",
		Description: "Subscribes the session identity, and any extra identities given, and prints every message notification.",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "handle",
				Usage:       "additional identity to subscribe",
				Destination: &cmd.handles,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *WatchCmd) run(ctx context.Context, c *cli.Command) error {
	sdk, handle, err := cmd.flags.session(ctx)
	if err != nil {
		return err
	}
	defer closeSession(context.WithoutCancel(ctx), sdk)

	for _, h := range append([]string{handle}, cmd.handles...) {
		if err := sdk.Realtime.Subscribe(ctx, h); err != nil {
			return fmt.Errorf("watch %s: %w", h, err)
		}
	}

	out := c.Root().Writer
	cyan.Fprint(out, "▶ ")
	_, _ = fmt.Fprintf(out, "watching %v (ctrl-c to stop)\n", sdk.Realtime.Handles())

	return watch(ctx, sdk, out)
}

// watch prints notifications until ctx ends. New and updated messages are
// fetched and printed in full.
func watch(ctx context.Context, sdk *client.Client, out io.Writer) error {
	msgs := make(chan events.MessageEvent, 64)
	stop := sdk.Events.OnMessages(func(ev events.MessageEvent) {
		select {
		case msgs <- ev:
		default:
			log.Warn().Str("message_id", ev.MessageID).Msg("notification dropped")
		}
	})
	defer stop()

	authErrors := sdk.Events.AuthError.Chan(ctx, 8)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-authErrors:
			if !ok {
				return nil
			}
			_, _ = fmt.Fprintln(out, formatAuthError(ev))
		case ev := <-msgs:
			_, _ = fmt.Fprintln(out, formatMessageEvent(ev))
			if ev.Kind == events.KindMessageDeletion {
				continue
			}
			m, err := sdk.Messages.Get(ctx, ev.Handle, ev.MessageID)
			if err != nil {
				log.Warn().Err(err).Str("message_id", ev.MessageID).Msg("failed to fetch message")
				continue
			}
			printMessages(out, []models.Message{m}, time.Now())
		}
	}
}
