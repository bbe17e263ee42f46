package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omochice/chat-sdk/pkg/api"
	"github.com/omochice/chat-sdk/pkg/client"
)

type SendCmd struct {
	flags *Flags
	to    []string
}

// NewSendCmd creates a new send command
func NewSendCmd(flags *Flags) *SendCmd {
	return &SendCmd{flags: flags}
}

// Register adds the send command to the application
func (cmd *SendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "send",
		Usage:     "Send a text message",
		UsageText: "chatctl send --to <handle> [--to <handle>...] <text>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "to",
				Usage:       "recipient handle",
				Required:    true,
				Destination: &cmd.to,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *SendCmd) run(ctx context.Context, c *cli.Command) error {
	text := strings.Join(c.Args().Slice(), " ")
	if text == "" {
		return fmt.Errorf("message text is required")
	}

	sdk, handle, err := cmd.flags.session(ctx)
	if err != nil {
		return err
	}
	defer closeSession(ctx, sdk)

	m, err := sdk.Messages.Send(ctx, handle, api.SendInput{Recipients: cmd.to, Data: textData{Text: text}})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	gray.Fprintln(c.Root().Writer, m.ID)
	return nil
}

type MessagesCmd struct {
	flags        *Flags
	from         []string
	to           []string
	participants []string
	since        time.Duration
	match        string
	group        bool
}

// NewMessagesCmd creates a new messages command
func NewMessagesCmd(flags *Flags) *MessagesCmd {
	return &MessagesCmd{flags: flags}
}

// Register adds the messages command to the application
func (cmd *MessagesCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "messages",
		Aliases:   []string{"ls"},
		Usage:     "List messages",
		UsageText: "chatctl messages [--from <handle>] [--to <handle>] [--participant <handle>] [--match any|all|exact] [--since 24h] [--group]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "from", Usage: "accepted sender handle", Destination: &cmd.from},
			&cli.StringSliceFlag{Name: "to", Usage: "recipient handle", Destination: &cmd.to},
			&cli.StringSliceFlag{Name: "participant", Usage: "sender or recipient handle", Destination: &cmd.participants},
			&cli.StringFlag{Name: "match", Usage: "how --to and --participant must match (any, all, exact)", Value: string(api.MatchAny), Destination: &cmd.match},
			&cli.DurationFlag{Name: "since", Usage: "only messages newer than this", Destination: &cmd.since},
			&cli.BoolFlag{Name: "group", Usage: "group messages into conversations", Destination: &cmd.group},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *MessagesCmd) query(now time.Time) api.MessageQuery {
	q := api.MessageQuery{
		From:         cmd.from,
		To:           cmd.to,
		Participants: cmd.participants,
		Match:        api.MatchPolicy(cmd.match),
	}
	if cmd.since > 0 {
		q.Since = now.Add(-cmd.since)
	}
	return q
}

func (cmd *MessagesCmd) run(ctx context.Context, c *cli.Command) error {
	now := time.Now()
	q := cmd.query(now)
	if err := q.Validate(); err != nil {
		return err
	}

	sdk, handle, err := cmd.flags.session(ctx)
	if err != nil {
		return err
	}
	defer closeSession(ctx, sdk)

	msgs, err := sdk.Messages.List(ctx, handle, q)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	out := c.Root().Writer
	if len(msgs) == 0 {
		gray.Fprintln(out, "no messages")
		return nil
	}
	if cmd.group {
		printConversations(out, client.GroupByInterlocutors(msgs), now)
		return nil
	}
	printMessages(out, msgs, now)
	return nil
}
