package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

type FriendsCmd struct {
	flags *Flags
}

// NewFriendsCmd creates a new friends command
func NewFriendsCmd(flags *Flags) *FriendsCmd {
	return &FriendsCmd{flags: flags}
}

// Register adds the friends command to the application
func (cmd *FriendsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "friends",
		Usage: "Manage the friend list",
		Commands: []*cli.Command{
			{Name: "ls", Usage: "List friends", Action: cmd.list},
			{Name: "add", Usage: "Add a friend", UsageText: "chatctl friends add <handle>", Action: cmd.add},
			{Name: "rm", Usage: "Remove a friend", UsageText: "chatctl friends rm <handle>", Action: cmd.remove},
		},
	})
	return app
}

func (cmd *FriendsCmd) list(ctx context.Context, c *cli.Command) error {
	sdk, handle, err := cmd.flags.session(ctx)
	if err != nil {
		return err
	}
	defer closeSession(ctx, sdk)

	friends, err := sdk.Friends.List(ctx, handle)
	if err != nil {
		return fmt.Errorf("list friends: %w", err)
	}
	printIdentities(c.Root().Writer, friends, time.Now())
	return nil
}

func (cmd *FriendsCmd) add(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one handle")
	}

	sdk, handle, err := cmd.flags.session(ctx)
	if err != nil {
		return err
	}
	defer closeSession(ctx, sdk)

	if _, err := sdk.Friends.Add(ctx, handle, c.Args().First()); err != nil {
		return fmt.Errorf("add friend: %w", err)
	}
	return nil
}

func (cmd *FriendsCmd) remove(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one handle")
	}

	sdk, handle, err := cmd.flags.session(ctx)
	if err != nil {
		return err
	}
	defer closeSession(ctx, sdk)

	if err := sdk.Friends.Remove(ctx, handle, c.Args().First()); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	return nil
}
