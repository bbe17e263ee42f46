package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omochice/chat-sdk/pkg/api"
)

type IdentitiesCmd struct {
	flags *Flags
}

// NewIdentitiesCmd creates a new identities command
func NewIdentitiesCmd(flags *Flags) *IdentitiesCmd {
	return &IdentitiesCmd{flags: flags}
}

// Register adds the identities command to the application
func (cmd *IdentitiesCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:    "identities",
		Aliases: []string{"ids"},
		Usage:   "Manage the identities of the account",
		Commands: []*cli.Command{
			{
				Name:   "ls",
				Usage:  "List identities",
				Action: cmd.list,
			},
			{
				Name:      "create",
				Usage:     "Create an identity",
				UsageText: "chatctl identities create <handle>",
				Action:    cmd.create,
			},
			{
				Name:      "rm",
				Usage:     "Delete an identity",
				UsageText: "chatctl identities rm <handle>",
				Action:    cmd.remove,
			},
		},
	})
	return app
}

func (cmd *IdentitiesCmd) list(ctx context.Context, c *cli.Command) error {
	sdk, handle, err := cmd.flags.session(ctx)
	if err != nil {
		return err
	}
	defer closeSession(ctx, sdk)

	ids, err := sdk.Identities.List(ctx, handle)
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}
	printIdentities(c.Root().Writer, ids, time.Now())
	return nil
}

func (cmd *IdentitiesCmd) create(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one handle")
	}

	sdk, handle, err := cmd.flags.session(ctx)
	if err != nil {
		return err
	}
	defer closeSession(ctx, sdk)

	id, err := sdk.Identities.Create(ctx, handle, api.IdentityInput{Handle: c.Args().First()})
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}
	green.Fprint(c.Root().Writer, "▶ ")
	_, _ = fmt.Fprintf(c.Root().Writer, "created %s (%s)\n", id.Handle, id.ID)
	return nil
}

func (cmd *IdentitiesCmd) remove(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one handle")
	}

	sdk, handle, err := cmd.flags.session(ctx)
	if err != nil {
		return err
	}
	defer closeSession(ctx, sdk)

	if err := sdk.Identities.Delete(ctx, handle, c.Args().First()); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}
