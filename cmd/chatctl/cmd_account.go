package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/omochice/chat-sdk/pkg/api"
)

type SignupCmd struct {
	flags  *Flags
	handle string
}

// NewSignupCmd creates a new signup command
func NewSignupCmd(flags *Flags) *SignupCmd {
	return &SignupCmd{flags: flags}
}

// Register adds the signup command to the application
func (cmd *SignupCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "signup",
		Usage:     "Create the configured account",
		UsageText: "chatctl signup --handle <handle>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "handle",
				Usage:       "handle of the account's default identity",
				Required:    true,
				Destination: &cmd.handle,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *SignupCmd) run(ctx context.Context, c *cli.Command) error {
	sdk, err := cmd.flags.newClient()
	if err != nil {
		return err
	}
	defer func() { _ = sdk.Close() }()

	acct := cmd.flags.Config.Account
	acc, err := sdk.Signup(ctx, api.SignupInput{Email: acct.Email, Handle: cmd.handle, Password: acct.Password})
	if err != nil {
		return err
	}

	green.Fprint(c.Root().Writer, "▶ ")
	_, _ = fmt.Fprintf(c.Root().Writer, "created %s as %s\n", acc.Email, acc.Handle)
	return nil
}

type WhoamiCmd struct {
	flags *Flags
}

// NewWhoamiCmd creates a new whoami command
func NewWhoamiCmd(flags *Flags) *WhoamiCmd {
	return &WhoamiCmd{flags: flags}
}

// Register adds the whoami command to the application
func (cmd *WhoamiCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "whoami",
		Usage:       "Log in and show the account and identity",
		UsageText:   "chatctl whoami",
		Description: "Logs in with the configured credentials, prints the session and logs out again.",
		Action:      cmd.run,
	})
	return app
}

func (cmd *WhoamiCmd) run(ctx context.Context, c *cli.Command) error {
	sdk, handle, err := cmd.flags.session(ctx)
	if err != nil {
		return err
	}
	defer closeSession(ctx, sdk)

	acc, _ := sdk.Account()
	out := c.Root().Writer
	green.Fprint(out, "▶ ")
	_, _ = fmt.Fprintf(out, "Account:  %s (%s)\n", acc.Email, acc.ID)
	green.Fprint(out, "▶ ")
	_, _ = fmt.Fprintf(out, "Identity: %s\n", handle)
	green.Fprint(out, "▶ ")
	_, _ = fmt.Fprintf(out, "Realtime: %s\n", sdk.Realtime.State(acc.Handle))
	return nil
}
