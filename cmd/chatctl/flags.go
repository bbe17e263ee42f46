package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/omochice/chat-sdk/internal/config"
	"github.com/omochice/chat-sdk/pkg/api"
	"github.com/omochice/chat-sdk/pkg/client"
	"github.com/omochice/chat-sdk/pkg/realtime"
)

type Flags struct {
	ConfigPath string
	LogLevel   string
	BaseURL    string
	Handle     string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config
}

// newClient creates an SDK client from the loaded configuration.
func (f *Flags) newClient() (*client.Client, error) {
	svc := f.Config.Service
	return client.New(client.Options{
		BaseURL:        svc.BaseURL,
		RealtimeURL:    svc.RealtimeURL,
		RequestTimeout: svc.RequestTimeout.Duration,
		DialTimeout:    svc.DialTimeout.Duration,
		RateLimit:      svc.RateLimit,
		Logger:         log.Logger,
	})
}

// session logs in with the configured credentials and returns the client
// with the handle commands act as. A failed realtime subscription is only
// logged. Callers close the client.
func (f *Flags) session(ctx context.Context) (*client.Client, string, error) {
	acct := f.Config.Account
	if acct.Email == "" || acct.Password == "" {
		return nil, "", fmt.Errorf("account.email and account.password must be configured")
	}

	c, err := f.newClient()
	if err != nil {
		return nil, "", err
	}

	acc, err := c.Login(ctx, api.LoginInput{Email: acct.Email, Password: acct.Password})
	switch {
	case errors.Is(err, realtime.ErrConnection):
		log.Warn().Err(err).Msg("continuing without realtime notifications")
	case err != nil:
		_ = c.Close()
		return nil, "", err
	}

	handle := acc.Handle
	if acct.Handle != "" {
		handle = acct.Handle
	}
	if f.Handle != "" {
		handle = f.Handle
	}
	return c, handle, nil
}

// closeSession logs out and releases the client.
func closeSession(ctx context.Context, c *client.Client) {
	if err := c.Logout(ctx); err != nil {
		log.Debug().Err(err).Msg("logout failed")
	}
	_ = c.Close()
}
