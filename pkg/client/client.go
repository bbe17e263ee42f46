// Package client is the entry point of the SDK. A Client bundles the resource
// endpoints, the event hub and the realtime manager, and tracks the session
// of the logged-in account.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/omochice/chat-sdk/internal/transport/rest"
	"github.com/omochice/chat-sdk/pkg/api"
	"github.com/omochice/chat-sdk/pkg/events"
	"github.com/omochice/chat-sdk/pkg/models"
	"github.com/omochice/chat-sdk/pkg/realtime"
)

// DefaultRealtimePath is appended to BaseURL when Options.RealtimeURL is empty.
const DefaultRealtimePath = "/realtime"

// ErrNoSession is returned by calls that need a logged-in account.
var ErrNoSession = errors.New("not logged in")

// Options configures a Client.
type Options struct {
	// BaseURL is the http or https address of the service. Required.
	BaseURL string
	// RealtimeURL is the ws or wss address of the realtime endpoint.
	// Defaults to BaseURL with DefaultRealtimePath.
	RealtimeURL string
	// HTTPClient sends every request. A cookie jar is added when it has none.
	HTTPClient *http.Client
	// RequestTimeout bounds each HTTP request. Zero leaves it to ctx.
	RequestTimeout time.Duration
	// DialTimeout bounds each realtime connection attempt.
	DialTimeout time.Duration
	// RateLimit caps HTTP requests per second. Zero disables limiting.
	RateLimit float64
	// Dialer replaces the WebSocket dialer.
	Dialer realtime.Dialer
	Logger zerolog.Logger
}

// Client talks to one chat service on behalf of at most one account.
type Client struct {
	Auth        *api.Auth
	Identities  *api.Identities
	Messages    *api.Messages
	PrivateData *api.PrivateData
	Friends     *api.Friends
	Events      *events.Hub
	Realtime    *realtime.Manager

	log zerolog.Logger

	mu       sync.RWMutex
	account  *models.Account
	identity *models.Identity
}

// New creates a Client. No request is sent.
func New(opts Options) (*Client, error) {
	httpClient, err := withCookieJar(opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	requester, err := rest.New(opts.BaseURL, rest.Options{
		HTTPClient: httpClient,
		Timeout:    opts.RequestTimeout,
		RateLimit:  opts.RateLimit,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	dialer := opts.Dialer
	if dialer == nil {
		realtimeURL := opts.RealtimeURL
		if realtimeURL == "" {
			realtimeURL, err = realtime.WebSocketURL(opts.BaseURL, DefaultRealtimePath)
			if err != nil {
				return nil, fmt.Errorf("create client: %w", err)
			}
		}
		dialer = &realtime.WebSocketDialer{URL: realtimeURL, Jar: httpClient.Jar}
	}

	hub := events.NewHub()
	return &Client{
		Auth:        api.NewAuth(requester),
		Identities:  api.NewIdentities(requester),
		Messages:    api.NewMessages(requester),
		PrivateData: api.NewPrivateData(requester),
		Friends:     api.NewFriends(requester),
		Events:      hub,
		Realtime: realtime.NewManager(dialer, hub, realtime.Options{
			DialTimeout: opts.DialTimeout,
			Logger:      opts.Logger,
		}),
		log: opts.Logger.With().Str("component", "client").Logger(),
	}, nil
}

func withCookieJar(c *http.Client) (*http.Client, error) {
	if c != nil && c.Jar != nil {
		return c, nil
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if c == nil {
		return &http.Client{Jar: jar}, nil
	}
	cp := *c
	cp.Jar = jar
	return &cp, nil
}

// Signup creates an account. The session is left unchanged.
func (c *Client) Signup(ctx context.Context, in api.SignupInput) (models.Account, error) {
	acc, err := c.Auth.Signup(ctx, in)
	if err != nil {
		return models.Account{}, fmt.Errorf("signup: %w", err)
	}
	return acc, nil
}

// Login opens a session, resolves the account's default identity and
// subscribes it to realtime notifications, then publishes a login event.
//
// The session is recorded only once the default identity is resolved. If
// that lookup fails, the server session just opened is ended again and the
// client stays logged out.
//
// When only the subscription fails the session stays open, the login event
// is still published and the returned error wraps the *realtime.ConnectionError.
// The caller may retry with Realtime.Subscribe or log out.
func (c *Client) Login(ctx context.Context, in api.LoginInput) (models.Account, error) {
	acc, err := c.Auth.Login(ctx, in)
	if err != nil {
		return models.Account{}, fmt.Errorf("login: %w", err)
	}

	id, err := c.defaultIdentity(ctx, acc)
	if err != nil {
		if logoutErr := c.Auth.Logout(ctx); logoutErr != nil {
			c.log.Warn().Err(logoutErr).Str("handle", acc.Handle).Msg("ending abandoned session failed")
		}
		return models.Account{}, fmt.Errorf("login: %w", err)
	}
	return acc, c.startSession(ctx, acc, id)
}

// Restore resumes the session held by the cookie jar, if any, and runs the
// same steps as Login. A failed identity lookup leaves the client logged out
// and the server session untouched, since the jar may be shared.
func (c *Client) Restore(ctx context.Context) (models.Account, error) {
	acc, err := c.Auth.Me(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("restore session: %w", err)
	}

	id, err := c.defaultIdentity(ctx, acc)
	if err != nil {
		return models.Account{}, fmt.Errorf("restore session: %w", err)
	}
	return acc, c.startSession(ctx, acc, id)
}

func (c *Client) defaultIdentity(ctx context.Context, acc models.Account) (models.Identity, error) {
	id, err := c.Identities.Get(ctx, acc.Handle, acc.Handle)
	if err != nil {
		return models.Identity{}, fmt.Errorf("resolve identity %q: %w", acc.Handle, err)
	}
	return id, nil
}

func (c *Client) startSession(ctx context.Context, acc models.Account, id models.Identity) error {
	c.mu.Lock()
	c.account = &acc
	c.identity = &id
	c.mu.Unlock()

	log := c.log.With().Str("handle", acc.Handle).Logger()

	subErr := c.Realtime.Subscribe(ctx, acc.Handle)
	if subErr != nil {
		log.Warn().Err(subErr).Msg("session open without realtime notifications")
	}

	log.Info().Msg("logged in")
	c.Events.Login.Publish(events.SessionEvent{Kind: events.KindLogin, Account: acc, Handle: acc.Handle})

	if subErr != nil {
		return fmt.Errorf("subscribe %q: %w", acc.Handle, subErr)
	}
	return nil
}

// Logout closes every realtime connection, cancels attempts still connecting,
// ends the session on the server and publishes a logout event. Without a
// session it does nothing.
//
// The local session is cleared even when the server call fails; that error
// is returned.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.RLock()
	acc := c.account
	c.mu.RUnlock()
	if acc == nil {
		return nil
	}

	if err := c.Realtime.UnsubscribeAll(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	serverErr := c.Auth.Logout(ctx)

	c.mu.Lock()
	c.account = nil
	c.identity = nil
	c.mu.Unlock()

	c.log.Info().Str("handle", acc.Handle).Msg("logged out")
	c.Events.Logout.Publish(events.SessionEvent{Kind: events.KindLogout, Account: *acc, Handle: acc.Handle})

	if serverErr != nil {
		return fmt.Errorf("logout: %w", serverErr)
	}
	return nil
}

// Account returns the logged-in account.
func (c *Client) Account() (models.Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.account == nil {
		return models.Account{}, false
	}
	return *c.account, true
}

// Identity returns the default identity of the logged-in account once it has
// been resolved.
func (c *Client) Identity() (models.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return models.Identity{}, false
	}
	return *c.identity, true
}

// LoggedIn reports whether a session is open.
func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account != nil
}

// Handle returns the default identity handle of the session.
func (c *Client) Handle() (string, error) {
	acc, ok := c.Account()
	if !ok {
		return "", ErrNoSession
	}
	return acc.Handle, nil
}

// Close closes every realtime connection. The session is left as is.
func (c *Client) Close() error {
	return c.Realtime.Close()
}
