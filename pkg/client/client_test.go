package client_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/chat-sdk/internal/chattest"
	"github.com/omochice/chat-sdk/pkg/api"
	"github.com/omochice/chat-sdk/pkg/client"
	"github.com/omochice/chat-sdk/pkg/events"
	"github.com/omochice/chat-sdk/pkg/realtime"
)

const waitFor = 2 * time.Second

func newServer(t *testing.T) *chattest.Server {
	t.Helper()
	srv := chattest.New(chattest.Options{Logger: zerolog.Nop()})
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *chattest.Server, hc *http.Client) *client.Client {
	t.Helper()
	c, err := client.New(client.Options{
		BaseURL:    srv.URL(),
		HTTPClient: hc,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func signup(t *testing.T, c *client.Client, handle string) api.LoginInput {
	t.Helper()
	in := api.SignupInput{Email: handle + "@example.com", Handle: handle, Password: "pw-" + handle}
	_, err := c.Signup(context.Background(), in)
	require.NoError(t, err)
	return api.LoginInput{Email: in.Email, Password: in.Password}
}

// loggedIn returns a client logged in as a fresh account named handle, with
// its realtime connection registered on the server.
func loggedIn(t *testing.T, srv *chattest.Server, handle string) *client.Client {
	t.Helper()
	c := newClient(t, srv, nil)
	_, err := c.Login(context.Background(), signup(t, c, handle))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Subscribers(handle) == 1 }, waitFor, 10*time.Millisecond)
	return c
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}

func eventChan[T any](t *testing.T, topic *events.Topic[T]) <-chan T {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return topic.Chan(ctx, 8)
}

func TestClient_LoginSubscribesAndPublishes(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv, nil)
	login := signup(t, c, "alice")

	logins := eventChan(t, c.Events.Login)

	acc, err := c.Login(context.Background(), login)
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Handle)

	ev := receive(t, logins)
	assert.Equal(t, events.KindLogin, ev.Kind)
	assert.Equal(t, "alice", ev.Handle)

	assert.True(t, c.LoggedIn())
	id, ok := c.Identity()
	require.True(t, ok)
	assert.Equal(t, "alice", id.Handle)
	assert.Equal(t, realtime.StateOpen, c.Realtime.State("alice"))
	assert.Equal(t, []string{"alice"}, c.Realtime.Handles())
}

func TestClient_ReceivesMessageNotifications(t *testing.T) {
	srv := newServer(t)
	alice := loggedIn(t, srv, "alice")
	bob := loggedIn(t, srv, "bob")
	ctx := context.Background()

	created := eventChan(t, alice.Events.Message)
	updated := eventChan(t, alice.Events.MessageUpdate)
	deleted := eventChan(t, alice.Events.MessageDeletion)

	sent, err := bob.Messages.Send(ctx, "bob", api.SendInput{
		Recipients: []string{"alice"},
		Data:       map[string]string{"text": "hello"},
	})
	require.NoError(t, err)

	ev := receive(t, created)
	assert.Equal(t, events.MessageEvent{Kind: events.KindMessage, MessageID: sent.ID, Handle: "alice"}, ev)

	got, err := alice.Messages.Get(ctx, "alice", ev.MessageID)
	require.NoError(t, err)
	var data struct{ Text string }
	require.NoError(t, got.UnmarshalData(&data))
	assert.Equal(t, "hello", data.Text)
	assert.Equal(t, "bob", got.Sender.Handle)

	_, err = bob.Messages.Update(ctx, "bob", sent.ID, map[string]string{"text": "hello!"})
	require.NoError(t, err)
	assert.Equal(t, sent.ID, receive(t, updated).MessageID)

	require.NoError(t, bob.Messages.Delete(ctx, "bob", sent.ID))
	assert.Equal(t, sent.ID, receive(t, deleted).MessageID)
}

func TestClient_OnlySenderMayModify(t *testing.T) {
	srv := newServer(t)
	alice := loggedIn(t, srv, "alice")
	bob := loggedIn(t, srv, "bob")
	ctx := context.Background()

	sent, err := bob.Messages.Send(ctx, "bob", api.SendInput{Recipients: []string{"alice"}})
	require.NoError(t, err)

	err = alice.Messages.Delete(ctx, "alice", sent.ID)
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, http.StatusForbidden))
	assert.Equal(t, "only the sender may modify a message", err.Error())
}

func TestClient_Logout(t *testing.T) {
	srv := newServer(t)
	c := loggedIn(t, srv, "alice")
	logouts := eventChan(t, c.Events.Logout)

	require.NoError(t, c.Logout(context.Background()))

	ev := receive(t, logouts)
	assert.Equal(t, events.KindLogout, ev.Kind)
	assert.Equal(t, "alice", ev.Account.Handle)

	assert.False(t, c.LoggedIn())
	_, ok := c.Identity()
	assert.False(t, ok)
	assert.Equal(t, realtime.StateUnsubscribed, c.Realtime.State("alice"))
	require.Eventually(t, func() bool { return srv.Subscribers("alice") == 0 }, waitFor, 10*time.Millisecond)

	_, err := c.Auth.Me(context.Background())
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))

	_, err = c.Handle()
	assert.ErrorIs(t, err, client.ErrNoSession)
}

func TestClient_LogoutWithoutSessionIsNoop(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv, nil)

	published := 0
	c.Events.Logout.Subscribe(func(events.SessionEvent) { published++ })

	require.NoError(t, c.Logout(context.Background()))
	assert.Zero(t, published)
}

func TestClient_LoginKeepsSessionWhenRealtimeRejected(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv, nil)
	login := signup(t, c, "alice")

	srv.RejectRealtime("realtime disabled")

	var authErrors []events.AuthErrorEvent
	c.Events.AuthError.Subscribe(func(ev events.AuthErrorEvent) { authErrors = append(authErrors, ev) })
	logins := eventChan(t, c.Events.Login)

	_, err := c.Login(context.Background(), login)
	require.Error(t, err)
	assert.True(t, errors.Is(err, realtime.ErrConnection))
	assert.True(t, errors.Is(err, realtime.ErrUnauthorized))

	var connErr *realtime.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "alice", connErr.Handle)

	require.Len(t, authErrors, 1)
	assert.Equal(t, events.AuthErrorEvent{Message: "realtime disabled", Handle: "alice"}, authErrors[0])

	assert.True(t, c.LoggedIn())
	receive(t, logins)
	assert.Equal(t, realtime.StateUnsubscribed, c.Realtime.State("alice"))

	srv.RejectRealtime("")
	require.NoError(t, c.Realtime.Subscribe(context.Background(), "alice"))
	assert.Equal(t, realtime.StateOpen, c.Realtime.State("alice"))
}

func TestClient_LoginFailure(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv, nil)
	signup(t, c, "alice")

	_, err := c.Login(context.Background(), api.LoginInput{Email: "alice@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))
	assert.False(t, c.LoggedIn())
	assert.Empty(t, c.Realtime.Handles())
}

func TestClient_LoginFailsWhenIdentityUnresolved(t *testing.T) {
	var logouts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"a1","createdAt":"2024-05-01T12:00:00Z","email":"alice@example.com","handle":"alice"}`)
	})
	mux.HandleFunc("GET /identities/{handle}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"boom"}`)
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		logouts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	var dials atomic.Int32
	c, err := client.New(client.Options{
		BaseURL: ts.URL,
		Dialer: realtime.DialerFunc(func(ctx context.Context, handle string) (realtime.Conn, error) {
			dials.Add(1)
			return nil, errors.New("unexpected dial")
		}),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	logins := eventChan(t, c.Events.Login)

	_, err = c.Login(context.Background(), api.LoginInput{Email: "alice@example.com", Password: "pw"})
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, http.StatusInternalServerError))
	assert.Contains(t, err.Error(), "boom")

	assert.False(t, c.LoggedIn())
	_, ok := c.Identity()
	assert.False(t, ok)
	assert.Empty(t, c.Realtime.Handles())
	assert.Zero(t, dials.Load())
	assert.Equal(t, int32(1), logouts.Load(), "server session must be ended")

	select {
	case ev := <-logins:
		t.Fatalf("unexpected login event for %q", ev.Handle)
	default:
	}
}

func TestClient_LogoutCancelsPendingSubscription(t *testing.T) {
	srv := newServer(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	wsDialer := &realtime.WebSocketDialer{URL: srv.RealtimeURL(), Jar: jar}
	gate := make(chan struct{})
	c, err := client.New(client.Options{
		BaseURL:    srv.URL(),
		HTTPClient: &http.Client{Jar: jar},
		Dialer: realtime.DialerFunc(func(ctx context.Context, handle string) (realtime.Conn, error) {
			if handle != "alice" {
				select {
				case <-gate:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return wsDialer.Dial(ctx, handle)
		}),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	_, err = c.Login(ctx, signup(t, c, "alice"))
	require.NoError(t, err)
	_, err = c.Identities.Create(ctx, "alice", api.IdentityInput{Handle: "alice-work"})
	require.NoError(t, err)

	subCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = c.Realtime.Subscribe(subCtx, "alice-work")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, realtime.StateConnecting, c.Realtime.State("alice-work"))

	done := make(chan error, 1)
	go func() { done <- c.Logout(ctx) }()

	time.Sleep(20 * time.Millisecond)
	close(gate)

	require.NoError(t, <-done)
	assert.False(t, c.LoggedIn())
	assert.Equal(t, realtime.StateUnsubscribed, c.Realtime.State("alice-work"))
	assert.Empty(t, c.Realtime.Handles())
	require.Eventually(t, func() bool {
		return srv.Subscribers("alice") == 0 && srv.Subscribers("alice-work") == 0
	}, waitFor, 10*time.Millisecond)
}

func TestClient_RestoreFromCookieJar(t *testing.T) {
	srv := newServer(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	hc := &http.Client{Jar: jar}

	first := newClient(t, srv, hc)
	_, err = first.Login(context.Background(), signup(t, first, "alice"))
	require.NoError(t, err)

	second := newClient(t, srv, hc)
	acc, err := second.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Handle)
	assert.True(t, second.LoggedIn())
	require.Eventually(t, func() bool { return srv.Subscribers("alice") == 2 }, waitFor, 10*time.Millisecond)

	fresh := newClient(t, srv, nil)
	_, err = fresh.Restore(context.Background())
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))
	assert.False(t, fresh.LoggedIn())
}

func TestClient_RemoteCloseIsNotReconnected(t *testing.T) {
	srv := newServer(t)
	c := loggedIn(t, srv, "alice")

	srv.Drop("alice")

	require.Eventually(t, func() bool {
		return c.Realtime.State("alice") == realtime.StateUnsubscribed
	}, waitFor, 10*time.Millisecond)

	require.Eventually(t, func() bool { return srv.Subscribers("alice") == 0 }, waitFor, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, srv.Subscribers("alice"))
	assert.Equal(t, realtime.StateUnsubscribed, c.Realtime.State("alice"))

	require.NoError(t, c.Realtime.Subscribe(context.Background(), "alice"))
	require.Eventually(t, func() bool { return srv.Subscribers("alice") == 1 }, waitFor, 10*time.Millisecond)
}

func TestClient_UnauthorizedFrame(t *testing.T) {
	srv := newServer(t)
	c := loggedIn(t, srv, "alice")
	authErrors := eventChan(t, c.Events.AuthError)

	require.Equal(t, 1, srv.PushRaw("alice", []byte(`{"type":"unauthorized","message":"session revoked"}`)))
	require.Equal(t, 1, srv.PushRaw("alice", []byte(`{"type":"typing"}`)))

	ev := receive(t, authErrors)
	assert.Equal(t, "session revoked", ev.Message)
	assert.Equal(t, realtime.StateOpen, c.Realtime.State("alice"))
}

func TestClient_SecondIdentity(t *testing.T) {
	srv := newServer(t)
	alice := loggedIn(t, srv, "alice")
	bob := loggedIn(t, srv, "bob")
	ctx := context.Background()

	work, err := alice.Identities.Create(ctx, "alice", api.IdentityInput{Handle: "alice-work"})
	require.NoError(t, err)
	assert.Equal(t, "alice-work", work.Handle)

	list, err := alice.Identities.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, alice.Realtime.Subscribe(ctx, "alice-work"))
	assert.Equal(t, []string{"alice", "alice-work"}, alice.Realtime.Handles())
	require.Eventually(t, func() bool { return srv.Subscribers("alice-work") == 1 }, waitFor, 10*time.Millisecond)

	created := eventChan(t, alice.Events.Message)
	_, err = bob.Messages.Send(ctx, "bob", api.SendInput{Recipients: []string{"alice-work"}})
	require.NoError(t, err)
	assert.Equal(t, "alice-work", receive(t, created).Handle)

	err = bob.Realtime.Subscribe(ctx, "alice-work")
	assert.ErrorIs(t, err, realtime.ErrUnauthorized)

	require.NoError(t, alice.Logout(ctx))
	assert.Empty(t, alice.Realtime.Handles())
}

func TestClient_PrivateDataAndFriends(t *testing.T) {
	srv := newServer(t)
	alice := loggedIn(t, srv, "alice")
	loggedIn(t, srv, "bob")
	ctx := context.Background()

	_, err := alice.Friends.Add(ctx, "alice", "bob")
	require.NoError(t, err)
	friends, err := alice.Friends.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "bob", friends[0].Handle)

	bob := friends[0]
	first, err := alice.PrivateData.Put(ctx, "alice", bob.ID, map[string]string{"nickname": "bobby"})
	require.NoError(t, err)
	second, err := alice.PrivateData.Put(ctx, "alice", bob.ID, map[string]string{"nickname": "rob"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	records, err := alice.PrivateData.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	var note struct{ Nickname string }
	require.NoError(t, records[0].UnmarshalData(&note))
	assert.Equal(t, "rob", note.Nickname)

	require.NoError(t, alice.PrivateData.Delete(ctx, "alice", bob.ID))
	_, err = alice.PrivateData.Get(ctx, "alice", bob.ID)
	assert.True(t, api.IsStatus(err, http.StatusNotFound))

	require.NoError(t, alice.Friends.Remove(ctx, "alice", "bob"))
	friends, err = alice.Friends.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, friends)
}

func TestClient_ConversationsFromQuery(t *testing.T) {
	srv := newServer(t)
	alice := loggedIn(t, srv, "alice")
	bob := loggedIn(t, srv, "bob")
	loggedIn(t, srv, "carol")
	ctx := context.Background()

	_, err := alice.Messages.Send(ctx, "alice", api.SendInput{Recipients: []string{"bob"}})
	require.NoError(t, err)
	_, err = bob.Messages.Send(ctx, "bob", api.SendInput{Recipients: []string{"alice"}})
	require.NoError(t, err)
	_, err = alice.Messages.Send(ctx, "alice", api.SendInput{Recipients: []string{"carol"}})
	require.NoError(t, err)
	_, err = alice.Messages.Send(ctx, "alice", api.SendInput{Recipients: []string{"bob", "carol"}})
	require.NoError(t, err)

	all, err := alice.Messages.List(ctx, "alice", api.MessageQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	convs := client.GroupByInterlocutors(all)
	require.Len(t, convs, 3)
	assert.Len(t, convs[0].Messages, 2)

	exact, err := alice.Messages.List(ctx, "alice", api.MessageQuery{
		Participants: []string{"alice", "bob"},
		Match:        api.MatchExact,
	})
	require.NoError(t, err)
	assert.Len(t, exact, 2)

	fromBob, err := alice.Messages.List(ctx, "alice", api.MessageQuery{From: []string{"bob"}})
	require.NoError(t, err)
	require.Len(t, fromBob, 1)
	assert.Equal(t, "bob", fromBob[0].Sender.Handle)
}
