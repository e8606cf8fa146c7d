package sessionkit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/plantgate/sessionkit/session"
	"github.com/plantgate/sessionkit/state"
)

func newBridgeFixture(t *testing.T) (*syncBridge, *state.Container, *session.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := session.NewStore(client, "", 30*time.Second, zerolog.Nop())
	bridge := newSyncBridge(store, 16, zerolog.Nop())
	container := state.NewContainer()
	container.Subscribe(bridge.Listener())
	return bridge, container, store
}

func TestBridgeMirrorsMutationsInOrder(t *testing.T) {
	bridge, container, store := newBridgeFixture(t)
	ctx := context.Background()

	user := fakeUser()
	container.Dispatch(state.InitializeComplete{})
	container.Dispatch(state.LoginSuccess{User: user, Auth: fakeAuth()})
	container.Dispatch(state.SwitchCompany{Company: user.Companies[1]})
	container.Dispatch(state.UpdatePermissions{Permissions: []string{"qc.can_view_inspection"}})

	// Close drains the queue, so afterwards the durable record reflects the
	// final dispatched state.
	bridge.Close()

	snap, ok := store.Load(ctx)
	if !ok {
		t.Fatal("no durable record after login")
	}
	if snap.User == nil || snap.User.ID != user.ID {
		t.Fatal("user not mirrored")
	}
	if snap.Auth.AccessToken != "acc-1" {
		t.Fatalf("access token = %q, want acc-1", snap.Auth.AccessToken)
	}
	if snap.CurrentCompany == nil || snap.CurrentCompany.ID != 11 {
		t.Fatal("company switch not mirrored")
	}
	if len(snap.Permissions) != 1 || snap.Permissions[0] != "qc.can_view_inspection" {
		t.Fatalf("permissions = %v, not mirrored", snap.Permissions)
	}
	if bridge.Dropped() != 0 {
		t.Fatalf("dropped = %d, want 0", bridge.Dropped())
	}
}

func TestBridgeMirrorsAppliedStateNotPayload(t *testing.T) {
	bridge, container, store := newBridgeFixture(t)
	ctx := context.Background()

	user := fakeUser()
	container.Dispatch(state.InitializeComplete{})
	container.Dispatch(state.LoginSuccess{User: user, Auth: fakeAuth()})
	container.Dispatch(state.SwitchCompany{Company: user.Companies[0]})

	// The reducer rejects a switch to a company the user is not a member
	// of; the rejection must hold durably too.
	container.Dispatch(state.SwitchCompany{Company: session.Company{ID: 999, Name: "Intruder"}})
	bridge.Close()

	c := store.CurrentCompany(ctx)
	if c == nil || c.ID != 10 {
		t.Fatalf("durable company = %+v, want the accepted company 10", c)
	}
}

func TestBridgeLogoutDeletesDurableRecord(t *testing.T) {
	bridge, container, store := newBridgeFixture(t)
	ctx := context.Background()

	container.Dispatch(state.InitializeComplete{})
	container.Dispatch(state.LoginSuccess{User: fakeUser(), Auth: fakeAuth()})
	container.Dispatch(state.Logout{})
	bridge.Close()

	if _, ok := store.Load(ctx); ok {
		t.Fatal("durable record survived logout")
	}
	if got := store.AccessToken(ctx); got != "" {
		t.Fatalf("access token = %q after logout, want empty", got)
	}
}

func TestBridgeIgnoresTokenUpdateAfterLogout(t *testing.T) {
	bridge, container, store := newBridgeFixture(t)
	ctx := context.Background()

	container.Dispatch(state.InitializeComplete{})
	container.Dispatch(state.LoginSuccess{User: fakeUser(), Auth: fakeAuth()})
	container.Dispatch(state.Logout{})

	// A refresh settling after logout: the reducer drops it, and the
	// bridge must not write a token-only record over the cleared one.
	late := fakeAuth()
	late.AccessToken = "acc-late"
	container.Dispatch(state.UpdateTokens{Auth: late})
	bridge.Close()

	if _, ok := store.Load(ctx); ok {
		t.Fatal("durable record recreated by post-logout token update")
	}
	if got := store.AccessToken(ctx); got != "" {
		t.Fatalf("access token = %q, want empty", got)
	}
}

func TestBridgeDropsInsteadOfBlocking(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := session.NewStore(client, "", 30*time.Second, zerolog.Nop())

	// No worker goroutine: the queue only fills, so overflow behavior is
	// deterministic.
	b := &syncBridge{
		store: store,
		log:   zerolog.Nop(),
		ch:    make(chan bridgeItem, 1),
		done:  make(chan struct{}),
	}
	listener := b.Listener()

	auth := fakeAuth()
	next := state.State{User: fakeUser(), Auth: &auth, Initialized: true}
	listener(next, state.LoginSuccess{User: next.User, Auth: auth})
	listener(next, state.UpdatePermissions{Permissions: []string{"x"}})

	if got := b.Dropped(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}

	// After close the listener discards silently rather than counting drops.
	close(b.done)
	listener(next, state.Logout{})
	if got := b.Dropped(); got != 1 {
		t.Fatalf("dropped after close = %d, want 1", got)
	}
}
