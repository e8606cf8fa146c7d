package sessionkit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantgate/sessionkit/metrics"
	"github.com/plantgate/sessionkit/session"
	"github.com/plantgate/sessionkit/state"
)

// storeWriteTimeout bounds each durable write issued by the bridge.
const storeWriteTimeout = 5 * time.Second

type bridgeItem struct {
	ev   state.Event
	next state.State
}

// syncBridge mirrors every container mutation into the durable store.
// Writes are best-effort and fire-and-forget: events queue on a buffered
// channel drained by one goroutine, and when the buffer is full the event
// is dropped and counted rather than blocking the mutation. Durable state
// is therefore eventually consistent with in-memory state; the container
// stays authoritative for the running process.
type syncBridge struct {
	store *session.Store
	log   zerolog.Logger

	ch        chan bridgeItem
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closeOnce sync.Once
}

func newSyncBridge(store *session.Store, buffer int, log zerolog.Logger) *syncBridge {
	if buffer <= 0 {
		buffer = 1
	}
	b := &syncBridge{
		store: store,
		log:   log.With().Str("component", "sync_bridge").Logger(),
		ch:    make(chan bridgeItem, buffer),
		done:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// Listener returns the container subscription. It never blocks the
// dispatching mutation.
func (b *syncBridge) Listener() state.Listener {
	return func(next state.State, ev state.Event) {
		select {
		case b.ch <- bridgeItem{ev: ev, next: next}:
		case <-b.done:
		default:
			b.dropped.Add(1)
			metrics.BridgeDropped.Inc()
			b.log.Warn().Str("event", ev.Name()).Msg("persistence bridge queue full, mutation not mirrored")
		}
	}
}

func (b *syncBridge) run() {
	defer b.wg.Done()
	for {
		select {
		case item := <-b.ch:
			b.apply(item)
		case <-b.done:
			for {
				select {
				case item := <-b.ch:
					b.apply(item)
				default:
					return
				}
			}
		}
	}
}

// apply maps one applied mutation to its durable write. Store failures are
// already swallowed inside the store; nothing here retries or rolls back.
func (b *syncBridge) apply(item bridgeItem) {
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()

	switch item.ev.(type) {
	case state.LoginSuccess:
		b.store.SaveLogin(ctx, session.Snapshot{
			User:           item.next.User,
			Auth:           *item.next.Auth,
			Permissions:    item.next.Permissions,
			CurrentCompany: item.next.CurrentCompany,
		})
	case state.UpdateTokens:
		// Mirror the applied state, not the requested payload: tokens the
		// reducer rejected (logged-out session) must not land durably.
		if item.next.Auth == nil {
			return
		}
		auth := *item.next.Auth
		b.store.UpdateTokens(ctx, auth.AccessToken, auth.RefreshToken,
			time.Until(auth.AccessTokenExpiry), auth.RefreshTokenExpiry)
	case state.UpdateUser:
		b.store.UpdateUser(ctx, item.next.User)
	case state.UpdatePermissions:
		b.store.UpdatePermissions(ctx, item.next.Permissions)
	case state.SwitchCompany, state.ClearCurrentCompany:
		// Mirror the applied state, not the requested payload: a switch
		// the reducer rejected must not land durably either.
		b.store.UpdateCurrentCompany(ctx, item.next.CurrentCompany)
	case state.Logout:
		b.store.ClearAuthData(ctx)
	}
}

// Dropped returns how many mutations were never mirrored because the queue
// was full.
func (b *syncBridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Close drains the queue and stops the worker.
func (b *syncBridge) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}
