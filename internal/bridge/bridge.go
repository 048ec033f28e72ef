// Package bridge tells subscribed observers that ledger state relevant to a
// user has changed. Delivery is at-least-once and coalesced: callbacks are a
// hint to re-fetch through the query surface, never a payload to trust.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"accord/internal/ledger"
)

const defaultPollInterval = 5 * time.Second

// Bridge pushes change notifications from the NATS per-user feed when a
// connection is available and silently degrades to bounded-interval polling
// against the store when it is not. Subscription failures never reach the
// caller.
type Bridge struct {
	nc    *nats.Conn
	store ledger.Store
	poll  time.Duration
	log   *slog.Logger
}

func New(nc *nats.Conn, store ledger.Store, poll time.Duration, log *slog.Logger) *Bridge {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{nc: nc, store: store, poll: poll, log: log}
}

// Subscribe registers interest in transfer creations and status changes
// where userID participates and returns an unsubscribe function. onChange
// fires eventually after a relevant mutation from any session; multiple
// mutations may coalesce into one call.
func (b *Bridge) Subscribe(ctx context.Context, userID string, onChange func()) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(ctx)

	// Capacity one: a kick while a callback is in flight coalesces.
	kick := make(chan struct{}, 1)
	notify := func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	}

	var sub *nats.Subscription
	if b.nc != nil {
		var err error
		sub, err = b.nc.Subscribe(ledger.UserTopic(userID), func(*nats.Msg) {
			notify()
		})
		if err != nil {
			b.log.Warn("bridge: push subscription failed, polling instead",
				"user_id", userID, "error", err)
			sub = nil
		}
	}
	if sub == nil {
		go b.pollLoop(ctx, userID, notify)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-kick:
				onChange()
			}
		}
	}()

	return func() {
		cancel()
		if sub != nil {
			_ = sub.Unsubscribe()
		}
	}
}

// pollLoop re-fetches the user's transfers on a bounded interval and kicks
// the callback only when the observed state actually moved.
func (b *Bridge) pollLoop(ctx context.Context, userID string, notify func()) {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	last, err := b.marker(ctx, userID)
	if err != nil {
		last = ""
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current, err := b.marker(ctx, userID)
			if err != nil {
				// Transient store trouble is not the subscriber's problem;
				// the next tick retries.
				b.log.Warn("bridge: poll failed", "user_id", userID, "error", err)
				continue
			}
			if current != last {
				last = current
				notify()
			}
		}
	}
}

// marker condenses the user's transfer list into a comparable fingerprint.
func (b *Bridge) marker(ctx context.Context, userID string) (string, error) {
	transfers, err := b.store.ListTransfers(ctx, userID, ledger.ListFilter{Role: ledger.RoleAny})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, t := range transfers {
		fmt.Fprintf(&sb, "%s:%s;", t.ID, t.Status)
	}
	return sb.String(), nil
}
