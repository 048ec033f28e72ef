package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"accord/internal/ledger"
	"accord/internal/model"
)

// CacheStore is the slice of the local durable cache the mirror writes to.
type CacheStore interface {
	MirrorTransfer(ctx context.Context, t *model.Transfer) error
}

// Mirror listens on the ledger event feed and upserts each transfer into
// the local durable cache, so the offline path carries the same records as
// the remote backend instead of drifting into its own schema.
type Mirror struct {
	cache    CacheStore
	natsConn *nats.Conn
	log      *slog.Logger
}

func NewMirror(cache CacheStore, nc *nats.Conn, log *slog.Logger) *Mirror {
	if log == nil {
		log = slog.Default()
	}
	return &Mirror{cache: cache, natsConn: nc, log: log}
}

// Run subscribes to the event feed and blocks until ctx is cancelled.
// QueueSubscribe keeps multiple service instances from mirroring the same
// event twice; MirrorTransfer is an upsert, so redelivery is harmless.
func (m *Mirror) Run(ctx context.Context) error {
	sub, err := m.natsConn.QueueSubscribe(ledger.EventsTopic, "cache_mirror", func(msg *nats.Msg) {
		var ev model.ChangeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			m.log.Error("mirror: failed to unmarshal change event", "error", err)
			return
		}

		if err := m.cache.MirrorTransfer(ctx, &ev.Transfer); err != nil {
			m.log.Error("mirror: failed to write transfer to cache",
				"transfer_id", ev.Transfer.ID,
				"error", err,
			)
			return
		}

		m.log.Debug("mirror: transfer cached",
			"transfer_id", ev.Transfer.ID,
			"status", ev.Transfer.Status,
		)
	})
	if err != nil {
		return fmt.Errorf("mirror: failed to subscribe: %w", err)
	}

	m.log.Info("cache mirror worker is running")

	<-ctx.Done()

	m.log.Info("mirror received shutdown signal, draining subscription...")
	return sub.Drain()
}

// Start implements the infrastructure.Server interface.
func (m *Mirror) Start(ctx context.Context) error {
	return m.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (m *Mirror) Stop(ctx context.Context) error {
	return nil
}
