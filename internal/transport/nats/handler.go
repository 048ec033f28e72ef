package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"accord/internal/ledger"
	"accord/internal/model"
)

const (
	acceptTopic  = "accord.cmd.transfer.accept"
	declineTopic = "accord.cmd.transfer.decline"
)

// ResolveCommand asks the ledger to settle a transfer on behalf of a user
// on another device or session.
type ResolveCommand struct {
	TransferID   string `json:"transfer_id"`
	ActingUserID string `json:"acting_user_id"`
}

// Handler subscribes to NATS command topics and delegates to the ledger
// service, letting a second session accept or decline without going
// through the HTTP surface.
type Handler struct {
	svc  ledger.Service
	nc   *nats.Conn
	subs []*nats.Subscription
}

func NewHandler(svc ledger.Service, nc *nats.Conn) *Handler {
	return &Handler{svc: svc, nc: nc}
}

// Start subscribes to command topics and blocks until ctx is cancelled.
func (h *Handler) Start(ctx context.Context) error {
	s1, err := h.nc.QueueSubscribe(acceptTopic, "ledger_group", func(m *nats.Msg) {
		h.resolve(ctx, m.Data, h.svc.AcceptTransfer, "accept")
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, s1)

	s2, err := h.nc.QueueSubscribe(declineTopic, "ledger_group", func(m *nats.Msg) {
		h.resolve(ctx, m.Data, h.svc.DeclineTransfer, "decline")
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, s2)

	slog.Info("NATS command handler is running")

	<-ctx.Done()
	slog.Info("NATS command handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}

type resolveFn func(ctx context.Context, transferID, actingUserID string) (*model.Transfer, error)

func (h *Handler) resolve(ctx context.Context, data []byte, fn resolveFn, op string) {
	var cmd ResolveCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		slog.Error("nats: failed to unmarshal resolve command", "op", op, "error", err)
		return
	}
	if _, err := fn(ctx, cmd.TransferID, cmd.ActingUserID); err != nil {
		slog.Error("nats: resolve failed",
			"op", op,
			"transfer_id", cmd.TransferID,
			"acting_user_id", cmd.ActingUserID,
			"error", err,
		)
	}
}
