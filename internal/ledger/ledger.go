package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"accord/internal/model"
)

// EventsTopic carries every committed mutation; the cache mirror worker
// queue-subscribes here.
const EventsTopic = "accord.transfers.events"

// UserTopic is the per-participant change feed the notification bridge
// subscribes to.
func UserTopic(userID string) string {
	return "accord.transfers.user." + userID
}

// MessageBus publishes change events. Publish failures are logged and
// swallowed: observers fall back to polling, the ledger operation itself
// has already committed.
type MessageBus interface {
	Publish(topic string, data []byte) error
}

// Service defines the ledger operations. All transports depend on this
// interface, not on the concrete implementation.
type Service interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	CreateTransfer(ctx context.Context, actingUserID string, req model.CreateTransferRequest) (*model.Transfer, error)
	AcceptTransfer(ctx context.Context, transferID, actingUserID string) (*model.Transfer, error)
	DeclineTransfer(ctx context.Context, transferID, actingUserID string) (*model.Transfer, error)
	ListForUser(ctx context.Context, userID string, f ListFilter) ([]model.Transfer, error)
	Deposit(ctx context.Context, userID string, amount int64, purpose string) (*model.Transfer, error)
	Withdraw(ctx context.Context, userID string, amount int64, purpose string) (*model.Transfer, error)
}

// Ledger implements Service on top of a Store. Money only moves when a
// pending transfer is accepted; creation never touches a balance. The
// store is the sole arbiter of concurrent resolutions.
type Ledger struct {
	store Store
	bus   MessageBus
	log   *slog.Logger
}

func New(store Store, bus MessageBus, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{store: store, bus: bus, log: log}
}

func (l *Ledger) GetBalance(ctx context.Context, userID string) (int64, error) {
	w, err := l.store.Wallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// CreateTransfer opens a pending transfer. For a send the acting user is
// the payer, for a request the payee. No balance check happens here: the
// payer is validated when the approver accepts, since the balance may move
// in the interim.
func (l *Ledger) CreateTransfer(ctx context.Context, actingUserID string, req model.CreateTransferRequest) (*model.Transfer, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.CounterpartyID == "" || req.CounterpartyID == actingUserID {
		return nil, ErrInvalidParticipant
	}

	from, to := actingUserID, req.CounterpartyID
	switch req.Kind {
	case model.KindSend:
	case model.KindRequest:
		from, to = req.CounterpartyID, actingUserID
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidParticipant, req.Kind)
	}

	t := &model.Transfer{
		ID:         uuid.NewString(),
		FromUserID: &from,
		ToUserID:   &to,
		Amount:     req.Amount,
		Purpose:    req.Purpose,
		Kind:       req.Kind,
		Status:     model.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := l.store.CreateTransfer(ctx, t); err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}

	l.publish(t)
	return t, nil
}

func (l *Ledger) AcceptTransfer(ctx context.Context, transferID, actingUserID string) (*model.Transfer, error) {
	t, err := l.authorize(ctx, transferID, actingUserID)
	if err != nil {
		return nil, err
	}

	mv := &Movement{Amount: t.Amount}
	mv.PayerID, _ = t.Payer()
	mv.PayeeID, _ = t.Payee()

	resolved, err := l.store.Settle(ctx, t.ID, model.StatusAccepted, mv)
	if err != nil {
		return nil, err
	}

	l.publish(resolved)
	return resolved, nil
}

func (l *Ledger) DeclineTransfer(ctx context.Context, transferID, actingUserID string) (*model.Transfer, error) {
	t, err := l.authorize(ctx, transferID, actingUserID)
	if err != nil {
		return nil, err
	}

	resolved, err := l.store.Settle(ctx, t.ID, model.StatusDeclined, nil)
	if err != nil {
		return nil, err
	}

	l.publish(resolved)
	return resolved, nil
}

func (l *Ledger) ListForUser(ctx context.Context, userID string, f ListFilter) ([]model.Transfer, error) {
	if f.Role == "" {
		f.Role = RoleAny
	}
	return l.store.ListTransfers(ctx, userID, f)
}

// Deposit records an external credit as an already-consented transfer with
// an absent payer: the ledger row is created pending and immediately
// accepted by its sole participant.
func (l *Ledger) Deposit(ctx context.Context, userID string, amount int64, purpose string) (*model.Transfer, error) {
	return l.external(ctx, userID, amount, purpose, nil, &userID)
}

// Withdraw records an external debit (absent payee). The balance check runs
// at settlement like any other transfer.
func (l *Ledger) Withdraw(ctx context.Context, userID string, amount int64, purpose string) (*model.Transfer, error) {
	return l.external(ctx, userID, amount, purpose, &userID, nil)
}

func (l *Ledger) external(ctx context.Context, userID string, amount int64, purpose string, from, to *string) (*model.Transfer, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	t := &model.Transfer{
		ID:         uuid.NewString(),
		FromUserID: from,
		ToUserID:   to,
		Amount:     amount,
		Purpose:    purpose,
		Kind:       model.KindSend,
		Status:     model.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := l.store.CreateTransfer(ctx, t); err != nil {
		return nil, fmt.Errorf("create external transfer: %w", err)
	}
	return l.AcceptTransfer(ctx, t.ID, userID)
}

// authorize loads the transfer and checks the acting user may resolve it.
// The pending check here is advisory only; the store's compare-and-set is
// what decides a concurrent race.
func (l *Ledger) authorize(ctx context.Context, transferID, actingUserID string) (*model.Transfer, error) {
	t, err := l.store.Transfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if t.Approver() != actingUserID {
		return nil, ErrForbidden
	}
	if t.Status.Terminal() {
		return nil, ErrInvalidTransition
	}
	return t, nil
}

func (l *Ledger) publish(t *model.Transfer) {
	if l.bus == nil {
		return
	}
	ev := model.ChangeEvent{
		Transfer:     *t,
		Participants: t.Participants(),
		OccurredAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		l.log.Error("ledger: marshal change event", "transfer_id", t.ID, "error", err)
		return
	}

	topics := []string{EventsTopic}
	for _, id := range ev.Participants {
		topics = append(topics, UserTopic(id))
	}
	for _, topic := range topics {
		if err := l.bus.Publish(topic, data); err != nil {
			// Observers recover via the polling fallback.
			l.log.Warn("ledger: publish change event", "topic", topic, "error", err)
		}
	}
}
