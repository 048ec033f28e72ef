package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"accord/internal/ledger"
	"accord/internal/model"
)

// pollStore only needs ListTransfers; the rest of the Store surface is
// unused by the polling path.
type pollStore struct {
	mu        sync.Mutex
	transfers []model.Transfer
}

func (p *pollStore) add(t model.Transfer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers = append(p.transfers, t)
}

func (p *pollStore) ListTransfers(ctx context.Context, userID string, f ledger.ListFilter) ([]model.Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Transfer, len(p.transfers))
	copy(out, p.transfers)
	return out, nil
}

func (p *pollStore) Wallet(ctx context.Context, userID string) (*model.Wallet, error) {
	panic("not used")
}
func (p *pollStore) AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	panic("not used")
}
func (p *pollStore) CreateTransfer(ctx context.Context, t *model.Transfer) error { panic("not used") }
func (p *pollStore) Transfer(ctx context.Context, id string) (*model.Transfer, error) {
	panic("not used")
}
func (p *pollStore) Settle(ctx context.Context, id string, to model.TransferStatus, mv *ledger.Movement) (*model.Transfer, error) {
	panic("not used")
}
func (p *pollStore) PutSession(ctx context.Context, s *model.Session) error { panic("not used") }
func (p *pollStore) Session(ctx context.Context, token string) (*model.Session, error) {
	panic("not used")
}

func TestSubscribe_PollingFallbackDetectsChange(t *testing.T) {
	st := &pollStore{}
	b := New(nil, st, 10*time.Millisecond, nil)

	var calls atomic.Int64
	unsubscribe := b.Subscribe(context.Background(), "bob", func() {
		calls.Add(1)
	})
	defer unsubscribe()

	// Nothing changed yet: no callback should fire.
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("callback fired %d times before any change", calls.Load())
	}

	st.add(model.Transfer{ID: "t1", Status: model.StatusPending, CreatedAt: time.Now()})

	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("callback never fired after a change")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSubscribe_UnsubscribeStopsDelivery(t *testing.T) {
	st := &pollStore{}
	b := New(nil, st, 10*time.Millisecond, nil)

	var calls atomic.Int64
	unsubscribe := b.Subscribe(context.Background(), "bob", func() {
		calls.Add(1)
	})
	unsubscribe()

	st.add(model.Transfer{ID: "t1", Status: model.StatusPending, CreatedAt: time.Now()})
	time.Sleep(100 * time.Millisecond)

	if calls.Load() != 0 {
		t.Fatalf("callback fired %d times after unsubscribe", calls.Load())
	}
}

func TestSubscribe_CoalescesBackToBackChanges(t *testing.T) {
	st := &pollStore{}
	b := New(nil, st, 10*time.Millisecond, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	unsubscribe := b.Subscribe(context.Background(), "bob", func() {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
	})
	defer unsubscribe()

	st.add(model.Transfer{ID: "t1", Status: model.StatusPending, CreatedAt: time.Now()})
	<-started

	// Several changes land while the first callback is still running; they
	// must coalesce into at most one follow-up call.
	for i := 0; i < 5; i++ {
		st.add(model.Transfer{ID: "t", Status: model.StatusPending, CreatedAt: time.Now()})
		time.Sleep(15 * time.Millisecond)
	}
	close(release)
	time.Sleep(100 * time.Millisecond)

	if got := calls.Load(); got < 2 || got > 3 {
		t.Fatalf("callback fired %d times, want coalesced delivery (2-3)", got)
	}
}
