// Package rediskv is the local durable cache: a flat key-value rendition of
// the same wallet/transfer/session schema the remote backend uses, so the
// product keeps working with no backend reachable (demo/offline mode).
// Atomicity comes from Lua scripts; Redis runs them single-threaded, which
// gives the compare-and-set semantics settlement requires.
package rediskv

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"accord/internal/ledger"
	"accord/internal/model"
)

//go:embed adjust.lua
var adjustLuaScript string

//go:embed settle.lua
var settleLuaScript string

const (
	walletsKey   = "accord:wallets"
	transfersKey = "accord:transfers"
	sessionsKey  = "accord:sessions"
)

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Wallet(ctx context.Context, userID string) (*model.Wallet, error) {
	raw, err := s.rdb.HGet(ctx, walletsKey, userID).Result()
	if errors.Is(err, redis.Nil) {
		// First access provisions a zero balance.
		if _, err := s.AdjustBalance(ctx, userID, 0); err != nil {
			return nil, err
		}
		raw, err = s.rdb.HGet(ctx, walletsKey, userID).Result()
		if err != nil {
			return nil, fmt.Errorf("read wallet: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}

	var w model.Wallet
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fmt.Errorf("decode wallet: %w", err)
	}
	return &w, nil
}

func (s *Store) AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.rdb.Eval(ctx, adjustLuaScript,
		[]string{walletsKey}, userID, delta, now).Result()
	if err != nil {
		return 0, fmt.Errorf("adjust script: %w", err)
	}

	code, values, err := scriptReply(result)
	if err != nil {
		return 0, err
	}
	switch code {
	case 1:
		return values[0], nil
	case -2:
		return 0, ledger.ErrInsufficientFunds
	default:
		return 0, fmt.Errorf("unknown status from adjust script: %d", code)
	}
}

func (s *Store) CreateTransfer(ctx context.Context, t *model.Transfer) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}
	if err := s.rdb.HSet(ctx, transfersKey, t.ID, data).Err(); err != nil {
		return fmt.Errorf("write transfer: %w", err)
	}
	return nil
}

func (s *Store) Transfer(ctx context.Context, id string) (*model.Transfer, error) {
	raw, err := s.rdb.HGet(ctx, transfersKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read transfer: %w", err)
	}

	var t model.Transfer
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode transfer: %w", err)
	}
	return &t, nil
}

// ListTransfers loads the whole collection and filters in process. The
// cache holds one device's demo data, so the collection stays small.
func (s *Store) ListTransfers(ctx context.Context, userID string, f ledger.ListFilter) ([]model.Transfer, error) {
	raw, err := s.rdb.HVals(ctx, transfersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}

	all := make([]model.Transfer, 0, len(raw))
	for _, item := range raw {
		var t model.Transfer
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decode transfer: %w", err)
		}
		all = append(all, t)
	}
	return filterAndSort(all, userID, f), nil
}

func filterAndSort(all []model.Transfer, userID string, f ledger.ListFilter) []model.Transfer {
	out := []model.Transfer{}
	for _, t := range all {
		payer, hasPayer := t.Payer()
		payee, hasPayee := t.Payee()
		isPayer := hasPayer && payer == userID
		isPayee := hasPayee && payee == userID

		switch f.Role {
		case ledger.RolePayer:
			if !isPayer {
				continue
			}
		case ledger.RolePayee:
			if !isPayee {
				continue
			}
		default:
			if !isPayer && !isPayee {
				continue
			}
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) Settle(ctx context.Context, id string, to model.TransferStatus, mv *ledger.Movement) (*model.Transfer, error) {
	var payer, payee string
	var amount int64
	if mv != nil {
		payer, payee, amount = mv.PayerID, mv.PayeeID, mv.Amount
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.rdb.Eval(ctx, settleLuaScript,
		[]string{transfersKey, walletsKey},
		id, string(to), now, payer, payee, amount).Result()
	if err != nil {
		return nil, fmt.Errorf("settle script: %w", err)
	}

	code, _, err := scriptReply(result)
	if err != nil {
		return nil, err
	}
	switch code {
	case 1:
		return s.Transfer(ctx, id)
	case -2:
		return nil, ledger.ErrInsufficientFunds
	case -3:
		return nil, ledger.ErrNotFound
	case -4:
		return nil, ledger.ErrInvalidTransition
	default:
		return nil, fmt.Errorf("unknown status from settle script: %d", code)
	}
}

// MirrorTransfer upserts a record observed on the change feed so the
// offline cache stays warm while the remote backend is primary. Balances
// are not replayed here: whichever store is primary owns them.
func (s *Store) MirrorTransfer(ctx context.Context, t *model.Transfer) error {
	return s.CreateTransfer(ctx, t)
}

func (s *Store) PutSession(ctx context.Context, sess *model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.rdb.HSet(ctx, sessionsKey, sess.Token, data).Err(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *Store) Session(ctx context.Context, token string) (*model.Session, error) {
	raw, err := s.rdb.HGet(ctx, sessionsKey, token).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Reset clears every collection. Only an explicit reset wipes the cache;
// it otherwise persists across sessions on the same device.
func (s *Store) Reset(ctx context.Context) error {
	return s.rdb.Del(ctx, walletsKey, transfersKey, sessionsKey).Err()
}

// scriptReply unpacks the {code, values...} convention both scripts share.
func scriptReply(result any) (int64, []int64, error) {
	arr, ok := result.([]interface{})
	if !ok || len(arr) < 1 {
		return 0, nil, errors.New("unexpected response format from Redis")
	}
	code, ok := arr[0].(int64)
	if !ok {
		return 0, nil, errors.New("unexpected status type from Redis")
	}
	values := make([]int64, 0, len(arr)-1)
	for _, v := range arr[1:] {
		n, ok := v.(int64)
		if !ok {
			return 0, nil, errors.New("unexpected value type from Redis")
		}
		values = append(values, n)
	}
	return code, values, nil
}
