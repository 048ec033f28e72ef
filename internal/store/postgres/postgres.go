// Package postgres is the remote-backed persistence path. Settlement runs
// in a single transaction: wallet rows are locked in deterministic order
// and the status transition is a compare-and-set, so of two concurrent
// resolutions exactly one commits.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"accord/internal/ledger"
	"accord/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const transferColumns = `id, from_user_id, to_user_id, amount, purpose, kind, status, created_at, resolved_at`

func (s *Store) Wallet(ctx context.Context, userID string) (*model.Wallet, error) {
	if err := s.ensureWallet(ctx, s.pool, userID); err != nil {
		return nil, err
	}

	var w model.Wallet
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, balance, created_at, updated_at FROM wallets WHERE user_id = $1`,
		userID,
	).Scan(&w.OwnerID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("select wallet: %w", err)
	}
	return &w, nil
}

func (s *Store) AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	if err := s.ensureWallet(ctx, s.pool, userID); err != nil {
		return 0, err
	}

	// The predicate keeps the non-negativity check and the update in one
	// statement; a rejected debit leaves the row untouched.
	var balance int64
	err := s.pool.QueryRow(ctx,
		`UPDATE wallets SET balance = balance + $2, updated_at = now()
		 WHERE user_id = $1 AND balance + $2 >= 0
		 RETURNING balance`,
		userID, delta,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ledger.ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("adjust balance: %w", err)
	}
	return balance, nil
}

func (s *Store) CreateTransfer(ctx context.Context, t *model.Transfer) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transfers (`+transferColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.FromUserID, t.ToUserID, t.Amount, t.Purpose, t.Kind, t.Status, t.CreatedAt, t.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (s *Store) Transfer(ctx context.Context, id string) (*model.Transfer, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1`, id)
	return scanTransfer(row)
}

func (s *Store) ListTransfers(ctx context.Context, userID string, f ledger.ListFilter) ([]model.Transfer, error) {
	query, args := listQuery(userID, f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	transfers := []model.Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

// listQuery builds the participant-role query. Ordering is always
// created_at descending, newest first.
func listQuery(userID string, f ledger.ListFilter) (string, []any) {
	var where string
	switch f.Role {
	case ledger.RolePayer:
		where = `from_user_id = $1`
	case ledger.RolePayee:
		where = `to_user_id = $1`
	default:
		where = `(from_user_id = $1 OR to_user_id = $1)`
	}

	args := []any{userID}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	return `SELECT ` + transferColumns + ` FROM transfers WHERE ` + where +
		` ORDER BY created_at DESC`, args
}

func (s *Store) Settle(ctx context.Context, id string, to model.TransferStatus, mv *ledger.Movement) (*model.Transfer, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin settle: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1 FOR UPDATE`, id)
	t, err := scanTransfer(row)
	if err != nil {
		return nil, err
	}
	if t.Status != model.StatusPending {
		return nil, ledger.ErrInvalidTransition
	}

	if mv != nil {
		if err := s.applyMovement(ctx, tx, mv); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE transfers SET status = $2, resolved_at = $3 WHERE id = $1 AND status = 'pending'`,
		id, to, now,
	)
	if err != nil {
		return nil, fmt.Errorf("settle transfer: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, ledger.ErrInvalidTransition
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit settle: %w", err)
	}

	t.Status = to
	t.ResolvedAt = &now
	return t, nil
}

// applyMovement debits the payer and credits the payee inside the settle
// transaction. Wallets are locked in sorted id order to avoid deadlocks
// between settlements touching the same pair.
func (s *Store) applyMovement(ctx context.Context, tx pgx.Tx, mv *ledger.Movement) error {
	ids := make([]string, 0, 2)
	if mv.PayerID != "" {
		ids = append(ids, mv.PayerID)
	}
	if mv.PayeeID != "" {
		ids = append(ids, mv.PayeeID)
	}
	sort.Strings(ids)

	balances := make(map[string]int64, len(ids))
	for _, uid := range ids {
		if err := s.ensureWallet(ctx, tx, uid); err != nil {
			return err
		}
		var bal int64
		if err := tx.QueryRow(ctx,
			`SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, uid,
		).Scan(&bal); err != nil {
			return fmt.Errorf("lock wallet %s: %w", uid, err)
		}
		balances[uid] = bal
	}

	if mv.PayerID != "" && balances[mv.PayerID] < mv.Amount {
		return ledger.ErrInsufficientFunds
	}

	if mv.PayerID != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE wallets SET balance = balance - $2, updated_at = now() WHERE user_id = $1`,
			mv.PayerID, mv.Amount,
		); err != nil {
			return fmt.Errorf("debit payer: %w", err)
		}
	}
	if mv.PayeeID != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE wallets SET balance = balance + $2, updated_at = now() WHERE user_id = $1`,
			mv.PayeeID, mv.Amount,
		); err != nil {
			return fmt.Errorf("credit payee: %w", err)
		}
	}
	return nil
}

func (s *Store) PutSession(ctx context.Context, sess *model.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (token, user_id, created_at) VALUES ($1, $2, $3)`,
		sess.Token, sess.UserID, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) Session(ctx context.Context, token string) (*model.Session, error) {
	var sess model.Session
	err := s.pool.QueryRow(ctx,
		`SELECT token, user_id, created_at FROM sessions WHERE token = $1`, token,
	).Scan(&sess.Token, &sess.UserID, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return &sess, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) ensureWallet(ctx context.Context, q querier, userID string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO wallets (user_id, balance) VALUES ($1, 0) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("provision wallet: %w", err)
	}
	return nil
}

func scanTransfer(row pgx.Row) (*model.Transfer, error) {
	var t model.Transfer
	err := row.Scan(&t.ID, &t.FromUserID, &t.ToUserID, &t.Amount, &t.Purpose,
		&t.Kind, &t.Status, &t.CreatedAt, &t.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan transfer: %w", err)
	}
	return &t, nil
}
