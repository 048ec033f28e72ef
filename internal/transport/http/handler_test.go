package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"accord/internal/ledger"
	"accord/internal/model"
)

type mockService struct {
	balance    int64
	transfers  []model.Transfer
	resolveErr error
	lastAction string
}

func (m *mockService) GetBalance(ctx context.Context, userID string) (int64, error) {
	return m.balance, nil
}

func (m *mockService) CreateTransfer(ctx context.Context, actingUserID string, req model.CreateTransferRequest) (*model.Transfer, error) {
	if req.Amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	m.lastAction = "create"
	to := req.CounterpartyID
	return &model.Transfer{
		ID: "t1", FromUserID: &actingUserID, ToUserID: &to,
		Amount: req.Amount, Kind: req.Kind, Status: model.StatusPending,
		CreatedAt: time.Now(),
	}, nil
}

func (m *mockService) AcceptTransfer(ctx context.Context, transferID, actingUserID string) (*model.Transfer, error) {
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	m.lastAction = "accept:" + transferID
	return &model.Transfer{ID: transferID, Status: model.StatusAccepted}, nil
}

func (m *mockService) DeclineTransfer(ctx context.Context, transferID, actingUserID string) (*model.Transfer, error) {
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	m.lastAction = "decline:" + transferID
	return &model.Transfer{ID: transferID, Status: model.StatusDeclined}, nil
}

func (m *mockService) ListForUser(ctx context.Context, userID string, f ledger.ListFilter) ([]model.Transfer, error) {
	return m.transfers, nil
}

func (m *mockService) Deposit(ctx context.Context, userID string, amount int64, purpose string) (*model.Transfer, error) {
	return &model.Transfer{ID: "d1", Status: model.StatusAccepted}, nil
}

func (m *mockService) Withdraw(ctx context.Context, userID string, amount int64, purpose string) (*model.Transfer, error) {
	return &model.Transfer{ID: "w1", Status: model.StatusAccepted}, nil
}

type mockResolver struct{}

func (mockResolver) Resolve(ctx context.Context, token string) (string, error) {
	if token != "valid-token" {
		return "", ledger.ErrNotFound
	}
	return "alice", nil
}

func (mockResolver) CreateSession(ctx context.Context, userID string) (*model.Session, error) {
	return &model.Session{Token: "valid-token", UserID: userID}, nil
}

type mockNotifier struct{}

func (mockNotifier) Subscribe(ctx context.Context, userID string, onChange func()) func() {
	return func() {}
}

func newTestMux(svc *mockService) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(svc, mockResolver{}, mockNotifier{}).Register(mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer valid-token")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestGetBalance(t *testing.T) {
	mux := newTestMux(&mockService{balance: 250})

	w := do(mux, http.MethodGet, "/balance", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]int64
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["balance"] != 250 {
		t.Errorf("balance = %d, want 250", resp["balance"])
	}
}

func TestAuth_MissingAndInvalidToken(t *testing.T) {
	mux := newTestMux(&mockService{})

	if w := do(mux, http.MethodGet, "/balance", "", false); w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/balance", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", w.Code)
	}
}

func TestCreateTransfer(t *testing.T) {
	svc := &mockService{}
	mux := newTestMux(svc)

	w := do(mux, http.MethodPost, "/transfers",
		`{"counterparty_id":"bob","amount":40,"purpose":"lunch","kind":"send"}`, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if svc.lastAction != "create" {
		t.Errorf("service not invoked, lastAction = %q", svc.lastAction)
	}

	if w := do(mux, http.MethodPost, "/transfers", `{"amount":0}`, true); w.Code != http.StatusBadRequest {
		t.Errorf("invalid amount status = %d, want 400", w.Code)
	}
	if w := do(mux, http.MethodPost, "/transfers", `not json`, true); w.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", w.Code)
	}
}

func TestResolveTransfer_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ledger.ErrForbidden, http.StatusForbidden},
		{ledger.ErrNotFound, http.StatusNotFound},
		{ledger.ErrInvalidTransition, http.StatusConflict},
		{ledger.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		mux := newTestMux(&mockService{resolveErr: tc.err})
		w := do(mux, http.MethodPost, "/transfers/t1/accept", "", true)
		if w.Code != tc.want {
			t.Errorf("err %v: status = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}

func TestDeclineTransfer_UsesPathID(t *testing.T) {
	svc := &mockService{}
	mux := newTestMux(svc)

	w := do(mux, http.MethodPost, "/transfers/abc123/decline", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if svc.lastAction != "decline:abc123" {
		t.Errorf("lastAction = %q, want decline:abc123", svc.lastAction)
	}
}

func TestListTransfers(t *testing.T) {
	svc := &mockService{transfers: []model.Transfer{{ID: "t1"}, {ID: "t2"}}}
	mux := newTestMux(svc)

	w := do(mux, http.MethodGet, "/transfers?role=payee&status=pending", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got []model.Transfer
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestCreateSession(t *testing.T) {
	mux := newTestMux(&mockService{})

	w := do(mux, http.MethodPost, "/sessions", `{"user_id":"alice"}`, false)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	var sess model.Session
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.Token == "" || sess.UserID != "alice" {
		t.Errorf("session = %+v", sess)
	}
}

type mockResetter struct{ called bool }

func (m *mockResetter) Reset(ctx context.Context) error {
	m.called = true
	return nil
}

func TestReset_OnlyRegisteredWithResetter(t *testing.T) {
	// Without a resetter the route does not exist.
	mux := newTestMux(&mockService{})
	if w := do(mux, http.MethodPost, "/admin/reset", "", false); w.Code == http.StatusOK {
		t.Error("reset endpoint registered without a resetter")
	}

	rst := &mockResetter{}
	mux = http.NewServeMux()
	NewHandler(&mockService{}, mockResolver{}, mockNotifier{}).WithResetter(rst).Register(mux)
	w := do(mux, http.MethodPost, "/admin/reset", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !rst.called {
		t.Error("resetter not invoked")
	}
}

func TestDeposit(t *testing.T) {
	mux := newTestMux(&mockService{})

	w := do(mux, http.MethodPost, "/deposit", `{"amount":100,"purpose":"top-up"}`, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
}
