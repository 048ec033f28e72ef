package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"accord/internal/ledger"
	"accord/internal/model"
)

type ctxKey string

const userKey ctxKey = "user_id"

// SessionResolver is the identity boundary: opaque bearer token in, acting
// user id out.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
	CreateSession(ctx context.Context, userID string) (*model.Session, error)
}

// Notifier is the change-notification bridge surface the SSE endpoint sits on.
type Notifier interface {
	Subscribe(ctx context.Context, userID string, onChange func()) (unsubscribe func())
}

// Resetter clears the demo-mode store. Nil outside demo mode.
type Resetter interface {
	Reset(ctx context.Context) error
}

type Handler struct {
	svc      ledger.Service
	resolver SessionResolver
	notifier Notifier
	resetter Resetter
}

func NewHandler(svc ledger.Service, resolver SessionResolver, notifier Notifier) *Handler {
	return &Handler{svc: svc, resolver: resolver, notifier: notifier}
}

// WithResetter enables the demo-only reset endpoint.
func (h *Handler) WithResetter(r Resetter) *Handler {
	h.resetter = r
	return h
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /sessions", h.CreateSession)
	mux.HandleFunc("GET /balance", h.auth(h.GetBalance))
	mux.HandleFunc("GET /transfers", h.auth(h.ListTransfers))
	mux.HandleFunc("POST /transfers", h.auth(h.CreateTransfer))
	mux.HandleFunc("POST /transfers/{id}/accept", h.auth(h.AcceptTransfer))
	mux.HandleFunc("POST /transfers/{id}/decline", h.auth(h.DeclineTransfer))
	mux.HandleFunc("POST /deposit", h.auth(h.Deposit))
	mux.HandleFunc("POST /withdraw", h.auth(h.Withdraw))
	mux.HandleFunc("GET /events", h.auth(h.Events))
	if h.resetter != nil {
		mux.HandleFunc("POST /admin/reset", h.Reset)
	}
}

// Reset wipes the demo store. The cache persists indefinitely otherwise;
// this is the one sanctioned way to clear it.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.resetter.Reset(r.Context()); err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "operation could not complete, retry")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// auth resolves the bearer token and stashes the acting user id in the
// request context. Every mutating and reading surface goes through here.
func (h *Handler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			h.respondError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		userID, err := h.resolver.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				h.respondError(w, http.StatusUnauthorized, "invalid_token")
				return
			}
			h.respondError(w, http.StatusServiceUnavailable, "retry")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, userID)))
	}
}

func actingUser(r *http.Request) string {
	id, _ := r.Context().Value(userKey).(string)
	return id
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	sess, err := h.resolver.CreateSession(r.Context(), req.UserID)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.svc.GetBalance(r.Context(), actingUser(r))
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	f := ledger.ListFilter{
		Role:   ledger.Role(r.URL.Query().Get("role")),
		Status: model.TransferStatus(r.URL.Query().Get("status")),
	}
	transfers, err := h.svc.ListForUser(r.Context(), actingUser(r), f)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, transfers)
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	t, err := h.svc.CreateTransfer(r.Context(), actingUser(r), req)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, t)
}

func (h *Handler) AcceptTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.AcceptTransfer(r.Context(), r.PathValue("id"), actingUser(r))
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, t)
}

func (h *Handler) DeclineTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.DeclineTransfer(r.Context(), r.PathValue("id"), actingUser(r))
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, t)
}

type externalRequest struct {
	Amount  int64  `json:"amount"`
	Purpose string `json:"purpose"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req externalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	t, err := h.svc.Deposit(r.Context(), actingUser(r), req.Amount, req.Purpose)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, t)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req externalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	t, err := h.svc.Withdraw(r.Context(), actingUser(r), req.Amount, req.Purpose)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, t)
}

// Events streams change pings over SSE. The payload is deliberately empty:
// consumers re-fetch through /transfers and /balance rather than trusting
// a pushed shape.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ping := make(chan struct{}, 1)
	unsubscribe := h.notifier.Subscribe(r.Context(), actingUser(r), func() {
		select {
		case ping <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping:
			_, _ = w.Write([]byte("event: change\ndata: {}\n\n"))
			flusher.Flush()
		}
	}
}

// respondLedgerError maps the error taxonomy onto status codes. Validation
// errors surface verbatim; anything else degrades to a retryable 503.
func (h *Handler) respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidParticipant):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrForbidden):
		h.respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidTransition):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.respondError(w, http.StatusServiceUnavailable, "operation could not complete, retry")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
