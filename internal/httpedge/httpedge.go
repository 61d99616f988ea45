// Package httpedge is the thin JSON/HTTP adaptor in front of the primary
// orchestrator (spec.md §6). It owns request parsing, status-code
// mapping, and access logging; it holds no business logic of its own.
package httpedge

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/replicatedwallet/walletd/internal/orchestrator"
	"github.com/replicatedwallet/walletd/internal/wallet"
)

// Edge serves the four HTTP routes spec.md §6 defines.
type Edge struct {
	orch    *orchestrator.Orchestrator
	logger  *zap.Logger
	limiter *rate.Limiter // nil disables rate limiting (the default)
	ready   func() bool
}

// New builds an Edge. limiter may be nil to disable request throttling,
// matching the teacher's optional-limiter pattern in
// core/storage_engine/common/utils.go's CopyThrottled.
func New(orch *orchestrator.Orchestrator, logger *zap.Logger, limiter *rate.Limiter, ready func() bool) *Edge {
	return &Edge{orch: orch, logger: logger, limiter: limiter, ready: ready}
}

// Routes registers the edge's handlers on mux, each wrapped with access
// logging.
func (e *Edge) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /deposit", e.logged(e.handleDeposit))
	mux.HandleFunc("POST /withdraw", e.logged(e.handleWithdraw))
	mux.HandleFunc("POST /balance", e.logged(e.handleBalance))
	mux.HandleFunc("GET /health", e.logged(e.handleHealth))
}

// statusRecorder wraps http.ResponseWriter to capture the status code a
// handler writes, since http.ResponseWriter has no getter of its own.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// logged wraps fn with structured access logging (method, path, status,
// latency), fired once per request after fn returns.
func (e *Edge) logged(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		fn(rec, r)
		if e.logger != nil {
			e.logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("latency", time.Since(start)))
		}
	}
}

type mutationRequest struct {
	AccountID     string  `json:"account_id"`
	Amount        float64 `json:"amount"`
	TransactionID string  `json:"transaction_id"`
}

type mutationResponse struct {
	Success       bool    `json:"success"`
	Message       string  `json:"message,omitempty"`
	NewBalance    float64 `json:"new_balance,omitempty"`
	TransactionID string  `json:"transaction_id"`
}

type balanceRequest struct {
	AccountID string `json:"account_id"`
}

type balanceResponse struct {
	Success bool    `json:"success"`
	Balance float64 `json:"balance"`
	Message string  `json:"message,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (e *Edge) handleDeposit(w http.ResponseWriter, r *http.Request) {
	e.handleMutation(w, r, e.orch.Deposit)
}

func (e *Edge) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	e.handleMutation(w, r, e.orch.Withdraw)
}

type mutationFunc func(ctx context.Context, accountID string, amount float64, transactionID string) (wallet.Result, error)

func (e *Edge) handleMutation(w http.ResponseWriter, r *http.Request, op mutationFunc) {
	requestID := uuid.NewString()
	if e.limiter != nil && !e.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, mutationResponse{Success: false, Message: "rate limit exceeded"})
		return
	}

	var req mutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, mutationResponse{Success: false, Message: "malformed request body"})
		return
	}
	if req.AccountID == "" || req.TransactionID == "" || req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, mutationResponse{Success: false, Message: "account_id, transaction_id and a positive amount are required"})
		return
	}

	result, err := op(r.Context(), req.AccountID, req.Amount, req.TransactionID)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("mutation failed", zap.String("request_id", requestID), zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, mutationResponse{Success: false, Message: "internal error", TransactionID: req.TransactionID})
		return
	}

	resp := mutationResponse{
		Success:       result.Success,
		Message:       result.Message,
		NewBalance:    result.NewBalance,
		TransactionID: req.TransactionID,
	}

	// Business failure (insufficient balance) uses the same status code as
	// the source's exception-based response: HTTP 400 (spec.md §6, §9 open
	// question resolved in favor of "same status as original").
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (e *Edge) handleBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, balanceResponse{Success: false, Message: "malformed request body"})
		return
	}
	if req.AccountID == "" {
		writeJSON(w, http.StatusBadRequest, balanceResponse{Success: false, Message: "account_id is required"})
		return
	}
	balance := e.orch.GetBalance(req.AccountID)
	writeJSON(w, http.StatusOK, balanceResponse{Success: true, Balance: balance})
}

func (e *Edge) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "initializing"
	if e.ready == nil || e.ready() {
		status = "healthy"
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: status})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
