// Package wallet implements the replicated transaction engine: the
// in-memory balance map and transaction ledger, and the write-ahead-log
// discipline that makes deposit/withdraw idempotent and crash-safe.
//
// It is grounded on the teacher's core/write_engine memtable+WAL split
// (core/write_engine/wal/log_manager.go, core/write_engine/memtable) but
// collapsed into a single engine type: this domain has one mutable index
// (a balance map keyed by account_id), not a tiered storage engine, so the
// memtable/flush-manager/page-manager layering the teacher needs for a
// general-purpose store has no counterpart here.
package wallet

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/replicatedwallet/walletd/internal/errs"
	"github.com/replicatedwallet/walletd/internal/wallet/ledgerlog"
	"github.com/replicatedwallet/walletd/pkg/telemetry"
)

// Kind mirrors ledgerlog.Kind at the engine's public boundary.
type Kind = ledgerlog.Kind

const (
	KindDeposit  = ledgerlog.KindDeposit
	KindWithdraw = ledgerlog.KindWithdraw
)

// Result is the outcome of a deposit or withdraw call: the record the
// engine committed (or replayed from a prior call with the same
// transaction_id).
type Result struct {
	TransactionID string
	Success       bool
	NewBalance    float64 // only meaningful when Success is true
	Message       string
}

// walLog is the subset of *ledgerlog.Log the engine depends on. Declaring
// it as an interface lets tests inject a commit-append failure on a live
// engine without faking an actual disk I/O error (*ledgerlog.Log satisfies
// this implicitly).
type walLog interface {
	Append(ledgerlog.Record) error
	ReadAll() ([]ledgerlog.Record, error)
	Close() error
}

// Engine is the wallet engine for a single replica role. All mutating
// operations are serialized under a single lock (spec.md §4.1/§5): this
// domain's throughput needs never justified the complexity of per-account
// sharding the teacher's indexing packages use for general key ranges.
type Engine struct {
	mu       sync.Mutex
	balances map[string]float64
	ledger   map[string]ledgerlog.Record // latest record per transaction_id
	log      walLog

	snapshotPath string
	recovered    bool

	logger  *zap.Logger
	metrics *telemetry.WalletMetrics
}

// Open creates or attaches to the engine's on-disk state under stateDir,
// using filename prefixes (e.g. "primary" or "backup") so both roles can
// run against the same STATE_DIR during local testing (spec.md §6).
func Open(stateDir, rolePrefix string, logger *zap.Logger, metrics *telemetry.WalletMetrics) (*Engine, error) {
	ledgerPath := filepath.Join(stateDir, rolePrefix+"_ledger.log")
	log, err := ledgerlog.Open(ledgerPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &Engine{
		balances:     map[string]float64{},
		ledger:       map[string]ledgerlog.Record{},
		log:          log,
		snapshotPath: filepath.Join(stateDir, rolePrefix+"_balances.json"),
		logger:       logger,
		metrics:      metrics,
	}, nil
}

// Recover replays the ledger and resolves any PENDING records left by a
// crash, per spec.md §4.1. It must be called exactly once, before any
// deposit/withdraw/get_balance call is accepted.
func (e *Engine) Recover() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, err := e.log.ReadAll()
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrLedgerCorrupt, err)
	}

	balances := map[string]float64{}
	latest := map[string]ledgerlog.Record{}
	var order []string
	for _, rec := range records {
		if _, seen := latest[rec.TransactionID]; !seen {
			order = append(order, rec.TransactionID)
		}
		latest[rec.TransactionID] = rec
	}

	var pending []string
	for _, id := range order {
		rec := latest[id]
		switch rec.Status {
		case ledgerlog.StatusCommitted:
			if rec.Success != nil && *rec.Success {
				applyBalanceEffect(balances, rec)
			}
		case ledgerlog.StatusPending:
			pending = append(pending, id)
		case ledgerlog.StatusRolledBack:
			// No balance effect, by construction (§4.1 recovery algorithm).
		}
	}

	for _, id := range pending {
		rec := latest[id]
		rolledBack := rec
		rolledBack.Status = ledgerlog.StatusRolledBack
		falseVal := false
		rolledBack.Success = &falseVal
		rolledBack.NewBalance = nil
		rolledBack.Message = "rolled back during recovery: no commit record found for in-flight transaction"
		if err := e.log.Append(rolledBack); err != nil {
			return fmt.Errorf("persist rollback for %s: %w", id, err)
		}
		latest[id] = rolledBack
		if e.logger != nil {
			e.logger.Warn("rolled back pending transaction during recovery",
				zap.String("transaction_id", id),
				zap.String("account_id", rec.AccountID))
		}
	}

	e.balances = balances
	e.ledger = latest
	e.recovered = true

	if err := writeSnapshot(e.snapshotPath, e.balances); err != nil {
		if e.logger != nil {
			e.logger.Warn("failed to refresh balance snapshot after recovery", zap.Error(err))
		}
	}

	if e.logger != nil {
		e.logger.Info("wallet engine recovery complete",
			zap.Int("records_replayed", len(records)),
			zap.Int("pending_rolled_back", len(pending)))
	}
	return nil
}

func applyBalanceEffect(balances map[string]float64, rec ledgerlog.Record) {
	switch rec.Kind {
	case ledgerlog.KindDeposit:
		balances[rec.AccountID] += rec.Amount
	case ledgerlog.KindWithdraw:
		balances[rec.AccountID] -= rec.Amount
	}
}

// Deposit credits amount to account_id, or replays the cached result if
// transaction_id has already been seen (spec.md §4.1).
func (e *Engine) Deposit(accountID string, amount float64, transactionID string) (Result, error) {
	return e.apply(ledgerlog.KindDeposit, accountID, amount, transactionID)
}

// Withdraw debits amount from account_id if sufficient balance exists, or
// replays the cached result if transaction_id has already been seen.
func (e *Engine) Withdraw(accountID string, amount float64, transactionID string) (Result, error) {
	return e.apply(ledgerlog.KindWithdraw, accountID, amount, transactionID)
}

func (e *Engine) apply(kind ledgerlog.Kind, accountID string, amount float64, transactionID string) (Result, error) {
	if amount <= 0 {
		return Result{}, errs.ErrInvalidAmount
	}
	if accountID == "" {
		return Result{}, errs.ErrEmptyAccountID
	}
	if transactionID == "" {
		return Result{}, errs.ErrEmptyTransactionID
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.recovered {
		return Result{}, errs.ErrEngineNotRecovered
	}

	if cached, ok := e.ledger[transactionID]; ok {
		if e.metrics != nil {
			e.metrics.IdempotentReplays.Add(context.Background(), 1)
		}
		return resultFromRecord(cached), nil
	}

	pending := ledgerlog.Record{
		TransactionID: transactionID,
		AccountID:     accountID,
		Amount:        amount,
		Kind:          kind,
		Status:        ledgerlog.StatusPending,
		CreatedAt:     time.Now(),
	}

	syncStart := time.Now()
	if err := e.log.Append(pending); err != nil {
		return Result{}, fmt.Errorf("%w: %v", errs.ErrDurabilityFailure, err)
	}
	if e.metrics != nil {
		e.metrics.LedgerSyncLatency.Record(context.Background(), float64(time.Since(syncStart).Milliseconds()))
	}
	e.ledger[transactionID] = pending

	committed := pending
	committed.Status = ledgerlog.StatusCommitted

	// newBalance/balanceChanged are computed against e.balances but not
	// written back to it yet: e.balances must never reflect an effect the
	// commit record describing it failed to reach disk (spec.md §7
	// "durability failure ... leaving the WAL consistent"). The map is only
	// mutated after the commit append below succeeds.
	var (
		newBalance     float64
		balanceChanged bool
	)

	switch kind {
	case ledgerlog.KindDeposit:
		newBalance = e.balances[accountID] + amount
		balanceChanged = true
		success := true
		committed.Success = &success
		committed.NewBalance = &newBalance
		if e.metrics != nil {
			e.metrics.DepositsTotal.Add(context.Background(), 1)
		}
	case ledgerlog.KindWithdraw:
		current := e.balances[accountID]
		if current < amount {
			success := false
			committed.Success = &success
			committed.Message = errs.ErrInsufficientBalance.Error()
		} else {
			newBalance = current - amount
			balanceChanged = true
			success := true
			committed.Success = &success
			committed.NewBalance = &newBalance
		}
		if e.metrics != nil {
			e.metrics.WithdrawalsTotal.Add(context.Background(), 1)
		}
	}

	if err := e.log.Append(committed); err != nil {
		return Result{}, fmt.Errorf("%w: %v", errs.ErrDurabilityFailure, err)
	}
	e.ledger[transactionID] = committed
	if balanceChanged {
		e.balances[accountID] = newBalance
	}

	if err := writeSnapshot(e.snapshotPath, e.balances); err != nil && e.logger != nil {
		e.logger.Warn("failed to refresh balance snapshot", zap.Error(err))
	}

	return resultFromRecord(committed), nil
}

func resultFromRecord(rec ledgerlog.Record) Result {
	r := Result{
		TransactionID: rec.TransactionID,
		Message:       rec.Message,
	}
	if rec.Success != nil {
		r.Success = *rec.Success
	}
	if rec.NewBalance != nil {
		r.NewBalance = *rec.NewBalance
	}
	return r
}

// GetBalance returns the current balance for account_id; unknown accounts
// report 0 (spec.md §4.1).
func (e *Engine) GetBalance(accountID string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[accountID]
}

// Close flushes and releases the engine's on-disk resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.Close()
}
