// Package orchestrator implements the primary's sync-first replication
// protocol (spec.md §4.4): replicate to the backup before applying
// locally, so a primary crash between the two steps never leaves a
// transaction the backup hasn't seen.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/replicatedwallet/walletd/api/walletrpc"
	"github.com/replicatedwallet/walletd/internal/errs"
	"github.com/replicatedwallet/walletd/internal/failover"
	"github.com/replicatedwallet/walletd/internal/replication"
	"github.com/replicatedwallet/walletd/internal/wallet"
	"github.com/replicatedwallet/walletd/pkg/telemetry"
)

// Orchestrator sequences replicate-then-apply for every mutating request
// and translates the two engine results into the one the HTTP edge sees.
type Orchestrator struct {
	engine   *wallet.Engine
	client   *replication.Client
	failover *failover.Manager
	tracer   trace.Tracer
	logger   *zap.Logger
	metrics  *telemetry.WalletMetrics

	acctLocksMu sync.Mutex
	acctLocks   map[string]*sync.Mutex
}

// New wires an Orchestrator from its already-constructed collaborators.
func New(engine *wallet.Engine, client *replication.Client, fo *failover.Manager, tracer trace.Tracer, logger *zap.Logger, metrics *telemetry.WalletMetrics) *Orchestrator {
	return &Orchestrator{
		engine:    engine,
		client:    client,
		failover:  fo,
		tracer:    tracer,
		logger:    logger,
		metrics:   metrics,
		acctLocks: map[string]*sync.Mutex{},
	}
}

// lockAccount returns the mutex serializing every mutate() call for
// accountID, creating it on first use. Holding this lock across the whole
// replicate-then-apply sequence is what makes spec.md §5's ordering
// guarantee hold: without it, two concurrent operations on the same account
// could replicate to the backup in one order and apply locally in the
// other, diverging the two engines on non-commutative operations like
// withdrawals.
func (o *Orchestrator) lockAccount(accountID string) *sync.Mutex {
	o.acctLocksMu.Lock()
	defer o.acctLocksMu.Unlock()
	lock, ok := o.acctLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		o.acctLocks[accountID] = lock
	}
	return lock
}

// Deposit runs the replicate-first-then-apply sequence for a deposit.
func (o *Orchestrator) Deposit(ctx context.Context, accountID string, amount float64, transactionID string) (wallet.Result, error) {
	return o.mutate(ctx, walletrpc.KindDeposit, accountID, amount, transactionID)
}

// Withdraw runs the replicate-first-then-apply sequence for a withdrawal.
func (o *Orchestrator) Withdraw(ctx context.Context, accountID string, amount float64, transactionID string) (wallet.Result, error) {
	return o.mutate(ctx, walletrpc.KindWithdraw, accountID, amount, transactionID)
}

// GetBalance bypasses replication entirely (spec.md §4.4).
func (o *Orchestrator) GetBalance(accountID string) float64 {
	return o.engine.GetBalance(accountID)
}

func (o *Orchestrator) mutate(ctx context.Context, kind walletrpc.Kind, accountID string, amount float64, transactionID string) (wallet.Result, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.mutate",
		trace.WithAttributes(
			attribute.String("transaction_id", transactionID),
			attribute.String("kind", string(kind)),
		))
	defer span.End()

	// Held across the entire replicate-then-apply sequence below, never
	// released until after the local engine call returns, so the two
	// replicas can never see operations on this account in different
	// relative orders (spec.md §5).
	lock := o.lockAccount(accountID)
	lock.Lock()
	defer lock.Unlock()

	var backupOutcome *replication.Outcome

	if o.failover.Mode() == failover.Normal {
		outcome := o.client.Replicate(ctx, kind, accountID, amount, transactionID)
		if outcome.Unreachable {
			o.failover.ForceFailover()
			if o.metrics != nil {
				o.metrics.ReplicationFailures.Add(ctx, 1)
			}
		} else {
			backupOutcome = &outcome
		}
	}

	var (
		primary wallet.Result
		err     error
	)
	switch kind {
	case walletrpc.KindDeposit:
		primary, err = o.engine.Deposit(accountID, amount, transactionID)
	case walletrpc.KindWithdraw:
		primary, err = o.engine.Withdraw(accountID, amount, transactionID)
	default:
		return wallet.Result{}, fmt.Errorf("orchestrator: unknown transaction kind %q", kind)
	}
	if err != nil {
		return wallet.Result{}, err
	}

	if backupOutcome != nil {
		o.compare(transactionID, primary, *backupOutcome)
	}

	return primary, nil
}

// compare checks primary and backup results for agreement per spec.md
// §4.4. A mismatch is a fatal invariant violation: it is logged at ERROR
// with both records, never returned to the caller or allowed to block the
// response — the primary's own result still goes to the client.
func (o *Orchestrator) compare(transactionID string, primary wallet.Result, backup replication.Outcome) {
	mismatch := primary.Success != backup.Success
	if !mismatch && primary.Success && primary.NewBalance != backup.NewBalance {
		mismatch = true
	}
	if !mismatch {
		return
	}
	if o.logger != nil {
		o.logger.Error("replication divergence: primary and backup disagree",
			zap.Error(errs.ErrReplicationMismatch),
			zap.String("transaction_id", transactionID),
			zap.Bool("primary_success", primary.Success),
			zap.Float64("primary_new_balance", primary.NewBalance),
			zap.Bool("backup_success", backup.Success),
			zap.Float64("backup_new_balance", backup.NewBalance))
	}
	if o.metrics != nil {
		o.metrics.ReplicationMismatch.Add(context.Background(), 1)
	}
}
