package wallet

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/replicatedwallet/walletd/internal/errs"
	"github.com/replicatedwallet/walletd/internal/wallet/ledgerlog"
)

// failAfterNAppends wraps a real *ledgerlog.Log so a specific Append call
// can be made to fail on a live engine, without needing to fake an actual
// disk error.
type failAfterNAppends struct {
	real    *ledgerlog.Log
	failOn  int
	applied int
}

func (f *failAfterNAppends) Append(rec ledgerlog.Record) error {
	f.applied++
	if f.applied == f.failOn {
		return errors.New("simulated durability failure")
	}
	return f.real.Append(rec)
}

func (f *failAfterNAppends) ReadAll() ([]ledgerlog.Record, error) { return f.real.ReadAll() }
func (f *failAfterNAppends) Close() error                         { return f.real.Close() }

func newTestPendingRecord(txnID, accountID string, amount float64) ledgerlog.Record {
	return ledgerlog.Record{
		TransactionID: txnID,
		AccountID:     accountID,
		Amount:        amount,
		Kind:          ledgerlog.KindDeposit,
		Status:        ledgerlog.StatusPending,
		CreatedAt:     time.Now(),
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(t.TempDir(), "primary", nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.Recover())
	t.Cleanup(func() { e.Close() })
	return e
}

func TestDeposit_HappyPath(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Deposit("user123", 100, "t1")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 100.0, result.NewBalance)
	require.Equal(t, 100.0, e.GetBalance("user123"))
}

func TestDeposit_IdempotentReplay(t *testing.T) {
	e := newTestEngine(t)

	first, err := e.Deposit("user123", 100, "t1")
	require.NoError(t, err)

	second, err := e.Deposit("user123", 100, "t1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 100.0, e.GetBalance("user123"), "replay must not double the balance effect")
}

func TestDeposit_IdempotentReplay_IgnoresDifferentArguments(t *testing.T) {
	e := newTestEngine(t)

	first, err := e.Deposit("user123", 100, "t1")
	require.NoError(t, err)

	// Same transaction_id with a different amount still replays the
	// original cached outcome verbatim (spec.md §4.1).
	replay, err := e.Deposit("user123", 999, "t1")
	require.NoError(t, err)
	require.Equal(t, first, replay)
}

func TestWithdraw_InsufficientBalance(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Deposit("user123", 100, "t1")
	require.NoError(t, err)

	result, err := e.Withdraw("user123", 500, "t2")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "insufficient balance", result.Message)
	require.Equal(t, 100.0, e.GetBalance("user123"))

	retry, err := e.Withdraw("user123", 500, "t2")
	require.NoError(t, err)
	require.Equal(t, result, retry)
}

func TestWithdraw_UnknownAccountTreatedAsZeroBalance(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Withdraw("ghost", 1, "t1")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, 0.0, e.GetBalance("ghost"))
}

func TestWithdraw_HappyPath(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Deposit("user123", 100, "t1")
	require.NoError(t, err)

	result, err := e.Withdraw("user123", 40, "t2")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 60.0, result.NewBalance)
	require.Equal(t, 60.0, e.GetBalance("user123"))
}

func TestApply_ValidationErrors(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Deposit("user123", 0, "t1")
	require.Error(t, err)

	_, err = e.Deposit("", 10, "t1")
	require.Error(t, err)

	_, err = e.Deposit("user123", 10, "")
	require.Error(t, err)
}

func TestRecover_RollsBackPendingRecordAfterSimulatedCrash(t *testing.T) {
	dir := t.TempDir()

	e, err := Open(dir, "primary", nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.Recover())

	// Simulate a crash between the PENDING write and the COMMITTED write by
	// appending only the PENDING record directly to the ledger, bypassing
	// the engine's normal apply path.
	pendingOnly := e.log
	require.NoError(t, pendingOnly.Append(newTestPendingRecord("t3", "user456", 50)))
	require.NoError(t, e.Close())

	restarted, err := Open(dir, "primary", nil, nil)
	require.NoError(t, err)
	defer restarted.Close()
	require.NoError(t, restarted.Recover())

	require.Equal(t, 0.0, restarted.GetBalance("user456"))

	// The original id now replays as a rolled-back, failed result rather
	// than being re-applied.
	cached, ok := restarted.ledger["t3"]
	require.True(t, ok)
	require.Equal(t, "ROLLED_BACK", string(cached.Status))

	// A fresh transaction_id for the same account proceeds normally.
	result, err := restarted.Deposit("user456", 50, "t4")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 50.0, result.NewBalance)
}

func TestEngine_RejectsOperationsBeforeRecover(t *testing.T) {
	e, err := Open(t.TempDir(), "primary", nil, nil)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Deposit("user123", 10, "t1")
	require.Error(t, err)
}

// newTestEngineWithFailingLog builds an engine whose underlying WAL fails
// on its failOn'th Append call (1-indexed across PENDING and COMMITTED
// writes combined), so a durability failure can be exercised on a live
// engine without a restart.
func newTestEngineWithFailingLog(t *testing.T, failOn int) (*Engine, *failAfterNAppends) {
	t.Helper()
	dir := t.TempDir()
	real, err := ledgerlog.Open(filepath.Join(dir, "primary_ledger.log"))
	require.NoError(t, err)
	t.Cleanup(func() { real.Close() })

	fl := &failAfterNAppends{real: real, failOn: failOn}
	e := &Engine{
		balances:     map[string]float64{},
		ledger:       map[string]ledgerlog.Record{},
		log:          fl,
		snapshotPath: filepath.Join(dir, "primary_balances.json"),
		recovered:    true,
	}
	return e, fl
}

func TestDeposit_DurabilityFailureOnCommitDoesNotMutateBalance(t *testing.T) {
	// The PENDING append (1st) succeeds; the COMMITTED append (2nd) fails.
	e, _ := newTestEngineWithFailingLog(t, 2)

	_, err := e.Deposit("user123", 100, "t1")
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrDurabilityFailure)

	require.Equal(t, 0.0, e.GetBalance("user123"),
		"balance must not reflect an effect whose commit record never reached disk (invariant 4)")

	cached, ok := e.ledger["t1"]
	require.True(t, ok)
	require.Equal(t, ledgerlog.StatusPending, cached.Status,
		"in-memory ledger cache must match what actually landed on disk: only the PENDING write succeeded")
}

func TestWithdraw_DurabilityFailureOnCommitDoesNotMutateBalance(t *testing.T) {
	// Seed a balance with an engine whose log never fails, then swap in a
	// failing log for the withdrawal under test.
	e, _ := newTestEngineWithFailingLog(t, 0) // failOn=0 never fires
	_, err := e.Deposit("user123", 100, "t1")
	require.NoError(t, err)

	fl := &failAfterNAppends{real: e.log.(*failAfterNAppends).real, failOn: 2}
	e.log = fl

	_, err = e.Withdraw("user123", 40, "t2")
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrDurabilityFailure)

	require.Equal(t, 100.0, e.GetBalance("user123"),
		"a failed commit append must leave the pre-withdrawal balance untouched")

	cached, ok := e.ledger["t2"]
	require.True(t, ok)
	require.Equal(t, ledgerlog.StatusPending, cached.Status)
}
