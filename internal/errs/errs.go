// Package errs collects the sentinel errors shared across the wallet
// engine, replication, and HTTP edge so callers can compare with
// errors.Is instead of inspecting error strings.
package errs

import "errors"

var (
	// Validation errors — rejected before any WAL write.
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrEmptyAccountID       = errors.New("account_id must not be empty")
	ErrEmptyTransactionID   = errors.New("transaction_id must not be empty")

	// Business errors — committed to the ledger as a failed transaction.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Engine/WAL errors.
	ErrLedgerCorrupt      = errors.New("ledger contains an unreadable or truncated record")
	ErrChecksumMismatch   = errors.New("wal record checksum mismatch")
	ErrDurabilityFailure  = errors.New("failed to durably persist wal record")
	ErrEngineNotRecovered = errors.New("engine has not completed recovery")

	// Replication errors.
	ErrReplicaUnreachable  = errors.New("replica unreachable")
	ErrReplicationMismatch = errors.New("primary and backup results disagree")
)
