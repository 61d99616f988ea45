package telemetry

import "go.opentelemetry.io/otel/metric"

// WalletMetrics holds the instrument set the wallet engine, orchestrator,
// and failover manager emit into during normal operation.
type WalletMetrics struct {
	DepositsTotal       metric.Int64Counter
	WithdrawalsTotal    metric.Int64Counter
	IdempotentReplays   metric.Int64Counter
	ReplicationFailures metric.Int64Counter
	ReplicationMismatch metric.Int64Counter
	FailoverTransitions metric.Int64Counter
	LedgerSyncLatency   metric.Float64Histogram
}

// NewWalletMetrics creates and registers the wallet-domain instruments on the
// given meter.
func NewWalletMetrics(meter metric.Meter) (*WalletMetrics, error) {
	depositsTotal, err := meter.Int64Counter(
		"walletd.engine.deposits_total",
		metric.WithDescription("Total number of deposit operations committed (success or failure)."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	withdrawalsTotal, err := meter.Int64Counter(
		"walletd.engine.withdrawals_total",
		metric.WithDescription("Total number of withdraw operations committed (success or failure)."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	idempotentReplays, err := meter.Int64Counter(
		"walletd.engine.idempotent_replays_total",
		metric.WithDescription("Total number of requests answered from a cached transaction record."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	replicationFailures, err := meter.Int64Counter(
		"walletd.replication.unreachable_total",
		metric.WithDescription("Total number of replicate calls that failed with UNREACHABLE."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	replicationMismatch, err := meter.Int64Counter(
		"walletd.replication.mismatch_total",
		metric.WithDescription("Total number of primary/backup result mismatches detected in NORMAL mode."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	failoverTransitions, err := meter.Int64Counter(
		"walletd.failover.transitions_total",
		metric.WithDescription("Total number of NORMAL<->FAILOVER mode transitions."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	ledgerSyncLatency, err := meter.Float64Histogram(
		"walletd.wal.sync_duration_ms",
		metric.WithDescription("Latency of durable ledger writes (fsync included)."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &WalletMetrics{
		DepositsTotal:       depositsTotal,
		WithdrawalsTotal:    withdrawalsTotal,
		IdempotentReplays:   idempotentReplays,
		ReplicationFailures: replicationFailures,
		ReplicationMismatch: replicationMismatch,
		FailoverTransitions: failoverTransitions,
		LedgerSyncLatency:   ledgerSyncLatency,
	}, nil
}
