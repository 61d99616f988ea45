// Package failover implements the failover manager (spec.md §4.5): a
// single shared mode flag, flipped by a periodic backup liveness probe
// and readable without blocking by the orchestrator. This is deliberately
// NOT a consensus construct — spec.md §9 is explicit that reconciling
// divergent state across more than two nodes is out of scope — so unlike
// the teacher's core/replication/raft_consensus package, there is no log,
// no term, and no leader election here: just one atomic boolean.
package failover

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/replicatedwallet/walletd/internal/replication"
	"github.com/replicatedwallet/walletd/pkg/telemetry"
)

// Mode is the orchestrator-visible replication state.
type Mode int

const (
	Normal Mode = iota
	Failover
)

func (m Mode) String() string {
	if m == Failover {
		return "FAILOVER"
	}
	return "NORMAL"
}

// Manager holds the shared mode flag and drives the background ping loop.
type Manager struct {
	mode    atomic.Int32
	client  *replication.Client
	logger  *zap.Logger
	metrics *telemetry.WalletMetrics
}

// New creates a Manager starting in NORMAL mode; client is used for the
// background liveness probe against the backup.
func New(client *replication.Client, logger *zap.Logger, metrics *telemetry.WalletMetrics) *Manager {
	return &Manager{client: client, logger: logger, metrics: metrics}
}

// Mode returns the current mode without blocking (spec.md §4.5).
func (m *Manager) Mode() Mode {
	return Mode(m.mode.Load())
}

// ForceFailover demotes to FAILOVER synchronously, called by the
// orchestrator immediately after an UNREACHABLE replicate call so a
// client never observes a stale NORMAL for up to a full health interval
// (spec.md §4.5).
func (m *Manager) ForceFailover() {
	m.transition(Failover)
}

// Run polls the backup every interval until ctx is canceled, applying the
// NORMAL/FAILOVER state machine from spec.md §4.5.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Manager) probe(ctx context.Context) {
	err := m.client.Ping(ctx)
	if err != nil {
		m.transition(Failover)
		return
	}
	m.transition(Normal)
}

func (m *Manager) transition(next Mode) {
	prev := Mode(m.mode.Swap(int32(next)))
	if prev == next {
		return
	}
	if m.logger != nil {
		m.logger.Warn("failover mode transition", zap.String("from", prev.String()), zap.String("to", next.String()))
	}
	if m.metrics != nil {
		m.metrics.FailoverTransitions.Add(context.Background(), 1)
	}
}
