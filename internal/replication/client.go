// Package replication implements the primary's replication client and the
// backup's replication server (spec.md §4.2, §4.3), grounded on the
// teacher's pkg/connection/pool.go dial-and-reuse style but targeting the
// hand-written gRPC stub in api/walletrpc instead of a raw TCP framing.
package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/replicatedwallet/walletd/api/walletrpc"
	"github.com/replicatedwallet/walletd/internal/errs"
)

// Outcome classifies a replication round-trip for the orchestrator
// (spec.md §4.2): Unreachable feeds the failover manager, LogicalReply
// never does, even when the backup reports a business failure.
type Outcome struct {
	Unreachable bool
	Success     bool
	NewBalance  float64
	Message     string
}

// Client is the primary-side stub: apply-transaction and health-ping with
// independently configurable, bounded timeouts.
type Client struct {
	conn             *grpc.ClientConn
	stub             walletrpc.WalletReplicationClient
	replicateTimeout time.Duration
	pingTimeout      time.Duration
	logger           *zap.Logger
}

// Dial opens a persistent connection to the backup's replication RPC
// endpoint. The connection is reused across calls; grpc-go reconnects
// transparently on transient network loss.
func Dial(addr string, replicateTimeout, pingTimeout time.Duration, logger *zap.Logger) (*Client, error) {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(walletrpc.Codec())),
	)
	if err != nil {
		return nil, fmt.Errorf("dial backup replication endpoint %s: %w", addr, err)
	}
	return NewClient(conn, replicateTimeout, pingTimeout, logger), nil
}

// NewClient wraps an already-established connection (e.g. a bufconn-backed
// *grpc.ClientConn in tests, or one dialed with non-default transport
// options) as a replication Client.
func NewClient(conn *grpc.ClientConn, replicateTimeout, pingTimeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		conn:             conn,
		stub:             walletrpc.NewWalletReplicationClient(conn),
		replicateTimeout: replicateTimeout,
		pingTimeout:      pingTimeout,
		logger:           logger,
	}
}

// Replicate forwards a mutation to the backup and classifies the result
// per spec.md §4.2: transport errors and deadline exceeded are
// Unreachable; anything the backup engine itself returned is a
// LogicalReply regardless of its success value.
func (c *Client) Replicate(ctx context.Context, kind walletrpc.Kind, accountID string, amount float64, transactionID string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.replicateTimeout)
	defer cancel()

	reply, err := c.stub.ApplyTransaction(ctx, &walletrpc.ApplyTransactionRequest{
		Kind:          kind,
		AccountID:     accountID,
		Amount:        amount,
		TransactionID: transactionID,
	})
	if err != nil {
		unreachable := IsUnreachable(err)
		if c.logger != nil {
			c.logger.Warn("replication call failed",
				zap.String("transaction_id", transactionID),
				zap.Bool("unreachable", unreachable),
				zap.Error(err))
		}
		return Outcome{Unreachable: unreachable, Message: err.Error()}
	}

	return Outcome{
		Success:    reply.Success,
		NewBalance: reply.NewBalance,
		Message:    reply.Message,
	}
}

// Ping probes backup liveness with a shorter timeout than Replicate uses,
// returning errs.ErrReplicaUnreachable on any transport failure.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()

	reply, err := c.stub.Ping(ctx, &walletrpc.PingRequest{})
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrReplicaUnreachable, err)
	}
	if !reply.OK {
		return fmt.Errorf("%w: backup reported not-ok", errs.ErrReplicaUnreachable)
	}
	return nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// IsUnreachable reports whether err represents a transport-level failure
// as opposed to a logical gRPC status returned deliberately by the peer.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errs.ErrReplicaUnreachable) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		return true
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.Unknown:
		return true
	default:
		return false
	}
}
