package replication

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/replicatedwallet/walletd/api/walletrpc"
	"github.com/replicatedwallet/walletd/internal/wallet"
)

// Server implements api/walletrpc.WalletReplicationServer by driving a
// local wallet.Engine. It is the only caller the backup's engine ever
// sees (spec.md §4.3) — the backup never accepts HTTP traffic.
type Server struct {
	engine *wallet.Engine
	logger *zap.Logger
}

// NewServer wraps engine for the replication RPC's backup role.
func NewServer(engine *wallet.Engine, logger *zap.Logger) *Server {
	return &Server{engine: engine, logger: logger}
}

// ApplyTransaction drives the local engine's deposit or withdraw and
// returns the resulting record verbatim.
func (s *Server) ApplyTransaction(ctx context.Context, req *walletrpc.ApplyTransactionRequest) (*walletrpc.ApplyTransactionReply, error) {
	var (
		result wallet.Result
		err    error
	)
	switch req.Kind {
	case walletrpc.KindDeposit:
		result, err = s.engine.Deposit(req.AccountID, req.Amount, req.TransactionID)
	case walletrpc.KindWithdraw:
		result, err = s.engine.Withdraw(req.AccountID, req.Amount, req.TransactionID)
	default:
		return nil, fmt.Errorf("replication server: unknown transaction kind %q", req.Kind)
	}
	if err != nil {
		if s.logger != nil {
			s.logger.Error("backup engine rejected replicated transaction",
				zap.String("transaction_id", req.TransactionID),
				zap.Error(err))
		}
		return nil, err
	}
	return &walletrpc.ApplyTransactionReply{
		Success:    result.Success,
		NewBalance: result.NewBalance,
		Message:    result.Message,
	}, nil
}

// Ping always reports OK: reachability of this RPC call is itself the
// liveness signal the failover manager polls for (spec.md §4.3).
func (s *Server) Ping(ctx context.Context, req *walletrpc.PingRequest) (*walletrpc.PingReply, error) {
	return &walletrpc.PingReply{OK: true}, nil
}

// Listen starts the gRPC server for the replication service on addr,
// blocking until ctx is canceled or the listener fails. The JSON codec is
// forced on the server side via grpc.ForceServerCodec, the counterpart to
// the client's grpc.ForceCodec dial option.
func Listen(ctx context.Context, addr string, engine *wallet.Engine, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer(grpc.ForceServerCodec(walletrpc.Codec()))
	walletrpc.RegisterWalletReplicationServer(grpcServer, NewServer(engine, logger))

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
