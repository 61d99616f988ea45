package failover

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/replicatedwallet/walletd/api/walletrpc"
	"github.com/replicatedwallet/walletd/internal/replication"
)

type fakeReplicationServer struct {
	pingOK bool
}

func (f *fakeReplicationServer) Ping(ctx context.Context, req *walletrpc.PingRequest) (*walletrpc.PingReply, error) {
	return &walletrpc.PingReply{OK: f.pingOK}, nil
}

func (f *fakeReplicationServer) ApplyTransaction(ctx context.Context, req *walletrpc.ApplyTransactionRequest) (*walletrpc.ApplyTransactionReply, error) {
	return &walletrpc.ApplyTransactionReply{Success: true}, nil
}

func newFailoverTestClient(t *testing.T, srv walletrpc.WalletReplicationServer) (*replication.Client, func()) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	grpcServer := grpc.NewServer(grpc.ForceServerCodec(walletrpc.Codec()))
	walletrpc.RegisterWalletReplicationServer(grpcServer, srv)
	go grpcServer.Serve(lis)

	conn, err := grpc.NewClient(
		"passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(walletrpc.Codec())),
	)
	require.NoError(t, err)

	client := replication.NewClient(conn, 2*time.Second, 2*time.Second, nil)
	return client, func() {
		conn.Close()
		grpcServer.Stop()
	}
}

func TestManager_StartsNormal(t *testing.T) {
	client, cleanup := newFailoverTestClient(t, &fakeReplicationServer{pingOK: true})
	defer cleanup()

	m := New(client, nil, nil)
	require.Equal(t, Normal, m.Mode())
}

func TestManager_ProbeFailureTransitionsToFailover(t *testing.T) {
	client, cleanup := newFailoverTestClient(t, &fakeReplicationServer{pingOK: false})
	defer cleanup()

	m := New(client, nil, nil)
	m.probe(context.Background())
	require.Equal(t, Failover, m.Mode())
}

func TestManager_ForceFailover(t *testing.T) {
	client, cleanup := newFailoverTestClient(t, &fakeReplicationServer{pingOK: true})
	defer cleanup()

	m := New(client, nil, nil)
	require.Equal(t, Normal, m.Mode())
	m.ForceFailover()
	require.Equal(t, Failover, m.Mode())
}

func TestManager_RecoversToNormalOnNextSuccessfulPing(t *testing.T) {
	client, cleanup := newFailoverTestClient(t, &fakeReplicationServer{pingOK: true})
	defer cleanup()

	m := New(client, nil, nil)
	m.ForceFailover()
	require.Equal(t, Failover, m.Mode())

	m.probe(context.Background())
	require.Equal(t, Normal, m.Mode())
}
