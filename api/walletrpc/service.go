package walletrpc

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName matches what a replication.proto `service WalletReplication`
// would generate as its fully-qualified gRPC method prefix.
const serviceName = "walletrpc.WalletReplication"

// WalletReplicationServer is implemented by the backup's replication
// server (internal/replication.Server) and driven exclusively by RPC
// calls from the primary (spec.md §4.3).
type WalletReplicationServer interface {
	ApplyTransaction(context.Context, *ApplyTransactionRequest) (*ApplyTransactionReply, error)
	Ping(context.Context, *PingRequest) (*PingReply, error)
}

func applyTransactionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ApplyTransactionRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WalletReplicationServer).ApplyTransaction(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: serviceName + "/ApplyTransaction",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WalletReplicationServer).ApplyTransaction(ctx, req.(*ApplyTransactionRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(PingRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WalletReplicationServer).Ping(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: serviceName + "/Ping",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WalletReplicationServer).Ping(ctx, req.(*PingRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// serviceDesc is the hand-written equivalent of the ServiceDesc a
// protoc-gen-go-grpc build emits per service; it is what
// grpc.Server.RegisterService consumes.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*WalletReplicationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ApplyTransaction",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				return applyTransactionHandler(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "Ping",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				return pingHandler(srv, ctx, dec, interceptor)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "replication.proto",
}

// RegisterWalletReplicationServer mirrors the pb.RegisterXServer functions
// a generated _grpc.pb.go would export.
func RegisterWalletReplicationServer(s grpc.ServiceRegistrar, srv WalletReplicationServer) {
	s.RegisterService(&serviceDesc, srv)
}

// WalletReplicationClient is the primary-side stub, hand-written against
// grpc.ClientConnInterface the same way generated client code is.
type WalletReplicationClient interface {
	ApplyTransaction(ctx context.Context, req *ApplyTransactionRequest, opts ...grpc.CallOption) (*ApplyTransactionReply, error)
	Ping(ctx context.Context, req *PingRequest, opts ...grpc.CallOption) (*PingReply, error)
}

type walletReplicationClient struct {
	cc grpc.ClientConnInterface
}

// NewWalletReplicationClient builds a client stub over an established
// *grpc.ClientConn (or any grpc.ClientConnInterface, e.g. for tests).
func NewWalletReplicationClient(cc grpc.ClientConnInterface) WalletReplicationClient {
	return &walletReplicationClient{cc: cc}
}

func (c *walletReplicationClient) ApplyTransaction(ctx context.Context, req *ApplyTransactionRequest, opts ...grpc.CallOption) (*ApplyTransactionReply, error) {
	reply := new(ApplyTransactionReply)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ApplyTransaction", req, reply, opts...); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *walletReplicationClient) Ping(ctx context.Context, req *PingRequest, opts ...grpc.CallOption) (*PingReply, error) {
	reply := new(PingReply)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Ping", req, reply, opts...); err != nil {
		return nil, err
	}
	return reply, nil
}
