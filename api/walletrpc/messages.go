// Package walletrpc defines the replica-to-replica replication RPC: the
// wire messages, a JSON encoding.Codec, and a hand-written gRPC service
// descriptor and client stub.
//
// The teacher's gRPC services (api/*/main.go) are all generated from
// .proto files via protoc-gen-go-grpc; that generated code (and the
// protoc toolchain that produces it) is not part of this retrieval pack,
// so this package cannot regenerate it. Rather than fabricate a fake
// generated pb.go, it takes the same public grpc-go surface a generator
// would target — grpc.ServiceDesc, grpc.ClientConnInterface, a custom
// encoding.Codec registered with grpc.ForceServerCodec/grpc.ForceCodec —
// and writes it by hand. replication.proto documents the wire contract
// a real build would compile this package from.
package walletrpc

// Kind mirrors the transaction kind carried over the wire. Using a string
// (rather than importing the wallet engine's type) keeps this package
// free of a dependency on internal/wallet, matching the teacher's own
// api packages which depend only on generated wire types.
type Kind string

const (
	KindDeposit  Kind = "DEPOSIT"
	KindWithdraw Kind = "WITHDRAW"
)

// ApplyTransactionRequest is the backup-bound replication call (spec.md §6).
type ApplyTransactionRequest struct {
	Kind          Kind    `json:"kind"`
	AccountID     string  `json:"account_id"`
	Amount        float64 `json:"amount"`
	TransactionID string  `json:"transaction_id"`
}

// ApplyTransactionReply carries the backup engine's authoritative result.
type ApplyTransactionReply struct {
	Success    bool    `json:"success"`
	NewBalance float64 `json:"new_balance,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// PingRequest is empty; Ping carries no payload (spec.md §4.3).
type PingRequest struct{}

// PingReply reports backup liveness.
type PingReply struct {
	OK bool `json:"ok"`
}
