package core

// Frame is a raw encoded payload handed to a transport.
type Frame []byte

// SignalConnection abstracts the per-client messaging transport.
// Owned by the adapter; the adapter must Close() it. TrySend must never
// block: a full peer is reported as an error, not waited on.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
