package attenuator

import (
	"context"
	"io"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=attenuator

// Transport is an established, bidirectional byte stream to the attenuator
// controller. Implementations own all socket-level concerns: Write applies
// the send deadline, Read applies the per-chunk receive deadline, and Drain
// discards pending input without blocking. The protocol engine above never
// touches socket modes directly.
//
// A Read that hits its deadline before any byte arrives returns (0, nil);
// the response accumulator counts it against the retry budget.
type Transport interface {
	io.ReadWriteCloser

	// Drain discards any bytes already buffered by the peer without
	// blocking and returns how many were thrown away.
	Drain() (int, error)
}

// Dialer opens a Transport to the controller. It abstracts how the
// connection is created (TCP to a serial-device server, a native serial
// port, or a test double) and is used by Controller.Connect only.
type Dialer interface {
	// Dial creates and returns a connected Transport. It may block and
	// should respect cancellation and deadlines from ctx.
	Dial(ctx context.Context) (Transport, error)
}
