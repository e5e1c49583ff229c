package attenuator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// TCPDialer connects to an attenuator controller reached through a
// serial-to-TCP device server.
type TCPDialer struct {
	// Addr is the device server address, e.g. "10.0.0.5:10001".
	Addr string
	// SendTimeout bounds each command write. Defaults to 30s.
	SendTimeout time.Duration
	// ChunkTimeout bounds each single receive attempt. Defaults to 5s.
	ChunkTimeout time.Duration
}

// Dial opens the TCP connection. An address that is already connected at
// the OS level is indistinguishable from a fresh connection here; the
// session layer treats repeated Connect calls as idempotent instead.
func (d TCPDialer) Dial(ctx context.Context) (Transport, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.Addr, err)
	}
	t := &tcpTransport{
		conn:         conn,
		sendTimeout:  d.SendTimeout,
		chunkTimeout: d.ChunkTimeout,
	}
	if t.sendTimeout <= 0 {
		t.sendTimeout = 30 * time.Second
	}
	if t.chunkTimeout <= 0 {
		t.chunkTimeout = 5 * time.Second
	}
	return t, nil
}

type tcpTransport struct {
	conn         net.Conn
	sendTimeout  time.Duration
	chunkTimeout time.Duration
}

func (t *tcpTransport) Write(p []byte) (int, error) {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.sendTimeout)); err != nil {
		return 0, err
	}
	return t.conn.Write(p)
}

// Read returns one chunk, or (0, nil) when the per-chunk deadline expires
// before any byte arrives.
func (t *tcpTransport) Read(p []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.chunkTimeout)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(p)
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

// Drain discards whatever the controller has already sent, polling with a
// near-zero deadline so an idle socket returns immediately.
func (t *tcpTransport) Drain() (int, error) {
	discarded := 0
	buf := make([]byte, 1024)
	for {
		if err := t.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
			return discarded, err
		}
		n, err := t.conn.Read(buf)
		discarded += n
		if err != nil {
			if isTimeout(err) {
				return discarded, nil
			}
			return discarded, err
		}
		if n == 0 {
			return discarded, nil
		}
	}
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

var _ Transport = (*tcpTransport)(nil)
var _ Dialer = TCPDialer{}
