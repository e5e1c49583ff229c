package attenuator

import (
	"context"
	"io"
	"sync"
)

// TestTransport is a test helper that simulates a blocking transport using
// channels. Reads block until a chunk is queued with SendChunk, the way a
// real socket read would, which makes multi-chunk accumulation and
// round-trip ordering testable. Exported for use in tests.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	written  [][]byte
	closed   bool
}

func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 16),
	}
}

func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := make([]byte, len(p))
	copy(buf, p)
	t.written = append(t.written, buf)
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (int, error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestTransport) Drain() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for {
		select {
		case data, ok := <-t.readChan:
			if !ok {
				return n, nil
			}
			n += len(data)
		default:
			return n, nil
		}
	}
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendChunk queues one chunk to be returned by the next Read. This
// simulates the controller streaming part of a response.
func (t *TestTransport) SendChunk(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// SendEmptyChunk queues a zero-length chunk, simulating a receive attempt
// whose deadline expired before any byte arrived.
func (t *TestTransport) SendEmptyChunk() {
	t.SendChunk("")
}

// Written returns every wire line written so far, in order.
func (t *TestTransport) Written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := make([]string, len(t.written))
	for i, b := range t.written {
		lines[i] = string(b)
	}
	return lines
}

// TestDialer hands out a fixed Transport, for wiring a TestTransport into
// a Controller.
type TestDialer struct {
	Transport Transport
	Err       error
}

func (d TestDialer) Dial(ctx context.Context) (Transport, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Transport, nil
}

var _ Transport = (*TestTransport)(nil)
var _ Dialer = TestDialer{}
