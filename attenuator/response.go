package attenuator

import (
	"fmt"
	"strings"

	"github.com/COO-Utilities/ozoptics/wire"
)

// Kind discriminates what a completed reply carried.
type Kind int

const (
	// KindText is a generic acknowledgement with no numeric fields.
	KindText Kind = iota
	// KindPosition carries a step position only.
	KindPosition
	// KindAttenuation carries an attenuation only.
	KindAttenuation
	// KindBoth carries position and attenuation.
	KindBoth
)

// Reading is a classified controller reply. Exactly which fields are
// meaningful follows from Kind; Raw always holds the trimmed response
// text.
type Reading struct {
	Kind        Kind
	Position    int
	Attenuation float64
	Raw         string
}

// HasPosition reports whether the reply carried a step position.
func (r Reading) HasPosition() bool {
	return r.Kind == KindPosition || r.Kind == KindBoth
}

// HasAttenuation reports whether the reply carried an attenuation.
func (r Reading) HasAttenuation() bool {
	return r.Kind == KindAttenuation || r.Kind == KindBoth
}

// readResponse accumulates controller output chunk by chunk until a fault
// token or the terminal marker appears, then classifies the buffer.
//
// The device streams replies in arbitrary-sized chunks and may put the
// terminal marker in the same chunk as the payload or a later one. A
// fault token classifies immediately without waiting for more chunks.
// After the first chunk, MaxRetries further receive attempts are allowed
// before the response is declared timed out; an attempt whose per-chunk
// deadline expires yields an empty chunk and still burns one retry, which
// caps worst-case latency against a dead device.
//
// Must be called with the session mutex held.
func (c *Controller) readResponse() (Reading, error) {
	chunk := make([]byte, c.config.ChunkSize)
	var buf []byte

	for attempt := 0; ; attempt++ {
		n, err := c.transport.Read(chunk)
		if err != nil {
			return Reading{}, fmt.Errorf("receive response: %w", err)
		}
		buf = append(buf, chunk[:n]...)

		if token, ok := wire.FindFault(string(buf)); ok {
			devErr := &DeviceError{Token: token, Message: wire.FaultText(token)}
			c.logger.Error("controller fault", "token", token, "message", devErr.Message)
			return Reading{}, devErr
		}
		if wire.Complete(string(buf)) {
			break
		}
		if attempt == c.config.MaxRetries {
			c.logger.Warn("command timed out", "received", string(buf), "attempts", attempt+1)
			return Reading{}, fmt.Errorf("no terminal marker after %d reads: %w", attempt+1, ErrTimeout)
		}
	}

	return c.classify(string(buf)), nil
}

// classify extracts the numeric fields from a completed reply. The two
// fields parse independently: a malformed one is logged and treated as
// absent without blocking the other.
func (c *Controller) classify(buf string) Reading {
	r := Reading{Kind: KindText, Raw: strings.TrimSpace(buf)}

	pos, present, err := wire.Position(buf)
	if err != nil {
		c.logger.Warn("unparseable position field", "response", r.Raw, "error", err)
	} else if present {
		r.Position = pos
		r.Kind = KindPosition
	}

	attn, present, err := wire.Attenuation(buf)
	if err != nil {
		c.logger.Warn("unparseable attenuation field", "response", r.Raw, "error", err)
	} else if present {
		r.Attenuation = attn
		if r.Kind == KindPosition {
			r.Kind = KindBoth
		} else {
			r.Kind = KindAttenuation
		}
	}

	return r
}
