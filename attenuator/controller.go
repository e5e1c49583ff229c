// Package attenuator drives an OZ Optics DD-100-MC motorized variable
// attenuator controller over a line-oriented ASCII command protocol,
// reached through TCP (serial device server) or a native serial port.
//
// A Controller serializes command round trips: encode, send, and
// receive-until-classified happen as one atomic unit under a session
// mutex, so concurrent callers never interleave wire bytes. Last-known
// position, attenuation, and configuration are cached after successful
// replies and readable between operations.
package attenuator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/COO-Utilities/ozoptics/wire"
)

// Direction selects which way Step moves the attenuator.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// mnemonic returns the wire command for the direction.
func (d Direction) mnemonic() (string, bool) {
	switch d {
	case Forward:
		return "F", true
	case Backward:
		return "B", true
	default:
		return "", false
	}
}

// Controller is a session with one attenuator controller. The zero value
// is not usable; construct with New and call Connect before issuing
// commands. All methods are safe for concurrent use.
type Controller struct {
	config Config
	logger *slog.Logger

	// mu spans each full command round trip and guards everything below.
	mu        sync.Mutex
	transport Transport
	connected bool
	homed     bool

	position       int
	hasPosition    bool
	attenuation    float64
	hasAttenuation bool
	params         string
	lastErr        string
}

// New creates a Controller from the given Config. No connection is made;
// call Connect to reach the device.
func New(config Config) (*Controller, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()
	return &Controller{
		config: config,
		logger: config.Logger,
	}, nil
}

// Connect dials the controller. Calling Connect on an already-connected
// session is a no-op success. On success any stale bytes the device
// buffered are drained; on failure the session stays disconnected and the
// fault is recorded.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.logger.Debug("already connected")
		return nil
	}

	transport, err := c.config.Dialer.Dial(ctx)
	if err != nil {
		c.lastErr = err.Error()
		c.logger.Error("connection failed", "error", err)
		return err
	}
	c.transport = transport
	c.connected = true

	if n, err := transport.Drain(); err != nil {
		c.logger.Warn("drain after connect failed", "error", err)
	} else if n > 0 {
		c.logger.Debug("drained stale bytes", "count", n)
	}
	c.logger.Debug("connected to controller")
	return nil
}

// Disconnect tears down the connection and resets the session to its
// initial state: disconnected, unhomed, no cached values. A close fault
// is logged and returned but never prevents the transition.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.transport != nil {
		if err = c.transport.Close(); err != nil {
			c.logger.Error("disconnection error", "error", err)
		}
	}
	c.transport = nil
	c.connected = false
	c.homed = false
	c.hasPosition = false
	c.hasAttenuation = false
	c.params = ""
	c.logger.Debug("disconnected controller")
	return err
}

// Connected reports whether the session holds a live connection.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Homed reports whether the unit has been homed during this session.
func (c *Controller) Homed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.homed
}

// Position returns the last observed step position, if any.
func (c *Controller) Position() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position, c.hasPosition
}

// Attenuation returns the last observed attenuation, if any.
func (c *Controller) Attenuation() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attenuation, c.hasAttenuation
}

// Params returns the last configuration dump read with GetParams.
func (c *Controller) Params() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// LastError returns the message of the most recent failed operation, or
// "" if the last operation succeeded.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// roundTrip performs one full command cycle: validate and encode, send,
// accumulate and classify the reply. Cached position and attenuation are
// updated from any successful reply that carries them.
//
// Must be called with the session mutex held.
func (c *Controller) roundTrip(mnemonic, param string, custom bool) (Reading, error) {
	if !c.connected {
		c.lastErr = ErrNotConnected.Error()
		return Reading{}, ErrNotConnected
	}

	line, err := encodeCommand(mnemonic, param, custom)
	if err != nil {
		c.lastErr = err.Error()
		return Reading{}, err
	}

	c.logger.Debug("sending command", "line", strings.TrimSuffix(line, wire.CRLF))
	if _, err := c.transport.Write([]byte(line)); err != nil {
		c.lastErr = err.Error()
		c.logger.Error("command send error", "command", mnemonic, "error", err)
		return Reading{}, fmt.Errorf("send %q: %w", mnemonic, err)
	}

	reading, err := c.readResponse()
	if err != nil {
		c.lastErr = err.Error()
		return Reading{}, err
	}

	c.lastErr = ""
	if reading.HasPosition() {
		c.position = reading.Position
		c.hasPosition = true
	}
	if reading.HasAttenuation() {
		c.attenuation = reading.Attenuation
		c.hasAttenuation = true
	}
	return reading, nil
}

// Home re-homes the unit. A session that is already homed returns the
// "already homed" sentinel reading without touching the wire. The homed
// flag is set only when the device answers without a fault.
func (c *Controller) Home(ctx context.Context) (Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.homed {
		c.logger.Debug("already homed")
		return Reading{Kind: KindText, Raw: "already homed"}, nil
	}

	reading, err := c.roundTrip("H", "", false)
	if err != nil {
		return Reading{}, err
	}
	c.homed = true
	return reading, nil
}

// SetAttenuation commands the given attenuation and returns the value the
// device reports back, which is authoritative: a readback that differs
// from the setpoint is logged as a discrepancy but still returned. A
// reply that carries no attenuation field (bare "Done") is taken to mean
// the setpoint was applied verbatim.
func (c *Controller) SetAttenuation(ctx context.Context, db float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reading, err := c.roundTrip("A", strconv.FormatFloat(db, 'f', -1, 64), false)
	if err != nil {
		return 0, err
	}
	if !reading.HasAttenuation() {
		c.attenuation = db
		c.hasAttenuation = true
		return db, nil
	}
	if reading.Attenuation != db {
		c.logger.Warn("attenuation readback differs from setpoint",
			"requested", db, "reported", reading.Attenuation)
	}
	return reading.Attenuation, nil
}

// GetAttenuation reads the current attenuation.
func (c *Controller) GetAttenuation(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reading, err := c.roundTrip("A?", "", false)
	if err != nil {
		return 0, err
	}
	if !reading.HasAttenuation() {
		return 0, fmt.Errorf("attenuation query %q: %w", reading.Raw, ErrMissingField)
	}
	return reading.Attenuation, nil
}

// Step moves the attenuator one step in the given direction and returns
// the position the device reports. An unrecognized direction fails before
// any bytes are sent. A reported position that did not move the expected
// way from the previous cached position is logged as a discrepancy; the
// device's value still wins.
func (c *Controller) Step(ctx context.Context, dir Direction) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mnemonic, ok := dir.mnemonic()
	if !ok {
		c.lastErr = ErrBadDirection.Error()
		return 0, fmt.Errorf("%v: %w", dir, ErrBadDirection)
	}

	prev, hadPrev := c.position, c.hasPosition
	reading, err := c.roundTrip(mnemonic, "", false)
	if err != nil {
		return 0, err
	}
	if !reading.HasPosition() {
		return 0, fmt.Errorf("step reply %q: %w", reading.Raw, ErrMissingField)
	}
	if hadPrev {
		moved := reading.Position - prev
		if (dir == Forward && moved <= 0) || (dir == Backward && moved >= 0) {
			c.logger.Warn("step position discrepancy",
				"direction", dir.String(), "previous", prev, "reported", reading.Position)
		}
	}
	return reading.Position, nil
}

// MoveBy moves the attenuator by the given number of steps relative to
// the current position; the sign selects the direction. Zero steps is a
// validation error since it names no direction.
func (c *Controller) MoveBy(ctx context.Context, steps int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if steps == 0 {
		c.lastErr = ErrBadDirection.Error()
		return 0, fmt.Errorf("zero step count: %w", ErrBadDirection)
	}
	mnemonic := "S+"
	if steps < 0 {
		mnemonic = "S-"
		steps = -steps
	}

	reading, err := c.roundTrip(mnemonic, strconv.Itoa(steps), false)
	if err != nil {
		return 0, err
	}
	if !reading.HasPosition() {
		return 0, fmt.Errorf("move reply %q: %w", reading.Raw, ErrMissingField)
	}
	return reading.Position, nil
}

// SetPosition moves the attenuator to an absolute step position from home.
func (c *Controller) SetPosition(ctx context.Context, steps int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reading, err := c.roundTrip("S", strconv.Itoa(steps), false)
	if err != nil {
		return 0, err
	}
	if !reading.HasPosition() {
		return 0, fmt.Errorf("position reply %q: %w", reading.Raw, ErrMissingField)
	}
	return reading.Position, nil
}

// GetPosition reads the current step position from home.
func (c *Controller) GetPosition(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reading, err := c.roundTrip("S?", "", false)
	if err != nil {
		return 0, err
	}
	if !reading.HasPosition() {
		return 0, fmt.Errorf("position query %q: %w", reading.Raw, ErrMissingField)
	}
	return reading.Position, nil
}

// GetState reads the current attenuation and step position in one round
// trip.
func (c *Controller) GetState(ctx context.Context) (Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip("D", "", false)
}

// ReadLast asks the controller to replay its previous command response.
func (c *Controller) ReadLast(ctx context.Context) (Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip("RES?", "", false)
}

// SetLoss sets the unit's insertion loss.
func (c *Controller) SetLoss(ctx context.Context, db float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.roundTrip("L", strconv.FormatFloat(db, 'f', -1, 64), false)
	return err
}

// SetEcho switches RS-232 character echo on or off.
func (c *Controller) SetEcho(ctx context.Context, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	mnemonic := "E0"
	if on {
		mnemonic = "E1"
	}
	_, err := c.roundTrip(mnemonic, "", false)
	return err
}

// GetParams reads the unit configuration dump and caches the raw text.
func (c *Controller) GetParams(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reading, err := c.roundTrip("CD", "", false)
	if err != nil {
		return "", err
	}
	c.params = reading.Raw
	return reading.Raw, nil
}

// Reset restarts the unit in self-test mode, waits the settle delay for
// it to reinitialize, then best-effort drains whatever it printed while
// coming back up. The drained output is not classified. The unit loses
// its homing across a restart, so the session drops back to unhomed and
// cached values are cleared.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		c.lastErr = ErrNotConnected.Error()
		return ErrNotConnected
	}

	line, err := encodeCommand("RST", "", false)
	if err != nil {
		return err
	}
	c.logger.Debug("sending command", "line", "RST")
	if _, err := c.transport.Write([]byte(line)); err != nil {
		c.lastErr = err.Error()
		return fmt.Errorf("send %q: %w", "RST", err)
	}

	// The device restarts as soon as the command lands, so homing and
	// cached values are stale from here on, whether or not the settle
	// wait runs to completion.
	c.homed = false
	c.hasPosition = false
	c.hasAttenuation = false

	select {
	case <-time.After(c.config.SettleDelay):
	case <-ctx.Done():
		c.lastErr = ctx.Err().Error()
		return ctx.Err()
	}

	if n, err := c.transport.Drain(); err != nil {
		c.logger.Warn("drain after reset failed", "error", err)
	} else {
		c.logger.Debug("drained reset output", "count", n)
	}

	c.lastErr = ""
	return nil
}

// Raw forwards arbitrary operator input to the controller, bypassing the
// command legality table. This is the pass-through the interactive shell
// uses.
func (c *Controller) Raw(ctx context.Context, cmd string) (Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(cmd, "", true)
}
