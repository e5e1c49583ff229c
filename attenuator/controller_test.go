package attenuator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/COO-Utilities/ozoptics/attenuator"
)

func TestConnect(t *testing.T) {
	t.Run("Transitions to connected and drains stale bytes", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := attenuator.NewMockTransport(ctrl)
		mockDialer := attenuator.NewMockDialer(ctrl)

		gomock.InOrder(
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			mockTransport.EXPECT().Drain().Return(12, nil),
		)

		config, err := attenuator.NewConfigBuilder().WithDialer(mockDialer).Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		c, err := attenuator.New(config)
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}

		if c.Connected() {
			t.Error("expected a fresh session to start disconnected")
		}
		if err := c.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error from Connect(): %v", err)
		}
		if !c.Connected() {
			t.Error("expected session to be connected")
		}
		if c.Homed() {
			t.Error("expected a fresh connection to be unhomed")
		}
	})

	t.Run("Second connect is a no-op success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := attenuator.NewMockTransport(ctrl)
		mockDialer := attenuator.NewMockDialer(ctrl)

		// Dial must happen exactly once.
		mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil)
		mockTransport.EXPECT().Drain().Return(0, nil)

		config, err := attenuator.NewConfigBuilder().WithDialer(mockDialer).Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		c, err := attenuator.New(config)
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}

		if err := c.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error from first Connect(): %v", err)
		}
		if err := c.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error from second Connect(): %v", err)
		}
	})

	t.Run("Dial fault keeps the session disconnected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := attenuator.NewMockDialer(ctrl)
		dialErr := errors.New("connection refused")
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, dialErr)

		config, err := attenuator.NewConfigBuilder().WithDialer(mockDialer).Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		c, err := attenuator.New(config)
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}

		if err := c.Connect(context.Background()); !errors.Is(err, dialErr) {
			t.Fatalf("expected dial error, got: %v", err)
		}
		if c.Connected() {
			t.Error("expected session to stay disconnected")
		}
		if c.LastError() == "" {
			t.Error("expected the fault message to be recorded")
		}
	})

	t.Run("ErrNoDialer from New without a dialer", func(t *testing.T) {
		if _, err := attenuator.New(attenuator.Config{}); !errors.Is(err, attenuator.ErrNoDialer) {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})
}

func TestDisconnect(t *testing.T) {
	t.Run("Resets session state", func(t *testing.T) {
		c, transport := newTestController(t)

		transport.SendChunk("Pos:9 Done")
		if _, err := c.GetPosition(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := c.Disconnect(); err != nil {
			t.Fatalf("unexpected error from Disconnect(): %v", err)
		}
		if c.Connected() {
			t.Error("expected session to be disconnected")
		}
		if c.Homed() {
			t.Error("expected homed flag to be cleared")
		}
		if _, ok := c.Position(); ok {
			t.Error("expected cached position to be cleared")
		}
	})

	t.Run("Close fault does not prevent the transition", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := attenuator.NewMockTransport(ctrl)
		mockDialer := attenuator.NewMockDialer(ctrl)

		closeErr := errors.New("shutdown failed")
		gomock.InOrder(
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			mockTransport.EXPECT().Drain().Return(0, nil),
			mockTransport.EXPECT().Close().Return(closeErr),
		)

		config, err := attenuator.NewConfigBuilder().WithDialer(mockDialer).Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		c, err := attenuator.New(config)
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}
		if err := c.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error from Connect(): %v", err)
		}

		if err := c.Disconnect(); !errors.Is(err, closeErr) {
			t.Errorf("expected close error to surface, got: %v", err)
		}
		if c.Connected() {
			t.Error("expected session to be disconnected despite the close fault")
		}
	})
}

func TestNotConnected(t *testing.T) {
	config, err := attenuator.NewConfigBuilder().
		WithDialer(attenuator.TestDialer{Transport: attenuator.NewTestTransport()}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	c, err := attenuator.New(config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}

	ctx := context.Background()
	if _, err := c.Home(ctx); !errors.Is(err, attenuator.ErrNotConnected) {
		t.Errorf("Home: expected ErrNotConnected, got: %v", err)
	}
	if _, err := c.SetAttenuation(ctx, 1.0); !errors.Is(err, attenuator.ErrNotConnected) {
		t.Errorf("SetAttenuation: expected ErrNotConnected, got: %v", err)
	}
	if _, err := c.GetPosition(ctx); !errors.Is(err, attenuator.ErrNotConnected) {
		t.Errorf("GetPosition: expected ErrNotConnected, got: %v", err)
	}
	if err := c.Reset(ctx); !errors.Is(err, attenuator.ErrNotConnected) {
		t.Errorf("Reset: expected ErrNotConnected, got: %v", err)
	}
}

func TestHome(t *testing.T) {
	t.Run("Homes once and returns the sentinel afterwards", func(t *testing.T) {
		c, transport := newTestController(t)
		transport.SendChunk("Done")

		if _, err := c.Home(context.Background()); err != nil {
			t.Fatalf("unexpected error from first Home(): %v", err)
		}
		if !c.Homed() {
			t.Error("expected session to be homed")
		}

		// Second call must not touch the wire.
		reading, err := c.Home(context.Background())
		if err != nil {
			t.Fatalf("unexpected error from second Home(): %v", err)
		}
		if reading.Raw != "already homed" {
			t.Errorf("expected the already-homed sentinel, got %q", reading.Raw)
		}
		if got := len(transport.Written()); got != 1 {
			t.Errorf("expected exactly one round trip, got %d writes", got)
		}
	})

	t.Run("Fault leaves the homed flag unset", func(t *testing.T) {
		c, transport := newTestController(t)
		transport.SendChunk("Error-5")

		_, err := c.Home(context.Background())
		var devErr *attenuator.DeviceError
		if !errors.As(err, &devErr) {
			t.Fatalf("expected DeviceError, got: %v", err)
		}
		if c.Homed() {
			t.Error("expected homed flag to stay unset after a fault")
		}
	})
}

func TestSetAttenuation(t *testing.T) {
	t.Run("Readback is authoritative on discrepancy", func(t *testing.T) {
		c, transport := newTestController(t)
		transport.SendChunk("Attn:4.98 Done")

		got, err := c.SetAttenuation(context.Background(), 5.0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 4.98 {
			t.Errorf("expected the device-reported 4.98, got %g", got)
		}
		if cached, ok := c.Attenuation(); !ok || cached != 4.98 {
			t.Errorf("expected cached attenuation 4.98, got %g (ok=%v)", cached, ok)
		}
		if want := "A5\r\n"; transport.Written()[0] != want {
			t.Errorf("expected wire line %q, got %q", want, transport.Written()[0])
		}
	})

	t.Run("Bare Done applies the setpoint", func(t *testing.T) {
		c, transport := newTestController(t)
		transport.SendChunk("Done")

		got, err := c.SetAttenuation(context.Background(), 3.25)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 3.25 {
			t.Errorf("expected the requested 3.25, got %g", got)
		}
		if want := "A3.25\r\n"; transport.Written()[0] != want {
			t.Errorf("expected wire line %q, got %q", want, transport.Written()[0])
		}
	})

	t.Run("Fault leaves cached state unchanged", func(t *testing.T) {
		c, transport := newTestController(t)
		transport.SendChunk("Error-6")

		if _, err := c.SetAttenuation(context.Background(), 2.0); err == nil {
			t.Fatal("expected error")
		}
		if _, ok := c.Attenuation(); ok {
			t.Error("expected no cached attenuation after a fault")
		}
	})
}

func TestStep(t *testing.T) {
	t.Run("Bad direction fails before any I/O", func(t *testing.T) {
		c, transport := newTestController(t)

		_, err := c.Step(context.Background(), attenuator.Direction(42))
		if !errors.Is(err, attenuator.ErrBadDirection) {
			t.Fatalf("expected ErrBadDirection, got: %v", err)
		}
		if got := len(transport.Written()); got != 0 {
			t.Errorf("expected no wire traffic, got %d writes", got)
		}
	})

	t.Run("Forward step reports the new position", func(t *testing.T) {
		c, transport := newTestController(t)
		transport.SendChunk("Pos:13 Done")

		pos, err := c.Step(context.Background(), attenuator.Forward)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pos != 13 {
			t.Errorf("expected position 13, got %d", pos)
		}
		if want := "F\r\n"; transport.Written()[0] != want {
			t.Errorf("expected wire line %q, got %q", want, transport.Written()[0])
		}
	})

	t.Run("Backward step", func(t *testing.T) {
		c, transport := newTestController(t)
		transport.SendChunk("Pos:12 Done")

		if _, err := c.Step(context.Background(), attenuator.Backward); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := "B\r\n"; transport.Written()[0] != want {
			t.Errorf("expected wire line %q, got %q", want, transport.Written()[0])
		}
	})

	t.Run("Reply without a position is an error", func(t *testing.T) {
		c, transport := newTestController(t)
		transport.SendChunk("Done")

		if _, err := c.Step(context.Background(), attenuator.Forward); !errors.Is(err, attenuator.ErrMissingField) {
			t.Fatalf("expected ErrMissingField, got: %v", err)
		}
	})
}

func TestMoveBy(t *testing.T) {
	t.Run("Positive count moves forward", func(t *testing.T) {
		c, transport := newTestController(t)
		transport.SendChunk("Pos:25 Done")

		pos, err := c.MoveBy(context.Background(), 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pos != 25 {
			t.Errorf("expected position 25, got %d", pos)
		}
		if want := "S+10\r\n"; transport.Written()[0] != want {
			t.Errorf("expected wire line %q, got %q", want, transport.Written()[0])
		}
	})

	t.Run("Negative count moves backward", func(t *testing.T) {
		c, transport := newTestController(t)
		transport.SendChunk("Pos:5 Done")

		if _, err := c.MoveBy(context.Background(), -4); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := "S-4\r\n"; transport.Written()[0] != want {
			t.Errorf("expected wire line %q, got %q", want, transport.Written()[0])
		}
	})

	t.Run("Zero count is a validation error", func(t *testing.T) {
		c, transport := newTestController(t)

		if _, err := c.MoveBy(context.Background(), 0); !errors.Is(err, attenuator.ErrBadDirection) {
			t.Fatalf("expected ErrBadDirection, got: %v", err)
		}
		if got := len(transport.Written()); got != 0 {
			t.Errorf("expected no wire traffic, got %d writes", got)
		}
	})
}

func TestGetPosition(t *testing.T) {
	c, transport := newTestController(t)
	transport.SendChunk("Pos:120 Done")

	pos, err := c.GetPosition(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos != 120 {
		t.Errorf("expected position 120, got %d", pos)
	}
	if cached, ok := c.Position(); !ok || cached != 120 {
		t.Errorf("expected cached position 120, got %d (ok=%v)", cached, ok)
	}
	if want := "S?\r\n"; transport.Written()[0] != want {
		t.Errorf("expected wire line %q, got %q", want, transport.Written()[0])
	}
}

func TestGetAttenuation(t *testing.T) {
	c, transport := newTestController(t)
	transport.SendChunk("Attn:1.75 Done")

	attn, err := c.GetAttenuation(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attn != 1.75 {
		t.Errorf("expected attenuation 1.75, got %g", attn)
	}
	if want := "A?\r\n"; transport.Written()[0] != want {
		t.Errorf("expected wire line %q, got %q", want, transport.Written()[0])
	}
}

func TestGetParams(t *testing.T) {
	c, transport := newTestController(t)
	transport.SendChunk("DD-100-MC ")
	transport.SendChunk("FW:2.03 SN:1234 ")
	transport.SendChunk("Done")

	params, err := c.GetParams(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params != "DD-100-MC FW:2.03 SN:1234 Done" {
		t.Errorf("unexpected params text: %q", params)
	}
	if c.Params() != params {
		t.Errorf("expected params to be cached, got %q", c.Params())
	}
	if want := "CD\r\n"; transport.Written()[0] != want {
		t.Errorf("expected wire line %q, got %q", want, transport.Written()[0])
	}
}

func TestSetPosition(t *testing.T) {
	c, transport := newTestController(t)
	transport.SendChunk("Pos:50 Done")

	pos, err := c.SetPosition(context.Background(), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos != 50 {
		t.Errorf("expected position 50, got %d", pos)
	}
	if want := "S50\r\n"; transport.Written()[0] != want {
		t.Errorf("expected wire line %q, got %q", want, transport.Written()[0])
	}
}

func TestReadLast(t *testing.T) {
	c, transport := newTestController(t)
	transport.SendChunk("Pos:8 Done")

	reading, err := c.ReadLast(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reading.HasPosition() || reading.Position != 8 {
		t.Errorf("expected replayed position 8, got %+v", reading)
	}
	if want := "RES?\r\n"; transport.Written()[0] != want {
		t.Errorf("expected wire line %q, got %q", want, transport.Written()[0])
	}
}

func TestSetLoss(t *testing.T) {
	c, transport := newTestController(t)
	transport.SendChunk("Done")

	if err := c.SetLoss(context.Background(), 1.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "L1.5\r\n"; transport.Written()[0] != want {
		t.Errorf("expected wire line %q, got %q", want, transport.Written()[0])
	}
}

func TestSetEcho(t *testing.T) {
	c, transport := newTestController(t)
	transport.SendChunk("Done")
	transport.SendChunk("Done")

	if err := c.SetEcho(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.SetEcho(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	written := transport.Written()
	if written[0] != "E0\r\n" || written[1] != "E1\r\n" {
		t.Errorf("unexpected wire lines: %v", written)
	}
}

func TestReset(t *testing.T) {
	const settle = 50 * time.Millisecond

	transport := attenuator.NewTestTransport()
	config, err := attenuator.NewConfigBuilder().
		WithDialer(attenuator.TestDialer{Transport: transport}).
		WithSettleDelay(settle).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	c, err := attenuator.New(config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error from Connect(): %v", err)
	}

	// Make the session homed first so the reset provably clears it.
	transport.SendChunk("Done")
	if _, err := c.Home(context.Background()); err != nil {
		t.Fatalf("unexpected error from Home(): %v", err)
	}

	// Output the device prints while restarting; Reset drains it
	// without classification.
	transport.SendChunk("self test")

	start := time.Now()
	if err := c.Reset(context.Background()); err != nil {
		t.Fatalf("unexpected error from Reset(): %v", err)
	}
	if elapsed := time.Since(start); elapsed < settle {
		t.Errorf("expected Reset to hold the settle delay, returned after %v", elapsed)
	}
	if c.Homed() {
		t.Error("expected homed flag to be cleared after reset")
	}
	written := transport.Written()
	if want := "RST\r\n"; written[len(written)-1] != want {
		t.Errorf("expected wire line %q, got %q", want, written[len(written)-1])
	}
}

func TestResetCancelledDuringSettle(t *testing.T) {
	// Once RST is on the wire the device restarts unhomed, even if the
	// caller abandons the settle wait. The session must drop its homed
	// flag and caches so the next Home performs a real round trip.
	transport := attenuator.NewTestTransport()
	config, err := attenuator.NewConfigBuilder().
		WithDialer(attenuator.TestDialer{Transport: transport}).
		WithSettleDelay(time.Second).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	c, err := attenuator.New(config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error from Connect(): %v", err)
	}

	transport.SendChunk("Pos:12 Done")
	if _, err := c.Home(context.Background()); err != nil {
		t.Fatalf("unexpected error from Home(): %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Reset(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got: %v", err)
	}

	written := transport.Written()
	if want := "RST\r\n"; written[len(written)-1] != want {
		t.Fatalf("expected %q on the wire, got %q", want, written[len(written)-1])
	}
	if c.Homed() {
		t.Error("expected homed flag to be cleared once RST was sent")
	}
	if _, ok := c.Position(); ok {
		t.Error("expected cached position to be cleared once RST was sent")
	}
	if c.LastError() == "" {
		t.Error("expected the cancellation to be recorded")
	}

	// A subsequent Home must hit the wire again, not return the sentinel.
	transport.SendChunk("Done")
	if _, err := c.Home(context.Background()); err != nil {
		t.Fatalf("unexpected error from re-Home(): %v", err)
	}
	if !c.Homed() {
		t.Error("expected session to be homed again")
	}
	if got := len(transport.Written()); got != 3 {
		t.Errorf("expected re-home to perform a round trip, got %d writes", got)
	}
}

func TestRaw(t *testing.T) {
	c, transport := newTestController(t)
	transport.SendChunk("EVA8 mode set Done")

	reading, err := c.Raw(context.Background(), "EVA8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.Kind != attenuator.KindText {
		t.Errorf("expected KindText, got %v", reading.Kind)
	}
	if want := "EVA8\r\n"; transport.Written()[0] != want {
		t.Errorf("expected wire line %q, got %q", want, transport.Written()[0])
	}
}

func TestMutualExclusion(t *testing.T) {
	// Two concurrent operations must not interleave wire bytes: the
	// second write happens strictly after the first full round trip.
	c, transport := newTestController(t)

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.GetPosition(context.Background())
		firstDone <- err
	}()

	// Wait for the first operation to send and block on its reply.
	waitFor(t, func() bool { return len(transport.Written()) == 1 })

	secondDone := make(chan error, 1)
	go func() {
		_, err := c.GetAttenuation(context.Background())
		secondDone <- err
	}()

	// The second operation must stay queued on the session mutex.
	time.Sleep(50 * time.Millisecond)
	if got := len(transport.Written()); got != 1 {
		t.Fatalf("second operation sent before the first round trip finished: %d writes", got)
	}

	transport.SendChunk("Pos:3 Done")
	if err := <-firstDone; err != nil {
		t.Fatalf("unexpected error from first operation: %v", err)
	}

	waitFor(t, func() bool { return len(transport.Written()) == 2 })
	transport.SendChunk("Attn:0.5 Done")
	if err := <-secondDone; err != nil {
		t.Fatalf("unexpected error from second operation: %v", err)
	}

	written := transport.Written()
	if written[0] != "S?\r\n" || written[1] != "A?\r\n" {
		t.Errorf("unexpected wire order: %v", written)
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}
