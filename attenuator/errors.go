package attenuator

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDialer is returned when a Controller is constructed without a
	// Dialer. This is a configuration error; a Dialer is required to
	// reach the device.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotConnected is returned when an operation is attempted before a
	// successful Connect, or after Disconnect. No bytes are sent.
	ErrNotConnected = errors.New("not connected to controller")

	// ErrUnknownCommand is returned when a mnemonic is absent from the
	// controller's command set and the caller did not mark it as custom.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrBadDirection is returned by Step for a direction other than
	// Forward or Backward, and by MoveBy for a zero step count (the sign
	// of the count is what selects the direction). No bytes are sent.
	ErrBadDirection = errors.New("bad step direction")

	// ErrTimeout is returned when the terminal marker never appears
	// within the receive retry budget. The command may or may not have
	// been applied by the device; callers can safely retry.
	ErrTimeout = errors.New("response timed out")

	// ErrMissingField is returned when a reply completes normally but
	// lacks the numeric field the operation needs.
	ErrMissingField = errors.New("expected field missing from response")
)

// DeviceError is a fault reported by the controller itself, carrying the
// raw fault token and its mapped description. The device's state is
// presumed unchanged when it reports a fault, so cached session state is
// left alone.
type DeviceError struct {
	Token   string
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Token, e.Message)
}
