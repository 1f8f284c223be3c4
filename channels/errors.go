package channels

import "fmt"

// ErrNotReady is returned when the platform session did not become ready
// before the deadline.
type ErrNotReady struct {
	Platform string
	Cause    error
}

func (e *ErrNotReady) Error() string {
	return fmt.Sprintf("channels: %s session not ready: %v", e.Platform, e.Cause)
}

func (e *ErrNotReady) Unwrap() error { return e.Cause }

// ErrChannelNotFound is returned when the configured destination does not
// exist or the bot cannot see it.
type ErrChannelNotFound struct {
	Channel string
	Cause   error
}

func (e *ErrChannelNotFound) Error() string {
	return fmt.Sprintf("channels: channel not found: %s: %v", e.Channel, e.Cause)
}

func (e *ErrChannelNotFound) Unwrap() error { return e.Cause }

// ErrSendFailed is returned when a message could not be delivered to the
// platform.
type ErrSendFailed struct {
	Channel  string
	Platform string
	Cause    error
}

func (e *ErrSendFailed) Error() string {
	return fmt.Sprintf("channels: send failed on %s (%s): %v", e.Channel, e.Platform, e.Cause)
}

func (e *ErrSendFailed) Unwrap() error { return e.Cause }
