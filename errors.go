package devman

import "errors"

// Predefined error types for robust error handling
var (
	// Request failures surfaced to callers.
	ErrNotReady         = errors.New("port is not ready")
	ErrQueueFull        = errors.New("request queue is full")
	ErrStaleIdentity    = errors.New("device identity changed while request was queued")
	ErrWriteFailed      = errors.New("serial write failed")
	ErrValidationFailed = errors.New("response failed validation")

	// Discovery failure surfaced by the device manager.
	ErrDeviceNotFound = errors.New("device not found")

	// Internal conditions that drive the reconnect loop. Callers never
	// receive these from a request; they surface through status changes.
	ErrInitFailed = errors.New("device identification failed")
	ErrPortAbsent = errors.New("port absent from enumeration")
)
