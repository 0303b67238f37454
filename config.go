package devman

import (
	"log/slog"
	"time"
)

// Defaults applied to a PortConfig before caller values take effect.
const (
	DefaultMaxQueueLength   = 30
	DefaultResponseTimeout  = 200 * time.Millisecond
	DefaultDiscoveryTimeout = 5 * time.Second
)

// retryInterval paces the reconnect loop and identification retries.
// initDelay gives a freshly opened device time to settle before the id
// probe is sent. Vars so the tests can compress time.
var (
	retryInterval = 2 * time.Second
	initDelay     = 2 * time.Second
)

// PortConfig is the per-port configuration produced by an OptionPolicy.
type PortConfig struct {
	// BaudRate for the raw-mode transport. Required.
	BaudRate int

	// GetIDCommand is the identification probe sent after the port
	// opens. Line endings are the caller's responsibility; nothing is
	// appended on write.
	GetIDCommand []byte

	// ParseID extracts the device identity from the probe response.
	// Returning an error or an empty identity fails identification.
	ParseID func(resp []byte) (string, error)

	// CheckResponse, when set, validates every framed response
	// (including the probe's) before it is delivered.
	CheckResponse func(resp []byte) bool

	// MaxQueueLength bounds the pending request queue. Admission fails
	// once the queue length exceeds this value, so one extra entry
	// beyond it can be in flight. Defaults to DefaultMaxQueueLength.
	MaxQueueLength int

	// ResponseTimeout is the quiescence window: a response is complete
	// once no bytes have arrived for this long. It is not a deadline;
	// a device that keeps trickling keeps the window open. Defaults to
	// DefaultResponseTimeout.
	ResponseTimeout time.Duration
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c PortConfig) withDefaults() PortConfig {
	if c.MaxQueueLength <= 0 {
		c.MaxQueueLength = DefaultMaxQueueLength
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	return c
}

// OptionPolicy decides whether a port belongs to this fleet. It is
// given the enumerated metadata and returns the configuration to use,
// or nil to ignore the port. The policy runs again on every reconnect
// for the same path, so updated metadata on replug takes effect.
type OptionPolicy func(info PortInfo) *PortConfig

// Option is a functional option for Manager and PortManager
// construction.
type Option func(*options)

type options struct {
	enum     Enumerator
	opener   Opener
	logger   *slog.Logger
	timeout  time.Duration
	registry *IdentityRegistry
}

func newOptions(opts []Option) options {
	o := options{
		enum:     SystemEnumerator(),
		opener:   SystemOpener(),
		logger:   slog.Default(),
		timeout:  DefaultDiscoveryTimeout,
		registry: sharedRegistry,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithEnumerator replaces the system port enumerator.
func WithEnumerator(e Enumerator) Option {
	return func(o *options) { o.enum = e }
}

// WithOpener replaces the system transport opener.
func WithOpener(op Opener) Option {
	return func(o *options) { o.opener = op }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDiscoveryTimeout sets the default wall-clock deadline Request
// waits for an unknown device to appear. Defaults to
// DefaultDiscoveryTimeout.
func WithDiscoveryTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRegistry shares an identity registry between managers. By
// default all managers in the process share one registry, so a device
// is "new" only the first time any of them sees it.
func WithRegistry(r *IdentityRegistry) Option {
	return func(o *options) { o.registry = r }
}

// SubmitOption configures a single request.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	timeout time.Duration // quiescence window; zero means port default
	wait    time.Duration // discovery deadline; zero means manager default
}

// WithResponseTimeout overrides the port's quiescence window for one
// request.
func WithResponseTimeout(d time.Duration) SubmitOption {
	return func(o *submitOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithWaitTimeout overrides the wall-clock deadline Manager.Request
// waits for an unknown device. It has no effect on PortManager.Submit.
func WithWaitTimeout(d time.Duration) SubmitOption {
	return func(o *submitOptions) {
		if d > 0 {
			o.wait = d
		}
	}
}
