package devman

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// IdentityRegistry remembers every device identity observed, for the
// life of the process. It is monotonic: identities are never removed.
// The registry is what distinguishes a first-ever sighting ("new")
// from a reconnect of a familiar device ("connect") without any
// persisted state.
type IdentityRegistry struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewIdentityRegistry builds an empty registry. Managers share the
// process-wide default unless one is injected with WithRegistry.
func NewIdentityRegistry() *IdentityRegistry {
	return &IdentityRegistry{seen: make(map[string]struct{})}
}

// Record marks an identity as observed and reports whether this was
// its first sighting.
func (r *IdentityRegistry) Record(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	return true
}

// Seen reports whether an identity has ever been recorded.
func (r *IdentityRegistry) Seen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[id]
	return ok
}

// sharedRegistry backs every Manager that is not given its own
// registry, so "new" keeps its meaning when managers come and go
// within one process.
var sharedRegistry = NewIdentityRegistry()

// refreshPass is one in-flight enumeration. Concurrent Refresh calls
// share the same pass and its outcome.
type refreshPass struct {
	done chan struct{}
	err  error
}

// Manager provides identity-keyed access to a fleet of serial-attached
// devices. It discovers ports, filters them through the caller's
// OptionPolicy, owns one PortManager per accepted path, and keeps the
// identity-to-port index current across reconnects, identity changes
// and physical moves between ports. A device is defined by what it
// reports, not by where it is plugged in.
type Manager struct {
	policy   OptionPolicy
	enum     Enumerator
	opener   Opener
	log      *slog.Logger
	timeout  time.Duration
	registry *IdentityRegistry

	mu       sync.Mutex
	ports    map[string]*PortManager
	devices  map[string]*PortManager
	refresh  *refreshPass
	handlers []Handler
	waiters  map[*waiter]struct{}
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// waiter blocks a Request until a matching identity connects.
type waiter struct {
	id string
	ch chan *PortManager
}

// NewManager builds a device manager around an option policy. The
// policy decides, per enumerated port, whether the port joins the
// fleet and with what configuration.
func NewManager(policy OptionPolicy, opts ...Option) *Manager {
	o := newOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		policy:   policy,
		enum:     o.enum,
		opener:   o.opener,
		log:      o.logger,
		timeout:  o.timeout,
		registry: o.registry,
		ports:    make(map[string]*PortManager),
		devices:  make(map[string]*PortManager),
		waiters:  make(map[*waiter]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close stops every port manager. In-flight requests fail; the
// identity registry is left intact.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	ports := make([]*PortManager, 0, len(m.ports))
	for _, pm := range m.ports {
		ports = append(ports, pm)
	}
	m.mu.Unlock()

	m.cancel()
	for _, pm := range ports {
		<-pm.done
	}
}

// Subscribe registers a handler for fleet events. The handler sees the
// manager's new/connect/disconnect events as well as every port
// manager event, which observability surfaces use for status displays.
func (m *Manager) Subscribe(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

func (m *Manager) emit(e Event) {
	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()
	for _, h := range handlers {
		h(e)
	}
}

// DeviceIDs returns the identities currently mapped to a port, sorted.
func (m *Manager) DeviceIDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Lookup returns the port manager currently serving an identity.
func (m *Manager) Lookup(deviceID string) (*PortManager, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pm, ok := m.devices[deviceID]
	return pm, ok
}

// Ports returns the port managers created so far, keyed by path.
func (m *Manager) Ports() map[string]*PortManager {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*PortManager, len(m.ports))
	for path, pm := range m.ports {
		out[path] = pm
	}
	return out
}

// Request sends a command to the device with the given identity and
// returns its framed response. An unknown identity triggers an
// enumeration pass; the call then waits for the device to announce
// itself, up to the discovery deadline, before failing with
// ErrDeviceNotFound.
func (m *Manager) Request(ctx context.Context, deviceID string, command []byte, opts ...SubmitOption) ([]byte, error) {
	o := submitOptions{wait: m.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	pm, ok := m.Lookup(deviceID)
	if !ok {
		var err error
		pm, err = m.await(ctx, deviceID, o.wait)
		if err != nil {
			return nil, err
		}
	}

	return pm.Do(ctx, command, opts...)
}

// await refreshes the fleet and blocks until the identity connects or
// the deadline expires.
func (m *Manager) await(ctx context.Context, deviceID string, wait time.Duration) (*PortManager, error) {
	w := &waiter{id: deviceID, ch: make(chan *PortManager, 1)}
	m.mu.Lock()
	m.waiters[w] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.waiters, w)
		m.mu.Unlock()
	}()

	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}

	// The refresh may have resolved the identity before the waiter
	// could observe an event.
	if pm, ok := m.Lookup(deviceID); ok {
		return pm, nil
	}

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	select {
	case pm := <-w.ch:
		return pm, nil
	case <-deadline.C:
		return nil, fmt.Errorf("%w: %q did not appear within %s", ErrDeviceNotFound, deviceID, wait)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Refresh runs one enumeration pass: every attached port is offered to
// the policy and accepted ports gain a port manager. Passes coalesce;
// callers arriving while one is in flight share its completion. Ports
// that have vanished keep their managers, whose reconnect loops handle
// re-appearance on their own.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return context.Canceled
	}
	if pass := m.refresh; pass != nil {
		m.mu.Unlock()
		select {
		case <-pass.done:
			return pass.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	pass := &refreshPass{done: make(chan struct{})}
	m.refresh = pass
	m.mu.Unlock()

	pass.err = m.scan()
	m.mu.Lock()
	m.refresh = nil
	m.mu.Unlock()
	close(pass.done)
	return pass.err
}

func (m *Manager) scan() error {
	infos, err := m.enum.List()
	if err != nil {
		return fmt.Errorf("enumeration failed: %w", err)
	}

	for _, info := range infos {
		if m.policy(info) == nil {
			continue
		}
		m.mu.Lock()
		_, known := m.ports[info.Path]
		m.mu.Unlock()
		if known {
			continue
		}
		m.adopt(info)
	}
	return nil
}

// adopt creates and wires the port manager for a newly accepted path.
// Managers are created once per path and live for the rest of the
// process.
func (m *Manager) adopt(info PortInfo) {
	m.log.Info("adopting port", "port", info.Path, "manufacturer", info.Manufacturer)
	pm := newPortManager(info.Path, m.policy, options{
		enum:   m.enum,
		opener: m.opener,
		logger: m.log,
	})
	pm.Subscribe(func(e Event) { m.handlePortEvent(e) })

	m.mu.Lock()
	m.ports[info.Path] = pm
	m.mu.Unlock()

	pm.start(m.ctx)
}

// handlePortEvent translates port lifecycle events into identity-space
// events and keeps the identity index current.
func (m *Manager) handlePortEvent(e Event) {
	switch e.Kind {
	case EventReady, EventReinitialized, EventIDChange:
		m.emit(e)
		m.deviceConnected(e.DeviceID, e.Port)
	case EventDisconnect:
		if e.DeviceID == "" {
			return
		}
		m.mu.Lock()
		delete(m.devices, e.DeviceID)
		m.mu.Unlock()
		m.log.Info("device disconnected", "device", e.DeviceID, "port", e.Port)
		m.emit(e)
	default:
		// Forwarded untouched for observability surfaces.
		m.emit(e)
	}
}

// deviceConnected points an identity at the port manager that now
// serves it. An identity change on a port re-invokes this and the
// index follows the identity, wherever it lives.
func (m *Manager) deviceConnected(id, path string) {
	m.mu.Lock()
	pm, ok := m.ports[path]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.devices[id] = pm
	var matched []*waiter
	for w := range m.waiters {
		if w.id == id {
			matched = append(matched, w)
		}
	}
	m.mu.Unlock()

	first := m.registry.Record(id)
	if first {
		m.log.Info("new device", "device", id, "port", path)
		m.emit(Event{Kind: EventNew, Port: path, DeviceID: id})
	} else {
		m.log.Info("device connected", "device", id, "port", path)
		m.emit(Event{Kind: EventConnect, Port: path, DeviceID: id})
	}

	for _, w := range matched {
		select {
		case w.ch <- pm:
		default:
		}
	}
}
