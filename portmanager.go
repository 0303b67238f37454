package devman

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Result is the outcome of a submitted request. Exactly one of
// Response and Err is meaningful.
type Result struct {
	Response []byte
	Err      error
}

// request is a queue entry. The head of the queue is the request that
// is executing or about to execute.
type request struct {
	command    []byte
	timeout    time.Duration
	probe      bool
	capturedID string
	result     chan Result // buffered, nil for the probe
}

// PortManager owns one port path for the life of the process. It keeps
// the port continuously available: it opens the transport, identifies
// the attached device, serves queued requests one at a time, and
// re-opens across unplug, error and replug. All state transitions
// happen on the manager's own goroutine; Submit only performs
// admission.
type PortManager struct {
	path   string
	policy OptionPolicy
	enum   Enumerator
	opener Opener
	log    *slog.Logger

	mu       sync.Mutex
	status   Status
	deviceID string
	cfg      PortConfig
	info     PortInfo
	queue    []*request
	handlers []Handler

	wake    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	backoff bool // set when the session died on a transport fault
}

// NewPortManager builds a manager for one port path and starts its
// reconnect loop. Most callers go through Manager instead and let
// enumeration and policy filtering create port managers for them.
func NewPortManager(path string, policy OptionPolicy, opts ...Option) *PortManager {
	o := newOptions(opts)
	pm := newPortManager(path, policy, o)
	pm.start(context.Background())
	return pm
}

func newPortManager(path string, policy OptionPolicy, o options) *PortManager {
	return &PortManager{
		path:   path,
		policy: policy,
		enum:   o.enum,
		opener: o.opener,
		log:    o.logger.With("port", path),
		status: StatusNotFound,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (pm *PortManager) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	pm.cancel = cancel
	go pm.run(ctx)
}

// Close stops the reconnect loop, closes the transport and fails any
// requests still queued. The port manager cannot be restarted.
func (pm *PortManager) Close() {
	pm.cancel()
	<-pm.done
}

// Path returns the immutable port path this manager owns.
func (pm *PortManager) Path() string { return pm.path }

// Status returns the current lifecycle state.
func (pm *PortManager) Status() Status {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.status
}

// DeviceID returns the last identified device identity, or "".
func (pm *PortManager) DeviceID() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.deviceID
}

// Info returns the enumeration snapshot from the last reconnect.
func (pm *PortManager) Info() PortInfo {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.info
}

// Subscribe registers a handler for this port's lifecycle events.
func (pm *PortManager) Subscribe(h Handler) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.handlers = append(pm.handlers, h)
}

// Submit enqueues a command. The returned channel delivers exactly one
// Result once the response has been framed or the request has failed.
// Admission fails immediately with ErrNotReady unless the port has an
// identified device, and with ErrQueueFull when the queue is over
// capacity. Queued requests capture the identity current at admission;
// if a different device appears before they reach the head they fail
// with ErrStaleIdentity instead of being written to the wrong device.
func (pm *PortManager) Submit(command []byte, opts ...SubmitOption) <-chan Result {
	res := make(chan Result, 1)

	pm.mu.Lock()
	if pm.status != StatusReady {
		status := pm.status
		pm.mu.Unlock()
		res <- Result{Err: fmt.Errorf("%w: port %s is %s", ErrNotReady, pm.path, status)}
		return res
	}
	if len(pm.queue) > pm.cfg.MaxQueueLength {
		pm.mu.Unlock()
		res <- Result{Err: fmt.Errorf("%w: port %s", ErrQueueFull, pm.path)}
		return res
	}
	o := submitOptions{timeout: pm.cfg.ResponseTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	pm.queue = append(pm.queue, &request{
		command:    command,
		timeout:    o.timeout,
		capturedID: pm.deviceID,
		result:     res,
	})
	pm.mu.Unlock()

	pm.wakeup()
	return res
}

// Do submits a command and waits for its result.
func (pm *PortManager) Do(ctx context.Context, command []byte, opts ...SubmitOption) ([]byte, error) {
	select {
	case r := <-pm.Submit(command, opts...):
		return r.Response, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (pm *PortManager) wakeup() {
	select {
	case pm.wake <- struct{}{}:
	default:
	}
}

func (pm *PortManager) emit(e Event) {
	pm.mu.Lock()
	handlers := make([]Handler, len(pm.handlers))
	copy(handlers, pm.handlers)
	pm.mu.Unlock()
	for _, h := range handlers {
		h(e)
	}
}

// setStatus records a transition and emits one edge-triggered
// statusChanged event. Setting the current status again is a no-op.
func (pm *PortManager) setStatus(s Status, msg string) {
	pm.mu.Lock()
	if pm.status == s {
		pm.mu.Unlock()
		return
	}
	pm.status = s
	pm.mu.Unlock()

	pm.log.Debug("status changed", "status", s.String(), "code", int(s), "message", msg)
	pm.emit(Event{Kind: EventStatusChanged, Port: pm.path, Status: s, Message: msg})
}

// run is the reconnect loop: locate the port, derive its config, open
// the transport and hand off to a session. Each failure path schedules
// a retry; the loop only exits on Close.
func (pm *PortManager) run(ctx context.Context) {
	defer close(pm.done)
	defer pm.failQueued(ctx)

	for {
		info, found := pm.locate()
		if !found {
			pm.setStatus(StatusNotFound, ErrPortAbsent.Error())
			if !sleepCtx(ctx, retryInterval) {
				return
			}
			continue
		}

		cfg := pm.policy(info)
		if cfg == nil {
			pm.setStatus(StatusNotFound, "port rejected by policy")
			if !sleepCtx(ctx, retryInterval) {
				return
			}
			continue
		}
		resolved := cfg.withDefaults()

		pm.mu.Lock()
		pm.info = info
		pm.cfg = resolved
		pm.mu.Unlock()

		conn, err := pm.opener.Open(pm.path, resolved.BaudRate)
		if err != nil {
			pm.log.Warn("open failed", "error", err)
			pm.setStatus(StatusError, err.Error())
			pm.emit(Event{Kind: EventError, Port: pm.path, Err: err})
			if !sleepCtx(ctx, retryInterval) {
				return
			}
			continue
		}

		backoff := pm.session(ctx, conn, resolved)
		if ctx.Err() != nil {
			return
		}
		if backoff && !sleepCtx(ctx, retryInterval) {
			return
		}
	}
}

func (pm *PortManager) locate() (PortInfo, bool) {
	infos, err := pm.enum.List()
	if err != nil {
		pm.log.Warn("enumeration failed", "error", err)
		return PortInfo{}, false
	}
	for _, info := range infos {
		if info.Path == pm.path {
			return info, true
		}
	}
	return PortInfo{}, false
}

// failQueued rejects everything still pending at shutdown so every
// admitted request resolves exactly once.
func (pm *PortManager) failQueued(ctx context.Context) {
	pm.mu.Lock()
	queue := pm.queue
	pm.queue = nil
	pm.mu.Unlock()
	for _, req := range queue {
		if req.result != nil {
			req.result <- Result{Err: ctx.Err()}
		}
	}
}

// session owns one open transport. It schedules identification, drains
// the queue, and returns when the transport dies or the manager stops.
// The return value asks the reconnect loop to back off before retrying.
func (pm *PortManager) session(ctx context.Context, conn Conn, cfg PortConfig) bool {
	pm.setStatus(StatusOpen, "transport open")
	pm.emit(Event{Kind: EventOpen, Port: pm.path})

	pm.backoff = false
	sessDone := make(chan struct{})
	defer close(sessDone)
	rx := make(chan []byte, 32)
	ioErr := make(chan error, 1)
	go readLoop(conn, rx, ioErr, sessDone)

	// The device gets a settle period before the id probe.
	init := time.NewTimer(initDelay)
	defer init.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			pm.closeSession()
			return false

		case err := <-ioErr:
			pm.endSession(conn, err)
			return pm.backoff

		case <-rx:
			// No request in flight; the port is talking out of turn.
			// Nothing may accumulate between requests, so drop it.

		case <-init.C:
			pm.enqueueProbe(cfg)

		case <-pm.wake:
			if !pm.drainQueue(ctx, conn, cfg, rx, ioErr, init) {
				return pm.backoff
			}
		}
	}
}

// closeSession emits the terminal close transition on shutdown.
func (pm *PortManager) closeSession() {
	pm.setStatus(StatusClosed, "shutting down")
	pm.emit(Event{Kind: EventClose, Port: pm.path})
}

// endSession closes the transport after an I/O error, classifying the
// failure as a physical disconnect or a transport fault.
func (pm *PortManager) endSession(conn Conn, err error) {
	conn.Close()
	if isDisconnect(err) {
		pm.log.Info("device disconnected", "device", pm.DeviceID())
		pm.setStatus(StatusDisconnected, "device unplugged")
		pm.emit(Event{Kind: EventDisconnect, Port: pm.path, DeviceID: pm.DeviceID()})
	} else {
		pm.log.Warn("transport error", "error", err)
		pm.backoff = true
		pm.setStatus(StatusError, err.Error())
		pm.emit(Event{Kind: EventError, Port: pm.path, Err: err})
	}
	pm.setStatus(StatusClosed, "transport closed")
	pm.emit(Event{Kind: EventClose, Port: pm.path})
}

// enqueueProbe puts the id probe at the head of the queue. The probe
// bypasses the Ready gate and flows through the same framer as any
// other request.
func (pm *PortManager) enqueueProbe(cfg PortConfig) {
	pm.setStatus(StatusIdentifying, "identification scheduled")
	pm.mu.Lock()
	probe := &request{
		command: cfg.GetIDCommand,
		timeout: cfg.ResponseTimeout,
		probe:   true,
	}
	pm.queue = append([]*request{probe}, pm.queue...)
	pm.mu.Unlock()
	pm.wakeup()
}

// drainQueue executes head requests until the queue empties or the
// session dies. Regular requests only execute once identity is
// established; requests left over from a previous connection wait for
// the probe to settle who is on the other end.
func (pm *PortManager) drainQueue(ctx context.Context, conn Conn, cfg PortConfig, rx <-chan []byte, ioErr <-chan error, init *time.Timer) bool {
	for {
		pm.mu.Lock()
		if len(pm.queue) == 0 {
			pm.mu.Unlock()
			return true
		}
		req := pm.queue[0]
		status := pm.status
		currentID := pm.deviceID
		pm.mu.Unlock()

		if !req.probe {
			if status != StatusReady {
				return true
			}
			if req.capturedID != "" && req.capturedID != currentID {
				pm.complete(req, Result{Err: fmt.Errorf("%w: submitted for %q, port now serves %q",
					ErrStaleIdentity, req.capturedID, currentID)})
				continue
			}
		}

		if !pm.execute(ctx, conn, cfg, req, rx, ioErr, init) {
			return false
		}
	}
}

// execute writes one request and frames its response by quiescence:
// a timer of the request's timeout is armed immediately after the
// write; every expiry compares the buffer against the last snapshot,
// re-arming while bytes are still arriving and completing the request
// once the line has gone silent.
func (pm *PortManager) execute(ctx context.Context, conn Conn, cfg PortConfig, req *request, rx <-chan []byte, ioErr <-chan error, init *time.Timer) bool {
	if req.probe {
		pm.setStatus(StatusIdentifying, "identifying device")
	}

	// Late bytes from a previous exchange do not belong to this
	// request's buffer.
	for drained := false; !drained; {
		select {
		case <-rx:
		default:
			drained = true
		}
	}

	if _, err := conn.Write(req.command); err != nil {
		pm.log.Warn("write failed", "error", err)
		pm.complete(req, Result{Err: fmt.Errorf("%w: %v", ErrWriteFailed, err)})
		if req.probe {
			pm.failInit(init, err)
			return true
		}
		pm.setStatus(StatusClosing, "closing after write failure")
		conn.Close()
		pm.setStatus(StatusClosed, "transport closed")
		pm.emit(Event{Kind: EventClose, Port: pm.path})
		return false
	}

	var buf bytes.Buffer
	snapshot := 0
	timer := time.NewTimer(req.timeout)
	defer timer.Stop()

	var sessionErr error
	data := rx

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			pm.complete(req, Result{Err: ctx.Err()})
			pm.closeSession()
			return false

		case b := <-data:
			buf.Write(b)

		case err := <-ioErr:
			// The transport died mid-response. Let quiescence close
			// out whatever arrived, then tear the session down.
			sessionErr = err
			data = nil

		case <-timer.C:
			if buf.Len() > snapshot {
				snapshot = buf.Len()
				timer.Reset(req.timeout)
				continue
			}
			pm.finish(req, buf.Bytes(), cfg, init)
			if sessionErr != nil {
				pm.endSession(conn, sessionErr)
				return false
			}
			return true
		}
	}
}

// finish resolves a framed response: identity handling for the probe,
// validation and delivery for everything else. The receive buffer is
// discarded here regardless of outcome.
func (pm *PortManager) finish(req *request, resp []byte, cfg PortConfig, init *time.Timer) {
	if req.probe {
		pm.finishProbe(req, resp, cfg, init)
		return
	}
	if cfg.CheckResponse != nil && !cfg.CheckResponse(resp) {
		pm.complete(req, Result{Err: fmt.Errorf("%w: %q", ErrValidationFailed, resp)})
		return
	}
	pm.complete(req, Result{Response: resp})
}

// finishProbe applies identification semantics to the probe response.
func (pm *PortManager) finishProbe(req *request, resp []byte, cfg PortConfig, init *time.Timer) {
	pm.complete(req, Result{})

	if len(resp) == 0 {
		pm.failInit(init, fmt.Errorf("%w: empty response", ErrInitFailed))
		return
	}
	if cfg.CheckResponse != nil && !cfg.CheckResponse(resp) {
		pm.failInit(init, fmt.Errorf("%w: response rejected", ErrInitFailed))
		return
	}
	id, err := cfg.ParseID(resp)
	if err != nil {
		pm.failInit(init, fmt.Errorf("%w: %v", ErrInitFailed, err))
		return
	}
	if id == "" {
		pm.failInit(init, fmt.Errorf("%w: parser returned empty identity", ErrInitFailed))
		return
	}

	pm.mu.Lock()
	prev := pm.deviceID
	pm.deviceID = id
	pm.mu.Unlock()

	pm.setStatus(StatusReady, "device identified")
	switch {
	case prev == "":
		pm.log.Info("device ready", "device", id)
		pm.emit(Event{Kind: EventReady, Port: pm.path, DeviceID: id})
	case prev == id:
		pm.log.Info("device reinitialized", "device", id)
		pm.emit(Event{Kind: EventReinitialized, Port: pm.path, DeviceID: id})
	default:
		pm.log.Info("device identity changed", "device", id, "previous", prev)
		pm.emit(Event{Kind: EventIDChange, Port: pm.path, DeviceID: id})
	}

	// Requests admitted before the reconnect may be waiting behind the
	// probe; let them drain against the settled identity.
	pm.wakeup()
}

// failInit records a failed identification attempt and re-arms the
// retry timer. A pending attempt is cancelled first, so at most one
// timer is ever outstanding.
func (pm *PortManager) failInit(init *time.Timer, err error) {
	pm.log.Warn("identification failed", "error", err)
	pm.setStatus(StatusInitFailed, err.Error())
	if !init.Stop() {
		select {
		case <-init.C:
		default:
		}
	}
	init.Reset(retryInterval)
}

// complete removes a finished request from the queue head and delivers
// its result.
func (pm *PortManager) complete(req *request, res Result) {
	pm.mu.Lock()
	if len(pm.queue) > 0 && pm.queue[0] == req {
		pm.queue = pm.queue[1:]
	}
	pm.mu.Unlock()
	if req.result != nil {
		req.result <- res
	}
}

// readLoop pumps transport bytes into the session until the connection
// dies or the session ends.
func readLoop(conn Conn, rx chan<- []byte, ioErr chan<- error, done <-chan struct{}) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			b := make([]byte, n)
			copy(b, buf[:n])
			select {
			case rx <- b:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case ioErr <- err:
			case <-done:
			}
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
