package devman

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// TestMain compresses the reconnect pacing so lifecycle tests run in
// milliseconds instead of the production two-second cadence.
func TestMain(m *testing.M) {
	retryInterval = 25 * time.Millisecond
	initDelay = 15 * time.Millisecond
	m.Run()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn is a scripted serial endpoint. Tests drive the device side
// through push and onWrite.
type fakeConn struct {
	rd     chan []byte
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	writeErr error
	onWrite  func(c *fakeConn, data []byte)
	writes   [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		rd:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case b := <-c.rd:
		return copy(p, b), nil
	case <-c.closed:
		return 0, io.EOF
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, errFakeClosed
	default:
	}
	c.mu.Lock()
	werr := c.writeErr
	handler := c.onWrite
	data := append([]byte(nil), p...)
	c.writes = append(c.writes, data)
	c.mu.Unlock()

	if werr != nil {
		return 0, werr
	}
	if handler != nil {
		go handler(c, data)
	}
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// push delivers device-originated bytes to the reader.
func (c *fakeConn) push(b []byte) {
	select {
	case c.rd <- b:
	case <-c.closed:
	}
}

// setWriteErr makes subsequent writes fail.
func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// unplug simulates the cable being pulled: the reader sees EOF.
func (c *fakeConn) unplug() {
	c.Close()
}

var errFakeClosed = errors.New("fake port closed")

// respondTo scripts a request/response device: each written command is
// answered with the mapped bytes after an optional delay.
func respondTo(responses map[string]string, delay time.Duration) func(*fakeConn, []byte) {
	return func(c *fakeConn, data []byte) {
		resp, ok := responses[string(data)]
		if !ok {
			return
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		c.push([]byte(resp))
	}
}

// fakeEnumerator serves a mutable port list.
type fakeEnumerator struct {
	mu    sync.Mutex
	infos []PortInfo
	err   error
	calls int
	delay time.Duration
}

func (e *fakeEnumerator) List() ([]PortInfo, error) {
	e.mu.Lock()
	e.calls++
	infos := append([]PortInfo(nil), e.infos...)
	err := e.err
	delay := e.delay
	e.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return infos, nil
}

func (e *fakeEnumerator) set(infos ...PortInfo) {
	e.mu.Lock()
	e.infos = infos
	e.mu.Unlock()
}

func (e *fakeEnumerator) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fakeOpener hands out connections from a factory closure.
type fakeOpener struct {
	mu      sync.Mutex
	factory func(path string, baud int) (Conn, error)
	opened  int
}

func (o *fakeOpener) Open(path string, baud int) (Conn, error) {
	o.mu.Lock()
	o.opened++
	factory := o.factory
	o.mu.Unlock()
	if factory == nil {
		return nil, fs.ErrNotExist
	}
	return factory(path, baud)
}

func (o *fakeOpener) setFactory(f func(path string, baud int) (Conn, error)) {
	o.mu.Lock()
	o.factory = f
	o.mu.Unlock()
}

// recorder captures events and lets tests wait for specific kinds.
type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 256)}
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.ch <- e:
	default:
	}
}

// waitFor blocks until an event of the kind arrives or the deadline
// passes. Events consumed while waiting stay available in all().
func (r *recorder) waitFor(t *testing.T, kind EventKind, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-r.ch:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
			return Event{}
		}
	}
}

// waitForStatus blocks until a statusChanged event for the given code
// arrives.
func (r *recorder) waitForStatus(t *testing.T, s Status, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-r.ch:
			if e.Kind == EventStatusChanged && e.Status == s {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", s)
			return
		}
	}
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// countKind tallies recorded events of one kind.
func (r *recorder) countKind(kind EventKind) int {
	n := 0
	for _, e := range r.all() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
