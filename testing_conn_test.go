package pushsub

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"
)

const testTimeout = 2 * time.Second

// fakeConnection is an in-memory transport handle driven by the test.
type fakeConnection struct {
	recv   chan<- Message
	openC  chan error
	closeC CloseChan

	mu        sync.Mutex
	closed    bool
	closeErr  error
	written   []Message
	writeFunc func(m Message) error
}

func newFakeConnection(recv chan<- Message) *fakeConnection {
	return &fakeConnection{
		recv:   recv,
		openC:  make(chan error, 1),
		closeC: make(CloseChan),
	}
}

func (f *fakeConnection) Open(ctx context.Context) error {
	select {
	case err := <-f.openC:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-f.closeC:
		return ErrTerminated
	}
}

func (f *fakeConnection) Write(m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrConnectionClosed
	}
	if f.writeFunc != nil {
		if err := f.writeFunc(m); err != nil {
			return err
		}
	}
	f.written = append(f.written, m)
	return nil
}

func (f *fakeConnection) Close() {
	f.closeWith(ErrTerminated)
}

func (f *fakeConnection) CloseChan() CloseChan {
	return f.closeC
}

func (f *fakeConnection) CloseErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeErr
}

func (f *fakeConnection) closeWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.closeErr = err
	close(f.closeC)
}

// accept lets a pending Open succeed.
func (f *fakeConnection) accept() {
	f.openC <- nil
}

// fail makes a pending Open return err.
func (f *fakeConnection) fail(err error) {
	f.openC <- err
}

// drop simulates the server going away.
func (f *fakeConnection) drop() {
	f.closeWith(ErrConnectionClosed)
}

// push delivers a server text frame.
func (f *fakeConnection) push(raw string) {
	f.recv <- NewDataMessage([]byte(raw))
}

func (f *fakeConnection) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// frames returns the text frames written so far.
func (f *fakeConnection) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, m := range f.written {
		if m.Type() == DataMessage {
			out = append(out, string(m.Data()))
		}
	}
	return out
}

func (f *fakeConnection) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Message, len(f.written))
	copy(out, f.written)
	return out
}

// fakeDialer hands out a fresh fakeConnection per attempt.
type fakeDialer struct {
	conns chan *fakeConnection
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConnection, 32)}
}

func (d *fakeDialer) factory(_ context.Context, recv chan<- Message) Connection {
	conn := newFakeConnection(recv)
	d.conns <- conn
	return conn
}

// next returns the handle created by the latest open.
func (d *fakeDialer) next(t *testing.T) *fakeConnection {
	t.Helper()
	select {
	case conn := <-d.conns:
		return conn
	case <-time.After(testTimeout):
		t.Fatal("no connection attempt was made")
		return nil
	}
}

// none asserts that no connection attempt is pending.
func (d *fakeDialer) none(t *testing.T) {
	t.Helper()
	select {
	case <-d.conns:
		t.Fatal("unexpected connection attempt")
	default:
	}
}

// fakeClock only moves when Advance is called. Due timers run synchronously
// inside Advance, on the caller's goroutine.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Duration
	delays  []time.Duration
	timers  []*fakeTimer
	tickers []*fakeTicker
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	done    bool
	stopped bool
}

type fakeTicker struct {
	clock   *fakeClock
	period  time.Duration
	next    time.Duration
	c       chan time.Time
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.delays = append(c.delays, d)
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTicker{clock: c, period: d, next: c.now + d, c: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward by d, fires every due timer and ticks every
// due ticker. Ticks are dropped when the previous one was not consumed.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.done && !t.stopped && t.at <= c.now {
			t.done = true
			due = append(due, t)
		}
	}
	for _, t := range c.tickers {
		for !t.stopped && t.next <= c.now {
			select {
			case t.c <- time.Unix(0, int64(t.next)):
			default:
			}
			t.next += t.period
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// scheduled returns every delay passed to AfterFunc, in call order.
func (c *fakeClock) scheduled() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]time.Duration, len(c.delays))
	copy(out, c.delays)
	return out
}

func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.done && !t.stopped {
			n++
		}
	}
	return n
}

func (c *fakeClock) activeTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.done || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.c
}

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}

// logBuffer collects log lines and prints them only when the test fails, so
// goroutines that outlive the test never call t.Log.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(t *testing.T) Logger {
	t.Helper()
	logger, _ := newCapturedLogger(t)
	return logger
}

// newCapturedLogger also returns the buffer so tests can assert on log lines.
func newCapturedLogger(t *testing.T) (Logger, *logBuffer) {
	t.Helper()
	buf := &logBuffer{}
	t.Cleanup(func() {
		if t.Failed() {
			t.Log("\n" + buf.String())
		}
	})
	return NewWriterLogger(buf), buf
}
