package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrwynneiii/plcmodem/decode"
	"github.com/jrwynneiii/plcmodem/encode"
	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTX struct {
	mu       sync.Mutex
	sent     [][]uint16
	sendErr  error
	waitErrs []error
	armErr   error
	armed    int
	disarmed int
}

func (f *fakeTX) Send(ctx context.Context, buf []uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]uint16(nil), buf...))
	return nil
}

func (f *fakeTX) Wait(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.waitErrs) > 0 {
		err := f.waitErrs[0]
		f.waitErrs = f.waitErrs[1:]
		return err
	}
	return nil
}

func (f *fakeTX) Arm() error    { f.armed++; return f.armErr }
func (f *fakeTX) Disarm() error { f.disarmed++; return nil }

func (f *fakeTX) buffers() [][]uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]uint16(nil), f.sent...)
}

// counter fills buffers with consecutive values and finishes after limit
// buffers when limit is positive.
type counter struct {
	next   uint16
	filled int
	limit  int
	sent   int
	ready  bool
}

func (c *counter) FillBuffer(buf []uint16) {
	for i := range buf {
		buf[i] = c.next
		c.next++
	}
	c.filled++
}

func (c *counter) BufferSent([]uint16) { c.sent++ }
func (c *counter) Done() bool          { return c.limit > 0 && c.filled >= c.limit }
func (c *counter) Ready() bool         { return c.ready }
func (c *counter) Err() error          { return errors.New("counter disabled") }

// source captures from a generator, timing out on the first misses calls.
type source struct {
	mu     sync.Mutex
	next   uint16
	misses int
	calls  int
	block  bool
}

func (s *source) Capture(ctx context.Context, buf []uint16) error {
	s.mu.Lock()
	s.calls++
	block, miss := s.block, s.misses > 0
	if miss {
		s.misses--
	}
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if miss {
		return ErrTimeout
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range buf {
		buf[i] = s.next
		s.next++
	}
	return nil
}

type collector struct {
	mu    sync.Mutex
	seen  []uint16
	delay time.Duration
}

func (c *collector) BufferCaptured(buf []uint16) {
	time.Sleep(c.delay)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, buf...)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func stopWithin(t *testing.T, stop func(), d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("stop did not return within %v", d)
	}
}

func TestTXStartStopIsLive(t *testing.T) {
	tr := &fakeTX{}
	tx := NewTX(Config{BufferSize: 64, SampleRate: 1000, Timeout: 50 * time.Millisecond}, tr)
	require.NoError(t, tx.Start(context.Background(), &counter{ready: true}))
	stopWithin(t, tx.Stop, 2*time.Second)

	assert.Equal(t, Idle, tx.State())
	assert.Zero(t, tx.InFlight())
	assert.Equal(t, 1, tr.armed)
	assert.Equal(t, 1, tr.disarmed)
	assert.NoError(t, tx.Err())
}

func TestRXStartStopIsLive(t *testing.T) {
	for _, buffers := range []int{2, 4} {
		rc := &source{block: true}
		rx := NewRX(Config{BufferSize: 64, Buffers: buffers, Timeout: 20 * time.Millisecond}, rc)
		require.NoError(t, rx.Start(context.Background(), &collector{}))
		stopWithin(t, rx.Stop, 2*time.Second)
		assert.Equal(t, Idle, rx.State())
		assert.Zero(t, rx.InFlight())
	}
}

func TestTXSendsInOrderUntilDone(t *testing.T) {
	tr := &fakeTX{}
	c := &counter{ready: true, limit: 5}
	tx := NewTX(Config{BufferSize: 8, Preload: true}, tr)
	require.NoError(t, tx.Start(context.Background(), c))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tx.Wait(ctx))
	tx.Stop()

	bufs := tr.buffers()
	require.Len(t, bufs, 5)
	want := uint16(0)
	for _, b := range bufs {
		for _, v := range b {
			assert.Equal(t, want, v)
			want++
		}
	}
	assert.Equal(t, 5, c.sent)
	assert.Zero(t, tx.InFlight())
	assert.Equal(t, Idle, tx.State())
}

func TestTXRetriesOnTimeout(t *testing.T) {
	tr := &fakeTX{waitErrs: []error{ErrTimeout, context.DeadlineExceeded}}
	c := &counter{ready: true, limit: 3}
	tx := NewTX(Config{BufferSize: 4}, tr)
	require.NoError(t, tx.Start(context.Background(), c))
	require.NoError(t, tx.Wait(context.Background()))
	assert.Len(t, tr.buffers(), 3)
	assert.NoError(t, tx.Err())
}

func TestTXPacesBuffers(t *testing.T) {
	tr := &fakeTX{}
	// 100 samples at 10 kHz is 10 ms per buffer
	tx := NewTX(Config{BufferSize: 100, SampleRate: 10000}, tr)
	start := time.Now()
	require.NoError(t, tx.Start(context.Background(), &counter{ready: true, limit: 6}))
	require.NoError(t, tx.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestTXStartFailureStaysIdle(t *testing.T) {
	tr := &fakeTX{}
	tx := NewTX(Config{BufferSize: 8, Preload: true}, tr)
	err := tx.Start(context.Background(), &counter{})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, Idle, tx.State())

	tr.armErr = errors.New("no device")
	err = tx.Start(context.Background(), &counter{ready: true})
	assert.ErrorContains(t, err, "no device")
	assert.Equal(t, Idle, tx.State())
	assert.Zero(t, tx.InFlight())
	assert.Zero(t, tr.disarmed)

	tr.armErr = nil
	require.NoError(t, tx.Start(context.Background(), &counter{ready: true}))
	assert.ErrorIs(t, tx.Start(context.Background(), &counter{ready: true}), ErrBusy)
	tx.Stop()
	tx.Stop()
}

func TestTXTransportFailureEndsSession(t *testing.T) {
	tr := &fakeTX{sendErr: errors.New("cable unplugged")}
	tx := NewTX(Config{BufferSize: 8}, tr)
	require.NoError(t, tx.Start(context.Background(), &counter{ready: true}))
	require.NoError(t, tx.Wait(context.Background()))
	assert.ErrorContains(t, tx.Err(), "cable unplugged")
	assert.Zero(t, tx.InFlight())
	assert.Equal(t, Idle, tx.State())
}

func TestRXRetriggersAfterTimeout(t *testing.T) {
	rc := &source{misses: 3}
	c := &collector{}
	rx := NewRX(Config{BufferSize: 16, Timeout: 10 * time.Millisecond}, rc)
	require.NoError(t, rx.Start(context.Background(), c))
	assert.Eventually(t, func() bool { return c.len() >= 64 }, 2*time.Second, time.Millisecond)
	rx.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, v := range c.seen {
		require.Equal(t, uint16(i), v)
	}
	assert.Zero(t, rx.InFlight())
}

func TestRXAsyncKeepsOrder(t *testing.T) {
	rc := &source{}
	c := &collector{delay: time.Millisecond}
	rx := NewRX(Config{BufferSize: 16, Buffers: 4}, rc)
	require.NoError(t, rx.Start(context.Background(), c))
	assert.Eventually(t, func() bool { return c.len() >= 160 }, 2*time.Second, time.Millisecond)
	stopWithin(t, rx.Stop, 2*time.Second)

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, v := range c.seen {
		require.Equal(t, uint16(i), v)
	}
	assert.Zero(t, rx.InFlight())
}

// loopback replays what a TX session sent as RX captures.
type loopback struct {
	fakeTX
	read int
}

func (l *loopback) Capture(ctx context.Context, buf []uint16) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.read < len(l.sent) {
		copy(buf, l.sent[l.read])
		l.read++
		return nil
	}
	for i := range buf {
		buf[i] = 2048
	}
	return nil
}

func TestPluginClientsRoundTrip(t *testing.T) {
	enc := encode.NewOOK(plugin.Discard("tx"))
	enc.BeginSettings()
	require.NoError(t, enc.SetSetting("message", setting.String("hello")))
	require.NoError(t, enc.SetSetting("symbol_width", setting.Uint32(300)))
	require.NoError(t, enc.EndSettings())

	dec := decode.NewOOK(plugin.Discard("rx"))
	dec.BeginSettings()
	require.NoError(t, dec.SetSetting("symbol_width", setting.Uint32(300)))
	require.NoError(t, dec.EndSettings())

	lb := &loopback{}
	conf := Config{BufferSize: 256}
	tx := NewTX(conf, lb)
	ec := NewEncoderClient(enc)
	require.NoError(t, tx.Start(context.Background(), ec))
	require.NoError(t, tx.Wait(context.Background()))
	assert.Positive(t, ec.Sent.Load())

	var mu sync.Mutex
	var got []byte
	rx := NewRX(conf, lb)
	dc := NewDecoderClient(dec, func(b []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, b...)
	})
	require.NoError(t, rx.Start(context.Background(), dc))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(got) == "hello"
	}, 2*time.Second, time.Millisecond)
	rx.Stop()

	ec.Release()
	dc.Release()
	assert.False(t, enc.Ready())
	assert.False(t, dec.Ready())
	assert.ErrorIs(t, tx.Start(context.Background(), ec), ErrNotReady)
	assert.ErrorIs(t, rx.Start(context.Background(), dc), ErrNotReady)
}

func TestUnconfiguredPluginIsRejected(t *testing.T) {
	enc := encode.NewOOK(plugin.Discard("tx"))
	tx := NewTX(Config{BufferSize: 8}, &fakeTX{})
	assert.ErrorIs(t, tx.Start(context.Background(), NewEncoderClient(enc)), ErrNotReady)
	assert.Equal(t, Idle, tx.State())

	dec := decode.NewOOK(plugin.Discard("rx"))
	rx := NewRX(Config{BufferSize: 8}, &source{})
	assert.ErrorIs(t, rx.Start(context.Background(), NewDecoderClient(dec, nil)), ErrNotReady)
	assert.Equal(t, Idle, rx.State())
}
