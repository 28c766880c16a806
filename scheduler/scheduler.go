// Package scheduler runs the real-time sample loops. A TX session keeps a
// transport fed from an encoder through a ping-pong buffer pair; an RX
// session captures buffers from a transport and hands them to a decoder.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

type State int32

const (
	Idle State = iota
	Preloading
	Armed
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preloading:
		return "preloading"
	case Armed:
		return "armed"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var (
	ErrBusy     = errors.New("session already running")
	ErrNotReady = errors.New("client not ready")
	// ErrTimeout is returned by transports when a transfer misses its
	// deadline. The scheduler logs it and retries.
	ErrTimeout = errors.New("transfer timed out")
)

type Config struct {
	BufferSize int
	// Buffers in the RX ring. TX always uses two.
	Buffers    int
	SampleRate float64
	// Lead is how early a TX buffer is handed over before it is due.
	Lead     time.Duration
	Preload  bool
	Timeout  time.Duration
	Priority int
}

func (c Config) withDefaults() Config {
	if c.Buffers < 2 {
		c.Buffers = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	return c
}

// period is the playing time of one buffer, zero when unpaced.
func (c Config) period() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.BufferSize) / c.SampleRate * float64(time.Second))
}

// Filler produces TX samples.
type Filler interface {
	FillBuffer(buf []uint16)
}

// Capturer consumes RX samples.
type Capturer interface {
	BufferCaptured(buf []uint16)
}

// SentNotifier is told when the transport has consumed a TX buffer.
type SentNotifier interface {
	BufferSent(buf []uint16)
}

// Lifecycle clients are prepared before a session and finished after it.
type Lifecycle interface {
	Begin(chunkSize int) error
	End()
}

// Finisher lets a TX client end its session once everything was sent.
type Finisher interface {
	Done() bool
}

// Armer transports are started when a session is armed and stopped after it.
type Armer interface {
	Arm() error
	Disarm() error
}

// Transmitter takes filled buffers. Wait returns once the oldest buffer
// handed to Send has been consumed; after that the scheduler reuses it.
type Transmitter interface {
	Send(ctx context.Context, buf []uint16) error
	Wait(ctx context.Context) error
}

// Receiver fills buf with the next captured samples, giving up when ctx
// expires.
type Receiver interface {
	Capture(ctx context.Context, buf []uint16) error
}

func isTiming(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// session holds what both directions share: state, cancellation and join.
type session struct {
	direction string
	conf      Config
	state     atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	ID  string
	Log *log.Logger
}

func (s *session) State() State {
	return State(s.state.Load())
}

func (s *session) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st && s.Log != nil {
		s.Log.Debugf("%s -> %s", old, st)
	}
}

// claim must be called with mu held.
func (s *session) claim() error {
	if s.done == nil {
		return nil
	}
	select {
	case <-s.done:
		s.done = nil
		return nil
	default:
		return ErrBusy
	}
}

func (s *session) newID() {
	s.ID = uuid.New().String()
	s.Log = log.Default().WithPrefix(s.direction + " " + s.ID[:8])
	s.err = nil
}

func checkReady(client any) error {
	r, ok := client.(interface {
		Ready() bool
		Err() error
	})
	if ok && !r.Ready() {
		return fmt.Errorf("%w: %v", ErrNotReady, r.Err())
	}
	return nil
}

// launch runs loop on its own goroutine and returns once it has started.
func (s *session) launch(parent context.Context, loop func(ctx context.Context) error, cleanup func()) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	go func() {
		defer close(done)
		defer cancel()
		lockThread(s.Log, s.conf.Priority)
		s.setState(Running)
		err := loop(ctx)
		s.setState(Stopping)
		cleanup()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.Log.Errorf("Session failed: %v", err)
			s.err = err
		}
		s.setState(Idle)
		s.Log.Infof("Session ended")
	}()
}

// Stop cancels the session and waits for its loop to exit.
func (s *session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.done = nil
}

// Wait blocks until the session ends on its own or ctx is cancelled.
func (s *session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err is the failure that ended the last session, if any.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return nil
		}
	}
	return s.err
}
