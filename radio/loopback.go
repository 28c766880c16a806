package radio

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jrwynneiii/plcmodem/config"
	"github.com/jrwynneiii/plcmodem/signal"
)

// Loopback connects a TX session to an RX session in process. Sent buffers
// are queued as one sample stream; captures drain it and see the idle level
// once it runs dry. Gaussian noise can be added on the receive side.
type Loopback struct {
	SampleRate float64
	Idle       uint16
	Noise      float64

	queue   chan []uint16
	mu      sync.Mutex
	pending []uint16
	rng     *rand.Rand
}

func NewLoopback(conf config.TransportConf, sampleRate float64, depth int) *Loopback {
	return &Loopback{
		SampleRate: sampleRate,
		Idle:       uint16(conf.Offset),
		Noise:      conf.Noise,
		queue:      make(chan []uint16, max(1, depth)),
		rng:        rand.New(rand.NewPCG(1, 2)),
	}
}

// Send queues a copy of buf, blocking while the queue is full.
func (l *Loopback) Send(ctx context.Context, buf []uint16) error {
	b := append([]uint16(nil), buf...)
	select {
	case l.queue <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait returns at once: a queued buffer is already consumed.
func (l *Loopback) Wait(ctx context.Context) error {
	return nil
}

func (l *Loopback) period(n int) time.Duration {
	if l.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / l.SampleRate * float64(time.Second))
}

// next returns the next queued buffer, or nil when none arrived within the
// playing time of n samples.
func (l *Loopback) next(ctx context.Context, n int) ([]uint16, error) {
	select {
	case b := <-l.queue:
		return b, nil
	default:
	}
	d := l.period(n)
	if d == 0 {
		return nil, nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case b := <-l.queue:
		return b, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Loopback) Capture(ctx context.Context, buf []uint16) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < len(buf); {
		if len(l.pending) == 0 {
			b, err := l.next(ctx, len(buf)-i)
			if err != nil {
				return err
			}
			if b == nil {
				for ; i < len(buf); i++ {
					buf[i] = l.Idle
				}
				break
			}
			l.pending = b
		}
		n := copy(buf[i:], l.pending)
		l.pending = l.pending[n:]
		i += n
	}
	if l.Noise > 0 {
		for i, v := range buf {
			buf[i] = signal.Level{Offset: float64(v), Scale: l.Noise}.Code(l.rng.NormFloat64())
		}
	}
	return nil
}

// Queued is the number of buffers sent but not yet captured.
func (l *Loopback) Queued() int {
	return len(l.queue)
}

