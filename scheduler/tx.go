package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jrwynneiii/plcmodem/ring"
)

// TX keeps exactly one buffer in flight at the transport while the encoder
// fills the other one.
type TX struct {
	session
	tr   Transmitter
	ring *ring.Ring[uint16]

	// owned by the loop goroutine while a session runs
	inflight *ring.Slot[uint16]
	pending  *ring.Slot[uint16]
}

func NewTX(conf Config, tr Transmitter) *TX {
	if conf.BufferSize < 1 {
		panic(fmt.Sprintf("scheduler: buffer size %d", conf.BufferSize))
	}
	t := &TX{tr: tr}
	t.direction = "tx"
	t.conf = conf.withDefaults()
	t.ring = ring.New[uint16](2, conf.BufferSize)
	return t
}

// InFlight is the number of buffers currently owned by the loop or the
// transport.
func (t *TX) InFlight() int {
	return t.ring.InFlight()
}

// Start arms the transport and launches the TX loop. On error the session
// stays idle.
func (t *TX) Start(ctx context.Context, client Filler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.claim(); err != nil {
		return err
	}
	if err := checkReady(client); err != nil {
		return err
	}
	t.newID()
	lc, _ := client.(Lifecycle)
	if lc != nil {
		if err := lc.Begin(t.conf.BufferSize); err != nil {
			return fmt.Errorf("%w: %v", ErrNotReady, err)
		}
	}

	if t.conf.Preload {
		t.setState(Preloading)
		s, _ := t.ring.TryAcquire()
		t.fill(client, s.Buf)
		t.pending = &s
	}

	t.setState(Armed)
	armer, _ := t.tr.(Armer)
	if armer != nil {
		if err := armer.Arm(); err != nil {
			t.release(client, false)
			if lc != nil {
				lc.End()
			}
			t.setState(Idle)
			return fmt.Errorf("arming transport: %w", err)
		}
	}

	t.Log.Infof("Starting: %d samples per buffer, period %v", t.conf.BufferSize, t.conf.period())
	t.launch(ctx, func(ctx context.Context) error {
		return t.loop(ctx, client)
	}, func() {
		t.drain(client)
		if armer != nil {
			if err := armer.Disarm(); err != nil {
				t.Log.Warnf("Disarming transport: %v", err)
			}
		}
		if lc != nil {
			lc.End()
		}
	})
	return nil
}

func (t *TX) fill(client Filler, buf []uint16) {
	start := time.Now()
	client.FillBuffer(buf)
	fillSeconds.WithLabelValues(t.direction).Observe(time.Since(start).Seconds())
}

// loop alternates between filling the free slot and waiting for the slot
// in flight.
func (t *TX) loop(ctx context.Context, client Filler) error {
	period := t.conf.period()
	deadline := time.Now()
	finisher, _ := client.(Finisher)

	for {
		if t.pending == nil {
			s, err := t.ring.Acquire(ctx)
			if err != nil {
				return err
			}
			t.fill(client, s.Buf)
			t.pending = &s
		}
		last := finisher != nil && finisher.Done()

		if t.inflight != nil {
			if err := t.consumed(ctx, client); err != nil {
				return err
			}
		}
		if period > 0 {
			if err := t.pace(ctx, &deadline, period); err != nil {
				return err
			}
		}
		if err := t.tr.Send(ctx, t.pending.Buf); err != nil {
			return fmt.Errorf("sending buffer %d: %w", t.pending.Seq, err)
		}
		buffersTotal.WithLabelValues(t.direction).Inc()
		t.inflight, t.pending = t.pending, nil

		if last {
			t.Log.Infof("Client finished")
			return t.consumed(ctx, client)
		}
	}
}

// consumed waits for the transport to give the in-flight slot back,
// retrying on timeouts.
func (t *TX) consumed(ctx context.Context, client Filler) error {
	for {
		wctx, cancel := context.WithTimeout(ctx, t.conf.Timeout)
		err := t.tr.Wait(wctx)
		cancel()
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isTiming(err) {
			return fmt.Errorf("waiting for buffer %d: %w", t.inflight.Seq, err)
		}
		timeoutsTotal.WithLabelValues(t.direction).Inc()
		t.Log.Warnf("Buffer %d not consumed after %v, waiting again", t.inflight.Seq, t.conf.Timeout)
	}
	t.release(client, true)
	return nil
}

// release hands the in-flight slot and then the pending one back to the
// ring, oldest first. Only a consumed slot is reported to the client.
func (t *TX) release(client Filler, sent bool) {
	if t.inflight != nil {
		if n, ok := client.(SentNotifier); ok && sent {
			n.BufferSent(t.inflight.Buf)
		}
		t.ring.Release(*t.inflight)
		t.inflight = nil
	}
	if t.pending != nil && !sent {
		t.ring.Release(*t.pending)
		t.pending = nil
	}
}

// pace sleeps until lead before the deadline of the next buffer. A loop
// that has fallen a full period behind starts over from now.
func (t *TX) pace(ctx context.Context, deadline *time.Time, period time.Duration) error {
	now := time.Now()
	if now.Sub(*deadline) > period {
		lateTotal.WithLabelValues(t.direction).Inc()
		t.Log.Warnf("Running %v late, resetting the buffer clock", now.Sub(*deadline))
		*deadline = now
	}
	wait := time.Until(deadline.Add(-t.conf.Lead))
	*deadline = deadline.Add(period)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain gives the transport a last chance to consume the buffer in flight,
// then returns every slot to the ring.
func (t *TX) drain(client Filler) {
	sent := false
	if t.inflight != nil {
		ctx, cancel := context.WithTimeout(context.Background(), t.conf.Timeout)
		err := t.tr.Wait(ctx)
		cancel()
		if err != nil {
			t.Log.Debugf("Abandoning buffer %d: %v", t.inflight.Seq, err)
		}
		sent = err == nil
	}
	if sent {
		t.release(client, true)
	}
	t.release(client, false)
}
