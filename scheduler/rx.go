package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrwynneiii/plcmodem/ring"
)

// RX captures into a ring of buffers. With two buffers the client runs
// inline between captures; with more, a consumer goroutine drains the
// ring so a slow client does not delay the next capture.
type RX struct {
	session
	rc   Receiver
	ring *ring.Ring[uint16]

	queue    chan ring.Slot[uint16]
	consumer sync.WaitGroup
	// a slot whose capture was abandoned, released after the consumer
	// has drained older slots
	abandoned *ring.Slot[uint16]
}

func NewRX(conf Config, rc Receiver) *RX {
	if conf.BufferSize < 1 {
		panic(fmt.Sprintf("scheduler: buffer size %d", conf.BufferSize))
	}
	r := &RX{rc: rc}
	r.direction = "rx"
	r.conf = conf.withDefaults()
	r.ring = ring.New[uint16](r.conf.Buffers, conf.BufferSize)
	return r
}

func (r *RX) InFlight() int {
	return r.ring.InFlight()
}

func (r *RX) async() bool {
	return r.ring.Len() > 2
}

// Start prepares the client, arms the transport and launches the capture
// loop. On error the session stays idle.
func (r *RX) Start(ctx context.Context, client Capturer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claim(); err != nil {
		return err
	}
	if err := checkReady(client); err != nil {
		return err
	}
	r.newID()
	lc, _ := client.(Lifecycle)
	if lc != nil {
		if err := lc.Begin(r.conf.BufferSize); err != nil {
			return fmt.Errorf("%w: %v", ErrNotReady, err)
		}
	}

	r.setState(Armed)
	armer, _ := r.rc.(Armer)
	if armer != nil {
		if err := armer.Arm(); err != nil {
			if lc != nil {
				lc.End()
			}
			r.setState(Idle)
			return fmt.Errorf("arming transport: %w", err)
		}
	}

	if r.async() {
		r.queue = make(chan ring.Slot[uint16], r.ring.Len())
		r.consumer.Add(1)
		go r.consume(client)
	}
	r.Log.Infof("Starting: %d buffers of %d samples, timeout %v", r.ring.Len(), r.conf.BufferSize, r.conf.Timeout)
	r.launch(ctx, func(ctx context.Context) error {
		return r.loop(ctx, client)
	}, func() {
		if r.async() {
			close(r.queue)
			r.consumer.Wait()
		}
		if r.abandoned != nil {
			r.ring.Release(*r.abandoned)
			r.abandoned = nil
		}
		if armer != nil {
			if err := armer.Disarm(); err != nil {
				r.Log.Warnf("Disarming transport: %v", err)
			}
		}
		if lc != nil {
			lc.End()
		}
	})
	return nil
}

func (r *RX) loop(ctx context.Context, client Capturer) error {
	for {
		s, err := r.ring.Acquire(ctx)
		if err != nil {
			return err
		}
		if err := r.capture(ctx, s); err != nil {
			r.abandoned = &s
			return err
		}
		buffersTotal.WithLabelValues(r.direction).Inc()
		if r.async() {
			r.queue <- s
			continue
		}
		r.dispatch(client, s)
	}
}

// capture triggers transfers until one completes in time.
func (r *RX) capture(ctx context.Context, s ring.Slot[uint16]) error {
	for {
		cctx, cancel := context.WithTimeout(ctx, r.conf.Timeout)
		err := r.rc.Capture(cctx, s.Buf)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isTiming(err) {
			return fmt.Errorf("capturing buffer %d: %w", s.Seq, err)
		}
		timeoutsTotal.WithLabelValues(r.direction).Inc()
		r.Log.Warnf("Capture %d timed out after %v, retriggering", s.Seq, r.conf.Timeout)
	}
}

func (r *RX) dispatch(client Capturer, s ring.Slot[uint16]) {
	start := time.Now()
	client.BufferCaptured(s.Buf)
	fillSeconds.WithLabelValues(r.direction).Observe(time.Since(start).Seconds())
	r.ring.Release(s)
}

// consume hands queued buffers to the client in capture order until the
// queue is closed.
func (r *RX) consume(client Capturer) {
	defer r.consumer.Done()
	for s := range r.queue {
		r.dispatch(client, s)
	}
}
