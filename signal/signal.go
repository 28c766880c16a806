package signal

import (
	"errors"
	"fmt"
	"math"
)

type Demodulation int

const (
	// None subtracts the offset only.
	None Demodulation = iota
	// Absolute rectifies around the offset.
	Absolute
	// Carrier multiplies by a cosine synchronized to the absolute sample index.
	Carrier
)

var ErrCoefficients = errors.New("invalid filter coefficients")

// Signal is a direct form I IIR filter preceded by a demodulation step.
// History of the previous chunk is carried in the leading slots of x and y.
type Signal struct {
	a, b      []float64
	order     int
	chunkSize int
	x         []float64
	y         []float64

	demod   Demodulation
	carrier float64
	index   uint64

	capture     []float64
	captureLeft int
}

type Option func(*Signal)

func WithDemodulation(d Demodulation) Option {
	return func(s *Signal) { s.demod = d }
}

// WithCarrier sets the reference frequency in cycles per sample and selects
// carrier demodulation.
func WithCarrier(freq float64) Option {
	return func(s *Signal) {
		s.demod = Carrier
		s.carrier = freq
	}
}

// WithCapture keeps up to n filtered samples for later inspection.
func WithCapture(n int) Option {
	return func(s *Signal) {
		s.captureLeft = n
		s.capture = make([]float64, 0, n)
	}
}

// New builds a filter with feedback coefficients a and feedforward
// coefficients b. An order above chunkSize panics.
func New(chunkSize int, a, b []float64, opts ...Option) (*Signal, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, fmt.Errorf("empty coefficient set: %w", ErrCoefficients)
	}
	if a[0] == 0 {
		return nil, fmt.Errorf("a[0] is zero: %w", ErrCoefficients)
	}
	if chunkSize <= 0 {
		panic(fmt.Sprintf("signal: chunk size %d", chunkSize))
	}
	order := max(len(a), len(b)) - 1
	if order > chunkSize {
		panic(fmt.Sprintf("signal: filter order %d exceeds chunk size %d", order, chunkSize))
	}

	s := &Signal{
		a:         append([]float64(nil), a...),
		b:         append([]float64(nil), b...),
		order:     order,
		chunkSize: chunkSize,
		x:         make([]float64, order+chunkSize),
		y:         make([]float64, order+chunkSize),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Signal) Order() int { return s.order }

// ProcessChunk demodulates and filters one chunk of raw samples.
func (s *Signal) ProcessChunk(raw []uint16, offset float64) {
	if len(raw) != s.chunkSize {
		panic(fmt.Sprintf("signal: chunk of %d samples, expected %d", len(raw), s.chunkSize))
	}
	if s.order > 0 {
		copy(s.x[:s.order], s.x[s.chunkSize:])
		copy(s.y[:s.order], s.y[s.chunkSize:])
	}

	in := s.x[s.order:]
	for i, r := range raw {
		v := float64(r) - offset
		switch s.demod {
		case Absolute:
			v = math.Abs(v)
		case Carrier:
			v *= math.Cos(2 * math.Pi * s.carrier * float64(s.index+uint64(i)))
		}
		in[i] = v
	}
	s.index += uint64(len(raw))

	a0 := s.a[0]
	for n := s.order; n < len(s.y); n++ {
		var acc float64
		for k, bk := range s.b {
			acc += bk * s.x[n-k]
		}
		for k := 1; k < len(s.a); k++ {
			acc -= s.a[k] * s.y[n-k]
		}
		s.y[n] = acc / a0
	}

	if s.captureLeft > 0 {
		n := min(s.captureLeft, s.chunkSize)
		s.capture = append(s.capture, s.y[s.order:s.order+n]...)
		s.captureLeft -= n
	}
}

// Output is the filtered chunk. Valid after ProcessChunk, overwritten by the next call.
func (s *Signal) Output() []float64 {
	return s.y[s.order:]
}

func (s *Signal) Captured() []float64 {
	return s.capture
}
