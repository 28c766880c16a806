package signal

import (
	"fmt"
	"math"

	"github.com/racerxdl/segdsp/dsp"
)

// Coefficients is an (a, b) pair as accepted by New.
type Coefficients struct {
	A []float64
	B []float64
}

func Passthrough() Coefficients {
	return Coefficients{A: []float64{1}, B: []float64{1}}
}

func MovingAverage(n int) Coefficients {
	if n < 1 {
		n = 1
	}
	b := make([]float64, n)
	for i := range b {
		b[i] = 1 / float64(n)
	}
	return Coefficients{A: []float64{1}, B: b}
}

// SinglePole is an exponential smoother, y[n] = alpha*x[n] + (1-alpha)*y[n-1].
func SinglePole(alpha float64) Coefficients {
	return Coefficients{A: []float64{1, alpha - 1}, B: []float64{alpha}}
}

// LowPassFIR designs windowed-sinc taps with unity DC gain.
func LowPassFIR(sampleRate, cutoff, transition float64) (Coefficients, error) {
	if cutoff <= 0 || cutoff >= sampleRate/2 {
		return Coefficients{}, fmt.Errorf("cutoff %.1f Hz outside (0, %.1f): %w", cutoff, sampleRate/2, ErrCoefficients)
	}
	if transition <= 0 {
		transition = cutoff / 2
	}
	taps := dsp.MakeLowPass(1, sampleRate, cutoff, transition)
	b := make([]float64, 0, len(taps))
	for _, t := range taps {
		b = append(b, float64(t))
	}
	if len(b) == 0 {
		return Coefficients{}, fmt.Errorf("no taps for cutoff %.1f Hz: %w", cutoff, ErrCoefficients)
	}
	return Coefficients{A: []float64{1}, B: b}, nil
}

func biquadPrep(sampleRate, cutoff, q float64) (cosw, alpha float64, err error) {
	if cutoff <= 0 || cutoff >= sampleRate/2 {
		return 0, 0, fmt.Errorf("cutoff %.1f Hz outside (0, %.1f): %w", cutoff, sampleRate/2, ErrCoefficients)
	}
	if q <= 0 {
		q = math.Sqrt2 / 2
	}
	w0 := 2 * math.Pi * cutoff / sampleRate
	return math.Cos(w0), math.Sin(w0) / (2 * q), nil
}

// LowPassBiquad is the second order section from the RBJ audio EQ cookbook.
func LowPassBiquad(sampleRate, cutoff, q float64) (Coefficients, error) {
	cosw, alpha, err := biquadPrep(sampleRate, cutoff, q)
	if err != nil {
		return Coefficients{}, err
	}
	return Coefficients{
		A: []float64{1 + alpha, -2 * cosw, 1 - alpha},
		B: []float64{(1 - cosw) / 2, 1 - cosw, (1 - cosw) / 2},
	}, nil
}

// DCGain evaluates the transfer function at z = 1.
func (c Coefficients) DCGain() float64 {
	var num, den float64
	for _, v := range c.B {
		num += v
	}
	for _, v := range c.A {
		den += v
	}
	return num / den
}

func (c Coefficients) Order() int {
	return max(len(c.A), len(c.B)) - 1
}
