package analyzer

import (
	"math"
	"sync"

	"github.com/jrwynneiii/plcmodem/signal"
	"github.com/racerxdl/segdsp/tools"
	"gonum.org/v1/gonum/dsp/fourier"
)

// SNRCalc tracks the second and fourth moments of the signal with an
// exponential average.
type SNRCalc struct {
	Y1     float64
	Y2     float64
	Alpha  float64
	Beta   float64
	Signal float64
	Noise  float64
}

func NewSNRCalc() *SNRCalc {
	alpha := 0.001
	return &SNRCalc{Alpha: alpha, Beta: 1.0 - alpha}
}

// The SNR estimate is the M2M4 estimator from:
//
// D. R. Pauluzzi and N. C. Beaulieu, "A comparison of SNR
// estimation techniques for the AWGN channel," IEEE
// Trans. Communications, Vol. 48, No. 10, pp. 1681-1691, 2000.
//
// in its real-valued form, where M4 = S^2 + 6SN + 3N^2.
func (s *SNRCalc) Update(samples []float64) float64 {
	for _, v := range samples {
		p := v * v
		s.Y1 = s.Alpha*p + s.Beta*s.Y1
		s.Y2 = s.Alpha*p*p + s.Beta*s.Y2
	}
	if math.IsNaN(s.Y1) {
		s.Y1 = 0
	}
	if math.IsNaN(s.Y2) {
		s.Y2 = 0
	}

	radicand := (3.0*s.Y1*s.Y1 - s.Y2) / 2.0
	if radicand <= 0 {
		s.Signal = 0
		s.Noise = s.Y1
		return 0
	}
	s.Signal = math.Sqrt(radicand)
	s.Noise = s.Y1 - s.Signal
	if s.Noise <= 0 {
		return 0
	}
	return max(0, 10.0*math.Log10(s.Signal/s.Noise))
}

// Stats is a snapshot of what the analyzer has seen.
type Stats struct {
	Buffers    int
	Min        uint16
	Max        uint16
	Mean       float64
	CurrentSNR float64
	PeakSNR    float64
	AvgSNR     float64
}

// Analyzer watches captured buffers for the monitor: level statistics, an
// SNR estimate and, when enabled, a power spectrum of the latest buffer.
type Analyzer struct {
	Level      signal.Level
	SampleRate float64
	DoFFT      bool
	FFTSize    int

	mu       sync.RWMutex
	snr      *SNRCalc
	stats    Stats
	floats   []float64
	spectrum []float64
	peak     float64
	working  bool
	fft      sync.WaitGroup
}

func New(level signal.Level, sampleRate float64, doFFT bool, fftSize int) *Analyzer {
	return &Analyzer{
		Level:      level,
		SampleRate: sampleRate,
		DoFFT:      doFFT,
		FFTSize:    max(8, fftSize),
		snr:        NewSNRCalc(),
	}
}

func (a *Analyzer) BufferCaptured(buf []uint16) {
	if len(buf) == 0 {
		return
	}
	if cap(a.floats) < len(buf) {
		a.floats = make([]float64, len(buf))
	}
	floats := a.floats[:len(buf)]
	lo, hi, sum := buf[0], buf[0], 0.0
	for i, c := range buf {
		lo = min(lo, c)
		hi = max(hi, c)
		sum += float64(c)
		floats[i] = a.Level.Float(c)
	}

	a.mu.Lock()
	snr := a.snr.Update(floats)
	a.stats.Buffers++
	a.stats.Min, a.stats.Max = lo, hi
	a.stats.Mean = sum / float64(len(buf))
	a.stats.CurrentSNR = snr
	a.stats.PeakSNR = max(a.stats.PeakSNR, snr)
	if snr > 0 {
		a.stats.AvgSNR += snr
		a.stats.AvgSNR /= 2
	}
	start := a.DoFFT && !a.working
	if start {
		a.working = true
	}
	a.mu.Unlock()

	if start {
		in := make([]float64, min(len(floats), a.FFTSize))
		copy(in, floats[len(floats)-len(in):])
		a.fft.Add(1)
		go a.doFFT(in)
	}
}

func (a *Analyzer) doFFT(samples []float64) {
	defer a.fft.Done()
	input := make([]complex128, a.FFTSize)
	for i, v := range samples {
		input[i] = complex(v, 0)
	}

	fft := fourier.NewCmplxFFT(len(input))
	coeff := fft.Coefficients(nil, input)

	n := float64(len(input))
	output := make([]float64, len(coeff))
	best, peak := math.Inf(-1), 0.0
	for i := range coeff {
		idx := fft.ShiftIdx(i)
		v := float64(tools.ComplexAbsSquared(complex64(coeff[idx]))) / (n * n)
		output[i] = 10.0 * math.Log10(v+1e-20)
		if output[i] > best {
			best = output[i]
			peak = math.Abs(fft.Freq(idx)) * a.SampleRate
		}
	}

	a.mu.Lock()
	a.spectrum = output
	a.peak = peak
	a.working = false
	a.mu.Unlock()
}

// Wait blocks until a running spectrum computation has finished.
func (a *Analyzer) Wait() {
	a.fft.Wait()
}

func (a *Analyzer) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// Spectrum returns the latest power spectrum in dB, zero frequency centred.
func (a *Analyzer) Spectrum() []float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]float64(nil), a.spectrum...)
}

// PeakFrequency is the frequency in Hz of the strongest spectrum bin.
func (a *Analyzer) PeakFrequency() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.peak
}

func (a *Analyzer) Reset() {
	a.Wait()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snr = NewSNRCalc()
	a.stats = Stats{}
	a.spectrum = nil
	a.peak = 0
}
