package encode

import (
	"fmt"
	"math"

	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
)

const (
	sweepOnTheFly = iota
	sweepLookup
)

// Sweep repeats a linear chirp. The iteration length is tuned so one
// iteration holds a whole number of cycles and the wrap is phase continuous.
type Sweep struct {
	plugin.Base
	fs        float64
	f0, f1    float64
	length    int
	offset    float64
	amplitude float64
	table     []uint16
	n         int
}

func NewSweep(ctx *plugin.Context) plugin.Encoder {
	return &Sweep{Base: plugin.NewBase(ctx, []setting.Definition{
		{Name: "sampling_frequency", Description: "DAC sampling rate in Hz", Kind: setting.KindUint32, Default: setting.Uint32(100000), Range: &setting.Range{Min: 1, Max: 100e6}},
		{Name: "start_frequency", Description: "Chirp start in Hz", Kind: setting.KindFloat64, Default: setting.Float64(1000), Range: &setting.Range{Min: 0, Max: 50e6}},
		{Name: "end_frequency", Description: "Chirp end in Hz", Kind: setting.KindFloat64, Default: setting.Float64(20000), Range: &setting.Range{Min: 0, Max: 50e6}},
		{Name: "duration", Description: "Approximate iteration length in microseconds", Kind: setting.KindUint32, Default: setting.Uint32(100000)},
		{Name: "mode", Description: "Compute samples on the fly or from a precomputed table", Kind: setting.KindEnum, Default: setting.Enum{Index: sweepLookup, Captions: []string{"on_the_fly", "lookup"}}},
		{Name: "offset", Description: "Idle level of the DAC", Kind: setting.KindUint16, Default: setting.Uint16(2048)},
		{Name: "amplitude", Description: "Peak deviation from offset", Kind: setting.KindUint16, Default: setting.Uint16(1000)},
	})}
}

// sweepLength searches within 10% of nominal for the length whose cycle
// count is closest to an integer, preferring lengths near nominal.
func sweepLength(nominal int, f0, f1, fs float64) int {
	best, bestErr := nominal, math.Inf(1)
	span := max(1, nominal/10)
	for d := 0; d <= span; d++ {
		for _, l := range []int{nominal - d, nominal + d} {
			if l < 2 {
				continue
			}
			cycles := (f0 + f1) / 2 * float64(l) / fs
			if e := math.Abs(cycles - math.Round(cycles)); e < bestErr-1e-12 {
				best, bestErr = l, e
			}
		}
	}
	return best
}

func (e *Sweep) EndSettings() error {
	e.fs = e.Float("sampling_frequency")
	e.f0 = e.Float("start_frequency")
	e.f1 = e.Float("end_frequency")
	if max(e.f0, e.f1) >= e.fs/2 {
		return e.Finish(fmt.Errorf("sweep up to %.0f Hz above Nyquist at %.0f Hz", max(e.f0, e.f1), e.fs))
	}
	nominal := int(math.Round(e.Float("duration") * e.fs / 1e6))
	if nominal < 2 {
		return e.Finish(fmt.Errorf("sweep duration of %d us is shorter than two samples", e.Int("duration")))
	}
	e.length = sweepLength(nominal, e.f0, e.f1, e.fs)
	e.offset = e.Float("offset")
	e.amplitude = e.Float("amplitude")
	e.table = nil
	if e.Enum("mode") == sweepLookup {
		e.table = make([]uint16, e.length)
		for k := range e.table {
			e.table[k] = e.sample(k)
		}
	}
	e.n = 0
	e.Ctx.Log.Debugf("Sweep iteration of %d samples (nominal %d)", e.length, nominal)
	return e.Finish(nil)
}

func (e *Sweep) sample(k int) uint16 {
	t := float64(k) / e.fs
	span := float64(e.length) / e.fs
	phase := 2 * math.Pi * (e.f0*t + (e.f1-e.f0)*t*t/(2*span))
	return clamp(e.offset + e.amplitude*math.Sin(phase))
}

func (e *Sweep) Reset() error {
	if !e.Ready() {
		return e.Err()
	}
	e.n = 0
	return nil
}

func (e *Sweep) PrepareNextSamples(buf []uint16) {
	for i := range buf {
		if e.table != nil {
			buf[i] = e.table[e.n]
		} else {
			buf[i] = e.sample(e.n)
		}
		e.n++
		if e.n == e.length {
			e.n = 0
		}
	}
}

// Length is the number of samples in one iteration.
func (e *Sweep) Length() int64 {
	return int64(e.length)
}
