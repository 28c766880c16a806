package decode

import (
	"fmt"
	"math"

	"github.com/jrwynneiii/plcmodem/diag"
	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
	"github.com/jrwynneiii/plcmodem/signal"
)

const (
	filterNone = iota
	filterMovingAverage
	filterSinglePole
	filterBiquad
	filterFIR
)

var (
	demodCaptions  = []string{"none", "absolute", "carrier"}
	filterCaptions = []string{"none", "moving_average", "single_pole", "biquad", "fir"}
)

func timingDefs() []setting.Definition {
	return []setting.Definition{
		{Name: "sampling_frequency", Description: "ADC sampling rate in Hz", Kind: setting.KindUint32, Default: setting.Uint32(100000), Range: &setting.Range{Min: 1, Max: 100e6}},
		{Name: "symbol_width", Description: "Symbol duration in microseconds", Kind: setting.KindUint32, Default: setting.Uint32(1000)},
		{Name: "offset", Description: "Idle level of the ADC", Kind: setting.KindUint16, Default: setting.Uint16(2048)},
		{Name: "threshold", Description: "Carrier detection level after filtering", Kind: setting.KindFloat32, Default: setting.Float32(300), Range: &setting.Range{Min: 0, Max: 65535}},
		{Name: "demodulation", Description: "Demodulation applied before filtering", Kind: setting.KindEnum, Default: setting.Enum{Index: int(signal.Absolute), Captions: demodCaptions}},
		{Name: "carrier_frequency", Description: "Carrier reference for carrier demodulation in Hz", Kind: setting.KindUint32, Default: setting.Uint32(0)},
		{Name: "filter", Description: "Smoothing filter", Kind: setting.KindEnum, Default: setting.Enum{Index: filterNone, Captions: filterCaptions}},
		{Name: "cutoff", Description: "Filter cutoff in Hz, 0 for twice the symbol rate", Kind: setting.KindUint32, Default: setting.Uint32(0)},
		{Name: "capture_file", Description: "Write the filtered signal as sample index and value pairs on terminate", Kind: setting.KindString, Default: setting.String("")},
		{Name: "capture_length", Description: "Maximum number of captured samples", Kind: setting.KindUint32, Default: setting.Uint32(1 << 16), Range: &setting.Range{Min: 1, Max: 1 << 24}},
	}
}

type timing struct {
	sampleRate float64
	sps        float64
	offset     float64
	threshold  float64
}

func readTiming(b *plugin.Base) (timing, error) {
	t := timing{
		sampleRate: b.Float("sampling_frequency"),
		offset:     b.Float("offset"),
		threshold:  b.Float("threshold"),
	}
	t.sps = b.Float("symbol_width") * t.sampleRate / 1e6
	if t.sps < 1 {
		return t, fmt.Errorf("symbol width of %d us is shorter than one sample at %d Hz", b.Int("symbol_width"), b.Int("sampling_frequency"))
	}
	if signal.Demodulation(b.Enum("demodulation")) == signal.Carrier {
		fc := b.Float("carrier_frequency")
		if fc <= 0 || fc >= t.sampleRate/2 {
			return t, fmt.Errorf("carrier of %.0f Hz unusable at %.0f Hz sampling", fc, t.sampleRate)
		}
	}
	return t, nil
}

func coefficients(b *plugin.Base, t timing) (signal.Coefficients, error) {
	cutoff := b.Float("cutoff")
	if cutoff == 0 {
		cutoff = 2 * t.sampleRate / t.sps
	}
	switch b.Enum("filter") {
	case filterMovingAverage:
		return signal.MovingAverage(max(1, int(t.sps/8))), nil
	case filterSinglePole:
		return signal.SinglePole(1 - math.Exp(-2*math.Pi*cutoff/t.sampleRate)), nil
	case filterBiquad:
		return signal.LowPassBiquad(t.sampleRate, cutoff, 0)
	case filterFIR:
		return signal.LowPassFIR(t.sampleRate, cutoff, cutoff)
	}
	return signal.Passthrough(), nil
}

// newSignal builds the demodulator and filter for a chunk size. A filter
// longer than the chunk is a programming error and panics in signal.New.
func newSignal(b *plugin.Base, t timing, chunkSize int) (*signal.Signal, error) {
	c, err := coefficients(b, t)
	if err != nil {
		return nil, err
	}
	opts := []signal.Option{signal.WithDemodulation(signal.Demodulation(b.Enum("demodulation")))}
	if signal.Demodulation(b.Enum("demodulation")) == signal.Carrier {
		opts = append(opts, signal.WithCarrier(b.Float("carrier_frequency")/t.sampleRate))
	}
	if b.String("capture_file") != "" {
		opts = append(opts, signal.WithCapture(b.Int("capture_length")))
	}
	b.Ctx.Log.Debugf("Filter order %d for %.2f samples per symbol", c.Order(), t.sps)
	return signal.New(chunkSize, c.A, c.B, opts...)
}

// writeCapture stores what the filter captured during the session.
func writeCapture(b *plugin.Base, sig *signal.Signal) {
	path := b.String("capture_file")
	if path == "" || sig == nil {
		return
	}
	values := sig.Captured()
	index := make([]int, len(values))
	for i := range index {
		index[i] = i
	}
	if err := diag.WritePairs(path, index, values); err != nil {
		b.Ctx.Log.Errorf("Could not write capture: %v", err)
		return
	}
	b.Ctx.Log.Debugf("Wrote %d captured samples to %s", len(values), path)
}
