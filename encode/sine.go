package encode

import (
	"fmt"
	"math"

	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
)

type Sine struct {
	plugin.Base
	step      float64
	start     float64
	phase     float64
	offset    float64
	amplitude float64
}

func NewSine(ctx *plugin.Context) plugin.Encoder {
	return &Sine{Base: plugin.NewBase(ctx, []setting.Definition{
		{Name: "sampling_frequency", Description: "DAC sampling rate in Hz", Kind: setting.KindUint32, Default: setting.Uint32(100000), Range: &setting.Range{Min: 1, Max: 100e6}},
		{Name: "frequency", Description: "Tone frequency in Hz", Kind: setting.KindFloat64, Default: setting.Float64(1000), Range: &setting.Range{Min: 0, Max: 50e6}},
		{Name: "phase", Description: "Initial phase in degrees", Kind: setting.KindFloat32, Default: setting.Float32(0)},
		{Name: "offset", Description: "Idle level of the DAC", Kind: setting.KindUint16, Default: setting.Uint16(2048)},
		{Name: "amplitude", Description: "Peak deviation from offset", Kind: setting.KindUint16, Default: setting.Uint16(1000)},
	})}
}

func (e *Sine) EndSettings() error {
	fs := e.Float("sampling_frequency")
	f := e.Float("frequency")
	if f >= fs/2 {
		return e.Finish(fmt.Errorf("tone of %.1f Hz above Nyquist at %.0f Hz", f, fs))
	}
	e.step = 2 * math.Pi * f / fs
	e.start = math.Mod(e.Float("phase")*math.Pi/180, 2*math.Pi)
	e.offset = e.Float("offset")
	e.amplitude = e.Float("amplitude")
	e.phase = e.start
	return e.Finish(nil)
}

func (e *Sine) Reset() error {
	if !e.Ready() {
		return e.Err()
	}
	e.phase = e.start
	return nil
}

func (e *Sine) PrepareNextSamples(buf []uint16) {
	for i := range buf {
		buf[i] = clamp(e.offset + e.amplitude*math.Sin(e.phase))
		e.phase += e.step
		if e.phase >= 2*math.Pi {
			e.phase -= 2 * math.Pi
		}
	}
}
