package encode

import (
	"math"

	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
)

const (
	shapeConstant = iota
	shapeRamp
	shapeTriangle
	shapeSquare
)

var shapeCaptions = []string{"constant", "ramp", "triangle", "square"}

// Wave produces test patterns around offset.
type Wave struct {
	plugin.Base
	shape     int
	period    int64
	offset    float64
	amplitude float64
	n         int64
}

func NewWave(ctx *plugin.Context) plugin.Encoder {
	return &Wave{Base: plugin.NewBase(ctx, []setting.Definition{
		{Name: "shape", Description: "Waveform shape", Kind: setting.KindEnum, Default: setting.Enum{Index: shapeSquare, Captions: shapeCaptions}},
		{Name: "period", Description: "Period in samples", Kind: setting.KindUint32, Default: setting.Uint32(100), Range: &setting.Range{Min: 2, Max: math.MaxUint32}},
		{Name: "offset", Description: "Idle level of the DAC", Kind: setting.KindUint16, Default: setting.Uint16(2048)},
		{Name: "amplitude", Description: "Peak deviation from offset", Kind: setting.KindUint16, Default: setting.Uint16(1000)},
	})}
}

func (e *Wave) EndSettings() error {
	e.shape = e.Enum("shape")
	e.period = int64(e.Int("period"))
	e.offset = e.Float("offset")
	e.amplitude = e.Float("amplitude")
	return e.Finish(nil)
}

func (e *Wave) Reset() error {
	if !e.Ready() {
		return e.Err()
	}
	e.n = 0
	return nil
}

func (e *Wave) level(n int64) float64 {
	p := float64(n%e.period) / float64(e.period)
	switch e.shape {
	case shapeRamp:
		return 2*p - 1
	case shapeTriangle:
		return 4*math.Abs(p-0.5) - 1
	case shapeSquare:
		if p < 0.5 {
			return 1
		}
		return -1
	}
	return 1
}

func (e *Wave) PrepareNextSamples(buf []uint16) {
	for i := range buf {
		buf[i] = clamp(e.offset + e.amplitude*e.level(e.n))
		e.n++
	}
}
