package decode

import (
	"math"

	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
	"github.com/jrwynneiii/plcmodem/signal"
)

const (
	pwmMin = 32
	pwmMax = 255
)

// PWM decodes one byte per pulse: the carrier-present width divided by the
// symbol width.
type PWM struct {
	plugin.Base

	timing timing
	sig    *signal.Signal
	armed  bool
	on     int
	off    int

	Pulses  int
	Dropped int
}

func NewPWM(ctx *plugin.Context) plugin.Decoder {
	defs := timingDefs()
	for i := range defs {
		if defs[i].Name == "symbol_width" {
			defs[i].Default = setting.Uint32(100)
			defs[i].Description = "Pulse width of one value step in microseconds"
		}
	}
	return &PWM{Base: plugin.NewBase(ctx, defs)}
}

func (d *PWM) EndSettings() error {
	t, err := readTiming(&d.Base)
	if err != nil {
		return d.Finish(err)
	}
	if _, err := coefficients(&d.Base, t); err != nil {
		return d.Finish(err)
	}
	d.timing = t
	return d.Finish(nil)
}

func (d *PWM) Initialize(chunkSize int) error {
	if !d.Ready() {
		return d.Err()
	}
	sig, err := newSignal(&d.Base, d.timing, chunkSize)
	if err != nil {
		return err
	}
	d.sig = sig
	d.armed = false
	d.on, d.off = 0, 0
	d.Pulses, d.Dropped = 0, 0
	return nil
}

func (d *PWM) ParseNextSamples(samples []uint16, out []byte) []byte {
	d.sig.ProcessChunk(samples, d.timing.offset)
	for _, v := range d.sig.Output() {
		if v >= d.timing.threshold {
			if d.armed {
				d.on++
			}
			continue
		}
		d.armed = true
		d.off++
		if d.on == 0 {
			continue
		}
		width := int(math.Round(float64(d.on) / d.timing.sps))
		d.on, d.off = 0, 0
		if width < pwmMin || width > pwmMax {
			d.Dropped++
			continue
		}
		d.Pulses++
		out = append(out, byte(width))
	}
	return out
}

func (d *PWM) Terminate() {
	if d.on > 0 {
		d.Ctx.Log.Debugf("Dropping unfinished pulse of %d samples", d.on)
	}
	d.on, d.off = 0, 0
	writeCapture(&d.Base, d.sig)
	d.sig = nil
}
