package decode

import (
	"math"
	"strings"

	"github.com/jrwynneiii/plcmodem/morse"
	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
	"github.com/jrwynneiii/plcmodem/signal"
)

// Morse decodes keyed text using fixed thresholds derived from the dot
// length given as symbol_width.
type Morse struct {
	plugin.Base

	timing  timing
	noise   int
	dash    int
	charGap int
	wordGap int

	sig      *signal.Signal
	on       int
	off      int
	elements strings.Builder
	inWord   bool
}

func NewMorse(ctx *plugin.Context) plugin.Decoder {
	defs := timingDefs()
	for i := range defs {
		switch defs[i].Name {
		case "sampling_frequency":
			defs[i].Default = setting.Uint32(8000)
		case "symbol_width":
			defs[i].Default = setting.Uint32(60000)
			defs[i].Description = "Dot length in microseconds"
		case "filter":
			defs[i].Default = setting.Enum{Index: filterSinglePole, Captions: filterCaptions}
		}
	}
	return &Morse{Base: plugin.NewBase(ctx, defs)}
}

func (d *Morse) EndSettings() error {
	t, err := readTiming(&d.Base)
	if err != nil {
		return d.Finish(err)
	}
	if _, err := coefficients(&d.Base, t); err != nil {
		return d.Finish(err)
	}
	d.timing = t
	d.noise = int(math.Round(t.sps / 2))
	d.dash = int(math.Round(2 * t.sps))
	d.charGap = int(math.Round(2 * t.sps))
	d.wordGap = int(math.Round(5 * t.sps))
	d.Ctx.Log.Debugf("Morse thresholds: noise %d dash %d char %d word %d", d.noise, d.dash, d.charGap, d.wordGap)
	return d.Finish(nil)
}

func (d *Morse) Initialize(chunkSize int) error {
	if !d.Ready() {
		return d.Err()
	}
	sig, err := newSignal(&d.Base, d.timing, chunkSize)
	if err != nil {
		return err
	}
	d.sig = sig
	d.on, d.off = 0, 0
	d.elements.Reset()
	d.inWord = false
	return nil
}

func (d *Morse) ParseNextSamples(samples []uint16, out []byte) []byte {
	d.sig.ProcessChunk(samples, d.timing.offset)
	for _, v := range d.sig.Output() {
		if v >= d.timing.threshold {
			d.on++
			d.off = 0
			continue
		}
		if d.on > 0 {
			if d.on >= d.noise {
				if d.on >= d.dash {
					d.elements.WriteByte('-')
				} else {
					d.elements.WriteByte('.')
				}
			}
			d.on = 0
		}
		d.off++
		switch {
		case d.off == d.charGap && d.elements.Len() > 0:
			out = append(out, string(morse.Letter(d.elements.String()))...)
			d.elements.Reset()
			d.inWord = true
		case d.off == d.wordGap && d.inWord:
			out = append(out, ' ')
			d.inWord = false
		}
	}
	return out
}

func (d *Morse) Terminate() {
	if d.elements.Len() > 0 {
		d.Ctx.Log.Debugf("Dropping unfinished character %q", d.elements.String())
	}
	d.elements.Reset()
	d.on, d.off = 0, 0
	writeCapture(&d.Base, d.sig)
	d.sig = nil
}
