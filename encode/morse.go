package encode

import (
	"github.com/jrwynneiii/plcmodem/morse"
	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
)

// Morse keys text with a tone carrier. symbol_width is the dot length.
type Morse struct {
	plugin.Base
	k *keyer
}

func NewMorse(ctx *plugin.Context) plugin.Encoder {
	defs := keyingDefs(60000, 1000)
	for i := range defs {
		if defs[i].Name == "sampling_frequency" {
			defs[i].Default = setting.Uint32(8000)
		}
	}
	return &Morse{Base: plugin.NewBase(ctx, defs)}
}

func (e *Morse) EndSettings() error {
	sps, carrier, err := keyingParams(&e.Base)
	if err != nil {
		return e.Finish(err)
	}
	var marks []mark
	for _, m := range morse.Keying(e.String("message")) {
		marks = append(marks, mark{on: m.On, symbols: m.Units})
	}
	if len(marks) > 0 {
		marks = append(marks, mark{symbols: morse.WordGap})
	}
	e.k = newKeyer(sps, marks, e.Bool("repeat"))
	e.k.configure(&e.Base, carrier)
	return e.Finish(nil)
}

func (e *Morse) Reset() error {
	if !e.Ready() {
		return e.Err()
	}
	e.k.reset()
	return nil
}

func (e *Morse) PrepareNextSamples(buf []uint16) {
	e.k.fill(buf)
}

func (e *Morse) Done() bool {
	return e.k != nil && e.k.finished()
}

func (e *Morse) Length() int64 {
	if e.k == nil {
		return 0
	}
	return e.k.length()
}
