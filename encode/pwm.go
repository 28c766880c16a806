package encode

import (
	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
)

const (
	pwmMin = 32
	pwmMax = 255
)

// PWM sends each byte as a pulse of value * symbol_width.
type PWM struct {
	plugin.Base
	k       *keyer
	Skipped int
}

func NewPWM(ctx *plugin.Context) plugin.Encoder {
	defs := append(keyingDefs(100, 0),
		setting.Definition{Name: "gap", Description: "Idle symbols after each pulse", Kind: setting.KindUint16, Default: setting.Uint16(8), Range: &setting.Range{Min: 1, Max: 65535}},
		setting.Definition{Name: "start_guard", Description: "Idle symbols before the first pulse", Kind: setting.KindUint16, Default: setting.Uint16(8), Range: &setting.Range{Min: 1, Max: 65535}},
	)
	return &PWM{Base: plugin.NewBase(ctx, defs)}
}

func (e *PWM) EndSettings() error {
	sps, carrier, err := keyingParams(&e.Base)
	if err != nil {
		return e.Finish(err)
	}
	msg := []byte(e.String("message"))
	gap := e.Int("gap")
	var marks []mark
	e.Skipped = 0
	for _, b := range msg {
		if b < pwmMin {
			e.Skipped++
			continue
		}
		if marks == nil {
			marks = append(marks, mark{symbols: e.Int("start_guard")})
		}
		marks = append(marks, mark{on: true, symbols: int(b)}, mark{symbols: gap})
	}
	if e.Skipped > 0 {
		e.Ctx.Log.Warnf("Skipping %d bytes below %d", e.Skipped, pwmMin)
	}
	e.k = newKeyer(sps, marks, e.Bool("repeat"))
	e.k.configure(&e.Base, carrier)
	return e.Finish(nil)
}

func (e *PWM) Reset() error {
	if !e.Ready() {
		return e.Err()
	}
	e.k.reset()
	return nil
}

func (e *PWM) PrepareNextSamples(buf []uint16) {
	e.k.fill(buf)
}

func (e *PWM) Done() bool {
	return e.k != nil && e.k.finished()
}

func (e *PWM) Length() int64 {
	if e.k == nil {
		return 0
	}
	return e.k.length()
}
