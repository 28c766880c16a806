package encode

import (
	"errors"

	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
)

// OOK keys frames of a start symbol followed by data_per_frame datums,
// most significant bit first, separated by byte_guard idle symbols.
type OOK struct {
	plugin.Base
	k *keyer
}

func NewOOK(ctx *plugin.Context) plugin.Encoder {
	defs := append(keyingDefs(1000, 0),
		setting.Definition{Name: "bits_per_datum", Description: "Bits in one datum", Kind: setting.KindUint8, Default: setting.Uint8(8), Range: &setting.Range{Min: 1, Max: 8}},
		setting.Definition{Name: "data_per_frame", Description: "Datums following one start symbol", Kind: setting.KindUint16, Default: setting.Uint16(1), Range: &setting.Range{Min: 1, Max: 4096}},
		setting.Definition{Name: "start_guard", Description: "Idle symbols before the first frame", Kind: setting.KindUint16, Default: setting.Uint16(2)},
		setting.Definition{Name: "byte_guard", Description: "Idle symbols after each frame", Kind: setting.KindUint16, Default: setting.Uint16(2), Range: &setting.Range{Min: 1, Max: 65535}},
	)
	return &OOK{Base: plugin.NewBase(ctx, defs)}
}

// ookMarks frames msg. A short last frame is padded with zero datums.
func ookMarks(msg []byte, bits, perFrame, startGuard, byteGuard int) []mark {
	if len(msg) == 0 {
		return nil
	}
	marks := []mark{{symbols: startGuard}}
	mask := byte(0xFF >> (8 - bits))
	for i := 0; i < len(msg); i += perFrame {
		marks = append(marks, mark{on: true, symbols: 1})
		for j := i; j < i+perFrame; j++ {
			var datum byte
			if j < len(msg) {
				datum = msg[j] & mask
			}
			for bit := bits - 1; bit >= 0; bit-- {
				marks = append(marks, mark{on: datum>>bit&1 == 1, symbols: 1})
			}
		}
		marks = append(marks, mark{symbols: byteGuard})
	}
	return marks
}

func (e *OOK) EndSettings() error {
	sps, carrier, err := keyingParams(&e.Base)
	if err != nil {
		return e.Finish(err)
	}
	bits := e.Int("bits_per_datum")
	msg := []byte(e.String("message"))
	for _, b := range msg {
		if int(b)>>bits != 0 {
			return e.Finish(errors.New("message byte does not fit in bits_per_datum"))
		}
	}
	marks := ookMarks(msg, bits, e.Int("data_per_frame"), e.Int("start_guard"), e.Int("byte_guard"))
	e.k = newKeyer(sps, marks, e.Bool("repeat"))
	e.k.configure(&e.Base, carrier)
	e.Ctx.Log.Debugf("OOK: %d bytes, %d samples per pass", len(msg), e.k.length())
	return e.Finish(nil)
}

func (e *OOK) Reset() error {
	if !e.Ready() {
		return e.Err()
	}
	e.k.reset()
	return nil
}

func (e *OOK) PrepareNextSamples(buf []uint16) {
	e.k.fill(buf)
}

// Done reports whether a non-repeating message has been fully generated.
func (e *OOK) Done() bool {
	return e.k != nil && e.k.finished()
}

// Length is the number of samples of one message pass.
func (e *OOK) Length() int64 {
	if e.k == nil {
		return 0
	}
	return e.k.length()
}
