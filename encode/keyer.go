package encode

import (
	"fmt"
	"math"

	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
)

const (
	magnitudeBits = 20
	magnitude     = 1 << magnitudeBits
)

type mark struct {
	on      bool
	symbols int
}

// keyer turns a list of on/off marks into samples. Symbol k starts at
// sample round(k * samplesPerSymbol) so fractional rates do not drift.
type keyer struct {
	step      int64
	marks     []mark
	repeat    bool
	offset    float64
	amplitude float64
	carrier   float64 // cycles per sample, 0 keys DC

	mi     int
	symEnd int64
	sample int64
	done   bool
}

func newKeyer(sps float64, marks []mark, repeat bool) *keyer {
	k := &keyer{
		step:   int64(math.Round(sps * magnitude)),
		marks:  marks,
		repeat: repeat,
	}
	k.reset()
	return k
}

func (k *keyer) reset() {
	k.mi = 0
	k.sample = 0
	k.symEnd = 0
	k.done = k.length() == 0
	if !k.done {
		k.symEnd = int64(k.marks[0].symbols)
	}
}

func (k *keyer) boundary(symbol int64) int64 {
	return (symbol*k.step + magnitude/2) >> magnitudeBits
}

// length is the number of samples of one pass over the marks.
func (k *keyer) length() int64 {
	total := int64(0)
	for _, m := range k.marks {
		total += int64(m.symbols)
	}
	return k.boundary(total)
}

// finished reports whether a single pass has been fully generated.
func (k *keyer) finished() bool {
	return !k.repeat && k.sample >= k.length()
}

func (k *keyer) next() uint16 {
	for !k.done && k.sample >= k.boundary(k.symEnd) {
		k.mi++
		if k.mi == len(k.marks) {
			if !k.repeat {
				k.done = true
				break
			}
			k.mi = 0
		}
		k.symEnd += int64(k.marks[k.mi].symbols)
	}
	level := k.offset
	if !k.done && k.marks[k.mi].on {
		if k.carrier == 0 {
			level += k.amplitude
		} else {
			level += k.amplitude * math.Sin(2*math.Pi*k.carrier*float64(k.sample))
		}
	}
	k.sample++
	return clamp(level)
}

func (k *keyer) fill(buf []uint16) {
	for i := range buf {
		buf[i] = k.next()
	}
}

func clamp(v float64) uint16 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

func keyingDefs(symbolWidth uint32, carrier uint32) []setting.Definition {
	return []setting.Definition{
		{Name: "sampling_frequency", Description: "DAC sampling rate in Hz", Kind: setting.KindUint32, Default: setting.Uint32(100000), Range: &setting.Range{Min: 1, Max: 100e6}},
		{Name: "symbol_width", Description: "Symbol duration in microseconds", Kind: setting.KindUint32, Default: setting.Uint32(symbolWidth)},
		{Name: "offset", Description: "Idle level of the DAC", Kind: setting.KindUint16, Default: setting.Uint16(2048)},
		{Name: "amplitude", Description: "Carrier amplitude", Kind: setting.KindUint16, Default: setting.Uint16(1000)},
		{Name: "carrier_frequency", Description: "Carrier in Hz, 0 keys the DC level", Kind: setting.KindUint32, Default: setting.Uint32(carrier)},
		{Name: "repeat", Description: "Send the message again after it ends", Kind: setting.KindBool, Default: setting.Bool(false)},
		{Name: "message", Description: "Payload", Kind: setting.KindString, Default: setting.String("")},
	}
}

// keyingParams reads the settings declared by keyingDefs.
func keyingParams(b *plugin.Base) (sps float64, carrier float64, err error) {
	fs := b.Float("sampling_frequency")
	sps = b.Float("symbol_width") * fs / 1e6
	if sps < 1 {
		return 0, 0, fmt.Errorf("symbol width of %d us is shorter than one sample at %d Hz", b.Int("symbol_width"), b.Int("sampling_frequency"))
	}
	fc := b.Float("carrier_frequency")
	if fc >= fs/2 {
		return 0, 0, fmt.Errorf("carrier of %.0f Hz above Nyquist at %.0f Hz", fc, fs)
	}
	return sps, fc / fs, nil
}

func (k *keyer) configure(b *plugin.Base, carrier float64) {
	k.offset = b.Float("offset")
	k.amplitude = b.Float("amplitude")
	k.carrier = carrier
}
