package decode

import (
	"fmt"
	"math"

	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
	"github.com/jrwynneiii/plcmodem/signal"
)

type ookState int

const (
	ookWaitIdle ookState = iota
	ookSearch
	ookData
)

// OOK decodes on-off keyed frames: a start symbol with carrier, then
// data_per_frame datums of bits_per_datum bits, most significant first.
type OOK struct {
	plugin.Base

	timing    timing
	startRun  int
	bits      int
	perFrame  int
	resync    bool
	margin    int
	clockStep symbolClock

	sig   *signal.Signal
	chunk int
	prev  []float64
	clock symbolClock
	state ookState
	run   int
	datum uint16
	nbits int
	ndata int

	Frames      int
	Corrections int
}

func NewOOK(ctx *plugin.Context) plugin.Decoder {
	defs := append(timingDefs(),
		setting.Definition{Name: "bits_per_datum", Description: "Bits in one datum", Kind: setting.KindUint8, Default: setting.Uint8(8), Range: &setting.Range{Min: 1, Max: 8}},
		setting.Definition{Name: "data_per_frame", Description: "Datums following one start symbol", Kind: setting.KindUint16, Default: setting.Uint16(1), Range: &setting.Range{Min: 1, Max: 4096}},
		setting.Definition{Name: "auto_resynchronization", Description: "Track symbol edges inside a frame", Kind: setting.KindBool, Default: setting.Bool(false)},
		setting.Definition{Name: "resync_margin", Description: "Edge search window in percent of a symbol", Kind: setting.KindUint8, Default: setting.Uint8(25), Range: &setting.Range{Min: 1, Max: 40}},
	)
	return &OOK{Base: plugin.NewBase(ctx, defs)}
}

func (d *OOK) EndSettings() error {
	t, err := readTiming(&d.Base)
	if err != nil {
		return d.Finish(err)
	}
	if _, err := coefficients(&d.Base, t); err != nil {
		return d.Finish(err)
	}
	d.timing = t
	d.clockStep = newSymbolClock(t.sps)
	d.startRun = max(1, int(0.75*t.sps))
	d.bits = d.Int("bits_per_datum")
	d.perFrame = d.Int("data_per_frame")
	d.resync = d.Bool("auto_resynchronization")
	d.margin = int(math.Round(t.sps * d.Float("resync_margin") / 100))
	if d.resync && d.margin < 1 {
		return d.Finish(fmt.Errorf("resync margin below one sample at %.2f samples per symbol", t.sps))
	}
	d.Ctx.Log.Debugf("OOK: %.2f samples per symbol, start after %d samples", t.sps, d.startRun)
	return d.Finish(nil)
}

func (d *OOK) Initialize(chunkSize int) error {
	if !d.Ready() {
		return d.Err()
	}
	if d.resync && d.margin >= chunkSize {
		panic(fmt.Sprintf("decode: resync window of %d samples exceeds chunk size %d", d.margin, chunkSize))
	}
	sig, err := newSignal(&d.Base, d.timing, chunkSize)
	if err != nil {
		return err
	}
	d.sig = sig
	d.chunk = chunkSize
	d.prev = make([]float64, chunkSize)
	d.clock = d.clockStep
	d.state = ookWaitIdle
	d.run = 0
	d.Frames = 0
	d.Corrections = 0
	return nil
}

func (d *OOK) value(y []float64, idx int) float64 {
	if idx < 0 {
		return d.prev[len(d.prev)+idx]
	}
	return y[idx]
}

func (d *OOK) ParseNextSamples(samples []uint16, out []byte) []byte {
	d.sig.ProcessChunk(samples, d.timing.offset)
	y := d.sig.Output()
	n := len(y)
	thr := d.timing.threshold

	for i := 0; i < n; {
		switch d.state {
		case ookWaitIdle:
			for i < n && y[i] >= thr {
				i++
			}
			if i < n {
				d.state = ookSearch
				d.run = 0
			}

		case ookSearch:
			for ; i < n; i++ {
				if y[i] < thr {
					d.run = 0
					continue
				}
				d.run++
				if d.run == d.startRun {
					d.clock.start(i-d.startRun+1, 3)
					d.state = ookData
					d.datum, d.nbits, d.ndata = 0, 0, 0
					i++
					break
				}
			}

		case ookData:
			idx := d.clock.index()
			if idx >= n || (d.resync && idx+d.margin >= n) {
				i = n
				break
			}
			if d.resync {
				d.resynchronize(y, idx)
				idx = d.clock.index()
				if idx >= n {
					i = n
					break
				}
			}
			d.datum <<= 1
			if d.value(y, idx) >= thr {
				d.datum |= 1
			}
			d.nbits++
			d.clock.advance()
			if d.nbits < d.bits {
				continue
			}
			out = append(out, byte(d.datum))
			d.datum, d.nbits = 0, 0
			d.ndata++
			if d.ndata == d.perFrame {
				d.Frames++
				d.state = ookWaitIdle
				i = max(i, idx+1)
			}
		}
	}

	copy(d.prev, y)
	d.clock.rebase(n)
	return out
}

// resynchronize looks for a level change within margin of the predicted
// centre and moves the cursor half a symbol away from it. The search never
// reaches further back than the previous chunk.
func (d *OOK) resynchronize(y []float64, idx int) {
	thr := d.timing.threshold
	above := func(j int) bool { return d.value(y, j) >= thr }
	half := d.timing.sps / 2
	pos := d.clock.position()
	for j := max(idx-d.margin+1, 1-len(d.prev)); j <= idx+d.margin; j++ {
		if above(j) == above(j-1) {
			continue
		}
		var target float64
		if float64(j) <= pos {
			target = float64(j) + half
		} else {
			target = float64(j) - half
		}
		if math.Round(target) < float64(-len(d.prev)) {
			return
		}
		if math.Abs(target-pos) >= 1 {
			d.clock.shift(target - pos)
			d.Corrections++
		}
		return
	}
}

func (d *OOK) Terminate() {
	if d.state == ookData && (d.nbits > 0 || d.ndata > 0) {
		d.Ctx.Log.Debugf("Dropping partial frame: %d datums, %d bits", d.ndata, d.nbits)
	}
	d.state = ookWaitIdle
	d.run = 0
	writeCapture(&d.Base, d.sig)
	d.sig = nil
}
