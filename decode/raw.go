package decode

import (
	"math"

	"github.com/jrwynneiii/plcmodem/diag"
	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
)

// Raw performs no demodulation. It keeps level statistics and can dump the
// received samples to a text file on Terminate.
type Raw struct {
	plugin.Base

	dumpPath string
	limit    int
	dump     []uint16

	Samples int64
	Min     uint16
	Max     uint16
	sum     float64
}

func NewRaw(ctx *plugin.Context) plugin.Decoder {
	return &Raw{Base: plugin.NewBase(ctx, []setting.Definition{
		{Name: "dump_file", Description: "Write received samples to this file on terminate", Kind: setting.KindString, Default: setting.String("")},
		{Name: "dump_limit", Description: "Maximum number of dumped samples", Kind: setting.KindUint32, Default: setting.Uint32(1 << 20)},
		{Name: "on_terminate", Description: "Called after the session ends", Kind: setting.KindCallback, Default: setting.Callback(func() error { return nil })},
	})}
}

func (d *Raw) EndSettings() error {
	d.dumpPath = d.String("dump_file")
	d.limit = d.Int("dump_limit")
	return d.Finish(nil)
}

func (d *Raw) Initialize(chunkSize int) error {
	if !d.Ready() {
		return d.Err()
	}
	d.Samples, d.sum = 0, 0
	d.Min, d.Max = math.MaxUint16, 0
	d.dump = d.dump[:0]
	return nil
}

func (d *Raw) ParseNextSamples(samples []uint16, out []byte) []byte {
	for _, s := range samples {
		d.Min = min(d.Min, s)
		d.Max = max(d.Max, s)
		d.sum += float64(s)
	}
	d.Samples += int64(len(samples))
	if d.dumpPath != "" && len(d.dump) < d.limit {
		d.dump = append(d.dump, samples[:min(len(samples), d.limit-len(d.dump))]...)
	}
	return out
}

func (d *Raw) Mean() float64 {
	if d.Samples == 0 {
		return 0
	}
	return d.sum / float64(d.Samples)
}

func (d *Raw) Terminate() {
	d.Ctx.Log.Infof("Received %d samples, min %d max %d mean %.1f", d.Samples, d.Min, d.Max, d.Mean())
	if d.dumpPath != "" {
		if err := diag.WriteColumn(d.dumpPath, d.dump); err != nil {
			d.Ctx.Log.Errorf("Could not write sample dump: %v", err)
		}
	}
	if cb := d.Callback("on_terminate"); cb != nil {
		if err := cb(); err != nil {
			d.Ctx.Log.Errorf("Terminate callback failed: %v", err)
		}
	}
}
