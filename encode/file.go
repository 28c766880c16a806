package encode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/jrwynneiii/plcmodem/diag"
	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
)

// File plays back a WAV file or a single-column text file of sample values.
type File struct {
	plugin.Base
	samples []uint16
	loop    bool
	idle    uint16
	n       int
}

func NewFile(ctx *plugin.Context) plugin.Encoder {
	return &File{Base: plugin.NewBase(ctx, []setting.Definition{
		{Name: "path", Description: "WAV or text file", Kind: setting.KindString, Default: setting.String("")},
		{Name: "loop", Description: "Restart at the end of the file", Kind: setting.KindBool, Default: setting.Bool(true)},
		{Name: "offset", Description: "DAC level for WAV silence", Kind: setting.KindUint16, Default: setting.Uint16(2048)},
		{Name: "amplitude", Description: "DAC swing for WAV full scale", Kind: setting.KindUint16, Default: setting.Uint16(2047)},
	})}
}

// rescalePCM maps a WAV sample to [-1, 1). 8 bit PCM is unsigned.
func rescalePCM(v, bitDepth int) float64 {
	if bitDepth == 8 {
		return float64(v-128) / 128
	}
	return float64(v) / 32768
}

func (e *File) loadWAV(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return fmt.Errorf("%s is not a valid WAV file", path)
	}
	depth := int(dec.BitDepth)
	if depth != 8 && depth != 16 {
		return fmt.Errorf("%s: %d bit samples, only 8 and 16 bit PCM are supported", path, depth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	chans := max(1, int(dec.NumChans))
	if chans > 1 {
		e.Ctx.Log.Warnf("%s has %d channels, playing the first", path, chans)
	}
	offset, amp := e.Float("offset"), e.Float("amplitude")
	e.samples = make([]uint16, 0, len(buf.Data)/chans)
	for i := 0; i < len(buf.Data); i += chans {
		e.samples = append(e.samples, clamp(offset+amp*rescalePCM(buf.Data[i], depth)))
	}
	e.Ctx.Log.Debugf("Loaded %d samples at %d Hz from %s", len(e.samples), dec.SampleRate, path)
	return nil
}

func (e *File) loadText(path string) error {
	values, err := diag.ReadColumn(path)
	if err != nil {
		return err
	}
	e.samples = make([]uint16, len(values))
	for i, v := range values {
		e.samples[i] = clamp(v)
	}
	return nil
}

func (e *File) EndSettings() error {
	path := e.String("path")
	if path == "" {
		return e.Finish(errors.New("no file to play"))
	}
	var err error
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		err = e.loadWAV(path)
	} else {
		err = e.loadText(path)
	}
	if err != nil {
		return e.Finish(err)
	}
	if len(e.samples) == 0 {
		return e.Finish(fmt.Errorf("%s holds no samples", path))
	}
	e.loop = e.Bool("loop")
	e.idle = uint16(e.Int("offset"))
	e.n = 0
	return e.Finish(nil)
}

func (e *File) Reset() error {
	if !e.Ready() {
		return e.Err()
	}
	e.n = 0
	return nil
}

func (e *File) PrepareNextSamples(buf []uint16) {
	for i := 0; i < len(buf); {
		if e.n == len(e.samples) {
			if !e.loop {
				for ; i < len(buf); i++ {
					buf[i] = e.idle
				}
				return
			}
			e.n = 0
		}
		c := copy(buf[i:], e.samples[e.n:])
		i += c
		e.n += c
	}
}

func (e *File) Done() bool {
	return !e.loop && e.n == len(e.samples)
}
