package decode

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrwynneiii/plcmodem/diag"
	"github.com/jrwynneiii/plcmodem/encode"
	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/setting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type sized interface {
	Length() int64
}

func configure(t require.TestingT, p plugin.Plugin, values map[string]setting.Value) {
	p.BeginSettings()
	for k, v := range values {
		require.NoError(t, p.SetSetting(k, v))
	}
	require.NoError(t, p.EndSettings())
}

// transmit renders the whole message plus some idle tail.
func transmit(t require.TestingT, e plugin.Encoder, values map[string]setting.Value, tail int) []uint16 {
	configure(t, e, values)
	require.NoError(t, e.Reset())
	out := make([]uint16, int(e.(sized).Length())+tail)
	e.PrepareNextSamples(out)
	return out
}

// receive feeds samples in chunks, padding the last one with idle level.
func receive(t require.TestingT, d plugin.Decoder, samples []uint16, chunk int) []byte {
	require.NoError(t, d.Initialize(chunk))
	var out []byte
	buf := make([]uint16, chunk)
	for i := 0; i < len(samples); i += chunk {
		n := copy(buf, samples[i:])
		for j := n; j < chunk; j++ {
			buf[j] = 2048
		}
		out = d.ParseNextSamples(buf, out)
	}
	d.Terminate()
	return out
}

func TestOOKSingleByte(t *testing.T) {
	samples := transmit(t, encode.NewOOK(plugin.Discard("tx")), map[string]setting.Value{
		"message": setting.String("\xA5"),
	}, 200)

	d := NewOOK(plugin.Discard("rx"))
	configure(t, d, nil)
	assert.Equal(t, []byte{0xA5}, receive(t, d, samples, 64))
	assert.Equal(t, 1, d.(*OOK).Frames)
}

func TestOOKTwoCopiesWithGuards(t *testing.T) {
	e := encode.NewOOK(plugin.Discard("tx"))
	configure(t, e, map[string]setting.Value{
		"message":     setting.String("\xA5"),
		"start_guard": setting.Uint16(32),
		"byte_guard":  setting.Uint16(32),
		"repeat":      setting.Bool(true),
	})
	require.NoError(t, e.Reset())
	samples := make([]uint16, 2*e.(sized).Length())
	e.PrepareNextSamples(samples)

	d := NewOOK(plugin.Discard("rx"))
	configure(t, d, nil)
	assert.Equal(t, []byte{0xA5, 0xA5}, receive(t, d, samples, 100))
}

func TestOOKMessageSizes(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = byte(i * 7)
	}
	cases := map[string]struct {
		msg   []byte
		chunk int
	}{
		"empty":             {nil, 64},
		"one byte":          {[]byte{0x42}, 64},
		"spans chunks":      {[]byte("hello"), 37},
		"longer than chunk": {long, 256},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			samples := transmit(t, encode.NewOOK(plugin.Discard("tx")), map[string]setting.Value{
				"message":      setting.String(string(c.msg)),
				"symbol_width": setting.Uint32(200),
			}, 100)
			d := NewOOK(plugin.Discard("rx"))
			configure(t, d, map[string]setting.Value{"symbol_width": setting.Uint32(200)})
			got := receive(t, d, samples, c.chunk)
			if len(c.msg) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, c.msg, got)
		})
	}
}

// Any chunk size from one sample to several symbols gives the same bytes.
func TestOOKRoundTripAnyChunking(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		bits := rapid.IntRange(1, 8).Draw(rt, "bits")
		perFrame := rapid.IntRange(1, 3).Draw(rt, "perFrame")
		width := rapid.Uint32Range(50, 1500).Draw(rt, "width")
		msg := rapid.SliceOfN(rapid.ByteRange(0, byte(0xFF>>(8-bits))), 0, 12).Draw(rt, "msg")
		sps := int(width) / 10
		chunk := rapid.IntRange(1, 4*sps+1).Draw(rt, "chunk")

		common := map[string]setting.Value{
			"symbol_width":   setting.Uint32(width),
			"bits_per_datum": setting.Uint8(bits),
			"data_per_frame": setting.Uint16(perFrame),
		}
		tx := map[string]setting.Value{
			"message":     setting.String(string(msg)),
			"start_guard": setting.Uint16(rapid.IntRange(1, 4).Draw(rt, "startGuard")),
			"byte_guard":  setting.Uint16(rapid.IntRange(1, 4).Draw(rt, "byteGuard")),
		}
		for k, v := range common {
			tx[k] = v
		}
		samples := transmit(rt, encode.NewOOK(plugin.Discard("tx")), tx, sps)

		d := NewOOK(plugin.Discard("rx"))
		configure(rt, d, common)
		got := receive(rt, d, samples, chunk)

		want := append([]byte{}, msg...)
		for len(want)%perFrame != 0 {
			want = append(want, 0)
		}
		if len(want) == 0 {
			want = nil
		}
		if len(got) == 0 {
			got = nil
		}
		if !assert.Equal(rt, want, got) {
			rt.FailNow()
		}
	})
}

// Edge tracking reads only the current and the previous chunk, whatever the
// chunk size above the search window.
func TestOOKResyncChunksAboveWindow(t *testing.T) {
	samples := transmit(t, encode.NewOOK(plugin.Discard("tx")), map[string]setting.Value{
		"message": setting.String("\xA5\x5A"),
	}, 200)
	for chunk := 26; chunk <= 400; chunk++ {
		d := NewOOK(plugin.Discard("rx"))
		configure(t, d, map[string]setting.Value{"auto_resynchronization": setting.Bool(true)})
		var got []byte
		require.NotPanics(t, func() { got = receive(t, d, samples, chunk) }, "chunk %d", chunk)
		assert.Equal(t, []byte{0xA5, 0x5A}, got, "chunk %d", chunk)
	}
}

func TestOOKResyncAnyChunking(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		width := rapid.Uint32Range(200, 2000).Draw(rt, "width")
		margin := rapid.IntRange(1, 40).Draw(rt, "margin")
		msg := rapid.SliceOfN(rapid.Byte(), 1, 8).Draw(rt, "msg")
		sps := int(width) / 10
		window := int(math.Round(float64(width) / 10 * float64(margin) / 100))
		chunk := rapid.IntRange(window+2, 4*sps).Draw(rt, "chunk")

		samples := transmit(rt, encode.NewOOK(plugin.Discard("tx")), map[string]setting.Value{
			"message":      setting.String(string(msg)),
			"symbol_width": setting.Uint32(width),
		}, sps)
		d := NewOOK(plugin.Discard("rx"))
		configure(rt, d, map[string]setting.Value{
			"symbol_width":           setting.Uint32(width),
			"auto_resynchronization": setting.Bool(true),
			"resync_margin":          setting.Uint8(uint8(margin)),
		})
		if !assert.Equal(rt, msg, receive(rt, d, samples, chunk)) {
			rt.FailNow()
		}
	})
}

func TestOOKCarrierWithFIR(t *testing.T) {
	samples := transmit(t, encode.NewOOK(plugin.Discard("tx")), map[string]setting.Value{
		"message":           setting.String("PLC"),
		"carrier_frequency": setting.Uint32(10000),
		"start_guard":       setting.Uint16(4),
	}, 1000)

	d := NewOOK(plugin.Discard("rx"))
	configure(t, d, map[string]setting.Value{"filter": setting.String("fir")})
	assert.Equal(t, []byte("PLC"), receive(t, d, samples, 512))
}

func TestOOKResynchronization(t *testing.T) {
	msg := string([]byte{0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55})
	samples := transmit(t, encode.NewOOK(plugin.Discard("tx")), map[string]setting.Value{
		"message":        setting.String(msg),
		"data_per_frame": setting.Uint16(8),
	}, 500)

	// The receiver clock runs 1% slow.
	rx := map[string]setting.Value{
		"symbol_width":   setting.Uint32(1010),
		"data_per_frame": setting.Uint16(8),
	}
	plain := NewOOK(plugin.Discard("rx"))
	configure(t, plain, rx)
	assert.NotEqual(t, []byte(msg), receive(t, plain, samples, 256))

	rx["auto_resynchronization"] = setting.Bool(true)
	tracked := NewOOK(plugin.Discard("rx"))
	configure(t, tracked, rx)
	assert.Equal(t, []byte(msg), receive(t, tracked, samples, 256))
	assert.Positive(t, tracked.(*OOK).Corrections)
}

func TestOOKResyncWindowExceedsChunk(t *testing.T) {
	d := NewOOK(plugin.Discard("rx"))
	configure(t, d, map[string]setting.Value{"auto_resynchronization": setting.Bool(true)})
	assert.Panics(t, func() { _ = d.Initialize(10) })
}

func TestSymbolShorterThanSample(t *testing.T) {
	for _, f := range []func(*plugin.Context) plugin.Decoder{NewOOK, NewPWM, NewMorse} {
		d := f(plugin.Discard("rx"))
		d.BeginSettings()
		require.NoError(t, d.SetSetting("sampling_frequency", setting.Uint32(100000)))
		require.NoError(t, d.SetSetting("symbol_width", setting.Uint32(5)))
		assert.Error(t, d.EndSettings())
		assert.False(t, d.Ready())
		assert.Error(t, d.Initialize(64))
	}
}

func TestCarrierDemodulationNeedsCarrier(t *testing.T) {
	d := NewOOK(plugin.Discard("rx"))
	d.BeginSettings()
	require.NoError(t, d.SetSetting("demodulation", setting.String("carrier")))
	assert.Error(t, d.EndSettings())
	assert.False(t, d.Ready())
}

func TestPWMRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		width := rapid.Uint32Range(30, 200).Draw(rt, "width")
		msg := rapid.SliceOfN(rapid.ByteRange(pwmMin, pwmMax), 0, 6).Draw(rt, "msg")
		chunk := rapid.IntRange(1, 4*int(width)/10).Draw(rt, "chunk")

		samples := transmit(rt, encode.NewPWM(plugin.Discard("tx")), map[string]setting.Value{
			"message":      setting.String(string(msg)),
			"symbol_width": setting.Uint32(width),
		}, 10)
		d := NewPWM(plugin.Discard("rx"))
		configure(rt, d, map[string]setting.Value{"symbol_width": setting.Uint32(width)})
		got := receive(rt, d, samples, chunk)

		if len(msg) == 0 {
			msg = nil
		}
		if !assert.Equal(rt, msg, got) {
			rt.FailNow()
		}
		assert.Zero(rt, d.(*PWM).Dropped)
	})
}

func TestPWMDropsOutOfRangePulses(t *testing.T) {
	// 10 samples per step, pulses of 5 and 300 steps
	var samples []uint16
	for _, steps := range []int{5, 300, 40} {
		for i := 0; i < 50; i++ {
			samples = append(samples, 2048)
		}
		for i := 0; i < steps*10; i++ {
			samples = append(samples, 3048)
		}
	}
	samples = append(samples, 2048)

	d := NewPWM(plugin.Discard("rx"))
	configure(t, d, nil)
	assert.Equal(t, []byte{40}, receive(t, d, samples, 128))
	assert.Equal(t, 2, d.(*PWM).Dropped)
	assert.Equal(t, 1, d.(*PWM).Pulses)
}

func TestPWMIgnoresCarrierAtStart(t *testing.T) {
	var samples []uint16
	for i := 0; i < 500; i++ {
		samples = append(samples, 3048)
	}
	for i := 0; i < 20; i++ {
		samples = append(samples, 2048)
	}
	d := NewPWM(plugin.Discard("rx"))
	configure(t, d, nil)
	assert.Empty(t, receive(t, d, samples, 64))
	assert.Zero(t, d.(*PWM).Dropped)
}

func TestMorseRoundTrip(t *testing.T) {
	samples := transmit(t, encode.NewMorse(plugin.Discard("tx")), map[string]setting.Value{
		"message": setting.String("SOS 73"),
	}, 4000)
	d := NewMorse(plugin.Discard("rx"))
	configure(t, d, nil)
	assert.Equal(t, "SOS 73 ", string(receive(t, d, samples, 256)))
}

func TestMorseAnyChunking(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		words := rapid.SliceOfN(rapid.SampledFrom([]string{"SOS", "73", "CQ", "E", "PLC"}), 1, 3).Draw(rt, "words")
		msg := strings.Join(words, " ")
		// 5 ms dots at 8 kHz
		sps := 40
		chunk := rapid.IntRange(1, 4*sps).Draw(rt, "chunk")

		samples := transmit(rt, encode.NewMorse(plugin.Discard("tx")), map[string]setting.Value{
			"message":      setting.String(msg),
			"symbol_width": setting.Uint32(5000),
		}, 8*sps)
		d := NewMorse(plugin.Discard("rx"))
		configure(rt, d, map[string]setting.Value{"symbol_width": setting.Uint32(5000)})
		if !assert.Equal(rt, msg+" ", string(receive(rt, d, samples, chunk))) {
			rt.FailNow()
		}
	})
}

// key renders dot-length marks at 40 samples per dot, no carrier.
func key(marks ...int) []uint16 {
	var out []uint16
	for i, units := range marks {
		level := uint16(2048)
		if i%2 == 0 {
			level = 3048
		}
		for range units * 40 {
			out = append(out, level)
		}
	}
	return out
}

func TestMorseUnknownCharacter(t *testing.T) {
	// eight dots, then a word gap
	samples := key(1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 7)
	d := NewMorse(plugin.Discard("rx"))
	configure(t, d, map[string]setting.Value{"symbol_width": setting.Uint32(5000)})
	assert.Equal(t, "? ", string(receive(t, d, samples, 64)))
}

func TestCaptureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.txt")
	d := NewMorse(plugin.Discard("rx"))
	configure(t, d, map[string]setting.Value{
		"symbol_width":   setting.Uint32(5000),
		"filter":         setting.String("none"),
		"capture_file":   setting.String(path),
		"capture_length": setting.Uint32(100),
	})
	samples := key(1, 1, 1, 7)
	receive(t, d, samples, 64)

	captured, err := diag.ReadColumn(path)
	require.NoError(t, err)
	require.Len(t, captured, 100)
	assert.Equal(t, 1000.0, captured[0])
	assert.Equal(t, 1000.0, captured[39])
	assert.Equal(t, 0.0, captured[40])
	assert.Equal(t, 1000.0, captured[80])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "0 1000", lines[0])
	assert.Equal(t, "99 1000", lines[99])
}

func TestRawStatisticsAndDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.txt")
	called := false
	d := NewRaw(plugin.Discard("raw"))
	configure(t, d, map[string]setting.Value{
		"dump_file":    setting.String(path),
		"dump_limit":   setting.Uint32(4),
		"on_terminate": setting.Callback(func() error { called = true; return nil }),
	})
	require.NoError(t, d.Initialize(3))
	out := d.ParseNextSamples([]uint16{10, 30, 20}, nil)
	out = d.ParseNextSamples([]uint16{40, 0, 50}, out)
	assert.Empty(t, out)

	raw := d.(*Raw)
	assert.Equal(t, int64(6), raw.Samples)
	assert.Equal(t, uint16(0), raw.Min)
	assert.Equal(t, uint16(50), raw.Max)
	assert.InDelta(t, 25.0, raw.Mean(), 1e-9)

	d.Terminate()
	assert.True(t, called)
	dumped, err := diag.ReadColumn(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 30, 20, 40}, dumped)
}

func TestSymbolClockDrift(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sps := rapid.Float64Range(1, 1000).Draw(rt, "sps")
		start := rapid.IntRange(-100, 100).Draw(rt, "start")
		steps := rapid.IntRange(1, 500).Draw(rt, "steps")

		c := newSymbolClock(sps)
		c.start(start, 1)
		origin := 0
		for k := 0; k < steps; k++ {
			want := float64(start) + (0.5+float64(k))*sps
			got := c.index() + origin
			if !assert.InDelta(rt, want, float64(got), 1, "symbol %d", k) {
				rt.FailNow()
			}
			c.advance()
			if n := rapid.IntRange(0, 3).Draw(rt, "rebase"); n > 0 {
				c.rebase(n * 64)
				origin += n * 64
			}
		}
	})
}

func TestRegister(t *testing.T) {
	r := plugin.NewRegistry()
	require.NoError(t, Register(r))
	var names []string
	for _, d := range r.List(plugin.KindDecoder) {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"morse", "ook", "pwm", "raw"}, names)

	d, err := r.NewDecoder("ook", nil)
	require.NoError(t, err)
	assert.False(t, d.Ready())
}

func TestEverySettingIsDescribed(t *testing.T) {
	r := plugin.NewRegistry()
	require.NoError(t, Register(r))
	for _, d := range r.List(plugin.KindDecoder) {
		dec, err := r.NewDecoder(d.Name, plugin.Discard(d.Name))
		require.NoError(t, err)
		for _, s := range dec.Settings() {
			assert.NotEmpty(t, s.Description, "%s.%s", d.Name, s.Name)
		}
	}
}
