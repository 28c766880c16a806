package analyzer

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/jrwynneiii/plcmodem/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var level = signal.Level{Offset: 2048, Scale: 2047}

func feed(a *Analyzer, buffers, size int, sample func(i int) float64) {
	buf := make([]uint16, size)
	for b := range buffers {
		for i := range buf {
			buf[i] = level.Code(sample(b*size + i))
		}
		a.BufferCaptured(buf)
	}
}

func TestSNRWithNoise(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	a := New(level, 8000, false, 0)
	feed(a, 50, 1024, func(i int) float64 {
		s := 0.5
		if i%2 == 1 {
			s = -0.5
		}
		return s + 0.05*rng.NormFloat64()
	})
	stats := a.Stats()
	assert.Equal(t, 50, stats.Buffers)
	assert.InDelta(t, 20, stats.CurrentSNR, 1.5)
	assert.GreaterOrEqual(t, stats.PeakSNR, stats.CurrentSNR)
	assert.InDelta(t, 2048, stats.Mean, 20)
}

func TestSNRPureNoise(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	a := New(level, 8000, false, 0)
	feed(a, 50, 1024, func(int) float64 { return 0.05 * rng.NormFloat64() })
	assert.Less(t, a.Stats().CurrentSNR, 3.0)
}

func TestSNRIdleLine(t *testing.T) {
	a := New(level, 8000, false, 0)
	feed(a, 2, 64, func(int) float64 { return 0 })
	stats := a.Stats()
	assert.Zero(t, stats.CurrentSNR)
	assert.Equal(t, uint16(2048), stats.Min)
	assert.Equal(t, uint16(2048), stats.Max)
	assert.False(t, math.IsNaN(a.snr.Signal))
}

func TestSpectrumPeak(t *testing.T) {
	a := New(level, 8000, true, 256)
	feed(a, 1, 512, func(i int) float64 {
		return 0.5 * math.Sin(2*math.Pi*1000*float64(i)/8000)
	})
	a.Wait()

	spectrum := a.Spectrum()
	require.Len(t, spectrum, 256)
	assert.InDelta(t, 1000, a.PeakFrequency(), 1e-6)
	// both sidebands of a real tone carry the same power
	assert.InDelta(t, spectrum[128+32], spectrum[128-32], 1e-6)
	assert.Greater(t, spectrum[128+32], spectrum[128+10]+40)
}

func TestSpectrumDisabled(t *testing.T) {
	a := New(level, 8000, false, 256)
	feed(a, 3, 256, func(i int) float64 { return math.Sin(float64(i)) })
	a.Wait()
	assert.Empty(t, a.Spectrum())

	a.Reset()
	assert.Zero(t, a.Stats().Buffers)
}
