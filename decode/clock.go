package decode

import "math"

const (
	magnitudeBits = 20
	magnitude     = 1 << magnitudeBits
)

// symbolClock tracks the sampling cursor in 1/2^20 sample units so a
// fractional samples-per-symbol ratio accumulates without drift. The cursor
// is relative to the start of the chunk being parsed and may point into a
// later chunk.
type symbolClock struct {
	step int64
	pos  int64
}

func newSymbolClock(samplesPerSymbol float64) symbolClock {
	return symbolClock{step: int64(math.Round(samplesPerSymbol * magnitude))}
}

func (c *symbolClock) samplesPerSymbol() float64 {
	return float64(c.step) / magnitude
}

// start places the cursor halves/2 symbols after sample.
func (c *symbolClock) start(sample int, halves int64) {
	c.pos = int64(sample)<<magnitudeBits + c.step*halves/2
}

// index is the sample nearest to the cursor.
func (c *symbolClock) index() int {
	return int((c.pos + magnitude/2) >> magnitudeBits)
}

// position is the exact cursor in samples.
func (c *symbolClock) position() float64 {
	return float64(c.pos) / magnitude
}

func (c *symbolClock) advance() {
	c.pos += c.step
}

// shift moves the cursor by a signed number of samples.
func (c *symbolClock) shift(samples float64) {
	c.pos += int64(math.Round(samples * magnitude))
}

// rebase moves the origin forward by n samples, once per parsed chunk.
func (c *symbolClock) rebase(n int) {
	c.pos -= int64(n) << magnitudeBits
}
