package scheduler

import (
	"sync/atomic"

	"github.com/jrwynneiii/plcmodem/plugin"
)

// EncoderClient drives a plugin encoder from a TX session.
type EncoderClient struct {
	Encoder plugin.Encoder
	// Sent counts buffers the transport has consumed.
	Sent atomic.Int64
}

func NewEncoderClient(e plugin.Encoder) *EncoderClient {
	return &EncoderClient{Encoder: e}
}

func (c *EncoderClient) Ready() bool { return c.Encoder.Ready() }
func (c *EncoderClient) Err() error  { return c.Encoder.Err() }

func (c *EncoderClient) Begin(int) error {
	c.Sent.Store(0)
	return c.Encoder.Reset()
}

func (c *EncoderClient) End() {}

// Release ends the encoder lifecycle. It must be configured again before
// the next session.
func (c *EncoderClient) Release() { c.Encoder.Release() }

func (c *EncoderClient) FillBuffer(buf []uint16) {
	c.Encoder.PrepareNextSamples(buf)
}

func (c *EncoderClient) BufferSent([]uint16) {
	c.Sent.Add(1)
}

// Done reports whether an encoder with a finite message has produced all of
// it. Endless encoders never finish.
func (c *EncoderClient) Done() bool {
	f, ok := c.Encoder.(Finisher)
	return ok && f.Done()
}

// DecoderClient drives a plugin decoder from an RX session and hands every
// non-empty batch of decoded bytes to Deliver. The slice is reused once
// Deliver returns.
type DecoderClient struct {
	Decoder plugin.Decoder
	Deliver func([]byte)
	// Tap, when set, sees every captured buffer before the decoder.
	Tap Capturer

	out []byte
}

func NewDecoderClient(d plugin.Decoder, deliver func([]byte)) *DecoderClient {
	return &DecoderClient{Decoder: d, Deliver: deliver}
}

func (c *DecoderClient) Ready() bool { return c.Decoder.Ready() }
func (c *DecoderClient) Err() error  { return c.Decoder.Err() }

func (c *DecoderClient) Begin(chunkSize int) error {
	return c.Decoder.Initialize(chunkSize)
}

func (c *DecoderClient) End() {
	c.Decoder.Terminate()
}

func (c *DecoderClient) Release() { c.Decoder.Release() }

func (c *DecoderClient) BufferCaptured(buf []uint16) {
	if c.Tap != nil {
		c.Tap.BufferCaptured(buf)
	}
	c.out = c.Decoder.ParseNextSamples(buf, c.out[:0])
	if len(c.out) > 0 && c.Deliver != nil {
		c.Deliver(c.out)
	}
}
