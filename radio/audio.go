package radio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
	"github.com/jrwynneiii/plcmodem/config"
	"github.com/jrwynneiii/plcmodem/signal"
)

// Audio uses a sound card as DAC or ADC. Output sessions write one buffer
// per Send; input sessions read continuously into a small queue that
// Capture drains.
type Audio struct {
	Device     string
	SampleRate float64
	BufferSize int
	Level      signal.Level
	Output     bool

	stream   *portaudio.Stream
	frames   []float32
	written  chan error
	captured chan []float32
	stop     chan struct{}
	reader   sync.WaitGroup
	Overruns int
}

func NewAudio(conf config.TransportConf, sampleRate float64, bufSize int, output bool) *Audio {
	return &Audio{
		Device:     conf.Device,
		SampleRate: sampleRate,
		BufferSize: bufSize,
		Level:      signal.Level{Offset: conf.Offset, Scale: conf.Scale},
		Output:     output,
	}
}

// findDevice accepts a 1-based index or a name prefix; empty picks the
// default device for the direction.
func (a *Audio) findDevice() (*portaudio.DeviceInfo, error) {
	if a.Device == "" {
		if a.Output {
			return portaudio.DefaultOutputDevice()
		}
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if i, err := strconv.Atoi(a.Device); err == nil && i > 0 && i <= len(devices) {
		return devices[i-1], nil
	}
	for _, d := range devices {
		if strings.HasPrefix(d.Name, a.Device) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", a.Device)
}

// ListAudioDevices logs the sound cards PortAudio can see.
func ListAudioDevices() error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer portaudio.Terminate()
	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}
	for i, d := range devices {
		log.Infof("Audio device %d: %s (in %d, out %d, %.0f Hz)", i+1, d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
	}
	return nil
}

func (a *Audio) Arm() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing PortAudio: %w", err)
	}
	info, err := a.findDevice()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	var p portaudio.StreamParameters
	if a.Output {
		p = portaudio.HighLatencyParameters(nil, info)
		p.Input.Channels = 0
		p.Output.Channels = 1
	} else {
		p = portaudio.HighLatencyParameters(info, nil)
		p.Input.Channels = 1
		p.Output.Channels = 0
	}
	p.SampleRate = a.SampleRate
	p.FramesPerBuffer = a.BufferSize

	a.frames = make([]float32, a.BufferSize)
	if a.stream, err = portaudio.OpenStream(p, a.frames); err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening %s: %w", info.Name, err)
	}
	if err := a.stream.Start(); err != nil {
		a.stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting %s: %w", info.Name, err)
	}
	log.Infof("Using audio device %s at %.0f Hz", info.Name, a.SampleRate)

	a.written = make(chan error, 1)
	a.stop = make(chan struct{})
	if !a.Output {
		a.captured = make(chan []float32, 4)
		a.reader.Add(1)
		go a.read()
	}
	return nil
}

// read runs until Disarm, dropping blocks when Capture falls behind.
func (a *Audio) read() {
	defer a.reader.Done()
	for {
		err := a.stream.Read()
		select {
		case <-a.stop:
			return
		default:
		}
		if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			log.Warnf("Audio read failed: %v", err)
			continue
		}
		block := append([]float32(nil), a.frames...)
		select {
		case a.captured <- block:
		default:
			a.Overruns++
			log.Debugf("Dropping audio block, %d overruns", a.Overruns)
		}
	}
}

func (a *Audio) Send(ctx context.Context, buf []uint16) error {
	for i, v := range buf[:min(len(buf), len(a.frames))] {
		a.frames[i] = float32(a.Level.Float(v))
	}
	go func() {
		a.written <- a.stream.Write()
	}()
	return nil
}

func (a *Audio) Wait(ctx context.Context) error {
	select {
	case err := <-a.written:
		if errors.Is(err, portaudio.OutputUnderflowed) {
			log.Debugf("Audio output underflowed")
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Audio) Capture(ctx context.Context, buf []uint16) error {
	select {
	case block := <-a.captured:
		for i := range buf {
			if i < len(block) {
				buf[i] = a.Level.Code(float64(block[i]))
			} else {
				buf[i] = uint16(a.Level.Offset)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Audio) Disarm() error {
	if a.stream == nil {
		return nil
	}
	close(a.stop)
	err := a.stream.Abort()
	a.reader.Wait()
	if cerr := a.stream.Close(); err == nil {
		err = cerr
	}
	a.stream = nil
	portaudio.Terminate()
	return err
}
