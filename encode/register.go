package encode

import "github.com/jrwynneiii/plcmodem/plugin"

const version = "1.0.0"

var descriptors = []plugin.Descriptor{
	{Name: "wave", Description: "Constant, ramp, triangle and square test patterns", NewEncoder: NewWave},
	{Name: "sine", Description: "Continuous sine tone", NewEncoder: NewSine},
	{Name: "sweep", Description: "Repeating linear chirp", NewEncoder: NewSweep},
	{Name: "file", Description: "WAV or text file playback", NewEncoder: NewFile},
	{Name: "ook", Description: "On-off keying with start symbol framing", NewEncoder: NewOOK},
	{Name: "pwm", Description: "One byte per pulse width", NewEncoder: NewPWM},
	{Name: "morse", Description: "Morse code text", NewEncoder: NewMorse},
}

func Register(r *plugin.Registry) error {
	for _, d := range descriptors {
		d.Kind = plugin.KindEncoder
		d.Version = version
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
