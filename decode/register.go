package decode

import "github.com/jrwynneiii/plcmodem/plugin"

const version = "1.0.0"

var descriptors = []plugin.Descriptor{
	{Name: "ook", Description: "On-off keying with start symbol framing", NewDecoder: NewOOK},
	{Name: "pwm", Description: "One byte per pulse width", NewDecoder: NewPWM},
	{Name: "morse", Description: "Morse code text", NewDecoder: NewMorse},
	{Name: "raw", Description: "Sample statistics and dump, no demodulation", NewDecoder: NewRaw},
}

func Register(r *plugin.Registry) error {
	for _, d := range descriptors {
		d.Kind = plugin.KindDecoder
		d.Version = version
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
