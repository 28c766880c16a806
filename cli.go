package main

type PluginFlags struct {
	Set []string `short:"s" help:"Override a plugin setting, name=value"`
	Tui bool     `help:"Show the monitor instead of plain log output"`
}

var cli struct {
	Verbose     bool   `help:"Prints debug output by default"`
	Profile     bool   `help:"Output a pprof profile"`
	Config      string `short:"c" help:"Path to the config file" type:"path"`
	MetricsAddr string `help:"Serve Prometheus metrics on this address, e.g. :9100"`

	Probe struct {
	} `cmd:"" help:"List the available radios, sound cards and SoapySDR configuration"`
	Plugins struct {
	} `cmd:"" help:"List the registered encoders and decoders"`
	Settings struct {
		Kind string `arg:"" enum:"encoder,decoder" help:"encoder or decoder"`
		Name string `arg:"" help:"Plugin name"`
	} `cmd:"" help:"Print the settings a plugin accepts as YAML"`
	Tx struct {
		PluginFlags `embed:""`
		Encoder string `short:"e" help:"Encoder to use instead of the configured one"`
	} `cmd:"" help:"Transmit with the configured encoder"`
	Rx struct {
		PluginFlags `embed:""`
		Decoder string `short:"d" help:"Decoder to use instead of the configured one"`
		Output  string `short:"o" help:"Append decoded bytes to this file instead of stdout" type:"path"`
	} `cmd:"" help:"Receive with the configured decoder"`
	Loopback struct {
		PluginFlags `embed:""`
		Encoder   string   `short:"e" help:"Encoder to use instead of the configured one"`
		Decoder   string   `short:"d" help:"Decoder to use instead of the configured one"`
		DecodeSet []string `help:"Override a decoder setting, name=value"`
	} `cmd:"" help:"Run an encoder into a decoder through the in-process loopback"`
}
