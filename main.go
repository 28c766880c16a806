package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	ossignal "os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/plcmodem/analyzer"
	"github.com/jrwynneiii/plcmodem/config"
	"github.com/jrwynneiii/plcmodem/datalink"
	"github.com/jrwynneiii/plcmodem/decode"
	"github.com/jrwynneiii/plcmodem/encode"
	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/jrwynneiii/plcmodem/radio"
	"github.com/jrwynneiii/plcmodem/scheduler"
	"github.com/jrwynneiii/plcmodem/setting"
	"github.com/jrwynneiii/plcmodem/signal"
	"github.com/jrwynneiii/plcmodem/tui"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"
)

func newRegistry() *plugin.Registry {
	reg := plugin.NewRegistry()
	if err := encode.Register(reg); err != nil {
		log.Fatalf("Could not register encoders: %v", err)
	}
	if err := decode.Register(reg); err != nil {
		log.Fatalf("Could not register decoders: %v", err)
	}
	return reg
}

func sessionConfig(c config.SessionConf) scheduler.Config {
	return scheduler.Config{
		BufferSize: c.BufferSize,
		Buffers:    c.Buffers,
		SampleRate: c.SampleRate,
		Lead:       c.Lead(),
		Preload:    c.Preload,
		Timeout:    c.Timeout(),
		Priority:   c.Priority,
	}
}

// configure applies the session rate, the config file settings and the
// command line overrides, in that order.
func configure(p plugin.Plugin, sampleRate float64, fromFile map[string]any, set []string) error {
	overrides, err := config.Overrides(set)
	if err != nil {
		return err
	}
	rate := map[string]any{}
	if _, err := setting.Find(p.Settings(), "sampling_frequency"); err == nil {
		rate["sampling_frequency"] = sampleRate
	}
	return config.Apply(p, rate, fromFile, overrides)
}

func newEncoder(reg *plugin.Registry, conf config.Conf, name string, set []string) plugin.Encoder {
	if name == "" {
		name = conf.Encoder.Name
	}
	enc, err := reg.NewEncoder(name, plugin.NewContext(name))
	if err != nil {
		log.Fatalf("Could not load encoder: %v", err)
	}
	if err := configure(enc, conf.Session.SampleRate, conf.Encoder.Settings, set); err != nil {
		log.Fatalf("Encoder %s is not configured: %v", name, err)
	}
	return enc
}

func newDecoder(reg *plugin.Registry, conf config.Conf, name string, set []string) plugin.Decoder {
	if name == "" {
		name = conf.Decoder.Name
	}
	dec, err := reg.NewDecoder(name, plugin.NewContext(name))
	if err != nil {
		log.Fatalf("Could not load decoder: %v", err)
	}
	if err := configure(dec, conf.Session.SampleRate, conf.Decoder.Settings, set); err != nil {
		log.Fatalf("Decoder %s is not configured: %v", name, err)
	}
	return dec
}

func newTransmitter(conf config.Conf) (scheduler.Transmitter, error) {
	switch conf.Transport.Kind {
	case "audio":
		return radio.NewAudio(conf.Transport, conf.Session.SampleRate, conf.Session.BufferSize, true), nil
	case "soapy":
		return nil, errors.New("the soapy transport can only receive")
	case "loopback":
		return nil, errors.New("the loopback transport is only available to the loopback command")
	}
	return nil, fmt.Errorf("unknown transport %q", conf.Transport.Kind)
}

func newReceiver(conf config.Conf) (scheduler.Receiver, error) {
	switch conf.Transport.Kind {
	case "audio":
		return radio.NewAudio(conf.Transport, conf.Session.SampleRate, conf.Session.BufferSize, false), nil
	case "soapy":
		return radio.NewSoapy(conf.Transport, conf.Session.SampleRate, conf.Session.BufferSize), nil
	case "loopback":
		return nil, errors.New("the loopback transport is only available to the loopback command")
	}
	return nil, fmt.Errorf("unknown transport %q", conf.Transport.Kind)
}

// newSink writes decoded bytes to path, or stdout, and publishes them when
// a broker is configured.
func newSink(conf config.Conf, path string, monitor bool) (*datalink.Sink, func()) {
	if path == "" {
		path = conf.Datalink.Output
	}
	var out io.Writer = os.Stdout
	closers := []func(){}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("Could not open output: %v", err)
		}
		out = f
		closers = append(closers, func() { f.Close() })
	} else if monitor {
		out = nil
	}
	sink := datalink.NewSink(out, conf.Datalink.History)
	if conf.MQTT.Broker != "" {
		m, err := datalink.NewMQTT(conf.MQTT)
		if err != nil {
			log.Errorf("Publishing disabled: %v", err)
		} else {
			sink.Publisher = m
			closers = append(closers, m.Close)
		}
	}
	return sink, func() {
		for _, c := range closers {
			c()
		}
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Infof("Serving metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("Metrics server stopped: %v", err)
		}
	}()
}

// wait blocks until the sessions end on their own or the user interrupts,
// or runs the monitor when asked to.
func wait(ctx context.Context, src tui.Sources, tuiConf config.TuiConf, monitor bool) {
	stop := func() {
		if src.TX != nil {
			src.TX.Stop()
		}
		if src.RX != nil {
			src.RX.Stop()
		}
	}
	if monitor {
		tui.StartUI(src, tuiConf, stop)
		return
	}
	if src.TX != nil {
		if err := src.TX.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("Transmit session failed: %v", err)
		}
	}
	if src.RX != nil {
		if err := src.RX.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("Receive session failed: %v", err)
		}
	}
	stop()
}

func report(src tui.Sources) {
	if src.Encoder != nil {
		log.Infof("Sent %d buffers", src.Encoder.Sent.Load())
	}
	if src.Sink != nil {
		src.Sink.Flush()
		n, lines, batches := src.Sink.Counters()
		log.Infof("Decoded %d bytes, %d lines in %d batches", n, lines, batches)
	}
	if src.TX != nil && src.TX.Err() != nil {
		log.Errorf("TX session ended with: %v", src.TX.Err())
	}
	if src.RX != nil && src.RX.Err() != nil {
		log.Errorf("RX session ended with: %v", src.RX.Err())
	}
}

// drain lets a finite transmission play out through the loopback and stops
// the receiver once everything sent has been captured.
func drain(ctx context.Context, tx *scheduler.TX, rx *scheduler.RX, lb *radio.Loopback) {
	if err := tx.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Transmit session failed: %v", err)
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for lb.Queued() > 0 && ctx.Err() == nil {
		<-ticker.C
	}
	// one more ring's worth for the buffers already captured
	for range 4 {
		<-ticker.C
	}
	tx.Stop()
	rx.Stop()
}

func newAnalyzer(conf config.Conf) *analyzer.Analyzer {
	level := signal.Level{Offset: conf.Transport.Offset, Scale: conf.Transport.Scale}
	return analyzer.New(level, conf.Session.SampleRate, conf.Tui.DoFFT, conf.Tui.FFTSize)
}

func main() {
	log.Info("Starting plcmodem")
	flags := kong.Parse(&cli)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if cli.Profile {
		prof, err := os.Create("./cpu.pprof")
		if err != nil {
			panic(err)
		}
		pprof.StartCPUProfile(prof)
		defer pprof.StopCPUProfile()
	}

	k, err := config.Load(cli.Config)
	if err != nil {
		log.Fatalf("Could not load configuration: %v", err)
	}
	conf, err := config.Read(k)
	if err != nil {
		log.Fatalf("Could not parse configuration: %v", err)
	}
	if cli.MetricsAddr != "" {
		conf.Metrics.Addr = cli.MetricsAddr
	}
	if conf.Metrics.Addr != "" {
		serveMetrics(conf.Metrics.Addr)
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	reg := newRegistry()
	sc := sessionConfig(conf.Session)

	switch flags.Command() {
	case "probe":
		if err := radio.Probe(); err != nil {
			log.Errorf("SoapySDR probe failed: %v", err)
		}
		if err := radio.ListAudioDevices(); err != nil {
			log.Errorf("PortAudio probe failed: %v", err)
		}

	case "plugins":
		for _, kind := range []plugin.Kind{plugin.KindEncoder, plugin.KindDecoder} {
			for _, d := range reg.List(kind) {
				fmt.Printf("%-8s %-6s %s (ABI %s)\n", kind, d.Name, d.Description, d.Version)
			}
		}

	case "settings <kind> <name>":
		var p plugin.Plugin
		if cli.Settings.Kind == "decoder" {
			p, err = reg.NewDecoder(cli.Settings.Name, plugin.Discard(cli.Settings.Name))
		} else {
			p, err = reg.NewEncoder(cli.Settings.Name, plugin.Discard(cli.Settings.Name))
		}
		if err != nil {
			log.Fatalf("%v", err)
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(p.Settings()); err != nil {
			log.Fatalf("Could not print settings: %v", err)
		}
		enc.Close()

	case "tx":
		tr, err := newTransmitter(conf)
		if err != nil {
			log.Fatalf("Could not create transport: %v", err)
		}
		client := scheduler.NewEncoderClient(newEncoder(reg, conf, cli.Tx.Encoder, cli.Tx.Set))
		tx := scheduler.NewTX(sc, tr)
		if err := tx.Start(ctx, client); err != nil {
			log.Fatalf("Could not start transmitting: %v", err)
		}
		src := tui.Sources{TX: tx, Encoder: client}
		wait(ctx, src, conf.Tui, cli.Tx.Tui)
		report(src)
		client.Release()

	case "rx":
		rc, err := newReceiver(conf)
		if err != nil {
			log.Fatalf("Could not create transport: %v", err)
		}
		sink, closeSink := newSink(conf, cli.Rx.Output, cli.Rx.Tui)
		defer closeSink()
		client := scheduler.NewDecoderClient(newDecoder(reg, conf, cli.Rx.Decoder, cli.Rx.Set), sink.Deliver)
		a := newAnalyzer(conf)
		client.Tap = a
		rx := scheduler.NewRX(sc, rc)
		if err := rx.Start(ctx, client); err != nil {
			log.Fatalf("Could not start receiving: %v", err)
		}
		sink.SetSession(rx.ID)
		src := tui.Sources{RX: rx, Analyzer: a, Sink: sink}
		wait(ctx, src, conf.Tui, cli.Rx.Tui)
		a.Wait()
		report(src)
		client.Release()

	case "loopback":
		lb := radio.NewLoopback(conf.Transport, conf.Session.SampleRate, max(2, conf.Session.Buffers)*4)
		sink, closeSink := newSink(conf, "", cli.Loopback.Tui)
		defer closeSink()
		enc := scheduler.NewEncoderClient(newEncoder(reg, conf, cli.Loopback.Encoder, cli.Loopback.Set))
		dec := scheduler.NewDecoderClient(newDecoder(reg, conf, cli.Loopback.Decoder, cli.Loopback.DecodeSet), sink.Deliver)
		a := newAnalyzer(conf)
		dec.Tap = a

		rx := scheduler.NewRX(sc, lb)
		if err := rx.Start(ctx, dec); err != nil {
			log.Fatalf("Could not start receiving: %v", err)
		}
		sink.SetSession(rx.ID)
		tx := scheduler.NewTX(sc, lb)
		if err := tx.Start(ctx, enc); err != nil {
			rx.Stop()
			log.Fatalf("Could not start transmitting: %v", err)
		}
		src := tui.Sources{TX: tx, RX: rx, Encoder: enc, Analyzer: a, Sink: sink}
		if cli.Loopback.Tui {
			wait(ctx, src, conf.Tui, true)
		} else {
			drain(ctx, tx, rx, lb)
		}
		a.Wait()
		report(src)
		enc.Release()
		dec.Release()

	default:
		log.Info("Command not recognized")
	}
}
