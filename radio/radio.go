package radio

// #cgo CFLAGS: -g -Wall
// #cgo LDFLAGS: -lSoapySDR
import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/plcmodem/config"
	"github.com/jrwynneiii/plcmodem/signal"
	"github.com/jrwynneiii/plcmodem/scheduler"
	"github.com/racerxdl/segdsp/tools"

	"github.com/pothosware/go-soapy-sdr/pkg/device"
	"github.com/pothosware/go-soapy-sdr/pkg/modules"
	"github.com/pothosware/go-soapy-sdr/pkg/sdrlogger"
	"github.com/pothosware/go-soapy-sdr/pkg/version"
)

// Soapy captures the envelope of an SDR's IQ stream as ADC codes, for
// listening to a line coupled into a receiver.
type Soapy struct {
	Driver     string
	Address    string
	SampleRate float64
	Frequency  float64
	Level      signal.Level

	device *device.SDRDevice
	stream *device.SDRStreamCF32
	iq     [][]complex64
}

func logModules(logf func(string, ...any)) {
	logf("Using SoapySDR versions: ABI: %s API: %s Lib: %s", version.GetABIVersion(), version.GetAPIVersion(), version.GetLibVersion())
	logf("SoapySDR modules root path: %v", modules.GetRootPath())

	for i, searchPath := range modules.ListSearchPaths() {
		log.Debugf("Search path #%d: %v", i, searchPath)
	}

	modulesFound := modules.ListModules()
	if len(modulesFound) == 0 {
		logf("No SoapySDR modules found")
	}
	for _, module := range modulesFound {
		moduleVersion := modules.GetModuleVersion(module)
		if len(moduleVersion) == 0 {
			moduleVersion = "[None]"
		}
		logf("Found SoapySDR module: %v, version: %v", module, moduleVersion)
	}
	// Tune down the logger for soapy so that it doesn't yell about rtl-tcp
	sdrlogger.SetLogLevel(sdrlogger.Error)
}

// Probe logs every SoapySDR device with its settings and RX channels.
func Probe() error {
	logModules(log.Infof)

	devices := device.Enumerate(nil)
	log.Infof("Found %d devices", len(devices))
	if len(devices) == 0 {
		return nil
	}
	args := make([]map[string]string, len(devices))
	for idx, dev := range devices {
		args[idx] = map[string]string{"driver": dev["driver"]}
	}
	devs, err := device.MakeList(args)
	if err != nil {
		return fmt.Errorf("SoapySDR could not open devices: %w", err)
	}
	for idx, dev := range devs {
		log.Infof("Driver: %s", args[idx]["driver"])
		logAvailSettings(dev)
	}
	// UnmakeList double frees in the cgo bindings, the OS reclaims the devices
	return nil
}

func logAvailSettings(dev *device.SDRDevice) {
	log.Infof("Current settings:")
	for _, setting := range dev.GetSettingInfo() {
		log.Infof("\t- %s: %v", setting.Key, setting.Value)
	}

	numChannels := dev.GetNumChannels(device.DirectionRX)
	log.Info("Channel info:")
	for channel := uint(0); channel < numChannels; channel++ {
		log.Infof("Channel %d:", channel)
		log.Infof("\tAvailable sample rates:")
		log.Infof("\t\t- %v", dev.GetSampleRate(device.DirectionRX, channel))
		for _, sampleRateRange := range dev.GetSampleRateRange(device.DirectionRX, channel) {
			log.Infof("\t\t- %v", sampleRateRange.ToString())
		}
		log.Infof("\tIQ Sample Types: %v", dev.GetStreamFormats(device.DirectionRX, channel))
	}
}

func NewSoapy(conf config.TransportConf, sampleRate float64, bufSize int) *Soapy {
	r := &Soapy{
		Driver:     conf.Driver,
		Address:    conf.Address,
		SampleRate: sampleRate,
		Frequency:  conf.Frequency,
		Level:      signal.Level{Offset: conf.Offset, Scale: conf.Scale},
	}
	r.iq = [][]complex64{make([]complex64, bufSize)}
	return r
}

// Arm opens the device on first use, tunes it and activates the IQ stream.
func (r *Soapy) Arm() error {
	logModules(log.Debugf)
	args := map[string]string{"driver": r.Driver}
	if r.Driver == "rtltcp" {
		args["rtltcp"] = r.Address
	}
	var err error
	if r.device == nil {
		if r.device, err = device.Make(args); err != nil {
			return fmt.Errorf("could not create SoapySDR device: %w", err)
		}
	}

	log.Debugf("Setting sample rate to %f", r.SampleRate)
	if err := r.device.SetSampleRate(device.DirectionRX, 0, r.SampleRate); err != nil {
		return fmt.Errorf("could not set sample rate: %w", err)
	}
	log.Debugf("Setting frequency to %f", r.Frequency)
	if err := r.device.SetFrequency(device.DirectionRX, 0, r.Frequency, nil); err != nil {
		return fmt.Errorf("could not set frequency: %w", err)
	}
	if r.Driver != "rtltcp" {
		logAvailSettings(r.device)
	}

	log.Debug("Creating the IQ stream")
	if r.stream, err = r.device.SetupSDRStreamCF32(device.DirectionRX, []uint{0}, nil); err != nil {
		return fmt.Errorf("could not setup SDR stream: %w", err)
	}
	log.Debug("Activating IQ stream...")
	if err := r.stream.Activate(0, 0, 0); err != nil {
		return fmt.Errorf("could not activate the IQ stream: %w", err)
	}
	// discard the first samples so captures start on clean data
	flags := make([]int, 1)
	r.stream.Read(r.iq, uint(min(1024, len(r.iq[0]))), flags, 100000)
	return nil
}

// Capture reads IQ samples until buf is full, converting each to the
// envelope above the configured idle level.
func (r *Soapy) Capture(ctx context.Context, buf []uint16) error {
	flags := make([]int, 1)
	for n := 0; n < len(buf); {
		timeout := uint(100000)
		if deadline, ok := ctx.Deadline(); ok {
			left := time.Until(deadline)
			if left <= 0 {
				return fmt.Errorf("%d of %d samples: %w", n, len(buf), scheduler.ErrTimeout)
			}
			timeout = uint(left.Microseconds())
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		want := uint(min(len(buf)-n, len(r.iq[0])))
		timeNs, got, err := r.stream.Read(r.iq, want, flags, timeout)
		if err != nil {
			return fmt.Errorf("reading IQ stream: %w", err)
		}
		log.Debugf("timeNs: %v, numSamples: %v", timeNs, got)
		for _, s := range r.iq[0][:got] {
			buf[n] = r.Level.Code(math.Sqrt(float64(tools.ComplexAbsSquared(s))))
			n++
		}
	}
	return nil
}

func (r *Soapy) Disarm() error {
	if r.stream == nil {
		return nil
	}
	log.Debug("Deactivating IQ stream...")
	if err := r.stream.Deactivate(0, 0); err != nil {
		return fmt.Errorf("could not deactivate the IQ stream: %w", err)
	}
	log.Debug("Closing IQ stream...")
	err := r.stream.Close()
	r.stream = nil
	return err
}
