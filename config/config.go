package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "PLCMODEM_"

var Paths = []string{"/etc/plcmodem/config.hcl", "~/.config/plcmodem/config.hcl", "./config.hcl"}

type SessionConf struct {
	BufferSize int     `koanf:"buffer_size"`
	Buffers    int     `koanf:"buffers"`
	SampleRate float64 `koanf:"sample_rate"`
	Preload    bool    `koanf:"preload"`
	LeadMs     int     `koanf:"lead_ms"`
	TimeoutMs  int     `koanf:"timeout_ms"`
	Priority   int     `koanf:"priority"`
}

func (c SessionConf) Lead() time.Duration    { return time.Duration(c.LeadMs) * time.Millisecond }
func (c SessionConf) Timeout() time.Duration { return time.Duration(c.TimeoutMs) * time.Millisecond }

type TransportConf struct {
	Kind      string  `koanf:"kind"`
	Device    string  `koanf:"device"`
	Driver    string  `koanf:"driver"`
	Address   string  `koanf:"address"`
	Frequency float64 `koanf:"frequency"`
	Offset    float64 `koanf:"offset"`
	Scale     float64 `koanf:"scale"`
	Noise     float64 `koanf:"noise"`
}

type PluginConf struct {
	Name     string         `koanf:"name"`
	Settings map[string]any `koanf:"settings"`
}

type MQTTConf struct {
	Broker   string `koanf:"broker"`
	Topic    string `koanf:"topic"`
	ClientID string `koanf:"client_id"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	QoS      byte   `koanf:"qos"`
}

type TuiConf struct {
	RefreshMs       int  `koanf:"refresh_ms"`
	EnableLogOutput bool `koanf:"enable_log_output"`
	DoFFT           bool `koanf:"do_fft"`
	FFTSize         int  `koanf:"fft_size"`
}

type MetricsConf struct {
	Addr string `koanf:"addr"`
}

type DatalinkConf struct {
	Output  string `koanf:"output"`
	History int    `koanf:"history"`
}

// Conf is the whole configuration file.
type Conf struct {
	Session   SessionConf   `koanf:"session"`
	Transport TransportConf `koanf:"transport"`
	Encoder   PluginConf    `koanf:"encoder"`
	Decoder   PluginConf    `koanf:"decoder"`
	Datalink  DatalinkConf  `koanf:"datalink"`
	MQTT      MQTTConf      `koanf:"mqtt"`
	Tui       TuiConf       `koanf:"tui"`
	Metrics   MetricsConf   `koanf:"metrics"`
}

func Defaults() Conf {
	return Conf{
		Session: SessionConf{
			BufferSize: 4096,
			Buffers:    2,
			SampleRate: 100000,
			LeadMs:     2,
			TimeoutMs:  1000,
		},
		Transport: TransportConf{Kind: "loopback", Offset: 2048, Scale: 2047},
		Encoder:   PluginConf{Name: "ook"},
		Decoder:   PluginConf{Name: "ook"},
		Datalink:  DatalinkConf{History: 64},
		MQTT:      MQTTConf{Topic: "plcmodem/rx", ClientID: "plcmodem"},
		Tui:       TuiConf{RefreshMs: 250, EnableLogOutput: true, FFTSize: 1024},
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// FindPath returns the first config file in Paths that exists.
func FindPath() string {
	for _, path := range Paths {
		path = expandHome(path)
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			log.Infof("Found config file: %s", path)
			return path
		}
	}
	log.Info("Config file not found!")
	return ""
}

// envKey maps PLCMODEM_ENCODER_SETTINGS_SYMBOL_WIDTH to
// encoder.settings.symbol_width.
func envKey(k string) string {
	key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	key = strings.Replace(key, "_", ".", 1)
	for _, section := range []string{"encoder.", "decoder."} {
		if strings.HasPrefix(key, section+"settings_") {
			key = section + "settings." + strings.TrimPrefix(key, section+"settings_")
		}
	}
	return key
}

// Load reads the HCL file at path, or the first one found in Paths when
// path is empty. Without a readable file the PLCMODEM_ environment is used.
func Load(path string) (*koanf.Koanf, error) {
	k := koanf.New(".")
	if path == "" {
		path = FindPath()
	}
	if err := k.Load(file.Provider(expandHome(path)), hcl.Parser(true)); err != nil {
		log.Errorf("Could not read config file: %v", err)
		log.Error("Attempting to use environment variables")
		err = k.Load(env.Provider(".", env.Opt{
			Prefix: EnvPrefix,
			TransformFunc: func(k, v string) (string, any) {
				key := envKey(k)
				log.Debugf("Found config env var: %s=%v", key, v)
				return key, v
			},
		}), nil)
		if err != nil {
			return nil, err
		}
	}
	return k, nil
}

// Read unmarshals k over the defaults.
func Read(k *koanf.Koanf) (Conf, error) {
	c := Defaults()
	if err := k.Unmarshal("", &c); err != nil {
		return c, err
	}
	log.Debugf("Found session definition: %##v", c.Session)
	log.Debugf("Found transport definition: %##v", c.Transport)
	return c, nil
}
