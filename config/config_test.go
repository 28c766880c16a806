package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrwynneiii/plcmodem/encode"
	"github.com/jrwynneiii/plcmodem/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
session {
  buffer_size = 1024
  sample_rate = 48000
  timeout_ms  = 250
}

transport {
  kind  = "audio"
  scale = 1000
}

encoder {
  name = "morse"
  settings {
    message      = "CQ"
    symbol_width = 80000
  }
}

mqtt {
  broker = "tcp://localhost:1883"
}
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	k, err := Load(path)
	require.NoError(t, err)
	c, err := Read(k)
	require.NoError(t, err)

	assert.Equal(t, 1024, c.Session.BufferSize)
	assert.Equal(t, 2, c.Session.Buffers)
	assert.Equal(t, 48000.0, c.Session.SampleRate)
	assert.Equal(t, int64(250), c.Session.Timeout().Milliseconds())
	assert.Equal(t, "audio", c.Transport.Kind)
	assert.Equal(t, 2048.0, c.Transport.Offset)
	assert.Equal(t, 1000.0, c.Transport.Scale)
	assert.Equal(t, "morse", c.Encoder.Name)
	assert.Equal(t, "CQ", c.Encoder.Settings["message"])
	assert.Equal(t, "ook", c.Decoder.Name)
	assert.Equal(t, "tcp://localhost:1883", c.MQTT.Broker)
	assert.Equal(t, "plcmodem/rx", c.MQTT.Topic)

	e := encode.NewMorse(plugin.Discard("morse"))
	require.NoError(t, Apply(e, c.Encoder.Settings))
	assert.True(t, e.Ready())
	assert.Equal(t, "CQ", e.(*encode.Morse).String("message"))
	assert.Equal(t, 80000, e.(*encode.Morse).Int("symbol_width"))
}

func TestLoadFallsBackToEnvironment(t *testing.T) {
	t.Setenv("PLCMODEM_SESSION_BUFFER_SIZE", "512")
	t.Setenv("PLCMODEM_DECODER_NAME", "pwm")
	t.Setenv("PLCMODEM_DECODER_SETTINGS_THRESHOLD", "150")

	k, err := Load(filepath.Join(t.TempDir(), "missing.hcl"))
	require.NoError(t, err)
	c, err := Read(k)
	require.NoError(t, err)
	assert.Equal(t, 512, c.Session.BufferSize)
	assert.Equal(t, "pwm", c.Decoder.Name)
	assert.Equal(t, "150", c.Decoder.Settings["threshold"])
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "session.buffer_size", envKey("PLCMODEM_SESSION_BUFFER_SIZE"))
	assert.Equal(t, "encoder.settings.symbol_width", envKey("PLCMODEM_ENCODER_SETTINGS_SYMBOL_WIDTH"))
	assert.Equal(t, "mqtt.client_id", envKey("PLCMODEM_MQTT_CLIENT_ID"))
}

func TestOverrides(t *testing.T) {
	o, err := Overrides([]string{"message=HELLO=WORLD", "repeat=true"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"message": "HELLO=WORLD", "repeat": "true"}, o)

	_, err = Overrides([]string{"novalue"})
	assert.Error(t, err)
}

func TestApplyReportsEveryProblem(t *testing.T) {
	e := encode.NewOOK(plugin.Discard("ook"))
	err := Apply(e, map[string]any{
		"bogus":        1,
		"symbol_width": "wide",
		"repeat":       true,
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "bogus")
	assert.ErrorContains(t, err, "symbol_width")
	// the valid settings still make a usable encoder
	assert.True(t, e.Ready())

	err = Apply(e, map[string]any{"symbol_width": 5.0}, map[string]any{"sampling_frequency": 100000})
	assert.Error(t, err)
	assert.False(t, e.Ready())
}
