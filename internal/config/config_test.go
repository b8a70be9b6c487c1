package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/simview/internal/core/engine"
	"github.com/zeusync/simview/internal/core/observability/log"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	opts := c.StageOptions()
	assert.Equal(t, engine.DefaultOptions(), opts)
	assert.Equal(t, "localhost:5000", c.ClientConfig().Endpoint)
	assert.Equal(t, log.LevelInfo, c.Level())
	assert.Equal(t, log.Options{Level: log.LevelInfo}, c.LogOptions())
}

func TestEmptyDocumentYieldsDefaults(t *testing.T) {
	c, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadOverridesDefaults(t *testing.T) {
	c, err := Load(strings.NewReader(`
title: Maze
endpoint: sim.local:9000
request_timeout: 3s
log_level: debug
log_format: console
viewport:
  width: 1024
animation:
  speed: 4
sensor:
  policy: replace
  duration: 0.25
projectile:
  policy: fade
  duration: 1
sensor_form:
  num_beams: "120"
bridge:
  quic_addr: 127.0.0.1:9443
`))
	require.NoError(t, err)

	assert.Equal(t, "Maze", c.Title)
	assert.Equal(t, 1024, c.Viewport.Width)
	assert.Equal(t, 600, c.Viewport.Height, "unset fields keep defaults")
	assert.Equal(t, log.LevelDebug, c.Level())
	assert.True(t, c.LogOptions().Console)
	assert.Equal(t, "120", c.SensorForm["num_beams"])

	opts := c.StageOptions()
	assert.Equal(t, 4.0, opts.Speed)
	assert.Equal(t, engine.PolicyReplace, opts.SensorPolicy)
	assert.Equal(t, 0.25, opts.SensorDuration)
	assert.Equal(t, engine.PolicyFade, opts.ProjectilePolicy)

	cc := c.ClientConfig()
	assert.Equal(t, "sim.local:9000", cc.Endpoint)
	assert.Equal(t, 3*time.Second, cc.Timeout)

	sc := c.ServerConfig()
	assert.Equal(t, "127.0.0.1:9443", sc.QUICAddr)
	assert.Equal(t, "/ws", sc.WebSocketPath)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "colour: red",
		"unknown mode":     "mode: carrier-pigeon",
		"zero width":       "viewport: {width: 0}",
		"negative speed":   "animation: {speed: -1}",
		"unknown policy":   "sensor: {policy: explode}",
		"negative linger":  "projectile: {duration: -0.1}",
		"bad level":        "log_level: chatty",
		"bad log format":   "log_format: xml",
		"no bridge":        "mode: model\nbridge: {websocket_addr: ''}",
		"http no endpoint": "endpoint: ''",
		"not yaml":         "viewport: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simview.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: model\n"), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ModeModel, c.Mode)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
