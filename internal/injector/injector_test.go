package injector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/simview/internal/config"
)

func TestInitializeViewerHTTPMode(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "silent"
	cfg.SensorForm = map[string]string{"num_beams": "7"}

	v, err := InitializeViewer(cfg)
	require.NoError(t, err)

	assert.NotNil(t, v.Client)
	assert.Nil(t, v.Model)
	assert.Nil(t, v.Server)
	assert.Same(t, v.Stage, v.Widget.Stage())
	assert.Equal(t, "7", v.Widget.SensorForm()["num_beams"])

	w, h := v.Scene.Size()
	assert.Equal(t, 800.0, w)
	assert.Equal(t, 600.0, h)
}

func TestInitializeViewerModelMode(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "silent"
	cfg.Mode = config.ModeModel
	cfg.Bridge.WebSocketAddr = "127.0.0.1:0"

	v, err := InitializeViewer(cfg)
	require.NoError(t, err)

	assert.Nil(t, v.Client)
	assert.NotNil(t, v.Model)
	assert.NotNil(t, v.Server)
}

func TestInitializeViewerRejectsBadEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "silent"
	cfg.Endpoint = " "

	_, err := InitializeViewer(cfg)
	assert.Error(t, err)
}
