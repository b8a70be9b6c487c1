// Package config loads the viewer configuration from YAML.
package config

import (
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/simview/internal/core/engine"
	"github.com/zeusync/simview/internal/core/observability/log"
	"github.com/zeusync/simview/internal/server"
	"github.com/zeusync/simview/sdk/go/client"
)

// Modes select where state comes from.
const (
	ModeHTTP  = "http"
	ModeModel = "model"
)

type Config struct {
	Title    string `yaml:"title"`
	Endpoint string `yaml:"endpoint"`
	Mode     string `yaml:"mode"`
	// RequestTimeout bounds each backend request. Zero disables it.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LogLevel       string        `yaml:"log_level"`
	// LogFormat is json or console.
	LogFormat string `yaml:"log_format"`
	// LogFile is a log destination path. Empty means stderr.
	LogFile string `yaml:"log_file"`
	// MapFile, when set, is drawn locally instead of fetching the
	// environment.
	MapFile string `yaml:"map_file"`

	Viewport   Viewport          `yaml:"viewport"`
	Animation  Animation         `yaml:"animation"`
	Sensor     Transient         `yaml:"sensor"`
	Projectile Transient         `yaml:"projectile"`
	SensorForm map[string]string `yaml:"sensor_form"`
	Bridge     Bridge            `yaml:"bridge"`
}

type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// TPS is the frame rate the viewer ticks the clock at.
	TPS int `yaml:"tps"`
}

type Animation struct {
	Speed        float64 `yaml:"speed"`
	NominalFrame float64 `yaml:"nominal_frame"`
	PlayerRadius float64 `yaml:"player_radius"`
}

// Transient configures the lifetime of one class of short-lived markers.
// Duration is the fade time for the fade policy and the linger time for
// the replace policy, in seconds.
type Transient struct {
	Policy   string  `yaml:"policy"`
	Duration float64 `yaml:"duration"`
}

// Bridge configures the push listeners used in model mode. Empty addresses
// disable the listener.
type Bridge struct {
	WebSocketAddr string `yaml:"websocket_addr"`
	WebSocketPath string `yaml:"websocket_path"`
	QUICAddr      string `yaml:"quic_addr"`
}

func Default() *Config {
	opts := engine.DefaultOptions()
	srv := server.DefaultServerConfig()
	return &Config{
		Title:     "Robot Control Panel",
		Endpoint:  client.DefaultConfig().Endpoint,
		Mode:      ModeHTTP,
		LogLevel:  "info",
		LogFormat: "json",
		Viewport:  Viewport{Width: 800, Height: 600, TPS: 60},
		Animation: Animation{
			Speed:        opts.Speed,
			NominalFrame: opts.NominalFrame,
			PlayerRadius: opts.PlayerRadius,
		},
		Sensor:     Transient{Policy: opts.SensorPolicy.String(), Duration: opts.SensorDuration},
		Projectile: Transient{Policy: opts.ProjectilePolicy.String(), Duration: opts.ProjectileDuration},
		Bridge: Bridge{
			WebSocketAddr: srv.WebSocketAddr,
			WebSocketPath: srv.WebSocketPath,
		},
	}
}

// Load decodes YAML over the defaults. Unknown keys are rejected and an
// empty document yields the defaults.
func Load(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile is Load on the named file.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open config %s", path)
	}
	defer f.Close()
	return Load(f)
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeHTTP:
		if strings.TrimSpace(c.Endpoint) == "" && c.MapFile == "" {
			return errors.Wrap(ErrInvalidConfig, "http mode needs an endpoint")
		}
	case ModeModel:
		if c.Bridge.WebSocketAddr == "" && c.Bridge.QUICAddr == "" {
			return errors.Wrap(ErrInvalidConfig, "model mode needs a bridge address")
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown mode %q", c.Mode)
	}

	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "viewport %dx%d", c.Viewport.Width, c.Viewport.Height)
	}
	if c.Viewport.TPS <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "tps %d", c.Viewport.TPS)
	}
	if !positive(c.Animation.Speed) {
		return errors.Wrapf(ErrInvalidConfig, "animation speed %v", c.Animation.Speed)
	}
	if !positive(c.Animation.NominalFrame) || !positive(c.Animation.PlayerRadius) {
		return errors.Wrap(ErrInvalidConfig, "animation frame and radius must be positive")
	}
	if c.RequestTimeout < 0 {
		return errors.Wrap(ErrInvalidConfig, "negative request timeout")
	}
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return errors.Wrapf(ErrInvalidConfig, "log level %q", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return errors.Wrapf(ErrInvalidConfig, "log format %q", c.LogFormat)
	}

	for name, t := range map[string]Transient{"sensor": c.Sensor, "projectile": c.Projectile} {
		if _, ok := engine.ParsePolicy(t.Policy); !ok {
			return errors.Wrapf(ErrInvalidConfig, "%s policy %q", name, t.Policy)
		}
		if t.Duration < 0 || math.IsNaN(t.Duration) || math.IsInf(t.Duration, 0) {
			return errors.Wrapf(ErrInvalidConfig, "%s duration %v", name, t.Duration)
		}
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Level is the parsed log level.
func (c *Config) Level() log.Level {
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// LogOptions maps the logging settings onto the logger.
func (c *Config) LogOptions() log.Options {
	return log.Options{Level: c.Level(), Console: c.LogFormat == "console", Output: c.LogFile}
}

// StageOptions maps the animation and transient settings onto a Stage.
func (c *Config) StageOptions() engine.Options {
	opts := engine.DefaultOptions()
	opts.Speed = c.Animation.Speed
	opts.NominalFrame = c.Animation.NominalFrame
	opts.PlayerRadius = c.Animation.PlayerRadius
	if p, ok := engine.ParsePolicy(c.Sensor.Policy); ok {
		opts.SensorPolicy = p
	}
	opts.SensorDuration = c.Sensor.Duration
	if p, ok := engine.ParsePolicy(c.Projectile.Policy); ok {
		opts.ProjectilePolicy = p
	}
	opts.ProjectileDuration = c.Projectile.Duration
	return opts
}

func (c *Config) ClientConfig() client.Config {
	cc := client.DefaultConfig()
	cc.Endpoint = c.Endpoint
	cc.Timeout = c.RequestTimeout
	return cc
}

func (c *Config) ServerConfig() server.Config {
	sc := server.DefaultServerConfig()
	sc.WebSocketAddr = c.Bridge.WebSocketAddr
	if c.Bridge.WebSocketPath != "" {
		sc.WebSocketPath = c.Bridge.WebSocketPath
	}
	sc.QUICAddr = c.Bridge.QUICAddr
	return sc
}
