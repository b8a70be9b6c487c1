package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/simview/internal/config"
	"github.com/zeusync/simview/internal/core/engine"
	"github.com/zeusync/simview/internal/core/events/bus"
	"github.com/zeusync/simview/internal/core/hostmodel"
	"github.com/zeusync/simview/internal/core/observability/log"
	"github.com/zeusync/simview/internal/core/scene/retained"
	"github.com/zeusync/simview/internal/server"
	"github.com/zeusync/simview/internal/widget"
	"github.com/zeusync/simview/sdk/go/client"
)

// Viewer is everything the desktop viewer runs. Model and Server are set
// only in model mode, Client only in http mode.
type Viewer struct {
	Config *config.Config
	Logger log.Log
	Scene  *retained.Scene
	Clock  *retained.Clock
	Stage  *engine.Stage
	Widget *widget.Widget
	Client *client.Client
	Model  *hostmodel.Model
	Server *server.Server
}

var ViewerSet = wire.NewSet(
	ProvideLogger,
	ProvideScene,
	ProvideClock,
	ProvideStage,
	ProvideClient,
	ProvideTransport,
	ProvideWidget,
	ProvideBus,
	ProvideModel,
	ProvideBridge,
	ProvideServer,
	wire.Struct(new(Viewer), "*"),
)

func ProvideLogger(cfg *config.Config) (log.Log, error) {
	logger, err := log.NewWithOptions(cfg.LogOptions())
	if err != nil {
		return nil, err
	}
	return logger, nil
}

func ProvideScene(cfg *config.Config) *retained.Scene {
	return retained.New(float64(cfg.Viewport.Width), float64(cfg.Viewport.Height))
}

func ProvideClock() *retained.Clock {
	return retained.NewClock()
}

func ProvideStage(sc *retained.Scene, clock *retained.Clock, cfg *config.Config, logger log.Log) *engine.Stage {
	return engine.NewStage(sc, clock, cfg.StageOptions(), logger)
}

func ProvideClient(cfg *config.Config, logger log.Log) (*client.Client, error) {
	if cfg.Mode != config.ModeHTTP {
		return nil, nil
	}
	return client.NewClient(cfg.ClientConfig(), logger)
}

// ProvideTransport is nil in model mode, which disables the controls.
func ProvideTransport(c *client.Client) widget.Transport {
	if c == nil {
		return nil
	}
	return c
}

func ProvideWidget(cfg *config.Config, stage *engine.Stage, transport widget.Transport, logger log.Log) *widget.Widget {
	w := widget.New(cfg.Title, stage, transport, logger)
	for field, value := range cfg.SensorForm {
		w.SetSensorField(field, value)
	}
	return w
}

func ProvideBus() bus.EventBus {
	return bus.New()
}

func ProvideModel(cfg *config.Config, b bus.EventBus, logger log.Log) *hostmodel.Model {
	if cfg.Mode != config.ModeModel {
		return nil
	}
	return hostmodel.New(b, logger)
}

func ProvideBridge(model *hostmodel.Model, logger log.Log) *server.Bridge {
	if model == nil {
		return nil
	}
	return server.NewBridge(model, logger)
}

func ProvideServer(cfg *config.Config, bridge *server.Bridge, logger log.Log) (*server.Server, error) {
	if bridge == nil {
		return nil, nil
	}
	return server.NewServer(cfg.ServerConfig(), bridge, logger)
}
