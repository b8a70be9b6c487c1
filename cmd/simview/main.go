package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/simview/internal/config"
	"github.com/zeusync/simview/internal/core/observability/log"
	"github.com/zeusync/simview/internal/core/protocol"
	"github.com/zeusync/simview/internal/injector"
	"github.com/zeusync/simview/internal/render/ebitenview"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	mapPath := flag.String("map", "", "draw a local map file instead of fetching the environment")
	endpoint := flag.String("endpoint", "", "backend host:port (overrides the config)")
	mode := flag.String("mode", "", "http or model (overrides the config)")
	flag.Parse()

	if err := run(*configPath, *mapPath, *endpoint, *mode); err != nil {
		fmt.Fprintln(os.Stderr, "simview:", err)
		os.Exit(1)
	}
}

func run(configPath, mapPath, endpoint, mode string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if mapPath != "" {
		cfg.MapFile = mapPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	viewer, err := injector.InitializeViewer(cfg)
	if err != nil {
		return errors.Wrap(err, "initialize viewer")
	}
	logger := viewer.Logger
	if l, ok := logger.(*log.Logger); ok {
		defer func() { _ = l.Sync() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if viewer.Server != nil {
		if err := viewer.Server.Listen(); err != nil {
			return err
		}
		g.Go(func() error { return viewer.Server.Run(gctx) })

		unbind, err := viewer.Widget.BindModel(gctx, viewer.Model)
		if err != nil {
			return err
		}
		defer unbind()
		logger.Info("Waiting for host updates", log.Any("websocket", viewer.Server.WebSocketAddr()), log.Any("quic", viewer.Server.QUICAddr()))
	}

	switch {
	case cfg.MapFile != "":
		snap, err := readMap(cfg.MapFile)
		if err != nil {
			return err
		}
		if err := viewer.Widget.ShowMap(gctx, snap); err != nil {
			return err
		}
	case viewer.Client != nil:
		g.Go(func() error {
			if err := viewer.Widget.Load(gctx); err != nil {
				logger.Warn("Initial load failed", log.Error(err))
			}
			return nil
		})
	}

	game := ebitenview.NewGame(gctx, viewer.Scene, viewer.Clock, viewer.Widget, cfg.Viewport.TPS, viewer.Client != nil, logger)
	runErr := ebitenview.Run(game, cfg.Title)
	stop()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Background task failed", log.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func readMap(path string) (*protocol.MapSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open map %s", path)
	}
	defer f.Close()
	return protocol.LoadMap(f)
}
