// Package ebitenview paints a retained scene with ebiten and drives the
// Stage's frame clock from the game loop.
package ebitenview

import (
	"context"
	"image/color"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/simview/internal/core/engine"
	"github.com/zeusync/simview/internal/core/observability/log"
	"github.com/zeusync/simview/internal/core/scene"
	"github.com/zeusync/simview/internal/core/scene/retained"
	"github.com/zeusync/simview/internal/render"
	"github.com/zeusync/simview/internal/widget"
)

const (
	maxInflight = 4
	helpLine    = "arrows: move  S: sensor  space: step  R: reset"
)

var keyActions = []struct {
	key    ebiten.Key
	action render.Action
}{
	{ebiten.KeyArrowLeft, render.ActionMoveLeft},
	{ebiten.KeyArrowRight, render.ActionMoveRight},
	{ebiten.KeyArrowUp, render.ActionMoveUp},
	{ebiten.KeyArrowDown, render.ActionMoveDown},
	{ebiten.KeyS, render.ActionSensor},
	{ebiten.KeySpace, render.ActionStep},
	{ebiten.KeyR, render.ActionReset},
}

// Game implements ebiten.Game over one widget.
type Game struct {
	ctx    context.Context
	scene  *retained.Scene
	clock  *retained.Clock
	stage  *engine.Stage
	widget *widget.Widget
	tps    int
	logger log.Log

	// requests runs control actions off the frame goroutine
	requests errgroup.Group
	controls bool
}

// NewGame wires a game loop. Controls are enabled when the widget has a
// backend to talk to.
func NewGame(ctx context.Context, sc *retained.Scene, clock *retained.Clock, w *widget.Widget, tps int, controls bool, logger log.Log) *Game {
	if tps <= 0 {
		tps = ebiten.DefaultTPS
	}
	g := &Game{
		ctx:      ctx,
		scene:    sc,
		clock:    clock,
		stage:    w.Stage(),
		widget:   w,
		tps:      tps,
		logger:   log.Ensure(logger).With(log.String("component", "ebitenview")),
		controls: controls,
	}
	g.requests.SetLimit(maxInflight)
	return g
}

// Update handles input, applies queued effects and advances the clock by
// one frame.
func (g *Game) Update() error {
	if g.ctx.Err() != nil {
		return ebiten.Termination
	}
	if g.controls {
		for _, ka := range keyActions {
			if inpututil.IsKeyJustPressed(ka.key) {
				g.dispatch(ka.action)
			}
		}
	}
	g.stage.Drain()
	g.clock.Tick(1 / float64(g.tps))
	return nil
}

func (g *Game) dispatch(a render.Action) {
	started := g.requests.TryGo(func() error {
		if err := render.Perform(g.ctx, g.widget, a); err != nil {
			g.logger.Debug("Action failed", log.String("action", a.String()), log.Error(err))
		}
		return nil
	})
	if !started {
		g.logger.Debug("Dropped action while busy", log.String("action", a.String()))
	}
}

// Wait blocks until in-flight actions finish.
func (g *Game) Wait() {
	_ = g.requests.Wait()
}

func (g *Game) Draw(screen *ebiten.Image) {
	for _, id := range []scene.LayerID{scene.LayerStatic, scene.LayerDynamic} {
		for _, s := range g.scene.Shapes(id) {
			if render.Visible(s) {
				drawShape(screen, s)
			}
		}
	}

	ebitenutil.DebugPrintAt(screen, g.widget.Title(), 8, 8)
	ebitenutil.DebugPrintAt(screen, g.stage.Status(), 8, 24)
	if g.controls {
		_, h := g.scene.Size()
		ebitenutil.DebugPrintAt(screen, helpLine, 8, int(h)-20)
	}
	if data := g.stage.Data(); data != "" {
		w, _ := g.scene.Size()
		ebitenutil.DebugPrintAt(screen, clip(data, 24), int(w)-220, 8)
	}
}

func clip(text string, lines int) string {
	parts := strings.SplitN(text, "\n", lines+1)
	if len(parts) > lines {
		parts = append(parts[:lines], "...")
	}
	return strings.Join(parts, "\n")
}

func (g *Game) Layout(_, _ int) (int, int) {
	w, h := g.scene.Size()
	return int(w), int(h)
}

func drawShape(dst *ebiten.Image, s *retained.Shape) {
	style := s.Style()
	fill := render.Tint(style.Fill, s.Opacity())
	stroke := render.Tint(style.Stroke, s.Opacity())
	strokeWidth := float32(style.LineWidth)
	showStroke := !style.NoStroke && strokeWidth > 0

	if s.Kind() == retained.KindCircle {
		c := s.Translation()
		vector.FillCircle(dst, float32(c.X), float32(c.Y), float32(s.Radius()), fill, true)
		if showStroke {
			vector.StrokeCircle(dst, float32(c.X), float32(c.Y), float32(s.Radius()), strokeWidth, stroke, true)
		}
		return
	}

	outline := render.Outline(s)
	if len(outline) < 2 {
		return
	}
	var path vector.Path
	path.MoveTo(float32(outline[0].X), float32(outline[0].Y))
	for _, p := range outline[1:] {
		path.LineTo(float32(p.X), float32(p.Y))
	}
	if s.Kind() == retained.KindRectangle || s.Closed() {
		path.Close()
		vector.FillPath(dst, &path, nil, pathOptions(fill))
	}
	if showStroke {
		vector.StrokePath(dst, &path, &vector.StrokeOptions{Width: strokeWidth}, pathOptions(stroke))
	}
}

func pathOptions(c color.NRGBA) *vector.DrawPathOptions {
	op := &vector.DrawPathOptions{AntiAlias: true}
	op.ColorScale.ScaleWithColor(c)
	return op
}

// Run opens the window and blocks until it is closed or ctx is done.
func Run(g *Game, title string) error {
	w, h := g.scene.Size()
	ebiten.SetWindowSize(int(w), int(h))
	ebiten.SetWindowTitle(title)
	ebiten.SetTPS(g.tps)
	defer g.Wait()
	return ebiten.RunGame(g)
}
