// Package render holds the backend-neutral half of the viewer: the control
// actions a user can trigger and the geometry a renderer needs to paint a
// retained scene.
package render

import (
	"context"
	"image/color"

	"github.com/zeusync/simview/internal/core/scene"
	"github.com/zeusync/simview/internal/core/scene/retained"
	"github.com/zeusync/simview/internal/widget"
)

// Action is a user control.
type Action uint8

const (
	ActionNone Action = iota
	ActionMoveLeft
	ActionMoveRight
	ActionMoveUp
	ActionMoveDown
	ActionSensor
	ActionStep
	ActionReset
)

var actionNames = map[Action]string{
	ActionMoveLeft:  "move-left",
	ActionMoveRight: "move-right",
	ActionMoveUp:    "move-up",
	ActionMoveDown:  "move-down",
	ActionSensor:    "sensor",
	ActionStep:      "step",
	ActionReset:     "reset",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "none"
}

// moveDeltas are unit steps in screen orientation, y down.
var moveDeltas = map[Action][2]float64{
	ActionMoveLeft:  {-1, 0},
	ActionMoveRight: {1, 0},
	ActionMoveUp:    {0, -1},
	ActionMoveDown:  {0, 1},
}

// Perform runs the widget operation bound to a. It blocks on network I/O
// and must not be called from the frame goroutine.
func Perform(ctx context.Context, w *widget.Widget, a Action) error {
	if d, ok := moveDeltas[a]; ok {
		return w.Move(ctx, d[0], d[1])
	}
	switch a {
	case ActionSensor:
		return w.Sensor(ctx)
	case ActionStep:
		return w.Step(ctx, 1)
	case ActionReset:
		return w.Reset(ctx)
	default:
		return nil
	}
}

// Tint applies opacity to c's alpha.
func Tint(c color.NRGBA, opacity float64) color.NRGBA {
	opacity = min(max(opacity, 0), 1)
	c.A = uint8(float64(c.A)*opacity + 0.5)
	return c
}

// Outline returns the polygon of a rectangle or path in pixel space, with
// rotation and translation applied. Circles have no outline.
func Outline(s *retained.Shape) []scene.Vec2 {
	switch s.Kind() {
	case retained.KindRectangle:
		w, h := s.Size()
		corners := scene.RectCorners(s.Translation(), w, h, s.Rotation())
		return corners[:]
	case retained.KindPath:
		rel := s.Points()
		out := make([]scene.Vec2, len(rel))
		for i, p := range rel {
			out[i] = p.Rotate(s.Rotation()).Add(s.Translation())
		}
		return out
	default:
		return nil
	}
}

// Visible reports whether s contributes any pixels.
func Visible(s *retained.Shape) bool {
	return !s.Released() && s.Opacity() > 0
}
