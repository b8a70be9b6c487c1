package engine

import (
	"encoding/json"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/zeusync/simview/internal/core/observability/log"
	"github.com/zeusync/simview/internal/core/protocol"
	"github.com/zeusync/simview/internal/core/scene"
)

var (
	BackgroundStyle = scene.Style{Fill: scene.Hex("#fafafa"), NoStroke: true}
	PlayerStyle     = scene.Style{Fill: scene.Hex("#e44"), NoStroke: true}
	SensorDotStyle  = scene.Style{Fill: scene.Hex("#ff00ffff"), NoStroke: true}
	ProjectileStyle = scene.Style{Fill: scene.Hex("#00f"), NoStroke: true}

	outline     = scene.Hex("#333")
	shapeStyles = map[protocol.ShapeKind]scene.Style{
		protocol.ShapeRectangle: {Fill: scene.Hex("#ccc"), Stroke: outline, LineWidth: 1},
		protocol.ShapeTriangle:  {Fill: scene.Hex("#ddd"), Stroke: outline, LineWidth: 1},
		protocol.ShapePolygon:   {Fill: scene.Hex("#ddd"), Stroke: outline, LineWidth: 1},
		protocol.ShapeGoal:      {Fill: scene.Hex("#0f0"), Stroke: outline, LineWidth: 1},
	}
)

// ShapeStyle returns the style for a known shape kind.
func ShapeStyle(kind protocol.ShapeKind) (scene.Style, bool) {
	st, ok := shapeStyles[kind]
	return st, ok
}

// ReconcileResult summarizes one Apply.
type ReconcileResult struct {
	Drawn     int
	Skipped   int
	Unchanged bool
}

// Reconciler owns the static layer: background and map geometry. Each new
// snapshot replaces the layer wholesale; the dynamic layer is never touched.
type Reconciler struct {
	layer       scene.Layer
	width       float64
	height      float64
	fingerprint uint64
	applied     bool
	drawn       int
	logger      log.Log
}

func NewReconciler(layer scene.Layer, width, height float64, logger log.Log) *Reconciler {
	return &Reconciler{
		layer:  layer,
		width:  width,
		height: height,
		logger: log.Ensure(logger).With(log.String("component", "reconciler")),
	}
}

type drawOp func(layer scene.Layer)

// Apply validates and plans the whole snapshot before clearing anything, so
// a rejected snapshot leaves the previous geometry in place. A snapshot
// identical to the last applied one is not redrawn.
func (r *Reconciler) Apply(snap *protocol.MapSnapshot) (ReconcileResult, error) {
	if err := snap.Validate(); err != nil {
		return ReconcileResult{}, err
	}

	sum, hashed := fingerprint(snap)
	if hashed && r.applied && sum == r.fingerprint {
		return ReconcileResult{Drawn: r.drawn, Unchanged: true}, nil
	}

	ops := make([]drawOp, 0, len(snap.Shapes))
	skipped := 0
	for i, shape := range snap.Shapes {
		op, err := planShape(shape)
		if err != nil {
			skipped++
			r.logger.Warn("Skipping map shape",
				log.Int("index", i),
				log.String("type", shape.TypeName),
				log.Error(err))
			continue
		}
		ops = append(ops, op)
	}

	r.layer.Clear()
	bg := r.layer.MakeRectangle(scene.Vec2{X: r.width / 2, Y: r.height / 2}, r.width, r.height)
	bg.SetStyle(BackgroundStyle)
	for _, op := range ops {
		op(r.layer)
	}

	r.fingerprint, r.applied, r.drawn = sum, hashed, len(ops)
	r.logger.Debug("Map reconciled",
		log.String("name", snap.Name),
		log.Int("shapes", len(ops)),
		log.Int("skipped", skipped))
	return ReconcileResult{Drawn: len(ops), Skipped: skipped}, nil
}

// Reset clears the static layer and forgets the last snapshot.
func (r *Reconciler) Reset() {
	r.layer.Clear()
	r.fingerprint, r.applied, r.drawn = 0, false, 0
}

// fingerprint hashes the canonical encoding. Snapshots that cannot be
// encoded (non-finite coordinates) are never treated as unchanged.
func fingerprint(snap *protocol.MapSnapshot) (uint64, bool) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(raw), true
}

type shapePlanner func(protocol.Shape, scene.Style) (drawOp, error)

var planners = map[protocol.ShapeKind]shapePlanner{
	protocol.ShapeRectangle: planRect,
	protocol.ShapeGoal:      planRect,
	protocol.ShapeTriangle:  planPath,
	protocol.ShapePolygon:   planPath,
}

func planShape(shape protocol.Shape) (drawOp, error) {
	if err := shape.Err(); err != nil {
		return nil, err
	}
	plan, ok := planners[shape.Kind]
	if !ok {
		return nil, errors.Wrapf(protocol.ErrUnknownShape, "%q", shape.TypeName)
	}
	return plan(shape, shapeStyles[shape.Kind])
}

func planRect(shape protocol.Shape, style scene.Style) (drawOp, error) {
	if !finite(shape.X, shape.Y, shape.Width, shape.Height, shape.Angle) || shape.Width <= 0 || shape.Height <= 0 {
		return nil, errors.Wrapf(protocol.ErrInvalidShape, "%s geometry", shape.Kind)
	}
	center := scene.Vec2{X: shape.X, Y: shape.Y}
	rotation := shape.Angle * math.Pi / 180
	return func(layer scene.Layer) {
		h := layer.MakeRectangle(center, shape.Width, shape.Height)
		h.SetRotation(rotation)
		h.SetStyle(style)
	}, nil
}

func planPath(shape protocol.Shape, style scene.Style) (drawOp, error) {
	if len(shape.Vertices) < 3 {
		return nil, errors.Wrapf(protocol.ErrInvalidShape, "%s needs 3 vertices, got %d", shape.Kind, len(shape.Vertices))
	}
	points := make([]scene.Vec2, len(shape.Vertices))
	for i, v := range shape.Vertices {
		points[i] = scene.Vec2{X: v.X, Y: v.Y}
	}
	return func(layer scene.Layer) {
		h := layer.MakePath(points, true)
		h.SetStyle(style)
	}, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func validPPM(ppm float64) bool {
	return ppm > 0 && finite(ppm)
}
