// Package engine keeps a retained scene in sync with sparse state snapshots
// and animates the gaps between them. A Stage is the per-widget context: it
// owns the entity registry, the transient sets, the clock binder and the
// current scale, and nothing in the package is global.
//
// A Stage is not safe for concurrent use. Work produced on other goroutines
// is handed over with Post and applied by Drain on the frame goroutine.
package engine

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zeusync/simview/internal/core/observability/log"
	"github.com/zeusync/simview/internal/core/protocol"
	"github.com/zeusync/simview/internal/core/scene"
)

// Entity keys and transient classes.
const (
	PlayerKey       = "player"
	SensorClass     = "sensor-dot"
	ProjectileClass = "projectile"
)

const (
	sensorDotRadius  = 3
	projectileRadius = 4
)

// Options tunes a Stage.
type Options struct {
	// Speed is the interpolation rate in 1/s.
	Speed float64
	// NominalFrame is used when the clock reports no usable delta.
	NominalFrame float64
	PlayerRadius float64

	SensorPolicy       Policy
	SensorDuration     float64
	ProjectilePolicy   Policy
	ProjectileDuration float64

	// Mailbox is the capacity of the Post queue.
	Mailbox int
}

// DefaultOptions fades sensor hits over half a second and keeps superseded
// projectiles for a tenth of a second.
func DefaultOptions() Options {
	return Options{
		Speed:              DefaultSpeed,
		NominalFrame:       NominalFrame,
		PlayerRadius:       10,
		SensorPolicy:       PolicyFade,
		SensorDuration:     0.5,
		ProjectilePolicy:   PolicyReplace,
		ProjectileDuration: 0.1,
		Mailbox:            64,
	}
}

type resultHandler func(s *Stage, data json.RawMessage) error

// Stage is the synchronization context of one widget.
type Stage struct {
	id     string
	scene  scene.Scene
	opts   Options
	logger log.Log

	ppm          float64
	registry     *Registry
	interpolator Interpolator
	sensors      *TransientSet
	projectiles  *TransientSet
	binder       *Binder
	reconciler   *Reconciler
	handlers     map[protocol.ResultType]resultHandler

	status  string
	data    string
	mailbox chan func()
}

// NewStage wires a Stage to a scene and its frame clock.
func NewStage(sc scene.Scene, clock scene.Clock, opts Options, logger log.Log) *Stage {
	if opts.Mailbox <= 0 {
		opts.Mailbox = DefaultOptions().Mailbox
	}
	if opts.NominalFrame <= 0 {
		opts.NominalFrame = NominalFrame
	}

	id := uuid.NewString()
	width, height := sc.Size()
	logger = log.Ensure(logger).With(log.String("stage", id))

	s := &Stage{
		id:           id,
		scene:        sc,
		opts:         opts,
		logger:       logger.With(log.String("component", "stage")),
		ppm:          protocol.DefaultPPM,
		registry:     NewRegistry(sc.Layer(scene.LayerDynamic)),
		interpolator: Interpolator{Speed: opts.Speed, Nominal: opts.NominalFrame},
		binder:       NewBinder(clock),
		reconciler:   NewReconciler(sc.Layer(scene.LayerStatic), width, height, logger),
		mailbox:      make(chan func(), opts.Mailbox),
	}
	s.sensors = NewTransientSet(SensorClass, opts.SensorPolicy, opts.SensorDuration, s.registry,
		circleSpawner(sensorDotRadius, SensorDotStyle))
	s.projectiles = NewTransientSet(ProjectileClass, opts.ProjectilePolicy, opts.ProjectileDuration, s.registry,
		circleSpawner(projectileRadius, ProjectileStyle))
	s.handlers = map[protocol.ResultType]resultHandler{
		protocol.ResultSensor: (*Stage).handleSensor,
		protocol.ResultStep:   (*Stage).handleStep,
		protocol.ResultFire:   (*Stage).handleFire,
	}
	return s
}

func circleSpawner(radius float64, style scene.Style) Spawner {
	return func(layer scene.Layer, pos scene.Vec2) scene.Handle {
		h := layer.MakeCircle(pos, radius)
		h.SetStyle(style)
		return h
	}
}

func (s *Stage) ID() string                 { return s.id }
func (s *Stage) Scene() scene.Scene         { return s.scene }
func (s *Stage) PPM() float64               { return s.ppm }
func (s *Stage) Registry() *Registry        { return s.registry }
func (s *Stage) Sensors() *TransientSet     { return s.sensors }
func (s *Stage) Projectiles() *TransientSet { return s.projectiles }
func (s *Stage) Binder() *Binder            { return s.binder }
func (s *Stage) Status() string             { return s.status }
func (s *Stage) Data() string               { return s.data }

// Entity looks up a dynamic entity by key.
func (s *Stage) Entity(key string) (*Entity, bool) {
	return s.registry.Get(key)
}

// SetStatus replaces the status line.
func (s *Stage) SetStatus(status string) {
	s.status = status
}

// SetData keeps v as indented JSON for the data pane. Raw JSON is
// re-indented; values that cannot be encoded leave the pane unchanged.
func (s *Stage) SetData(v any) {
	var out []byte
	switch raw := v.(type) {
	case json.RawMessage:
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			s.logger.Warn("Data pane payload is not JSON", log.Error(err))
			return
		}
		out = buf.Bytes()
	default:
		encoded, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			s.logger.Warn("Data pane payload not encodable", log.Error(err))
			return
		}
		out = encoded
	}
	s.data = string(out)
}

// ApplyMap reconciles the static layer and then adopts the snapshot scale,
// DefaultPPM when the snapshot has none. A rejected snapshot changes nothing.
func (s *Stage) ApplyMap(snap *protocol.MapSnapshot) error {
	snap.Normalize()
	res, err := s.reconciler.Apply(snap)
	if err != nil {
		s.logger.Warn("Map snapshot rejected", log.Error(err))
		return err
	}
	if validPPM(snap.PPM) {
		s.ppm = snap.PPM
		s.registry.SetPPM(snap.PPM)
	}
	s.logger.Debug("Map applied",
		log.Int("drawn", res.Drawn),
		log.Int("skipped", res.Skipped),
		log.Bool("unchanged", res.Unchanged),
		log.Float64("ppm", s.ppm))
	s.scene.Update()
	return nil
}

// ApplyPlayer moves the agent toward p. An unrecognizable position is
// skipped and reported false.
func (s *Stage) ApplyPlayer(p *protocol.Player) bool {
	pos, ok := p.Location()
	if !ok {
		s.logger.Warn("Ignoring player update without a usable position")
		return false
	}
	s.registry.Upsert(PlayerKey, pos, s.spawnPlayer)
	s.animate(PlayerKey)
	s.scene.Update()
	return true
}

func (s *Stage) spawnPlayer(layer scene.Layer, pos scene.Vec2) scene.Handle {
	h := layer.MakeCircle(pos, s.opts.PlayerRadius)
	h.SetStyle(PlayerStyle)
	return h
}

// animate flags the entity for interpolation and makes sure the shared
// motion callback is registered.
func (s *Stage) animate(key string) {
	s.binder.EnsureBound(Capability{Scope: ScopeScene, Kind: KindMotion}, s.stepMotion)
	if s.registry.MarkBound(key) {
		s.logger.Debug("Entity animated", log.String("key", key))
	}
}

// ApplySensor replaces the sensor hit markers with points (meters).
func (s *Stage) ApplySensor(points []protocol.Point) {
	s.sensors.Replace(points)
	s.bindFade()
	s.scene.Update()
}

// ApplyProjectiles replaces the projectile markers with points (meters).
func (s *Stage) ApplyProjectiles(points []protocol.Point) {
	s.projectiles.Replace(points)
	s.bindFade()
	s.scene.Update()
}

func (s *Stage) bindFade() {
	s.binder.EnsureBound(Capability{Scope: ScopeScene, Kind: KindFade}, s.advanceTransients)
}

// ApplyEnv applies the map first so the agent is placed with the new scale.
func (s *Stage) ApplyEnv(env *protocol.Env) error {
	if env == nil {
		return errors.Wrap(protocol.ErrMissingPayload, "environment")
	}
	if err := s.ApplyMap(env.Map); err != nil {
		return err
	}
	if agent := env.Agent(); agent != nil {
		s.ApplyPlayer(agent)
	}
	return nil
}

// HandleResult dispatches a pushed result event by type. Unknown types are
// logged and leave the scene untouched.
func (s *Stage) HandleResult(ev protocol.ResultEvent) error {
	handle, ok := s.handlers[ev.Type]
	if !ok {
		s.logger.Warn("Unknown result type", log.String("type", ev.TypeName))
		return errors.Wrapf(protocol.ErrUnknownResultType, "%q", ev.TypeName)
	}
	return handle(s, ev.Data)
}

func (s *Stage) handleSensor(data json.RawMessage) error {
	var reading protocol.SensorReading
	if hasPayload(data) {
		if err := json.Unmarshal(data, &reading); err != nil {
			s.logger.Warn("Malformed sensor payload", log.Error(err))
			return errors.Wrap(protocol.ErrDeserializeFailed, err.Error())
		}
	}
	points, skipped := reading.Points()
	if skipped > 0 {
		s.logger.Warn("Skipped sensor hits", log.Int("count", skipped))
	}
	s.ApplySensor(points)
	return nil
}

func (s *Stage) handleStep(data json.RawMessage) error {
	if !hasPayload(data) {
		s.logger.Warn("Step event without payload")
		return errors.Wrap(protocol.ErrMissingPayload, "step")
	}
	var step protocol.StepResult
	if err := json.Unmarshal(data, &step); err != nil {
		s.logger.Warn("Malformed step payload", log.Error(err))
		return err
	}
	if agent := step.Agent(); agent != nil {
		s.ApplyPlayer(agent)
	}
	points, skipped := protocol.ParsePoints(step.Projectiles)
	if skipped > 0 {
		s.logger.Warn("Skipped projectiles", log.Int("count", skipped))
	}
	s.ApplyProjectiles(points)
	return nil
}

func (s *Stage) handleFire(data json.RawMessage) error {
	var fire protocol.FireResult
	if hasPayload(data) {
		if err := json.Unmarshal(data, &fire); err != nil {
			s.logger.Warn("Malformed fire payload", log.Error(err))
			return errors.Wrap(protocol.ErrDeserializeFailed, err.Error())
		}
	}
	var points []protocol.Point
	if pt, ok := protocol.ParsePoint(fire.Pos); ok {
		points = append(points, pt)
	}
	s.ApplyProjectiles(points)
	return nil
}

func hasPayload(data json.RawMessage) bool {
	d := bytes.TrimSpace(data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

func (s *Stage) stepMotion(_ uint64, dt float64) {
	s.interpolator.Step(s.registry, dt)
}

func (s *Stage) advanceTransients(frame uint64, dt float64) {
	dt = SanitizeDT(dt, s.opts.NominalFrame)
	s.sensors.Advance(frame, dt)
	s.projectiles.Advance(frame, dt)
}

// Reset drops every drawable and returns to the default scale. Clock
// registrations stay in place.
func (s *Stage) Reset() {
	s.sensors.Clear()
	s.projectiles.Clear()
	s.registry.Clear()
	s.reconciler.Reset()
	s.ppm = protocol.DefaultPPM
	s.registry.SetPPM(s.ppm)
	s.status, s.data = "", ""
	s.scene.Update()
}

// Post queues fn to run on the frame goroutine. It blocks while the mailbox
// is full and gives up when ctx is done.
func (s *Stage) Post(ctx context.Context, fn func()) error {
	select {
	case s.mailbox <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain runs every queued function and returns how many ran. It must be
// called from the goroutine that drives the clock, before each tick.
func (s *Stage) Drain() int {
	n := 0
	for {
		select {
		case fn := <-s.mailbox:
			fn()
			n++
		default:
			return n
		}
	}
}
