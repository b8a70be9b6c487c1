package engine

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/simview/internal/core/observability/log"
	"github.com/zeusync/simview/internal/core/protocol"
	"github.com/zeusync/simview/internal/core/scene"
	"github.com/zeusync/simview/internal/core/scene/retained"
)

type fixture struct {
	scene *retained.Scene
	clock *retained.Clock
	stage *Stage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sc := retained.New(800, 600)
	clock := retained.NewClock()
	return &fixture{
		scene: sc,
		clock: clock,
		stage: NewStage(sc, clock, DefaultOptions(), log.NewNop()),
	}
}

func mustMap(t *testing.T, raw string) *protocol.MapSnapshot {
	t.Helper()
	snap, err := protocol.LoadMap(strings.NewReader(raw))
	require.NoError(t, err)
	return snap
}

func TestMapThenPositionScenario(t *testing.T) {
	f := newFixture(t)
	snap := mustMap(t, `{"ppm":10,"shapes":[{"type":"rectangle","x":100,"y":100,"width":20,"height":10}]}`)
	require.NoError(t, f.stage.ApplyMap(snap))

	static := f.scene.Shapes(scene.LayerStatic)
	require.Len(t, static, 2, "background plus one rectangle")
	assert.Equal(t, BackgroundStyle, static[0].Style())
	rect := static[1]
	assert.Equal(t, retained.KindRectangle, rect.Kind())
	assert.Equal(t, scene.Vec2{X: 100, Y: 100}, rect.Translation())
	style, _ := ShapeStyle(protocol.ShapeRectangle)
	assert.Equal(t, style, rect.Style())

	var player protocol.Player
	require.NoError(t, json.Unmarshal([]byte(`{"position":[5,5]}`), &player))
	require.True(t, f.stage.ApplyPlayer(&player))

	e, ok := f.stage.Entity(PlayerKey)
	require.True(t, ok)
	assert.Equal(t, scene.Vec2{X: 50, Y: 50}, e.Target)
	assert.True(t, e.Bound)
}

func TestSensorBatchScenario(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.stage.ApplyMap(mustMap(t, `{"ppm":10,"shapes":[]}`)))

	ev := protocol.ResultEvent{Type: protocol.ResultSensor, Data: json.RawMessage(`{"hit_points":[[1,0],[0,1]]}`)}
	require.NoError(t, f.stage.HandleResult(ev))

	items := f.stage.Sensors().Items()
	require.Len(t, items, 2)
	assert.Equal(t, scene.Vec2{X: 10, Y: 0}, items[0].Entity.Handle.Translation())
	assert.Equal(t, scene.Vec2{X: 0, Y: 10}, items[1].Entity.Handle.Translation())
	for _, it := range items {
		assert.Equal(t, 1.0, it.Opacity())
		assert.Zero(t, it.Elapsed)
	}
}

func TestUnknownEventLeavesSceneUntouched(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.stage.ApplyMap(mustMap(t, `{"ppm":10,"shapes":[{"type":"goal","x":5,"y":5,"width":2,"height":2}]}`)))
	f.stage.ApplyPlayer(protocol.NewPlayer(protocol.Point{X: 1, Y: 1}))

	staticBefore := f.scene.Shapes(scene.LayerStatic)
	dynamicBefore := f.scene.Shapes(scene.LayerDynamic)
	updates := f.scene.Updates()
	bindings := f.clock.Bindings()

	var ev protocol.ResultEvent
	require.NoError(t, json.Unmarshal([]byte(`{"type":"explode"}`), &ev))
	err := f.stage.HandleResult(ev)
	assert.ErrorIs(t, err, protocol.ErrUnknownResultType)

	assert.Equal(t, staticBefore, f.scene.Shapes(scene.LayerStatic))
	assert.Equal(t, dynamicBefore, f.scene.Shapes(scene.LayerDynamic))
	assert.Equal(t, updates, f.scene.Updates())
	assert.Equal(t, bindings, f.clock.Bindings())
}

func TestEnsureBoundFiresOncePerFrame(t *testing.T) {
	f := newFixture(t)
	calls := 0
	c := Capability{Scope: ScopeScene, Kind: KindMotion}
	for i := 0; i < 5; i++ {
		f.stage.Binder().EnsureBound(c, func(uint64, float64) { calls++ })
	}
	assert.Equal(t, 1, f.clock.Bindings())
	assert.True(t, f.stage.Binder().IsBound(c))

	f.clock.Tick(0.016)
	f.clock.Tick(0.016)
	assert.Equal(t, 2, calls)
}

func TestRepeatedUpdatesRegisterEachCallbackOnce(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		f.stage.ApplyPlayer(protocol.NewPlayer(protocol.Point{X: float64(i), Y: 0}))
		f.stage.ApplySensor([]protocol.Point{{X: 1, Y: 1}})
		f.stage.ApplyProjectiles([]protocol.Point{{X: 2, Y: 2}})
	}
	assert.Equal(t, 2, f.clock.Bindings(), "one motion and one fade callback")
	assert.Equal(t, 2, f.stage.Binder().Len())
	assert.Equal(t, 1, f.stage.Sensors().Len())
}

func TestFrameDrivesMotionAndFade(t *testing.T) {
	f := newFixture(t)
	f.stage.ApplyPlayer(protocol.NewPlayer(protocol.Point{}))
	f.stage.ApplyPlayer(protocol.NewPlayer(protocol.Point{X: 10, Y: 0}))
	f.stage.ApplySensor([]protocol.Point{{X: 1, Y: 1}})
	dotHandle := f.stage.Sensors().Items()[0].Entity.Handle

	f.clock.Tick(0.25)

	player, _ := f.stage.Entity(PlayerKey)
	assert.InDelta(t, 50, player.Current.X, 1e-9)
	assert.InDelta(t, 0.5, dotHandle.Opacity(), 1e-12)

	f.clock.Tick(0.25)
	assert.True(t, dotHandle.Released())
	assert.Zero(t, f.stage.Sensors().Len())
	assert.InDelta(t, 75, player.Current.X, 1e-9)
}

func TestNonNumericDeltaUsesNominalFrame(t *testing.T) {
	f := newFixture(t)
	f.stage.ApplyPlayer(protocol.NewPlayer(protocol.Point{}))
	f.stage.ApplyPlayer(protocol.NewPlayer(protocol.Point{X: 10}))
	f.stage.ApplySensor([]protocol.Point{{X: 1, Y: 1}})
	item := f.stage.Sensors().Items()[0]

	f.clock.Tick(math.NaN())

	player, _ := f.stage.Entity(PlayerKey)
	assert.InDelta(t, 100*DefaultSpeed*NominalFrame, player.Current.X, 1e-9)
	assert.InDelta(t, NominalFrame, item.Elapsed, 1e-12)
}

func TestStepEventForms(t *testing.T) {
	f := newFixture(t)

	wrapped := protocol.ResultEvent{Type: protocol.ResultStep,
		Data: json.RawMessage(`{"robot":{"pos":[2,3]},"projectiles":[[1,1],"bad",{"x":2,"y":2}]}`)}
	require.NoError(t, f.stage.HandleResult(wrapped))
	e, ok := f.stage.Entity(PlayerKey)
	require.True(t, ok)
	assert.Equal(t, scene.Vec2{X: 20, Y: 30}, e.Target)
	assert.Equal(t, 2, f.stage.Projectiles().Len())

	bare := protocol.ResultEvent{Type: protocol.ResultStep, Data: json.RawMessage(`{"pos":{"x":4,"y":5}}`)}
	require.NoError(t, f.stage.HandleResult(bare))
	assert.Equal(t, scene.Vec2{X: 40, Y: 50}, e.Target)
	assert.Zero(t, f.stage.Projectiles().Len())

	empty := protocol.ResultEvent{Type: protocol.ResultStep}
	assert.ErrorIs(t, f.stage.HandleResult(empty), protocol.ErrMissingPayload)
}

func TestFireEventFlashesOneProjectile(t *testing.T) {
	f := newFixture(t)
	ev := protocol.ResultEvent{Type: protocol.ResultFire, Data: json.RawMessage(`{"pos":[3,4]}`)}
	require.NoError(t, f.stage.HandleResult(ev))

	items := f.stage.Projectiles().Items()
	require.Len(t, items, 1)
	assert.Equal(t, scene.Vec2{X: 30, Y: 40}, items[0].Entity.Handle.Translation())
	assert.Equal(t, ProjectileStyle, items[0].Entity.Handle.Style())

	require.NoError(t, f.stage.HandleResult(protocol.ResultEvent{Type: protocol.ResultFire}))
	assert.Zero(t, f.stage.Projectiles().Len())
	assert.Equal(t, 1, f.stage.Projectiles().Retiring())
}

func TestInvalidPlayerPositionIsSkipped(t *testing.T) {
	f := newFixture(t)
	var p protocol.Player
	require.NoError(t, json.Unmarshal([]byte(`{"pos":"north"}`), &p))

	assert.False(t, f.stage.ApplyPlayer(&p))
	assert.False(t, f.stage.ApplyPlayer(nil))
	assert.Zero(t, f.stage.Registry().Len())
	assert.Zero(t, f.clock.Bindings())
}

func TestRejectedMapKeepsPreviousGeometryAndScale(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.stage.ApplyMap(mustMap(t, `{"ppm":20,"shapes":[{"type":"rectangle","x":1,"y":1,"width":1,"height":1}]}`)))
	before := f.scene.Shapes(scene.LayerStatic)

	err := f.stage.ApplyMap(&protocol.MapSnapshot{PPM: -1})
	assert.ErrorIs(t, err, protocol.ErrInvalidScale)
	assert.ErrorIs(t, f.stage.ApplyMap(nil), protocol.ErrInvalidSnapshot)

	assert.Equal(t, before, f.scene.Shapes(scene.LayerStatic))
	assert.Equal(t, 20.0, f.stage.PPM())
}

func TestMapReplacementLeavesDynamicLayerAlone(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.stage.ApplyMap(mustMap(t, `{"ppm":10,"shapes":[{"type":"rectangle","x":1,"y":1,"width":1,"height":1}]}`)))
	f.stage.ApplyPlayer(protocol.NewPlayer(protocol.Point{X: 1, Y: 1}))
	player, _ := f.stage.Entity(PlayerKey)

	next := mustMap(t, `{"ppm":5,"shapes":[
		{"type":"triangle","vertices":[[0,0],[10,0],[0,10]]},
		{"type":"polygon","vertices":[0,0,4,0,4,4,0,4]},
		{"type":"hexagon"},
		{"type":"rectangle","x":1,"y":1,"width":0,"height":1}
	]}`)
	require.NoError(t, f.stage.ApplyMap(next))

	static := f.scene.Shapes(scene.LayerStatic)
	require.Len(t, static, 3)
	assert.Equal(t, retained.KindPath, static[1].Kind())
	assert.Equal(t, retained.KindPath, static[2].Kind())
	assert.Len(t, static[2].Points(), 4)

	assert.False(t, player.Handle.Released())
	assert.Equal(t, 5.0, f.stage.PPM())

	f.stage.ApplyPlayer(protocol.NewPlayer(protocol.Point{X: 2, Y: 2}))
	assert.Equal(t, scene.Vec2{X: 10, Y: 10}, player.Target)
}

func TestIdenticalMapIsNotRedrawn(t *testing.T) {
	f := newFixture(t)
	raw := `{"ppm":10,"shapes":[{"type":"rectangle","x":1,"y":1,"width":1,"height":1}]}`
	require.NoError(t, f.stage.ApplyMap(mustMap(t, raw)))
	first := f.scene.Shapes(scene.LayerStatic)

	require.NoError(t, f.stage.ApplyMap(mustMap(t, raw)))
	second := f.scene.Shapes(scene.LayerStatic)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Same(t, first[i], second[i])
	}
}

func TestRectangleAngleBecomesRotation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.stage.ApplyMap(mustMap(t, `{"shapes":[{"type":"rectangle","x":1,"y":1,"width":2,"height":2,"angle":90}]}`)))
	static := f.scene.Shapes(scene.LayerStatic)
	require.Len(t, static, 2)
	assert.InDelta(t, 1.5707963, static[1].Rotation(), 1e-6)
	assert.Equal(t, protocol.DefaultPPM, f.stage.PPM())
}

func TestMalformedShapeIsSkippedNotFatal(t *testing.T) {
	cases := map[string]string{
		"bad vertex":    `{"type":"polygon","vertices":[[0,0],["x",1],[4,4]]}`,
		"odd flat list": `{"type":"polygon","vertices":[0,0,4,0,4]}`,
		"string x":      `{"type":"rectangle","x":"left","y":1,"width":2,"height":2}`,
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			snap := mustMap(t, `{"ppm":10,"shapes":[{"type":"rectangle","x":1,"y":1,"width":2,"height":2},`+bad+`]}`)
			require.Len(t, snap.Shapes, 2)

			res, err := f.stage.reconciler.Apply(snap)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Drawn)
			assert.Equal(t, 1, res.Skipped)

			static := f.scene.Shapes(scene.LayerStatic)
			require.Len(t, static, 2, "background plus the good rectangle")
			assert.Equal(t, retained.KindRectangle, static[1].Kind())
		})
	}
}

func TestMalformedShapeThroughApplyMap(t *testing.T) {
	f := newFixture(t)
	var env protocol.Env
	require.NoError(t, json.Unmarshal([]byte(`{"map":{"ppm":10,"shapes":[
		{"type":"rectangle","x":1,"y":1,"width":2,"height":2},
		{"type":"triangle","vertices":[[0,0],{"x":"a","y":0},[0,1]]}
	]},"player":{"pos":[1,1]}}`), &env))

	require.NoError(t, f.stage.ApplyEnv(&env))
	assert.Len(t, f.scene.Shapes(scene.LayerStatic), 2)
	_, ok := f.stage.Entity(PlayerKey)
	assert.True(t, ok)
}

func TestMissingScaleDefaultsOnEveryPath(t *testing.T) {
	f := newFixture(t)
	var env protocol.Env
	require.NoError(t, json.Unmarshal([]byte(`{"map":{"shapes":[]},"player":{"pos":[1,2]}}`), &env))
	require.NoError(t, f.stage.ApplyEnv(&env))
	assert.Equal(t, protocol.DefaultPPM, f.stage.PPM())

	e, ok := f.stage.Entity(PlayerKey)
	require.True(t, ok)
	assert.Equal(t, scene.Vec2{X: protocol.DefaultPPM, Y: 2 * protocol.DefaultPPM}, e.Current)

	var snap protocol.MapSnapshot
	require.NoError(t, json.Unmarshal([]byte(`{"shapes":[{"type":"goal","x":1,"y":1,"width":1,"height":1}]}`), &snap))
	require.NoError(t, f.stage.ApplyMap(&snap))
	assert.Equal(t, protocol.DefaultPPM, snap.PPM)
}

func TestApplyEnvPlacesAgentWithNewScale(t *testing.T) {
	f := newFixture(t)
	var env protocol.Env
	require.NoError(t, json.Unmarshal([]byte(`{"map":{"ppm":4,"shapes":[]},"player":{"pos":[1,2]}}`), &env))
	require.NoError(t, f.stage.ApplyEnv(&env))

	e, ok := f.stage.Entity(PlayerKey)
	require.True(t, ok)
	assert.Equal(t, scene.Vec2{X: 4, Y: 8}, e.Current)

	assert.ErrorIs(t, f.stage.ApplyEnv(nil), protocol.ErrMissingPayload)
	assert.ErrorIs(t, f.stage.ApplyEnv(&protocol.Env{}), protocol.ErrInvalidSnapshot)
}

func TestResetDropsEverything(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.stage.ApplyMap(mustMap(t, `{"ppm":20,"shapes":[]}`)))
	f.stage.ApplyPlayer(protocol.NewPlayer(protocol.Point{X: 1}))
	f.stage.ApplySensor([]protocol.Point{{X: 1}})
	f.stage.SetStatus("Map loaded.")

	f.stage.Reset()
	assert.Zero(t, f.scene.Layer(scene.LayerStatic).Len())
	assert.Zero(t, f.scene.Layer(scene.LayerDynamic).Len())
	assert.Zero(t, f.stage.Registry().Len())
	assert.Equal(t, protocol.DefaultPPM, f.stage.PPM())
	assert.Empty(t, f.stage.Status())

	// clock registrations survive and keep working
	f.stage.ApplyPlayer(protocol.NewPlayer(protocol.Point{X: 1}))
	f.clock.Tick(0.1)
	assert.Equal(t, 2, f.clock.Bindings())
}

func TestSetDataIndents(t *testing.T) {
	f := newFixture(t)
	f.stage.SetData(json.RawMessage(`{"a":1}`))
	assert.Equal(t, "{\n  \"a\": 1\n}", f.stage.Data())

	f.stage.SetData(map[string]int{"b": 2})
	assert.Equal(t, "{\n  \"b\": 2\n}", f.stage.Data())

	f.stage.SetData(json.RawMessage(`{broken`))
	assert.Equal(t, "{\n  \"b\": 2\n}", f.stage.Data())
}

func TestPostAndDrain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			_ = f.stage.Post(ctx, func() {
				f.stage.ApplyPlayer(protocol.NewPlayer(protocol.Point{X: 1}))
			})
		}
	}()
	<-done

	assert.Zero(t, f.stage.Registry().Len(), "nothing applied before drain")
	assert.Equal(t, 3, f.stage.Drain())
	assert.Equal(t, 1, f.stage.Registry().Len())
	assert.Zero(t, f.stage.Drain())
}

func TestPostGivesUpWhenContextDone(t *testing.T) {
	sc := retained.New(10, 10)
	opts := DefaultOptions()
	opts.Mailbox = 1
	st := NewStage(sc, retained.NewClock(), opts, nil)

	require.NoError(t, st.Post(context.Background(), func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, st.Post(ctx, func() {}), context.DeadlineExceeded)
}

func TestStagesAreIndependent(t *testing.T) {
	a, b := newFixture(t), newFixture(t)
	a.stage.ApplyPlayer(protocol.NewPlayer(protocol.Point{X: 1}))

	assert.NotEqual(t, a.stage.ID(), b.stage.ID())
	assert.Zero(t, b.stage.Registry().Len())
	assert.Zero(t, b.clock.Bindings())
}
