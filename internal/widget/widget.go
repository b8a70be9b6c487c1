// Package widget drives an engine.Stage from either a request/response
// backend or a host model that pushes state. Network I/O runs on the
// caller's goroutine; every effect on the Stage is posted to its mailbox and
// applied on the frame goroutine.
package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"

	"github.com/pkg/errors"

	"github.com/zeusync/simview/internal/core/engine"
	"github.com/zeusync/simview/internal/core/events/bus"
	"github.com/zeusync/simview/internal/core/hostmodel"
	"github.com/zeusync/simview/internal/core/observability/log"
	"github.com/zeusync/simview/internal/core/protocol"
)

// Status lines.
const (
	StatusLoading     = "Loading map..."
	StatusLoaded      = "Map loaded."
	StatusLoadFailed  = "Failed to load environment."
	StatusSensorOK    = "Sensor data received."
	StatusStepped     = "Stepped."
	StatusStepFailed  = "Step failed."
	StatusResetFailed = "Reset failed."
)

// Transport is the request/response side of a backend.
type Transport interface {
	Env(ctx context.Context) (*protocol.Env, error)
	Move(ctx context.Context, cmd protocol.MoveCommand) error
	Sensor(ctx context.Context, cmd protocol.SensorCommand) (*protocol.SensorReading, json.RawMessage, error)
	// Step calls fn once per player document the backend produces.
	Step(ctx context.Context, cmd protocol.StepCommand, fn func(json.RawMessage) error) (int, error)
	Reset(ctx context.Context) error
}

// Widget is one viewer bound to one Stage.
type Widget struct {
	title     string
	stage     *engine.Stage
	transport Transport
	logger    log.Log
	form      map[string]string
}

// New creates a widget. transport may be nil for a model-driven widget.
func New(title string, stage *engine.Stage, transport Transport, logger log.Log) *Widget {
	return &Widget{
		title:     title,
		stage:     stage,
		transport: transport,
		logger:    log.Ensure(logger).With(log.String("component", "widget"), log.String("stage", stage.ID())),
		form:      protocol.DefaultSensorForm(),
	}
}

func (w *Widget) Title() string        { return w.title }
func (w *Widget) Stage() *engine.Stage { return w.stage }

// SensorForm returns a copy of the current sensor form values.
func (w *Widget) SensorForm() map[string]string {
	return maps.Clone(w.form)
}

// SetSensorField changes one sensor form entry. The value is parsed only when
// a scan is sent.
func (w *Widget) SetSensorField(field, value string) {
	w.form[field] = value
}

func (w *Widget) post(ctx context.Context, fn func()) error {
	return w.stage.Post(ctx, fn)
}

func (w *Widget) status(ctx context.Context, msg string) error {
	return w.post(ctx, func() { w.stage.SetStatus(msg) })
}

// Load fetches the environment and replaces the map and the agent.
func (w *Widget) Load(ctx context.Context) error {
	if w.transport == nil {
		return ErrNoTransport
	}
	if err := w.status(ctx, StatusLoading); err != nil {
		return err
	}

	env, err := w.transport.Env(ctx)
	if err != nil {
		w.logger.Error("Environment request failed", log.Error(err))
		if perr := w.status(ctx, StatusLoadFailed); perr != nil {
			return perr
		}
		return errors.Wrap(err, "load environment")
	}

	return w.post(ctx, func() {
		if err := w.stage.ApplyEnv(env); err != nil {
			w.stage.SetStatus(StatusLoadFailed)
			return
		}
		w.stage.SetStatus(StatusLoaded)
	})
}

// ShowMap draws a snapshot that did not come from the backend, such as a
// local map file.
func (w *Widget) ShowMap(ctx context.Context, snap *protocol.MapSnapshot) error {
	return w.post(ctx, func() {
		if err := w.stage.ApplyMap(snap); err != nil {
			w.stage.SetStatus(StatusLoadFailed)
			return
		}
		w.stage.SetStatus(StatusLoaded)
	})
}

// Move asks the backend to drive the agent along (x, y). The agent itself
// moves when the next position arrives.
func (w *Widget) Move(ctx context.Context, x, y float64) error {
	if w.transport == nil {
		return ErrNoTransport
	}
	if err := w.transport.Move(ctx, protocol.MoveCommand{X: x, Y: y}); err != nil {
		w.logger.Error("Move request failed", log.Error(err))
		if perr := w.status(ctx, "Move failed: "+err.Error()); perr != nil {
			return perr
		}
		return errors.Wrap(err, "move")
	}
	return w.status(ctx, fmt.Sprintf("Moved (%s, %s)", formatCoord(x), formatCoord(y)))
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Sensor requests a scan with the current form values and shows the hits.
func (w *Widget) Sensor(ctx context.Context) error {
	if w.transport == nil {
		return ErrNoTransport
	}
	cmd := protocol.ParseSensorForm(w.form)
	reading, raw, err := w.transport.Sensor(ctx, cmd)
	if err != nil {
		w.logger.Error("Sensor request failed", log.Error(err))
		if perr := w.status(ctx, "Sensor failed: "+err.Error()); perr != nil {
			return perr
		}
		return errors.Wrap(err, "sensor")
	}

	points, skipped := reading.Points()
	if skipped > 0 {
		w.logger.Warn("Skipped sensor hits", log.Int("count", skipped))
	}
	return w.post(ctx, func() {
		w.stage.ApplySensor(points)
		w.stage.SetData(raw)
		w.stage.SetStatus(StatusSensorOK)
	})
}

// Step advances the simulation. Streamed backends deliver several player
// documents; each one retargets the agent as it arrives.
func (w *Widget) Step(ctx context.Context, steps int) error {
	if w.transport == nil {
		return ErrNoTransport
	}
	n, err := w.transport.Step(ctx, protocol.StepCommand{NumSteps: steps}, func(doc json.RawMessage) error {
		var step protocol.StepResult
		if err := json.Unmarshal(doc, &step); err != nil {
			return err
		}
		return w.post(ctx, func() { w.applyStep(&step, doc) })
	})
	if err != nil {
		w.logger.Error("Step request failed", log.Error(err), log.Int("documents", n))
		if perr := w.status(ctx, StatusStepFailed); perr != nil {
			return perr
		}
		return errors.Wrap(err, "step")
	}
	w.logger.Debug("Stepped", log.Int("documents", n))
	return w.status(ctx, StatusStepped)
}

func (w *Widget) applyStep(step *protocol.StepResult, doc json.RawMessage) {
	agent := step.Agent()
	if agent != nil {
		w.stage.ApplyPlayer(agent)
	}
	if step.Projectiles != nil {
		points, skipped := protocol.ParsePoints(step.Projectiles)
		if skipped > 0 {
			w.logger.Warn("Skipped projectiles", log.Int("count", skipped))
		}
		w.stage.ApplyProjectiles(points)
	}
	if agent != nil {
		w.stage.SetData(agent)
		return
	}
	w.stage.SetData(doc)
}

// Reset resets the backend, drops every drawable and reloads the
// environment.
func (w *Widget) Reset(ctx context.Context) error {
	if w.transport == nil {
		return ErrNoTransport
	}
	if err := w.transport.Reset(ctx); err != nil {
		w.logger.Error("Reset request failed", log.Error(err))
		if perr := w.status(ctx, StatusResetFailed); perr != nil {
			return perr
		}
		return errors.Wrap(err, "reset")
	}
	if err := w.post(ctx, w.stage.Reset); err != nil {
		return err
	}
	return w.Load(ctx)
}

// BindModel follows env_map, player_data and result on m. Values already
// present are applied first. The returned function removes the
// subscriptions.
func (w *Widget) BindModel(ctx context.Context, m *hostmodel.Model) (func(), error) {
	if m == nil {
		return nil, ErrNoModel
	}

	handlers := []struct {
		key   string
		apply func(json.RawMessage)
	}{
		{hostmodel.KeyEnvMap, w.applyMapValue},
		{hostmodel.KeyPlayerData, w.applyPlayerValue},
		{hostmodel.KeyResult, w.applyResultValue},
	}

	var subs []bus.Subscription
	unbind := func() {
		for _, s := range subs {
			_ = s.Cancel()
		}
	}

	for _, h := range handlers {
		apply := h.apply
		sub, err := m.On(hostmodel.ChangeEvent(h.key), func(c hostmodel.Change) {
			if err := w.post(ctx, func() { apply(c.Value) }); err != nil {
				w.logger.Warn("Dropped model change", log.String("key", c.Key), log.Error(err))
			}
		})
		if err != nil {
			unbind()
			return nil, errors.Wrapf(err, "subscribe %s", h.key)
		}
		subs = append(subs, sub)
	}

	// result is an event, not state: only env_map and player_data replay
	for _, h := range handlers[:2] {
		if value := m.Get(h.key); value != nil {
			apply := h.apply
			if err := w.post(ctx, func() { apply(value) }); err != nil {
				unbind()
				return nil, err
			}
		}
	}

	w.logger.Info("Bound to host model", log.String("topic", m.Topic()))
	return unbind, nil
}

func (w *Widget) applyMapValue(raw json.RawMessage) {
	var snap protocol.MapSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		w.logger.Warn("Malformed map value", log.Error(err))
		return
	}
	if err := w.stage.ApplyMap(&snap); err != nil {
		return
	}
	w.stage.SetStatus(StatusLoaded)
}

func (w *Widget) applyPlayerValue(raw json.RawMessage) {
	var p protocol.Player
	if err := json.Unmarshal(raw, &p); err != nil {
		w.logger.Warn("Malformed player value", log.Error(err))
		return
	}
	w.stage.ApplyPlayer(&p)
}

func (w *Widget) applyResultValue(raw json.RawMessage) {
	var ev protocol.ResultEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		w.logger.Warn("Malformed result event", log.Error(err))
		return
	}
	if err := w.stage.HandleResult(ev); err != nil {
		w.logger.Debug("Result event not applied", log.String("type", ev.TypeName), log.Error(err))
		return
	}
	if ev.HasData() {
		w.stage.SetData(ev.Data)
	}
}
