package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/simview/internal/core/observability/log"
	"github.com/zeusync/simview/internal/core/protocol"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{Endpoint: srv.URL}, log.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewClientConfig(t *testing.T) {
	_, err := NewClient(Config{Endpoint: "  "}, nil)
	assert.ErrorIs(t, err, ErrEmptyEndpoint)

	_, err = NewClient(Config{Endpoint: "x", Timeout: -1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c, err := NewClient(DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", c.BaseURL())

	c, err = NewClient(Config{Endpoint: "https://sim.local/", Scheme: "http"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://sim.local", c.BaseURL())
}

func TestEnv(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, PathEnv, r.URL.Path)
		_, _ = io.WriteString(w, `{"map":{"ppm":10,"shapes":[{"type":"goal","x":1,"y":2,"width":3,"height":4}]},"robot":{"pos":[1,2]}}`)
	}))

	env, err := c.Env(context.Background())
	require.NoError(t, err)
	require.NotNil(t, env.Map)
	assert.Equal(t, 10.0, env.Map.PPM)
	require.Len(t, env.Map.Shapes, 1)
	assert.Equal(t, protocol.ShapeGoal, env.Map.Shapes[0].Kind)

	pt, ok := env.Agent().Location()
	assert.True(t, ok)
	assert.Equal(t, protocol.Point{X: 1, Y: 2}, pt)
}

func TestEnvKeepsMapWithMalformedShape(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"map":{"shapes":[
			{"type":"rectangle","x":1,"y":2,"width":3,"height":4},
			{"type":"polygon","vertices":[[0,0],[1,"y"],[2,2]]}
		]},"player":{"pos":[1,2]}}`)
	}))

	env, err := c.Env(context.Background())
	require.NoError(t, err)
	require.Len(t, env.Map.Shapes, 2)
	assert.NoError(t, env.Map.Shapes[0].Err())
	assert.ErrorIs(t, env.Map.Shapes[1].Err(), protocol.ErrInvalidPoint)
	_, ok := env.Agent().Location()
	assert.True(t, ok)
}

func TestMoveSendsCommand(t *testing.T) {
	var got protocol.MoveCommand
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathMove, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{}`)
	}))

	require.NoError(t, c.Move(context.Background(), protocol.MoveCommand{X: 1, Y: -1}))
	assert.Equal(t, protocol.MoveCommand{X: 1, Y: -1}, got)
}

func TestSensorOmitsAbsentFields(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"hit_points":[[1,0],[0,1]],"tags":["wall",null]}`)
	}))

	cmd := protocol.ParseSensorForm(map[string]string{protocol.FieldNumBeams: "12", protocol.FieldFOV: "wide"})
	reading, raw, err := c.Sensor(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"num_beams": 12.0}, body)
	points, _ := reading.Points()
	assert.Len(t, points, 2)
	assert.Contains(t, string(raw), "hit_points")
}

func TestStepJSONResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"player":{"pos":[3,4]}}`)
	}))

	var docs []string
	n, err := c.Step(context.Background(), protocol.StepCommand{}, func(raw json.RawMessage) error {
		docs = append(docs, string(raw))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.JSONEq(t, `{"player":{"pos":[3,4]}}`, docs[0])
}

func TestStepEventStream(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		for i := 1; i <= 3; i++ {
			_, _ = fmt.Fprintf(w, "data: {\"pos\": [%d, 0]}\n\n", i)
		}
		_, _ = io.WriteString(w, "data: {broken\n\n: comment\n\n")
	}))

	var xs []float64
	n, err := c.Step(context.Background(), protocol.StepCommand{NumSteps: 3}, func(raw json.RawMessage) error {
		var p protocol.Player
		require.NoError(t, json.Unmarshal(raw, &p))
		pt, ok := p.Location()
		require.True(t, ok)
		xs = append(xs, pt.X)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []float64{1, 2, 3}, xs)
	assert.Equal(t, map[string]any{"num_steps": 3.0}, body)
}

func TestStepCallbackErrorStopsStream(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {}\n\ndata: {}\n\n")
	}))

	stop := assert.AnError
	n, err := c.Step(context.Background(), protocol.StepCommand{}, func(json.RawMessage) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Zero(t, n)
}

func TestUnexpectedStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.Env(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "500")
	assert.ErrorIs(t, c.Reset(context.Background()), ErrUnexpectedStatus)
}

func TestInvalidJSONBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>`)
	}))

	_, err := c.Env(context.Background())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	c, err := NewClient(Config{Endpoint: addr}, nil)
	require.NoError(t, err)
	_, err = c.Env(context.Background())
	assert.Error(t, err)
}
