// Package client is an HTTP client for the robot scenario backend.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/zeusync/simview/internal/core/observability/log"
	"github.com/zeusync/simview/internal/core/protocol"
)

// Backend routes.
const (
	PathEnv    = "/robot_scenario_env"
	PathMove   = "/robot_scenario_move"
	PathSensor = "/robot_scenario_sensor"
	PathStep   = "/robot_scenario_step"
	PathReset  = "/robot_scenario_reset"
)

const (
	eventStreamType = "text/event-stream"
	dataPrefix      = "data:"
	maxLineSize     = 1 << 20
)

// Config holds configuration for the client
type Config struct {
	// Endpoint is host:port, as the backend is usually addressed.
	Endpoint string
	// Scheme defaults to http.
	Scheme string
	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		Endpoint: "localhost:5000",
		Scheme:   "http",
	}
}

// Client talks to one backend.
type Client struct {
	base   string
	http   *http.Client
	logger log.Log
}

// NewClient validates config and builds a client.
func NewClient(config Config, logger log.Log) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(config.Endpoint), "/")
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	if config.Timeout < 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "negative timeout")
	}

	base := endpoint
	if !strings.Contains(endpoint, "://") {
		scheme := config.Scheme
		if scheme == "" {
			scheme = "http"
		}
		base = scheme + "://" + endpoint
	}

	return &Client{
		base:   base,
		http:   &http.Client{Timeout: config.Timeout},
		logger: log.Ensure(logger).With(log.String("component", "client"), log.String("endpoint", base)),
	}, nil
}

// BaseURL is the resolved backend URL.
func (c *Client) BaseURL() string { return c.base }

// Env fetches the map and agent position.
func (c *Client) Env(ctx context.Context) (*protocol.Env, error) {
	var env protocol.Env
	if err := c.doJSON(ctx, http.MethodGet, PathEnv, nil, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Move sets the agent's movement direction.
func (c *Client) Move(ctx context.Context, cmd protocol.MoveCommand) error {
	return c.doJSON(ctx, http.MethodPost, PathMove, cmd, nil)
}

// Sensor runs a lidar scan. The raw body is returned alongside the decoded
// reading for display.
func (c *Client) Sensor(ctx context.Context, cmd protocol.SensorCommand) (*protocol.SensorReading, json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, PathSensor, cmd, &raw); err != nil {
		return nil, nil, err
	}
	var reading protocol.SensorReading
	if err := json.Unmarshal(raw, &reading); err != nil {
		return nil, raw, errors.Wrap(ErrInvalidResponse, err.Error())
	}
	return &reading, raw, nil
}

// Step advances the simulation. The backend answers either with one JSON
// document or with an event stream of "data:" lines; fn is called once per
// document in arrival order. It returns how many documents were delivered.
func (c *Client) Step(ctx context.Context, cmd protocol.StepCommand, fn func(json.RawMessage) error) (int, error) {
	resp, err := c.do(ctx, http.MethodPost, PathStep, cmd)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != eventStreamType {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return 0, errors.Wrap(err, "read step response")
		}
		if !json.Valid(body) {
			return 0, ErrInvalidResponse
		}
		return 1, fn(body)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	delivered := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if !json.Valid(payload) {
			c.logger.Warn("Skipping malformed step event", log.Int("bytes", len(payload)))
			continue
		}
		if err := fn(bytes.Clone(payload)); err != nil {
			return delivered, err
		}
		delivered++
	}
	if err := scanner.Err(); err != nil {
		return delivered, errors.Wrap(ErrStreamInterrupted, err.Error())
	}
	c.logger.Debug("Step stream finished", log.Int("events", delivered))
	return delivered, nil
}

// Reset puts the agent back at its start position.
func (c *Client) Reset(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, PathReset, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(ErrInvalidResponse, "%s %s: %v", method, path, err)
	}
	return nil
}

// do sends the request and rejects non-2xx responses.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s body", path)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s %s", method, path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("Request failed", log.String("method", method), log.String("path", path), log.Error(err))
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	c.logger.Debug("Request done",
		log.String("method", method),
		log.String("path", path),
		log.Int("status", resp.StatusCode),
		log.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, errors.Wrapf(ErrUnexpectedStatus, "%s %s: %d", method, path, resp.StatusCode)
	}
	return resp, nil
}
