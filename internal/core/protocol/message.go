package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// ResultType tags a pushed result event.
type ResultType uint8

const (
	ResultUnknown ResultType = iota
	ResultSensor
	ResultStep
	ResultFire
)

// ResultType string representation
func (rt ResultType) String() string {
	switch rt {
	case ResultSensor:
		return "sensor"
	case ResultStep:
		return "step"
	case ResultFire:
		return "fire"
	default:
		return "unknown"
	}
}

// ParseResultType never fails; unrecognized tags map to ResultUnknown.
func ParseResultType(s string) ResultType {
	switch s {
	case "sensor":
		return ResultSensor
	case "step":
		return ResultStep
	case "fire":
		return ResultFire
	default:
		return ResultUnknown
	}
}

// ResultEvent is the tagged union a host model pushes under the `result` key.
// TypeName keeps the raw tag so unknown events can be reported verbatim.
type ResultEvent struct {
	Type     ResultType
	TypeName string
	Data     json.RawMessage
	Sync     json.RawMessage
}

type wireResult struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Sync json.RawMessage `json:"_sync,omitempty"`
}

func (e *ResultEvent) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(ErrDeserializeFailed, err.Error())
	}
	*e = ResultEvent{
		Type:     ParseResultType(w.Type),
		TypeName: w.Type,
		Data:     w.Data,
		Sync:     w.Sync,
	}
	return nil
}

func (e ResultEvent) MarshalJSON() ([]byte, error) {
	name := e.TypeName
	if e.Type != ResultUnknown {
		name = e.Type.String()
	}
	return json.Marshal(wireResult{Type: name, Data: e.Data, Sync: e.Sync})
}

// NewResultEvent encodes data as the payload of a typed event.
func NewResultEvent(rt ResultType, data any) (ResultEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return ResultEvent{}, errors.Wrap(err, "encode result payload")
	}
	return ResultEvent{Type: rt, TypeName: rt.String(), Data: raw}, nil
}

// HasData reports whether the event carries a non-null payload.
func (e ResultEvent) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// SensorReading is a lidar scan result. Hit points are meters.
type SensorReading struct {
	HitPoints    []json.RawMessage `json:"hit_points,omitempty"`
	HitPointsAlt []json.RawMessage `json:"hitPoints,omitempty"`
	Tags         []any             `json:"tags,omitempty"`
}

// Points returns the decodable hit points and how many were skipped.
func (r *SensorReading) Points() ([]Point, int) {
	if r == nil {
		return nil, 0
	}
	if r.HitPoints != nil {
		return ParsePoints(r.HitPoints)
	}
	return ParsePoints(r.HitPointsAlt)
}

// StepResult is the payload of a step event. Backends either wrap the agent
// under robot/player, with optional projectiles, or send a bare player.
type StepResult struct {
	Robot       *Player           `json:"robot,omitempty"`
	Player      *Player           `json:"player,omitempty"`
	Projectiles []json.RawMessage `json:"projectiles,omitempty"`
	Bare        *Player           `json:"-"`
}

func (s *StepResult) UnmarshalJSON(data []byte) error {
	type plain StepResult
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.Wrap(ErrDeserializeFailed, err.Error())
	}
	var bare Player
	if err := json.Unmarshal(data, &bare); err == nil {
		p.Bare = &bare
	}
	*s = StepResult(p)
	return nil
}

// Agent returns the wrapped agent if present, otherwise the bare form.
func (s *StepResult) Agent() *Player {
	switch {
	case s.Robot != nil:
		return s.Robot
	case s.Player != nil:
		return s.Player
	default:
		return s.Bare
	}
}

// FireResult is a single projectile flash.
type FireResult struct {
	Pos json.RawMessage `json:"pos"`
}
