package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// DefaultPPM is the pixels-per-meter scale assumed until a map snapshot
// provides one.
const DefaultPPM = 10.0

// ShapeKind is the closed set of static geometry kinds.
type ShapeKind uint8

const (
	ShapeUnknown ShapeKind = iota
	ShapeRectangle
	ShapeTriangle
	ShapePolygon
	ShapeGoal
)

var shapeKindNames = map[ShapeKind]string{
	ShapeRectangle: "rectangle",
	ShapeTriangle:  "triangle",
	ShapePolygon:   "polygon",
	ShapeGoal:      "goal",
}

// ShapeKind string representation
func (k ShapeKind) String() string {
	if name, ok := shapeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseShapeKind never fails; unrecognized tags map to ShapeUnknown.
func ParseShapeKind(s string) ShapeKind {
	for kind, name := range shapeKindNames {
		if name == s {
			return kind
		}
	}
	return ShapeUnknown
}

// IsPath reports whether the kind is drawn from its vertex list.
func (k ShapeKind) IsPath() bool {
	return k == ShapeTriangle || k == ShapePolygon
}

// Shape is one static geometry descriptor. Coordinates are pixels; for
// rectangles and goals X/Y is the center.
type Shape struct {
	Kind     ShapeKind
	TypeName string
	X        float64
	Y        float64
	Width    float64
	Height   float64
	Angle    float64
	Vertices []Point

	decodeErr error
}

// Err reports why the shape's geometry could not be decoded. A shape with a
// non-nil Err keeps its Kind and TypeName but carries no usable geometry.
func (s Shape) Err() error {
	return s.decodeErr
}

type wireShape struct {
	Type     string          `json:"type"`
	X        float64         `json:"x,omitempty"`
	Y        float64         `json:"y,omitempty"`
	Width    float64         `json:"width,omitempty"`
	Height   float64         `json:"height,omitempty"`
	Angle    float64         `json:"angle,omitempty"`
	Vertices json.RawMessage `json:"vertices,omitempty"`
}

// UnmarshalJSON accepts vertices as `[[x,y],...]` or as a flat
// `[x,y,x,y,...]` list. Unknown type tags are kept as ShapeUnknown so the
// caller can decide to skip them. Malformed geometry does not fail the
// decode: the shape is kept with Err set so one bad entry cannot reject the
// whole snapshot.
func (s *Shape) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		*s = Shape{decodeErr: errors.Wrap(ErrInvalidShape, err.Error())}
		return nil
	}

	var w wireShape
	if err := json.Unmarshal(data, &w); err != nil {
		s.invalid(tag.Type, errors.Wrap(ErrInvalidShape, err.Error()))
		return nil
	}

	vertices, err := decodeVertices(w.Vertices)
	if err != nil {
		s.invalid(tag.Type, err)
		return nil
	}

	*s = Shape{
		Kind:     ParseShapeKind(w.Type),
		TypeName: w.Type,
		X:        w.X,
		Y:        w.Y,
		Width:    w.Width,
		Height:   w.Height,
		Angle:    w.Angle,
		Vertices: vertices,
	}
	return nil
}

func (s *Shape) invalid(typeName string, err error) {
	*s = Shape{
		Kind:      ParseShapeKind(typeName),
		TypeName:  typeName,
		decodeErr: err,
	}
}

func (s Shape) MarshalJSON() ([]byte, error) {
	name := s.TypeName
	if s.Kind != ShapeUnknown {
		name = s.Kind.String()
	}
	w := wireShape{
		Type:   name,
		X:      s.X,
		Y:      s.Y,
		Width:  s.Width,
		Height: s.Height,
		Angle:  s.Angle,
	}
	if len(s.Vertices) > 0 {
		raw, err := json.Marshal(s.Vertices)
		if err != nil {
			return nil, err
		}
		w.Vertices = raw
	}
	return json.Marshal(w)
}

func decodeVertices(raw json.RawMessage) ([]Point, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.Wrap(ErrInvalidShape, "vertices must be a list")
	}
	if len(items) == 0 {
		return nil, nil
	}

	first := bytes.TrimSpace(items[0])
	if len(first) > 0 && first[0] != '[' && first[0] != '{' {
		var flat []float64
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, errors.Wrap(ErrInvalidShape, "flat vertex list must be numeric")
		}
		if len(flat)%2 != 0 {
			return nil, errors.Wrapf(ErrInvalidShape, "flat vertex list has odd length %d", len(flat))
		}
		points := make([]Point, 0, len(flat)/2)
		for i := 0; i < len(flat); i += 2 {
			points = append(points, Point{X: flat[i], Y: flat[i+1]})
		}
		return points, nil
	}

	points := make([]Point, 0, len(items))
	for i, item := range items {
		p, ok := ParsePoint(item)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidPoint, "vertex %d", i)
		}
		points = append(points, p)
	}
	return points, nil
}

// MapSnapshot is the static environment: a scale and an ordered shape list.
type MapSnapshot struct {
	Name   string  `json:"name,omitempty"`
	PPM    float64 `json:"ppm"`
	Shapes []Shape `json:"shapes"`
}

// Player carries the agent position in meters. Backends disagree on the key
// name, so both `pos` and `position` are accepted.
type Player struct {
	Pos      json.RawMessage `json:"pos,omitempty"`
	Position json.RawMessage `json:"position,omitempty"`
}

// Location returns the first recognizable position, preferring `pos`.
func (p *Player) Location() (Point, bool) {
	if p == nil {
		return Point{}, false
	}
	if pt, ok := ParsePoint(p.Pos); ok {
		return pt, true
	}
	return ParsePoint(p.Position)
}

// NewPlayer builds a Player positioned at pt (meters).
func NewPlayer(pt Point) *Player {
	raw, _ := json.Marshal(pt)
	return &Player{Pos: raw}
}

// Env is the response of the environment endpoint.
type Env struct {
	Map    *MapSnapshot `json:"map"`
	Robot  *Player      `json:"robot,omitempty"`
	Player *Player      `json:"player,omitempty"`
}

// Agent returns whichever of robot/player the backend filled in.
func (e *Env) Agent() *Player {
	if e.Robot != nil {
		return e.Robot
	}
	return e.Player
}
