package protocol

import (
	"bytes"
	"encoding/json"
	"math"
)

// Point is a 2D coordinate. Depending on where it appears it is either in
// meters (player, sensor hits, projectiles) or pixels (map geometry).
type Point struct {
	X float64
	Y float64
}

// ParsePoint accepts either `[x, y]` or `{"x": x, "y": y}`. Any other shape,
// non-numeric members or non-finite values report ok=false.
func ParsePoint(raw json.RawMessage) (Point, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Point{}, false
	}

	switch raw[0] {
	case '[':
		var pair []float64
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) < 2 {
			return Point{}, false
		}
		return finitePoint(pair[0], pair[1])
	case '{':
		var obj struct {
			X *float64 `json:"x"`
			Y *float64 `json:"y"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil || obj.X == nil || obj.Y == nil {
			return Point{}, false
		}
		return finitePoint(*obj.X, *obj.Y)
	default:
		return Point{}, false
	}
}

// ParsePoints decodes every recognizable point in the batch and silently
// drops the rest. The second return value counts dropped entries.
func ParsePoints(raw []json.RawMessage) ([]Point, int) {
	points := make([]Point, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		p, ok := ParsePoint(r)
		if !ok {
			skipped++
			continue
		}
		points = append(points, p)
	}
	return points, skipped
}

// UnmarshalJSON is the strict form of ParsePoint, used where a malformed
// point should fail the surrounding document.
func (p *Point) UnmarshalJSON(data []byte) error {
	parsed, ok := ParsePoint(data)
	if !ok {
		return ErrInvalidPoint
	}
	*p = parsed
	return nil
}

// MarshalJSON always emits the array form.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

func finitePoint(x, y float64) (Point, bool) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return Point{}, false
	}
	return Point{X: x, Y: y}, true
}
