// Package scene describes the retained-mode drawing primitives the engine
// drives. Implementations own compositing and the frame clock; callers only
// create handles, mutate their visual properties and register per-frame
// callbacks.
package scene

import (
	"image/color"
	"math"
)

// Vec2 is a pixel-space vector.
type Vec2 struct{ X, Y float64 }

func (v Vec2) Add(o Vec2) Vec2         { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2         { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(f float64) Vec2    { return Vec2{v.X * f, v.Y * f} }
func (v Vec2) Len() float64            { return math.Hypot(v.X, v.Y) }
func (v Vec2) Distance(o Vec2) float64 { return o.Sub(v).Len() }

// Lerp moves f of the way from v toward to, per axis.
func (v Vec2) Lerp(to Vec2, f float64) Vec2 {
	return Vec2{v.X + (to.X-v.X)*f, v.Y + (to.Y-v.Y)*f}
}

// Rotate rotates v around the origin by rad radians.
func (v Vec2) Rotate(rad float64) Vec2 {
	sin, cos := math.Sincos(rad)
	return Vec2{v.X*cos - v.Y*sin, v.X*sin + v.Y*cos}
}

// RectCorners returns the four corners of a w×h rectangle centered at c and
// rotated by rad, clockwise in screen space starting top-left.
func RectCorners(c Vec2, w, h, rad float64) [4]Vec2 {
	hw, hh := w/2, h/2
	local := [4]Vec2{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}}
	var out [4]Vec2
	for i, p := range local {
		out[i] = p.Rotate(rad).Add(c)
	}
	return out
}

// Style is the fill and outline of a drawable.
type Style struct {
	Fill      color.NRGBA
	Stroke    color.NRGBA
	LineWidth float64
	NoStroke  bool
}

// Hex parses "#rgb", "#rrggbb" or "#rrggbbaa". Malformed input yields
// opaque black.
func Hex(s string) color.NRGBA {
	c := color.NRGBA{A: 0xff}
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	nib := func(b byte) (uint8, bool) {
		switch {
		case b >= '0' && b <= '9':
			return b - '0', true
		case b >= 'a' && b <= 'f':
			return b - 'a' + 10, true
		case b >= 'A' && b <= 'F':
			return b - 'A' + 10, true
		}
		return 0, false
	}
	byteAt := func(i int) (uint8, bool) {
		hi, ok1 := nib(s[i])
		lo, ok2 := nib(s[i+1])
		return hi<<4 | lo, ok1 && ok2
	}

	switch len(s) {
	case 3:
		var v [3]uint8
		for i := 0; i < 3; i++ {
			n, ok := nib(s[i])
			if !ok {
				return color.NRGBA{A: 0xff}
			}
			v[i] = n<<4 | n
		}
		c.R, c.G, c.B = v[0], v[1], v[2]
	case 6, 8:
		var v [4]uint8
		v[3] = 0xff
		for i := 0; i < len(s)/2; i++ {
			b, ok := byteAt(i * 2)
			if !ok {
				return color.NRGBA{A: 0xff}
			}
			v[i] = b
		}
		c.R, c.G, c.B, c.A = v[0], v[1], v[2], v[3]
	}
	return c
}

// Handle is an opaque reference to a drawable owned by a Layer.
type Handle interface {
	ID() uint64
	Translation() Vec2
	SetTranslation(Vec2)
	Rotation() float64
	SetRotation(rad float64)
	Opacity() float64
	SetOpacity(float64)
	Style() Style
	SetStyle(Style)
	// Released reports whether the owning layer has dropped this drawable.
	Released() bool
}

// LayerID selects one of the scene's composited layers. Layers are drawn in
// ascending order.
type LayerID uint8

const (
	// LayerStatic holds the background and map geometry.
	LayerStatic LayerID = iota
	// LayerDynamic holds the agent, sensor hits and projectiles.
	LayerDynamic
)

// Layer creates and releases drawables. Clear releases every drawable in the
// layer and leaves the others untouched.
type Layer interface {
	MakeCircle(center Vec2, radius float64) Handle
	MakeRectangle(center Vec2, width, height float64) Handle
	MakePath(points []Vec2, closed bool) Handle
	Remove(handles ...Handle)
	Clear()
	Len() int
}

// Scene is a set of layers plus a presentation request.
type Scene interface {
	Layer(id LayerID) Layer
	Size() (width, height float64)
	// Update asks the renderer to present the current state.
	Update()
}

// FrameFunc is called once per frame. dt is the elapsed time in seconds; it
// may be NaN when the clock cannot measure it.
type FrameFunc func(frame uint64, dt float64)

// Clock is the renderer's frame clock. Every Bind adds a callback that fires
// on every subsequent frame; there is no deduplication.
type Clock interface {
	Bind(fn FrameFunc)
}
