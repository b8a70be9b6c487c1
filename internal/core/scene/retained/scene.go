// Package retained is an in-memory retained-mode scene. It keeps drawables in
// insertion order per layer so a renderer can composite them, and it is the
// scene used by headless runs and tests.
package retained

import (
	"github.com/zeusync/simview/internal/core/scene"
)

var (
	_ scene.Scene  = (*Scene)(nil)
	_ scene.Layer  = (*Layer)(nil)
	_ scene.Handle = (*Shape)(nil)
)

// Kind is the geometric primitive behind a Shape.
type Kind uint8

const (
	KindCircle Kind = iota
	KindRectangle
	KindPath
)

// Shape is a drawable. Geometry is fixed at creation; translation,
// rotation, opacity and style are mutable.
type Shape struct {
	id       uint64
	kind     Kind
	center   scene.Vec2
	radius   float64
	width    float64
	height   float64
	points   []scene.Vec2
	closed   bool
	rotation float64
	opacity  float64
	style    scene.Style
	released bool
}

func (s *Shape) ID() uint64                    { return s.id }
func (s *Shape) Kind() Kind                    { return s.kind }
func (s *Shape) Translation() scene.Vec2       { return s.center }
func (s *Shape) SetTranslation(v scene.Vec2)   { s.center = v }
func (s *Shape) Rotation() float64             { return s.rotation }
func (s *Shape) SetRotation(rad float64)       { s.rotation = rad }
func (s *Shape) Opacity() float64              { return s.opacity }
func (s *Shape) Style() scene.Style            { return s.style }
func (s *Shape) SetStyle(st scene.Style)       { s.style = st }
func (s *Shape) Released() bool                { return s.released }
func (s *Shape) Radius() float64               { return s.radius }
func (s *Shape) Size() (width, height float64) { return s.width, s.height }
func (s *Shape) Closed() bool                  { return s.closed }
func (s *Shape) Points() []scene.Vec2          { return append([]scene.Vec2(nil), s.points...) }
func (s *Shape) setReleased()                  { s.released = true }

// SetOpacity clamps o to [0, 1].
func (s *Shape) SetOpacity(o float64) {
	s.opacity = min(max(o, 0), 1)
}

// Layer is an ordered list of shapes.
type Layer struct {
	owner  *Scene
	shapes []*Shape
}

func (l *Layer) add(s *Shape) *Shape {
	l.owner.nextID++
	s.id = l.owner.nextID
	s.opacity = 1
	s.style = scene.Style{Fill: scene.Hex("#fff"), Stroke: scene.Hex("#000"), LineWidth: 1}
	l.shapes = append(l.shapes, s)
	return s
}

func (l *Layer) MakeCircle(center scene.Vec2, radius float64) scene.Handle {
	return l.add(&Shape{kind: KindCircle, center: center, radius: radius})
}

func (l *Layer) MakeRectangle(center scene.Vec2, width, height float64) scene.Handle {
	return l.add(&Shape{kind: KindRectangle, center: center, width: width, height: height})
}

// MakePath stores points relative to their centroid so that translation
// moves the whole path, matching circles and rectangles.
func (l *Layer) MakePath(points []scene.Vec2, closed bool) scene.Handle {
	var c scene.Vec2
	for _, p := range points {
		c = c.Add(p)
	}
	if len(points) > 0 {
		c = c.Scale(1 / float64(len(points)))
	}
	rel := make([]scene.Vec2, len(points))
	for i, p := range points {
		rel[i] = p.Sub(c)
	}
	return l.add(&Shape{kind: KindPath, center: c, points: rel, closed: closed})
}

// Remove releases the given handles. Handles from other layers or already
// released ones are ignored.
func (l *Layer) Remove(handles ...scene.Handle) {
	if len(handles) == 0 {
		return
	}
	drop := make(map[uint64]struct{}, len(handles))
	for _, h := range handles {
		if h != nil {
			drop[h.ID()] = struct{}{}
		}
	}
	kept := l.shapes[:0]
	for _, s := range l.shapes {
		if _, ok := drop[s.id]; ok {
			s.setReleased()
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(l.shapes); i++ {
		l.shapes[i] = nil
	}
	l.shapes = kept
}

func (l *Layer) Clear() {
	for _, s := range l.shapes {
		s.setReleased()
	}
	l.shapes = nil
}

func (l *Layer) Len() int { return len(l.shapes) }

// Shapes returns the live shapes in draw order.
func (l *Layer) Shapes() []*Shape {
	return append([]*Shape(nil), l.shapes...)
}

// Scene owns a static and a dynamic layer.
type Scene struct {
	width, height float64
	layers        [2]*Layer
	nextID        uint64
	updates       uint64
}

// New creates an empty width×height scene.
func New(width, height float64) *Scene {
	s := &Scene{width: width, height: height}
	for i := range s.layers {
		s.layers[i] = &Layer{owner: s}
	}
	return s
}

// Layer returns the layer for id; unknown ids resolve to the dynamic layer.
func (s *Scene) Layer(id scene.LayerID) scene.Layer {
	return s.layer(id)
}

func (s *Scene) layer(id scene.LayerID) *Layer {
	if int(id) >= len(s.layers) {
		return s.layers[scene.LayerDynamic]
	}
	return s.layers[id]
}

// Shapes returns the live shapes of one layer in draw order.
func (s *Scene) Shapes(id scene.LayerID) []*Shape {
	return s.layer(id).Shapes()
}

func (s *Scene) Size() (width, height float64) { return s.width, s.height }

func (s *Scene) Update() { s.updates++ }

// Updates counts presentation requests.
func (s *Scene) Updates() uint64 { return s.updates }
