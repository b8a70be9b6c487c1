package engine

import (
	"slices"

	"github.com/zeusync/simview/internal/core/protocol"
	"github.com/zeusync/simview/internal/core/scene"
)

// Spawner creates the drawable for a new entity at pixel position pos.
type Spawner func(layer scene.Layer, pos scene.Vec2) scene.Handle

// Entity is the animation record of one dynamic drawable. Current is what is
// displayed; Target is the latest authoritative position. Both are pixels.
type Entity struct {
	Key     string
	Handle  scene.Handle
	Current scene.Vec2
	Target  scene.Vec2
	// Bound is set once, the first time the entity is animated.
	Bound bool
}

// Registry maps entity keys to their drawables. It is the only owner of
// dynamic handles: every creation and release goes through it.
type Registry struct {
	layer    scene.Layer
	ppm      float64
	entities map[string]*Entity
	order    []string
}

func NewRegistry(layer scene.Layer) *Registry {
	return &Registry{
		layer:    layer,
		ppm:      protocol.DefaultPPM,
		entities: make(map[string]*Entity),
	}
}

// SetPPM changes the scale applied to subsequent upserts. Existing entities
// keep their pixel positions.
func (r *Registry) SetPPM(ppm float64) {
	if validPPM(ppm) {
		r.ppm = ppm
	}
}

func (r *Registry) PPM() float64 { return r.ppm }

// Upsert creates the entity at meters*PPM, or retargets an existing one.
// Retargeting leaves Current alone so motion continues from where it is.
func (r *Registry) Upsert(key string, meters protocol.Point, spawn Spawner) (e *Entity, created bool) {
	pos := ToPixels(meters, r.ppm)
	if e, ok := r.entities[key]; ok {
		e.Target = pos
		return e, false
	}

	h := spawn(r.layer, pos)
	h.SetTranslation(pos)
	e = &Entity{Key: key, Handle: h, Current: pos, Target: pos}
	r.entities[key] = e
	r.order = append(r.order, key)
	return e, true
}

// Remove releases the entity's handle, then forgets it. Absent keys are a
// no-op.
func (r *Registry) Remove(key string) {
	e, ok := r.entities[key]
	if !ok {
		return
	}
	r.layer.Remove(e.Handle)
	delete(r.entities, key)
	if i := slices.Index(r.order, key); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

// Clear removes every entity.
func (r *Registry) Clear() {
	for _, key := range r.Keys() {
		r.Remove(key)
	}
}

func (r *Registry) Get(key string) (*Entity, bool) {
	e, ok := r.entities[key]
	return e, ok
}

// Keys returns a snapshot of the live keys in creation order.
func (r *Registry) Keys() []string {
	return slices.Clone(r.order)
}

func (r *Registry) Len() int { return len(r.entities) }

// MarkBound flags the entity as animated and reports whether this call was
// the one that did it.
func (r *Registry) MarkBound(key string) bool {
	e, ok := r.entities[key]
	if !ok || e.Bound {
		return false
	}
	e.Bound = true
	return true
}

// ToPixels converts a physical position to scene space.
func ToPixels(meters protocol.Point, ppm float64) scene.Vec2 {
	return scene.Vec2{X: meters.X * ppm, Y: meters.Y * ppm}
}
