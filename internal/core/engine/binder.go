package engine

import "github.com/zeusync/simview/internal/core/scene"

// ScopeScene is the capability scope of callbacks shared by every entity.
const ScopeScene = "scene"

// CallbackKind names what a per-frame callback drives.
type CallbackKind uint8

const (
	KindMotion CallbackKind = iota + 1
	KindFade
)

// CallbackKind string representation
func (k CallbackKind) String() string {
	switch k {
	case KindMotion:
		return "motion"
	case KindFade:
		return "fade"
	default:
		return "unknown"
	}
}

// Capability identifies one registration with the frame clock.
type Capability struct {
	Scope string
	Kind  CallbackKind
}

// Binder guarantees at most one clock registration per capability. The
// clock itself has no deduplication.
type Binder struct {
	clock scene.Clock
	bound map[Capability]struct{}
}

func NewBinder(clock scene.Clock) *Binder {
	return &Binder{clock: clock, bound: make(map[Capability]struct{})}
}

// EnsureBound registers fn for c unless c is already registered. It reports
// whether this call performed the registration.
func (b *Binder) EnsureBound(c Capability, fn scene.FrameFunc) bool {
	if _, ok := b.bound[c]; ok {
		return false
	}
	b.bound[c] = struct{}{}
	b.clock.Bind(fn)
	return true
}

func (b *Binder) IsBound(c Capability) bool {
	_, ok := b.bound[c]
	return ok
}

// Len is the number of active registrations.
func (b *Binder) Len() int { return len(b.bound) }
