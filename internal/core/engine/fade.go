package engine

import (
	"fmt"
	"strings"

	"github.com/zeusync/simview/internal/core/protocol"
)

// Policy decides how a class of transient entities leaves the scene.
type Policy uint8

const (
	// PolicyReplace keeps a batch at full opacity until the next batch
	// arrives. With a linger duration the superseded batch stays that long
	// before it is released.
	PolicyReplace Policy = iota
	// PolicyFade releases the previous batch immediately on replace and fades
	// each entity out over the duration.
	PolicyFade
)

// Policy string representation
func (p Policy) String() string {
	switch p {
	case PolicyReplace:
		return "replace"
	case PolicyFade:
		return "fade"
	default:
		return "unknown"
	}
}

// ParsePolicy maps "replace" and "fade" (case-insensitive).
func ParsePolicy(s string) (Policy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "replace":
		return PolicyReplace, true
	case "fade":
		return PolicyFade, true
	default:
		return PolicyReplace, false
	}
}

// FadeOpacity is max(1 - elapsed/duration, 0), clamped to 1 for negative
// elapsed. A non-positive duration is already faded.
func FadeOpacity(elapsed, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	return min(max(1-elapsed/duration, 0), 1)
}

// Transient is a short-lived marker backed by a registry entity.
type Transient struct {
	Key     string
	Entity  *Entity
	Elapsed float64
}

// Opacity reads the drawable's current opacity.
func (t *Transient) Opacity() float64 { return t.Entity.Handle.Opacity() }

// TransientSet tracks one class of transient entities (sensor hits,
// projectiles) under a single policy.
type TransientSet struct {
	class    string
	policy   Policy
	duration float64
	registry *Registry
	spawn    Spawner

	seq      uint64
	live     []*Transient
	retiring []*Transient

	lastFrame uint64
	advanced  bool
}

// NewTransientSet creates a set whose entities are keyed "<class>#<n>".
// duration is the fade length for PolicyFade and the linger for
// PolicyReplace.
func NewTransientSet(class string, policy Policy, duration float64, registry *Registry, spawn Spawner) *TransientSet {
	return &TransientSet{
		class:    class,
		policy:   policy,
		duration: duration,
		registry: registry,
		spawn:    spawn,
	}
}

func (s *TransientSet) Class() string     { return s.class }
func (s *TransientSet) Policy() Policy    { return s.policy }
func (s *TransientSet) Duration() float64 { return s.duration }

// Replace supersedes the current batch with entities at points (meters).
// New entities start at opacity 1 and zero elapsed time.
func (s *TransientSet) Replace(points []protocol.Point) []*Transient {
	for _, t := range s.live {
		if s.policy == PolicyReplace && s.duration > 0 {
			t.Elapsed = 0
			s.retiring = append(s.retiring, t)
			continue
		}
		s.release(t)
	}
	s.live = make([]*Transient, 0, len(points))

	for _, p := range points {
		key := fmt.Sprintf("%s#%d", s.class, s.seq)
		s.seq++
		e, created := s.registry.Upsert(key, p, s.spawn)
		if !created {
			// stale entity left under this key by someone else
			s.registry.Remove(key)
			e, _ = s.registry.Upsert(key, p, s.spawn)
		}
		e.Handle.SetOpacity(1)
		s.live = append(s.live, &Transient{Key: key, Entity: e})
	}
	return s.Items()
}

// Advance accumulates dt once per frame. A second call for the same frame
// is ignored. Entities that finish fading or lingering are released.
func (s *TransientSet) Advance(frame uint64, dt float64) {
	if s.advanced && frame == s.lastFrame {
		return
	}
	s.lastFrame, s.advanced = frame, true

	if s.policy == PolicyFade {
		s.live = s.sweep(s.live, dt, func(t *Transient) bool {
			opacity := FadeOpacity(t.Elapsed, s.duration)
			t.Entity.Handle.SetOpacity(opacity)
			return opacity <= 0
		})
	}
	s.retiring = s.sweep(s.retiring, dt, func(t *Transient) bool {
		return t.Elapsed >= s.duration
	})
}

// sweep adds dt to every item and releases those done reports finished.
func (s *TransientSet) sweep(items []*Transient, dt float64, done func(*Transient) bool) []*Transient {
	kept := items[:0]
	for _, t := range items {
		t.Elapsed += dt
		if done(t) {
			s.release(t)
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(items); i++ {
		items[i] = nil
	}
	return kept
}

// release drops the handle before the caller forgets the transient.
func (s *TransientSet) release(t *Transient) {
	s.registry.Remove(t.Key)
}

// Clear releases every live and retiring entity.
func (s *TransientSet) Clear() {
	for _, t := range s.live {
		s.release(t)
	}
	for _, t := range s.retiring {
		s.release(t)
	}
	s.live, s.retiring = nil, nil
}

// Items returns the current batch.
func (s *TransientSet) Items() []*Transient {
	return append([]*Transient(nil), s.live...)
}

func (s *TransientSet) Len() int { return len(s.live) }

// Retiring counts superseded entities still lingering.
func (s *TransientSet) Retiring() int { return len(s.retiring) }
