package engine

import "math"

const (
	// DefaultSpeed is the fraction of the remaining distance covered per
	// second, before clamping.
	DefaultSpeed = 2.0
	// NominalFrame substitutes for a missing or nonsensical frame delta.
	NominalFrame = 1.0 / 60
)

// Interpolator moves animated entities toward their targets with first-order
// smoothing. It converges without overshoot but never lands exactly.
type Interpolator struct {
	Speed   float64
	Nominal float64
}

// SanitizeDT returns dt, or nominal when dt is NaN, infinite or negative.
func SanitizeDT(dt, nominal float64) float64 {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		return nominal
	}
	return dt
}

// Alpha is min(speed*dt, 1).
func (i Interpolator) Alpha(dt float64) float64 {
	nominal := i.Nominal
	if nominal <= 0 {
		nominal = NominalFrame
	}
	return min(i.Speed*SanitizeDT(dt, nominal), 1)
}

// Step advances every bound entity by one frame. Keys are snapshotted first
// so entities removed during the step are skipped.
func (i Interpolator) Step(r *Registry, dt float64) int {
	alpha := i.Alpha(dt)
	moved := 0
	for _, key := range r.Keys() {
		e, ok := r.Get(key)
		if !ok || !e.Bound || e.Handle.Released() {
			continue
		}
		e.Current = e.Current.Lerp(e.Target, alpha)
		e.Handle.SetTranslation(e.Current)
		moved++
	}
	return moved
}
