package retained

import "github.com/zeusync/simview/internal/core/scene"

var _ scene.Clock = (*Clock)(nil)

// Clock is a manually driven frame clock. The renderer (or a test) calls
// Tick once per frame.
type Clock struct {
	callbacks []scene.FrameFunc
	frame     uint64
}

func NewClock() *Clock {
	return &Clock{}
}

// Bind appends fn. Binding the same function twice makes it fire twice.
func (c *Clock) Bind(fn scene.FrameFunc) {
	if fn == nil {
		return
	}
	c.callbacks = append(c.callbacks, fn)
}

// Tick advances the frame counter and runs every bound callback in binding
// order. Callbacks bound during a tick first fire on the next one.
func (c *Clock) Tick(dt float64) {
	c.frame++
	callbacks := c.callbacks
	for _, fn := range callbacks {
		fn(c.frame, dt)
	}
}

// Frame returns the number of ticks so far.
func (c *Clock) Frame() uint64 { return c.frame }

// Bindings returns how many callbacks are registered.
func (c *Clock) Bindings() int { return len(c.callbacks) }
