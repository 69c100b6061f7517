package updater

import (
	"sync/atomic"
	"time"

	"github.com/gilgamesh/engine/internal/core/event"
	"github.com/gilgamesh/engine/internal/core/system"
	"github.com/gilgamesh/engine/internal/input"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

// cameraDirections maps held keys to camera-space movement. The camera looks
// down -Z.
var cameraDirections = map[input.Scancode]mgl32.Vec3{
	input.ScancodeW: {0, 0, -1},
	input.ScancodeS: {0, 0, 1},
	input.ScancodeA: {-1, 0, 0},
	input.ScancodeD: {1, 0, 0},
	input.ScancodeE: {0, 1, 0},
	input.ScancodeF: {0, -1, 0},
}

// InputSystem drains the render loop's input queue into scene commands. It
// runs outside the fixed step, once the loop has caught up.
type InputSystem struct {
	state   *GameState
	events  *event.Queue[input.Event]
	running *atomic.Bool
	log     *zap.Logger
}

func (s *InputSystem) Phase() system.Phase { return system.PhaseInput }

func (s *InputSystem) Update(time.Duration) {
	for _, ev := range s.events.Consume() {
		s.handle(ev)
	}
}

// handle applies one input event. Each frame event stands for one render
// poll window, which the renderer runs at the update interval.
func (s *InputSystem) handle(ev input.Event) {
	g := s.state
	switch ev.Kind {
	case input.KindQuit:
		s.log.Info("quit requested")
		s.running.Store(false)
	case input.KindResize:
		g.opts.Width, g.opts.Height = ev.Width, ev.Height
	case input.KindFrame:
		secs := float32(g.opts.Interval.Seconds())
		var dir mgl32.Vec3
		for _, s := range ev.Scancodes {
			if d, ok := cameraDirections[s.Scancode]; ok && s.Pressed {
				dir = dir.Add(d)
			}
		}
		if dir != (mgl32.Vec3{}) {
			event.Emit(g.bus, event.MoveCamera{Direction: dir.Mul(g.opts.MotionSpeed * secs)})
		}
		if ev.MouseDX != 0 || ev.MouseDY != 0 {
			pyr := mgl32.Vec3{-float32(ev.MouseDY), -float32(ev.MouseDX), 0}
			event.Emit(g.bus, event.RotateCamera{PitchYawRoll: pyr.Mul(g.opts.MouseSensitivity * secs)})
		}
	case input.KindKeyDown:
		s.log.Debug("key down", zap.Stringer("scancode", ev.Scancode))
	}
}
