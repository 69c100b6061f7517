// Package platform adapts a windowing/input backend into the passive event
// source the render loop polls once per iteration.
package platform

import "github.com/gilgamesh/engine/internal/input"

// Platform is polled from the render goroutine only.
type Platform interface {
	// PollEvents drains the events queued since the previous call.
	PollEvents() []input.Event
	// KeyboardState lists the keys held during the last poll window.
	KeyboardState() []input.ScancodeState
	// RelativeMouseState returns the pointer motion accumulated during the
	// last poll window.
	RelativeMouseState() (dx, dy int)
	RelativeMouseMode() bool
	SetRelativeMouseMode(on bool)
	Size() (width, height int)
}
