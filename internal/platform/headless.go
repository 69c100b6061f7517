package platform

import "github.com/gilgamesh/engine/internal/input"

// Headless replays scripted event batches, one batch per PollEvents call,
// then reports nothing. It drives the engine without a terminal.
type Headless struct {
	batches  [][]input.Event
	held     []input.ScancodeState
	dx, dy   int
	relative bool
	width    int
	height   int
	Polls    int
}

func NewHeadless(width, height int, batches ...[]input.Event) *Headless {
	return &Headless{batches: batches, width: width, height: height}
}

// Hold sets the keyboard state and mouse motion reported from now on.
func (h *Headless) Hold(keys []input.ScancodeState, dx, dy int) {
	h.held, h.dx, h.dy = keys, dx, dy
}

func (h *Headless) PollEvents() []input.Event {
	h.Polls++
	if len(h.batches) == 0 {
		return nil
	}
	b := h.batches[0]
	h.batches = h.batches[1:]
	return b
}

func (h *Headless) KeyboardState() []input.ScancodeState { return h.held }

func (h *Headless) RelativeMouseState() (int, int) { return h.dx, h.dy }

func (h *Headless) RelativeMouseMode() bool { return h.relative }

func (h *Headless) SetRelativeMouseMode(on bool) { h.relative = on }

func (h *Headless) Size() (int, int) { return h.width, h.height }
