package platform

import (
	"slices"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/gilgamesh/engine/internal/input"
	"go.uber.org/zap"
)

// Terminal reads keyboard, mouse and resize events from a tcell screen.
// A pump goroutine feeds screen events into a buffered channel that
// PollEvents drains without blocking. Terminals report no key releases, so a
// key counts as held for the poll window in which it was typed.
type Terminal struct {
	screen tcell.Screen
	events chan tcell.Event
	log    *zap.Logger

	held     map[input.Scancode]bool
	mouseX   int
	mouseY   int
	mouseSet bool
	dx, dy   int
	relative bool

	stopOnce sync.Once
	stop     chan struct{}
}

// NewTerminal starts pumping events from an initialised screen. The caller
// keeps ownership of the screen and calls Fini on it.
func NewTerminal(screen tcell.Screen, log *zap.Logger) *Terminal {
	t := &Terminal{
		screen: screen,
		events: make(chan tcell.Event, 256),
		log:    log.Named("platform"),
		held:   make(map[input.Scancode]bool),
		stop:   make(chan struct{}),
	}
	go t.pump()
	return t
}

func (t *Terminal) pump() {
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return // screen finalised
		}
		select {
		case t.events <- ev:
		case <-t.stop:
			return
		}
	}
}

// Close stops the pump goroutine once the screen has been finalised.
func (t *Terminal) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *Terminal) PollEvents() []input.Event {
	clear(t.held)
	t.dx, t.dy = 0, 0

	var out []input.Event
	for {
		select {
		case ev := <-t.events:
			if e, ok := t.translate(ev); ok {
				out = append(out, e)
			}
		default:
			return out
		}
	}
}

func (t *Terminal) translate(ev tcell.Event) (input.Event, bool) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyCtrlC, tcell.KeyCtrlQ:
			return input.Quit(), true
		case tcell.KeyEscape:
			return input.KeyDown(input.ScancodeEscape), true
		case tcell.KeyUp:
			return t.press(input.ScancodeUp), true
		case tcell.KeyDown:
			return t.press(input.ScancodeDown), true
		case tcell.KeyLeft:
			return t.press(input.ScancodeLeft), true
		case tcell.KeyRight:
			return t.press(input.ScancodeRight), true
		case tcell.KeyRune:
			if ev.Modifiers()&tcell.ModCtrl != 0 && (ev.Rune() == 'c' || ev.Rune() == 'q') {
				return input.Quit(), true
			}
			sc := input.ScancodeFromRune(ev.Rune())
			if sc == input.ScancodeUnknown {
				return input.Event{}, false
			}
			return t.press(sc), true
		}
	case *tcell.EventMouse:
		x, y := ev.Position()
		if t.mouseSet {
			t.dx += x - t.mouseX
			t.dy += y - t.mouseY
		}
		t.mouseX, t.mouseY, t.mouseSet = x, y, true
	case *tcell.EventResize:
		w, h := ev.Size()
		return input.Resize(w, h), true
	}
	return input.Event{}, false
}

func (t *Terminal) press(sc input.Scancode) input.Event {
	t.held[sc] = true
	return input.KeyDown(sc)
}

func (t *Terminal) KeyboardState() []input.ScancodeState {
	out := make([]input.ScancodeState, 0, len(t.held))
	for sc := range t.held {
		out = append(out, input.ScancodeState{Scancode: sc, Pressed: true})
	}
	slices.SortFunc(out, func(a, b input.ScancodeState) int { return int(a.Scancode) - int(b.Scancode) })
	return out
}

func (t *Terminal) RelativeMouseState() (int, int) { return t.dx, t.dy }

func (t *Terminal) RelativeMouseMode() bool { return t.relative }

func (t *Terminal) SetRelativeMouseMode(on bool) {
	if on == t.relative {
		return
	}
	t.relative = on
	t.mouseSet = false
	if on {
		t.screen.EnableMouse(tcell.MouseMotionEvents)
		t.screen.HideCursor()
	} else {
		t.screen.DisableMouse()
	}
	t.log.Debug("relative mouse mode", zap.Bool("on", on))
}

func (t *Terminal) Size() (int, int) { return t.screen.Size() }
