// Package input defines the events the render loop forwards to the
// simulation loop.
package input

type Scancode int

const (
	ScancodeUnknown Scancode = iota
	ScancodeW
	ScancodeA
	ScancodeS
	ScancodeD
	ScancodeE
	ScancodeF
	ScancodeQ
	ScancodeSpace
	ScancodeEscape
	ScancodeUp
	ScancodeDown
	ScancodeLeft
	ScancodeRight
)

var scancodeNames = map[Scancode]string{
	ScancodeW:      "W",
	ScancodeA:      "A",
	ScancodeS:      "S",
	ScancodeD:      "D",
	ScancodeE:      "E",
	ScancodeF:      "F",
	ScancodeQ:      "Q",
	ScancodeSpace:  "Space",
	ScancodeEscape: "Escape",
	ScancodeUp:     "Up",
	ScancodeDown:   "Down",
	ScancodeLeft:   "Left",
	ScancodeRight:  "Right",
}

func (s Scancode) String() string {
	if n, ok := scancodeNames[s]; ok {
		return n
	}
	return "Unknown"
}

// ScancodeFromRune maps a typed character to its scancode.
func ScancodeFromRune(r rune) Scancode {
	switch r {
	case 'w', 'W':
		return ScancodeW
	case 'a', 'A':
		return ScancodeA
	case 's', 'S':
		return ScancodeS
	case 'd', 'D':
		return ScancodeD
	case 'e', 'E':
		return ScancodeE
	case 'f', 'F':
		return ScancodeF
	case 'q', 'Q':
		return ScancodeQ
	case ' ':
		return ScancodeSpace
	}
	return ScancodeUnknown
}

type ScancodeState struct {
	Scancode Scancode
	Pressed  bool
}

type Kind int

const (
	KindKeyDown Kind = iota
	KindQuit
	KindResize
	// KindFrame is the per-frame aggregate sent while the mouse is captured.
	KindFrame
)

// Event is a discrete platform event or a per-frame input aggregate.
type Event struct {
	Kind     Kind
	Scancode Scancode

	Width, Height int

	Scancodes []ScancodeState
	MouseDX   int
	MouseDY   int
}

func KeyDown(s Scancode) Event { return Event{Kind: KindKeyDown, Scancode: s} }

func Quit() Event { return Event{Kind: KindQuit} }

func Resize(w, h int) Event { return Event{Kind: KindResize, Width: w, Height: h} }

func Frame(scancodes []ScancodeState, dx, dy int) Event {
	return Event{Kind: KindFrame, Scancodes: scancodes, MouseDX: dx, MouseDY: dy}
}
