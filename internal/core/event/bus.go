package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered command bus. Commands emitted during step N are
// dispatched during step N+1. SwapBuffers is called at step start by the
// command system.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	front    map[reflect.Type][]any
	back     map[reflect.Type][]any
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{
		front:    make(map[reflect.Type][]any),
		back:     make(map[reflect.Type][]any),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

// Emit queues a command into the back buffer.
func Emit[T any](b *Bus, cmd T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.back[t] = append(b.back[t], cmd)
}

// Subscribe registers a typed handler for commands of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], func(v any) { fn(v.(T)) })
}

// SwapBuffers rotates back->front and clears the new back buffer.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front
	for k := range b.back {
		b.back[k] = b.back[k][:0]
	}
}

// Pending counts commands waiting in the back buffer.
func (b *Bus) Pending() int {
	n := 0
	for _, cmds := range b.back {
		n += len(cmds)
	}
	return n
}

// DispatchAll delivers all front-buffer commands to their handlers, in emit
// order per command type.
func (b *Bus) DispatchAll() {
	for t, cmds := range b.front {
		handlers := b.handlers[t]
		for _, cmd := range cmds {
			for _, h := range handlers {
				h(cmd)
			}
		}
	}
}
