package bufferpool

import (
	"sync"

	"github.com/tuannm99/novasql/pkg/elrux"
)

// BgWriterRegistry maps a background-writer identifier (the value passed to
// pkg/elrux.Engine.NotifyBgWriter) to a wake channel, giving that signal an
// actual observable in-process effect: pkg/elrux only reads-and-clears an
// int and invokes a callback, deliberately leaving "wake that process's
// latch" to an external collaborator (spec.md §4.7's design note).
//
// Grounded in the teacher's own channel-based page-eviction signal
// (internal/storage's BufferManager.pageEvict: a single buffered channel a
// consumer drains with select/default), generalized from one fixed channel
// to a registry so any number of writer goroutines can each wait on their
// own id.
type BgWriterRegistry struct {
	mu   sync.Mutex
	wake map[int]chan struct{}
}

func NewBgWriterRegistry() *BgWriterRegistry {
	return &BgWriterRegistry{wake: make(map[int]chan struct{})}
}

// Register returns the wake channel for id, creating it on first use. A
// background writer goroutine calls this once and then selects on the
// returned channel.
func (r *BgWriterRegistry) Register(id int) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.wake[id]
	if !ok {
		ch = make(chan struct{}, 1)
		r.wake[id] = ch
	}
	return ch
}

// Unregister removes id's wake channel. Safe to call even if id was never
// registered.
func (r *BgWriterRegistry) Unregister(id int) {
	r.mu.Lock()
	delete(r.wake, id)
	r.mu.Unlock()
}

// attach wires the registry into engine as its wake callback: the pending
// notification AcquireFrame delivers becomes a non-blocking send on id's
// channel, dropped if nobody is listening or the channel is already full.
func (r *BgWriterRegistry) attach(engine *elrux.Engine) {
	engine.SetWakeFunc(func(id int) {
		r.mu.Lock()
		ch, ok := r.wake[id]
		r.mu.Unlock()
		if !ok {
			return
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	})
}
