// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package future provides the completion registry shared between a
// dispatcher's owner thread and whatever goroutine delivers responses
// (an HTTP/2 stream handler or a subprocess waiter): a mapping from
// monotonically increasing invocation ids to single-writer,
// single-reader completion slots, plus the mutex/condvar-protected
// queue of ids that have completed.
package future

import (
	"sync"

	"github.com/faasless/faasless/wire"
)

// Handle is a cheap, shareable reference to a mailbox that will
// eventually hold a value of type T. The zero Handle is not usable;
// obtain one from New.
type Handle[T any] struct {
	box *box[T]
}

type box[T any] struct {
	mu   sync.Mutex
	done bool
	val  T
	err  error
}

// New creates a fresh, empty Handle.
func New[T any]() Handle[T] {
	return Handle[T]{box: &box[T]{}}
}

// Ready reports whether the value has been written yet.
func (h Handle[T]) Ready() bool {
	h.box.mu.Lock()
	defer h.box.mu.Unlock()
	return h.box.done
}

// Value returns the completed value. It is only safe to call after
// the registry has surfaced this invocation's id through TakeOne; per
// the registry's concurrency contract, calling it earlier is a
// programmer error and may observe a zero value.
func (h Handle[T]) Value() (T, error) {
	h.box.mu.Lock()
	defer h.box.mu.Unlock()
	return h.box.val, h.box.err
}

func (h Handle[T]) complete(v T, err error) {
	h.box.mu.Lock()
	h.box.val = v
	h.box.err = err
	h.box.done = true
	h.box.mu.Unlock()
}

// slot is the type-erased side of a Handle that the Registry can hold
// in a single map regardless of the handle's result type.
type slot interface {
	completeBytes(c wire.Codec, data []byte)
	fail(err error)
}

type typedSlot[T any] struct {
	h Handle[T]
}

func (s typedSlot[T]) completeBytes(c wire.Codec, data []byte) {
	v, err := wire.DecodeResponse[T](c, data)
	s.h.complete(v, err)
}

func (s typedSlot[T]) fail(err error) {
	var zero T
	s.h.complete(zero, err)
}

// Registry is the shared structure described in the specification's
// future-registry component: register before submission, complete
// from whatever thread delivers the response, take_one to drain
// completions on the owner thread.
type Registry struct {
	mu        sync.Mutex
	cond      *sync.Cond
	slots     map[uint32]slot
	completed []uint32
	closed    bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{slots: make(map[uint32]slot)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Register associates id with h. It must be called on the owning
// instance's thread, before the request that will eventually complete
// id is submitted.
func Register[T any](r *Registry, id uint32, h Handle[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[id] = typedSlot[T]{h: h}
}

// Complete deserializes data with c into id's slot and moves id onto
// the completed queue. It may be called from an I/O thread.
func (r *Registry) Complete(c wire.Codec, id uint32, data []byte) {
	r.mu.Lock()
	s, ok := r.slots[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.slots, id)
	r.mu.Unlock()

	// Decode outside the lock: slot.completeBytes only touches its own
	// box, never the registry.
	s.completeBytes(c, data)

	r.mu.Lock()
	r.completed = append(r.completed, id)
	r.cond.Signal()
	r.mu.Unlock()
}

// Fail marks id's invocation as a remote failure without ever calling
// Decode; wait_one still surfaces the id, and Handle.Value returns err.
func (r *Registry) Fail(id uint32, err error) {
	r.mu.Lock()
	s, ok := r.slots[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.slots, id)
	r.mu.Unlock()

	s.fail(err)

	r.mu.Lock()
	r.completed = append(r.completed, id)
	r.cond.Signal()
	r.mu.Unlock()
}

// TakeOne blocks until the completed queue is non-empty (or the
// Registry is closed), then returns one id. Each id is returned
// exactly once. It must be called only from the owning instance's
// thread.
func (r *Registry) TakeOne() (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.completed) == 0 && !r.closed {
		r.cond.Wait()
	}
	if len(r.completed) == 0 {
		return 0, false
	}
	id := r.completed[0]
	r.completed = r.completed[1:]
	return id, true
}

// Close wakes any goroutine blocked in TakeOne with ok == false. Per
// the specification's cancellation rules, outstanding slots are never
// completed; any Handle still held by the caller simply never becomes
// ready.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.slots = make(map[uint32]slot)
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Pending returns the number of invocations registered but not yet
// completed.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
