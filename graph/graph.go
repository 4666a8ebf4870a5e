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

// Package graph builds a DAG of dispatches on top of a single
// dispatcher instance (either package dispatch's remote Instance or
// package local's Instance -- both satisfy Backend) and drives it to
// completion with the scheduler described in the specification: a
// ready set, a running set keyed by invocation id, and propagation of
// each finished node's output to its successors' input slots.
//
// Go has no variadic generics, so arbitrary-arity "then" nodes aren't
// expressible as a single generic function the way the specification's
// then<Cfg?>(sender..., callable) pseudocode suggests. Instead this
// package provides Then0 through Then2 for the arities the benchmark
// programs actually need; a Then3 would follow the same pattern.
package graph

import (
	"fmt"

	"github.com/faasless/faasless/future"
)

// Backend is the subset of a dispatcher instance the executor needs:
// something to block on until an invocation id completes. Both
// dispatch.Instance and local.Instance satisfy it.
type Backend interface {
	WaitOne() (uint32, bool)
}

// node is the type-erased graph node. Every typed Sender wraps one.
type node struct {
	id         int
	depCount   int
	isSource   bool
	pending    uint32 // invocation id, valid once dispatched
	dispatched bool
	run        func() (uint32, error) // nil for source nodes
	collect    func() (any, error)    // reads the future once WaitOne surfaces pending
	out        any                    // this node's own output, broadcast to successors
	slots      []any                  // this node's typed input slots, filled by propagate
	succ       []edge
}

type edge struct {
	to    *node
	slot  int
	isVal bool
}

// Sender is a typed handle to one node's eventual output, used to wire
// it as an input to further Then calls. A void Sender (from Schedule)
// carries no value; it exists only to express a control dependency.
type Sender[T any] struct {
	n *node
}

// Builder assembles nodes in creation order and hands the finished DAG
// to an Executor.
type Builder struct {
	nodes []*node
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) add(n *node) {
	n.id = len(b.nodes)
	b.nodes = append(b.nodes, n)
}

// Schedule returns a sender referencing a fresh source node: no
// inputs, no work, a pure dependency-release marker.
func Schedule(b *Builder) Sender[struct{}] {
	n := &node{isSource: true}
	b.add(n)
	return Sender[struct{}]{n: n}
}

func wire(to *node, from *node, slot int, isVal bool) {
	from.succ = append(from.succ, edge{to: to, slot: slot, isVal: isVal})
	to.depCount++
}

// control records from as a void, value-less dependency of to.
func control[T any](to *node, from Sender[T]) {
	wire(to, from.n, -1, false)
}

// Then0 creates a task node with no typed inputs (only, optionally,
// control dependencies on other senders), calling dispatchCall to
// submit it once it becomes ready.
func Then0[Resp any](b *Builder, dispatchCall func() (uint32, future.Handle[Resp], error), after ...Sender[struct{}]) Sender[Resp] {
	n := &node{}
	var h future.Handle[Resp]
	n.run = func() (uint32, error) {
		id, handle, err := dispatchCall()
		h = handle
		return id, err
	}
	n.collect = func() (any, error) { return h.Value() }
	for _, a := range after {
		control(n, a)
	}
	b.add(n)
	return Sender[Resp]{n: n}
}

// Then1 creates a task node with one typed input slot fed by in.
func Then1[A, Resp any](b *Builder, in Sender[A], dispatchCall func(A) (uint32, future.Handle[Resp], error)) Sender[Resp] {
	n := &node{slots: make([]any, 1)}
	var h future.Handle[Resp]
	n.run = func() (uint32, error) {
		a, _ := n.slots[0].(A)
		id, handle, err := dispatchCall(a)
		h = handle
		return id, err
	}
	n.collect = func() (any, error) { return h.Value() }
	wire(n, in.n, 0, true)
	b.add(n)
	return Sender[Resp]{n: n}
}

// Result returns s's value once the Executor that scheduled it has
// finished running. Calling it before Run returns, or on a Sender
// produced by Schedule, is a programmer error and returns the zero
// value with a nil error.
func Result[T any](s Sender[T]) (T, error) {
	var zero T
	if s.n.collect == nil || !s.n.dispatched {
		return zero, nil
	}
	v, err := s.n.collect()
	if err != nil {
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// Then2 creates a task node with two typed input slots.
func Then2[A, B, Resp any](b *Builder, in1 Sender[A], in2 Sender[B], dispatchCall func(A, B) (uint32, future.Handle[Resp], error)) Sender[Resp] {
	n := &node{slots: make([]any, 2)}
	var h future.Handle[Resp]
	n.run = func() (uint32, error) {
		a, _ := n.slots[0].(A)
		c, _ := n.slots[1].(B)
		id, handle, err := dispatchCall(a, c)
		h = handle
		return id, err
	}
	n.collect = func() (any, error) { return h.Value() }
	wire(n, in1.n, 0, true)
	wire(n, in2.n, 1, true)
	b.add(n)
	return Sender[Resp]{n: n}
}
