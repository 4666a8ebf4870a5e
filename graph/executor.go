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

package graph

import "fmt"

// Executor drives one Builder's DAG to completion over a single
// Backend, following the specification's await_all algorithm: a ready
// set seeded by zero-dependency nodes, a running set keyed by
// invocation id, and propagation of each finished node's output to
// its successors' input slots.
type Executor struct {
	b       *Builder
	backend Backend
}

// NewExecutor pairs a Builder's finished DAG with the Backend it will
// run on.
func NewExecutor(b *Builder, backend Backend) *Executor {
	return &Executor{b: b, backend: backend}
}

// Run dispatches each task node once, when its inputs are ready, and
// returns once the DAG is fully drained, or earlier if the backend's
// WaitOne reports that no completion is left. It returns an error only
// if a node's dispatch call itself fails (the run closure returns an
// error); a failed remote invocation surfaces instead as the error
// Result returns for that node's Sender.
func (e *Executor) Run() error {
	var ready []*node
	running := make(map[uint32]*node)

	for _, n := range e.b.nodes {
		if n.depCount == 0 {
			ready = append(ready, n)
		}
	}

	for len(running) > 0 || len(ready) > 0 {
		for len(ready) > 0 {
			n := ready[len(ready)-1] // LIFO, per the specification: unobservable, unspecified order
			ready = ready[:len(ready)-1]

			if n.isSource {
				e.propagate(n, &ready)
				continue
			}
			id, err := n.run()
			if err != nil {
				return fmt.Errorf("graph: dispatching node %d: %w", n.id, err)
			}
			n.pending = id
			n.dispatched = true
			running[id] = n
		}
		if len(running) == 0 {
			break
		}
		id, ok := e.backend.WaitOne()
		if !ok {
			break
		}
		n, ok := running[id]
		if !ok {
			continue
		}
		delete(running, id)
		out, err := n.collect()
		n.out = out
		_ = err // a failed invocation's error lives in the node's Handle; Value() surfaces it to the caller
		e.propagate(n, &ready)
	}
	return nil
}

func (e *Executor) propagate(n *node, ready *[]*node) {
	for _, edge := range n.succ {
		if edge.isVal {
			edge.to.slots[edge.slot] = n.out
		}
		edge.to.depCount--
		if edge.to.depCount == 0 {
			*ready = append(*ready, edge.to)
		}
	}
}
