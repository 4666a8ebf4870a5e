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

// Package trace implements a lightweight, purely observational span
// tree, along the lines of the span/parent-id model used by
// dd-trace-go: a span is opened from a parent, closes exactly once,
// and the whole tree flattens to a list where every parent precedes
// its children -- no exporter, no sampling, no global tracer.
package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Span is one timed, named operation in a Tree. The zero Span is not
// usable; obtain one from Tree.Root or Span.Child.
type Span struct {
	tree  *Tree
	index int
}

// Tree owns the flat storage for a single invocation's span tree. A
// Tree is safe for concurrent use: spans may be opened and closed from
// different goroutines (an HTTP/2 I/O thread closing a "write" span
// while the owner thread opens a "dispatch" span for the next call).
type Tree struct {
	// TraceID identifies this invocation's whole span tree; it has no
	// meaning beyond correlating the spans emitted by one dispatch or
	// one graph execution in exported trace data.
	TraceID uuid.UUID

	mu    sync.Mutex
	spans []entry
}

type entry struct {
	ID     uuid.UUID
	Name   string
	Start  time.Time
	End    time.Time
	Parent int
	Tags   map[string]string
	closed bool
}

// New returns an empty Tree with a fresh TraceID.
func New() *Tree {
	return &Tree{TraceID: uuid.New()}
}

// Root opens a new root span (its own parent, per the specification's
// data model) named name, starting now.
func (t *Tree) Root(name string) Span {
	return t.open(name, -1)
}

// Child opens a new span named name as a child of s, starting now.
func (s Span) Child(name string) Span {
	return s.tree.open(name, s.index)
}

func (t *Tree) open(name string, parent int) Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := len(t.spans)
	p := parent
	if p < 0 {
		p = idx // root spans are their own parent
	}
	t.spans = append(t.spans, entry{
		ID:     uuid.New(),
		Name:   name,
		Start:  time.Now().UTC(),
		Parent: p,
		Tags:   map[string]string{},
	})
	return Span{tree: t, index: idx}
}

// Tag attaches a key/value pair to s. Safe to call before or after
// Close.
func (s Span) Tag(key, value string) {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	s.tree.spans[s.index].Tags[key] = value
}

// Close marks s as finished at the current time. Closing an
// already-closed span is a no-op, matching the specification's
// idempotent-close requirement.
func (s Span) Close() {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	e := &s.tree.spans[s.index]
	if e.closed {
		return
	}
	e.End = time.Now().UTC()
	e.closed = true
}

// Record is the flattened, serializable shape of one span: every
// field the specification names, plus the index of its parent so that
// Flatten's output round-trips through the wire codecs.
type Record struct {
	ID     uuid.UUID
	Name   string
	Start  time.Time
	End    time.Time
	Parent int
	Tags   map[string]string
}

// Flatten returns every span in t as a list where parents always
// precede children, since spans are appended in creation order and a
// child can only be created from an already-existing parent.
func (t *Tree) Flatten() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.spans))
	for i, e := range t.spans {
		tags := make(map[string]string, len(e.Tags))
		for k, v := range e.Tags {
			tags[k] = v
		}
		out[i] = Record{ID: e.ID, Name: e.Name, Start: e.Start, End: e.End, Parent: e.Parent, Tags: tags}
	}
	return out
}
