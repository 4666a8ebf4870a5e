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

import (
	"bytes"
	"testing"

	"github.com/faasless/faasless/future"
	"github.com/faasless/faasless/wire/binary"
)

// fakeBackend completes ids in the order they were dispatched, which
// is enough to exercise the executor's scheduling logic against a
// future.Registry without a real transport.
type fakeBackend struct {
	reg       *future.Registry
	remaining int
}

func (f *fakeBackend) WaitOne() (uint32, bool) {
	if f.remaining == 0 {
		return 0, false
	}
	f.remaining--
	return f.reg.TakeOne()
}

func TestLinearChain(t *testing.T) {
	b := NewBuilder()
	reg := future.NewRegistry()
	codec := binary.New()
	fb := &fakeBackend{reg: reg}
	var nextID uint32

	submit := func(v int) (uint32, future.Handle[int], error) {
		id := nextID
		nextID++
		h := future.New[int]()
		future.Register(reg, id, h)
		data, err := codec.Encode(v)
		if err != nil {
			return 0, h, err
		}
		reg.Complete(codec, id, data)
		fb.remaining++
		return id, h, nil
	}

	twentyOne := Then0(b, func() (uint32, future.Handle[int], error) { return submit(21) })
	doubled := Then1(b, twentyOne, func(x int) (uint32, future.Handle[int], error) { return submit(x * 2) })

	ex := NewExecutor(b, fb)
	if err := ex.Run(); err != nil {
		t.Fatal(err)
	}
	v, err := doubled.n.collect()
	if err != nil {
		t.Fatal(err)
	}
	if v.(int) != 42 {
		t.Fatalf("got %v, want 42", v)
	}
}

func TestGraphvizListsEveryNode(t *testing.T) {
	b := NewBuilder()
	Schedule(b)
	var buf bytes.Buffer
	if err := Graphviz(b, &buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("digraph dag")) {
		t.Fatalf("missing digraph header: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`n0 [label="source 0"]`)) {
		t.Fatalf("missing source node: %s", buf.String())
	}
}
