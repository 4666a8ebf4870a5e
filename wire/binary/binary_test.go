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

package binary

import (
	"bytes"
	"reflect"
	"testing"
)

type inner struct {
	Name string
	Tags []string
}

type outer struct {
	ID      int64
	Score   float64
	Active  bool
	Data    []byte
	Inner   inner
	Lookup  map[string]int
	Ptr     *inner
	NilPtr  *inner
}

func TestRoundTripStruct(t *testing.T) {
	a := New()
	in := outer{
		ID:     7,
		Score:  3.5,
		Active: true,
		Data:   []byte{1, 2, 3},
		Inner:  inner{Name: "x", Tags: []string{"a", "b"}},
		Lookup: map[string]int{"a": 1, "b": 2},
		Ptr:    &inner{Name: "y"},
	}
	data, err := a.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	var out outer
	if err := a.Decode(data, &out); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in  = %+v\n out = %+v", in, out)
	}
}

func TestOutputLengthIsDeterministic(t *testing.T) {
	a := New()
	v := outer{ID: 1, Inner: inner{Name: "fixed"}}
	d1, _ := a.Encode(v)
	d2, _ := a.Encode(v)
	if len(d1) != len(d2) || !bytes.Equal(d1, d2) {
		t.Fatal("encoding the same value twice produced different bytes")
	}
}

type shape interface{ area() float64 }
type circle struct{ R float64 }
type square struct{ S float64 }

func (c circle) area() float64 { return 3.14159 * c.R * c.R }
func (s square) area() float64 { return s.S * s.S }

type holder struct {
	Shape shape
}

func TestVariantRoundTrip(t *testing.T) {
	RegisterVariant("circle", circle{})
	RegisterVariant("square", square{})

	a := New()
	data, err := a.Encode(holder{Shape: circle{R: 2}})
	if err != nil {
		t.Fatal(err)
	}
	var out holder
	if err := a.Decode(data, &out); err != nil {
		t.Fatal(err)
	}
	c, ok := out.Shape.(circle)
	if !ok || c.R != 2 {
		t.Fatalf("got %#v", out.Shape)
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	c, err := NewCompressed()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	in := outer{ID: 99, Inner: inner{Name: "compressed", Tags: []string{"z"}}}
	data, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	var out outer
	if err := c.Decode(data, &out); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in  = %+v\n out = %+v", in, out)
	}
}
