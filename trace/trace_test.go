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

package trace

import "testing"

func TestParentsPrecedeChildren(t *testing.T) {
	tr := New()
	root := tr.Root("dispatch")
	c1 := root.Child("resolve")
	c2 := root.Child("connect")
	gc := c1.Child("tls")
	gc.Close()
	c2.Close()
	c1.Close()
	root.Close()

	recs := tr.Flatten()
	for i, r := range recs {
		if r.Parent > i {
			t.Fatalf("record %d (%s) has parent index %d, which has not been emitted yet", i, r.Name, r.Parent)
		}
	}
	if recs[0].Parent != 0 {
		t.Fatalf("root span should be its own parent, got %d", recs[0].Parent)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	tr := New()
	s := tr.Root("op")
	s.Close()
	first := tr.Flatten()[0].End
	s.Close()
	second := tr.Flatten()[0].End
	if !first.Equal(second) {
		t.Fatalf("second Close changed End: %v -> %v", first, second)
	}
}

func TestTagRoundtrips(t *testing.T) {
	tr := New()
	s := tr.Root("op")
	s.Tag("attempt", "1")
	s.Close()
	if got := tr.Flatten()[0].Tags["attempt"]; got != "1" {
		t.Fatalf("tag = %q, want %q", got, "1")
	}
}
