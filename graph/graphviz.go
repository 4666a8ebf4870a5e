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
	"fmt"
	"io"
)

// Graphviz dumps b's node table to dst as dot(1)-compatible text:
// each node labeled by its kind (source or task) and id, with one
// edge per successor, used for tests and debugging DAGs before they
// are handed to an Executor.
func Graphviz(b *Builder, dst io.Writer) error {
	if _, err := io.WriteString(dst, "digraph dag {\n"); err != nil {
		return err
	}
	for _, n := range b.nodes {
		label := fmt.Sprintf("task %d", n.id)
		if n.isSource {
			label = fmt.Sprintf("source %d", n.id)
		}
		if _, err := fmt.Fprintf(dst, "n%d [label=%q];\n", n.id, label); err != nil {
			return err
		}
	}
	for _, n := range b.nodes {
		for _, e := range n.succ {
			kind := "control"
			if e.isVal {
				kind = fmt.Sprintf("slot %d", e.slot)
			}
			if _, err := fmt.Fprintf(dst, "n%d -> n%d [label=%q];\n", n.id, e.to.id, kind); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(dst, "}\n")
	return err
}
