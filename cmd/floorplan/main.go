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

// Command floorplan is a deliberately simplified stand-in for the
// BOTS floorplan benchmark: cells are placed left to right instead of
// being packed on a 2D board, but the benchmark-relevant shape is
// preserved -- each cell has alternative (width, height) shapes, and
// subproblems below a fixed recursion depth are remote-dispatched
// instead of explored in-process. Every combination of shapes is
// explored; no placement is pruned against the best area seen so far.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faasless/faasless/bench"
	"github.com/faasless/faasless/local"
	"github.com/faasless/faasless/task"
	"github.com/faasless/faasless/wire/binary"
)

// shape is one candidate (width, height) a cell may be laid down as.
type shape struct{ W, H int }

// cell lists the shapes one placed rectangle may take.
type cell struct{ Alt []shape }

// referenceCells is the 5-cell input shipped with this benchmark; its
// sequential minimum area is the value the dispatched solve must
// reproduce.
var referenceCells = []cell{
	{Alt: []shape{{4, 2}, {2, 4}}},
	{Alt: []shape{{3, 3}, {1, 9}}},
	{Alt: []shape{{2, 5}, {5, 2}}},
	{Alt: []shape{{3, 2}, {2, 3}}},
	{Alt: []shape{{4, 1}, {1, 4}}},
}

type floorCtx struct {
	Cells  []cell
	Index  int
	Width  int
	Height int
}
type floorArgs struct{}

var descriptor = task.Describe[floorCtx, floorArgs, int]("cmd/floorplan.solve")

const taskID = "floorplan"

func main() {
	var cutoff int

	root := &cobra.Command{
		Use:   "floorplan",
		Short: "minimize footprint area over the shipped 5-cell input via cutoff-bounded dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			codec := binary.New()

			if bench.IsWorker() {
				ctx, _, err := bench.ReadPayload[floorCtx, floorArgs](codec)
				if err != nil {
					return fmt.Errorf("floorplan: worker: %w", err)
				}
				area := solveSequential(ctx.Cells, ctx.Index, ctx.Width, ctx.Height)
				return bench.WriteResponse(codec, area)
			}

			inst, err := bench.SelfInstance(taskID, codec)
			if err != nil {
				return fmt.Errorf("floorplan: %w", err)
			}
			defer inst.Close()

			area, err := solveDispatched(inst, referenceCells, 0, 0, 0, cutoff)
			if err != nil {
				return fmt.Errorf("floorplan: %w", err)
			}
			fmt.Println(area)
			return nil
		},
	}
	root.Flags().IntVar(&cutoff, "cutoff", 2, "recursion depth below which subproblems are dispatched remotely")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// solveSequential explores every placement of cells[index:] with no
// dispatching, returning the minimum total area reachable from the
// (width, height) footprint already committed to.
func solveSequential(cells []cell, index, width, height int) int {
	if index == len(cells) {
		return width * height
	}
	best := -1
	for _, alt := range cells[index].Alt {
		w := width + alt.W
		h := max(height, alt.H)
		area := solveSequential(cells, index+1, w, h)
		if best == -1 || area < best {
			best = area
		}
	}
	return best
}

// solveDispatched mirrors solveSequential's branching,
// except that once the recursion has descended cutoff levels it hands
// the remaining subtree to a single remote dispatch instead of
// continuing to recurse in-process.
func solveDispatched(inst *local.Instance, cells []cell, index, width, height, cutoff int) (int, error) {
	if index == len(cells) {
		return width * height, nil
	}
	if cutoff == 0 {
		_, h, err := local.Dispatch[floorCtx, floorArgs, int](inst, descriptor, floorCtx{
			Cells: cells, Index: index, Width: width, Height: height,
		}, floorArgs{})
		if err != nil {
			return 0, err
		}
		inst.Wait(1)
		return h.Value()
	}
	best := -1
	for _, alt := range cells[index].Alt {
		w := width + alt.W
		h := max(height, alt.H)
		area, err := solveDispatched(inst, cells, index+1, w, h, cutoff-1)
		if err != nil {
			return 0, err
		}
		if best == -1 || area < best {
			best = area
		}
	}
	return best, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
