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

// Command nqueens counts N-queens solutions by generating every safe
// placement of the first prefixLength columns locally, then
// dispatching one task per prefix to complete it by backtracking. It
// wires its dispatches through package graph instead of calling
// local.Dispatch/WaitOne directly, since the prefixes are independent
// and the scheduler's propagate step degenerates to a flat fan-out --
// exactly the shape graph's Then0 nodes with a shared Schedule source
// are for.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faasless/faasless/bench"
	"github.com/faasless/faasless/future"
	"github.com/faasless/faasless/graph"
	"github.com/faasless/faasless/local"
	"github.com/faasless/faasless/task"
	"github.com/faasless/faasless/wire/binary"
)

type queensCtx struct {
	Size   int
	Prefix []int
}
type queensArgs struct{}

var descriptor = task.Describe[queensCtx, queensArgs, int]("cmd/nqueens.complete")

const taskID = "nqueens"

func main() {
	var size, prefixLen int

	root := &cobra.Command{
		Use:   "nqueens",
		Short: "count N-queens solutions by dispatching one task per board prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			codec := binary.New()

			if bench.IsWorker() {
				ctx, _, err := bench.ReadPayload[queensCtx, queensArgs](codec)
				if err != nil {
					return fmt.Errorf("nqueens: worker: %w", err)
				}
				return bench.WriteResponse(codec, countCompletions(ctx.Prefix, ctx.Size))
			}

			prefixes := generatePrefixes(size, prefixLen)

			inst, err := bench.SelfInstance(taskID, codec)
			if err != nil {
				return fmt.Errorf("nqueens: %w", err)
			}
			defer inst.Close()

			b := graph.NewBuilder()
			source := graph.Schedule(b)
			senders := make([]graph.Sender[int], 0, len(prefixes))
			for _, prefix := range prefixes {
				prefix := prefix
				s := graph.Then0(b, func() (uint32, future.Handle[int], error) {
					return local.Dispatch[queensCtx, queensArgs, int](inst, descriptor, queensCtx{Size: size, Prefix: prefix}, queensArgs{})
				}, source)
				senders = append(senders, s)
			}

			ex := graph.NewExecutor(b, inst)
			if err := ex.Run(); err != nil {
				return fmt.Errorf("nqueens: %w", err)
			}

			total := 0
			for _, s := range senders {
				v, err := graph.Result(s)
				if err != nil {
					return fmt.Errorf("nqueens: worker failed: %w", err)
				}
				total += v
			}
			fmt.Println(total)
			return nil
		},
	}
	root.Flags().IntVar(&size, "size", 8, "board size")
	root.Flags().IntVar(&prefixLen, "prefix-length", 2, "columns placed locally before dispatching")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// generatePrefixes returns every safe placement of the board's first
// prefixLength columns, each as a length-prefixLength slice mapping
// column index to row.
func generatePrefixes(size, prefixLength int) [][]int {
	var out [][]int
	var rec func(col int, board []int)
	rec = func(col int, board []int) {
		if col == prefixLength {
			cp := make([]int, prefixLength)
			copy(cp, board)
			out = append(out, cp)
			return
		}
		for row := 0; row < size; row++ {
			if safe(board[:col], col, row) {
				board[col] = row
				rec(col+1, board)
			}
		}
	}
	rec(0, make([]int, prefixLength))
	return out
}

// countCompletions finishes a partial placement by backtracking over
// the remaining columns and counts the full solutions reachable from
// it.
func countCompletions(prefix []int, size int) int {
	board := make([]int, size)
	copy(board, prefix)
	count := 0
	var rec func(col int)
	rec = func(col int) {
		if col == size {
			count++
			return
		}
		for row := 0; row < size; row++ {
			if safe(board[:col], col, row) {
				board[col] = row
				rec(col + 1)
			}
		}
	}
	rec(len(prefix))
	return count
}

func safe(placed []int, col, row int) bool {
	for c, r := range placed {
		if r == row || c-col == r-row || c+r == col+row {
			return false
		}
	}
	return true
}
