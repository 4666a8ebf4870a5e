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

// Command pi estimates pi by Monte Carlo sampling, fanning a fixed
// iteration budget out across np workers and averaging their
// estimates -- a flat dispatch/wait_one loop, with no recursive
// sub-dispatch, unlike cmd/fib.
package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/faasless/faasless/bench"
	"github.com/faasless/faasless/future"
	"github.com/faasless/faasless/local"
	"github.com/faasless/faasless/task"
	"github.com/faasless/faasless/wire/binary"
)

type piCtx struct{ Iterations int64 }
type piArgs struct{}

var descriptor = task.Describe[piCtx, piArgs, float64]("cmd/pi.estimate")

const taskID = "pi"

func main() {
	var n int64
	var np int

	root := &cobra.Command{
		Use:   "pi",
		Short: "estimate pi by Monte Carlo sampling across np remote workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			codec := binary.New()

			if bench.IsWorker() {
				ctx, _, err := bench.ReadPayload[piCtx, piArgs](codec)
				if err != nil {
					return fmt.Errorf("pi: worker: %w", err)
				}
				return bench.WriteResponse(codec, estimate(ctx.Iterations))
			}

			inst, err := bench.SelfInstance(taskID, codec)
			if err != nil {
				return fmt.Errorf("pi: %w", err)
			}
			defer inst.Close()

			perWorker := n / int64(np)
			handles := make([]future.Handle[float64], 0, np)
			for i := 0; i < np; i++ {
				_, h, err := local.Dispatch[piCtx, piArgs, float64](inst, descriptor, piCtx{Iterations: perWorker}, piArgs{})
				if err != nil {
					return fmt.Errorf("pi: dispatching worker: %w", err)
				}
				handles = append(handles, h)
			}

			inst.Wait(np)
			var pi float64
			for _, h := range handles {
				v, err := h.Value()
				if err != nil {
					return fmt.Errorf("pi: worker failed: %w", err)
				}
				pi += v / float64(np)
			}
			fmt.Println(pi)
			return nil
		},
	}
	root.Flags().Int64Var(&n, "n", 1_000_000, "total number of samples")
	root.Flags().IntVar(&np, "np", 4, "number of worker processes")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// estimate computes the Monte Carlo pi estimate from the original
// dispatcher's is_inside: sample (x, y) uniformly in the unit square
// and count hits inside the unit quarter-circle.
func estimate(iterations int64) float64 {
	r := rand.New(rand.NewSource(int64(uint64(iterations) ^ 0x9e3779b97f4a7c15)))
	var hit int64
	for i := int64(0); i < iterations; i++ {
		x, y := r.Float64(), r.Float64()
		if x*x+y*y <= 1 {
			hit++
		}
	}
	return 4 * float64(hit) / float64(iterations)
}
