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

// Command fib is the recursive-dispatch benchmark named in the
// specification's testable properties: dispatch_fib(5) must equal 5,
// and every recursive step opens its own dispatcher instance rather
// than sharing its parent's, so that nested dispatching composes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faasless/faasless/bench"
	"github.com/faasless/faasless/config"
	"github.com/faasless/faasless/dispatch"
	"github.com/faasless/faasless/local"
	"github.com/faasless/faasless/task"
	"github.com/faasless/faasless/wire"
	"github.com/faasless/faasless/wire/binary"
)

type fibCtx struct{ N int }
type fibArgs struct{}

var descriptor = task.Describe[fibCtx, fibArgs, int]("cmd/fib.fib")

const taskID = "fib"

func main() {
	var n int
	var configPath string

	root := &cobra.Command{
		Use:   "fib",
		Short: "compute a Fibonacci number via nested remote dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			codec := binary.New()

			if bench.IsWorker() {
				ctx, _, err := bench.ReadPayload[fibCtx, fibArgs](codec)
				if err != nil {
					return fmt.Errorf("fib: worker: %w", err)
				}
				v, err := fib(ctx.N, codec, nil)
				if err != nil {
					return fmt.Errorf("fib: worker: %w", err)
				}
				return bench.WriteResponse(codec, v)
			}

			var cfg *config.Config
			if configPath != "" {
				c, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("fib: %w", err)
				}
				if err := c.Validate(); err != nil {
					return fmt.Errorf("fib: %w", err)
				}
				cfg = c
			}

			v, err := fib(n, codec, cfg)
			if err != nil {
				return fmt.Errorf("fib: %w", err)
			}
			fmt.Println(v)
			return nil
		},
	}
	root.Flags().IntVar(&n, "n", 5, "fibonacci index to compute")
	root.Flags().StringVar(&configPath, "config", "", "YAML config selecting region/buildPrefix/backend for remote dispatch (default: local self-exec)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// fib computes the nth Fibonacci number. For n above the sequential
// cutoff, it builds a fresh dispatcher instance -- never the caller's
// -- and fans the two subproblems out, matching the specification's
// "each nested call opens its own [instance]" requirement. cfg selects
// the backend: nil or cfg.Backend=="local" forks child processes of
// this same binary (see bench.SelfInstance); cfg.Backend=="remote"
// dispatches over the real HTTP/2 Lambda transport instead.
func fib(n int, codec wire.Codec, cfg *config.Config) (int, error) {
	if n <= 1 {
		return n, nil
	}
	if n <= sequentialCutoff {
		a, err := fib(n-1, codec, cfg)
		if err != nil {
			return 0, err
		}
		b, err := fib(n-2, codec, cfg)
		if err != nil {
			return 0, err
		}
		return a + b, nil
	}

	if cfg != nil && cfg.Backend == "remote" {
		return fibRemote(n, codec, cfg)
	}
	return fibLocal(n, codec)
}

// sequentialCutoff bounds how deep the recursion forks subprocesses;
// below it fib runs in-process, which keeps the benchmark's process
// count proportional to its interesting (superlinear) part.
const sequentialCutoff = 2

func fibLocal(n int, codec wire.Codec) (int, error) {
	inst, err := bench.SelfInstance(taskID, codec)
	if err != nil {
		return 0, err
	}
	defer inst.Close()

	_, h1, err := local.Dispatch[fibCtx, fibArgs, int](inst, descriptor, fibCtx{N: n - 1}, fibArgs{})
	if err != nil {
		return 0, err
	}
	_, h2, err := local.Dispatch[fibCtx, fibArgs, int](inst, descriptor, fibCtx{N: n - 2}, fibArgs{})
	if err != nil {
		return 0, err
	}
	inst.Wait(2)

	a, err := h1.Value()
	if err != nil {
		return 0, fmt.Errorf("fib(%d): %w", n-1, err)
	}
	b, err := h2.Value()
	if err != nil {
		return 0, fmt.Errorf("fib(%d): %w", n-2, err)
	}
	return a + b, nil
}

func fibRemote(n int, codec wire.Codec, cfg *config.Config) (int, error) {
	inst, err := dispatch.New(cfg.Region, cfg.BuildPrefix, codec)
	if err != nil {
		return 0, fmt.Errorf("fib: remote: %w", err)
	}
	defer inst.Close()

	_, h1, err := dispatch.Dispatch[fibCtx, fibArgs, int](inst, descriptor, fibCtx{N: n - 1}, fibArgs{})
	if err != nil {
		return 0, err
	}
	_, h2, err := dispatch.Dispatch[fibCtx, fibArgs, int](inst, descriptor, fibCtx{N: n - 2}, fibArgs{})
	if err != nil {
		return 0, err
	}
	inst.Wait(2)

	a, err := h1.Value()
	if err != nil {
		return 0, fmt.Errorf("fib(%d): %w", n-1, err)
	}
	b, err := h2.Value()
	if err != nil {
		return 0, fmt.Errorf("fib(%d): %w", n-2, err)
	}
	return a + b, nil
}
