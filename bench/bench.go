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

// Package bench is the small harness the benchmark programs under
// cmd/ share, not part of the dispatcher core itself. The
// compiler-assisted step that would normally turn each task closure
// into its own standalone entry-point executable is out of scope (see
// the specification's explicit non-goals); this package stands in for
// it with the simplest thing that actually works: the benchmark
// binary re-execs itself as a worker, reading one task's payload from
// stdin, and a marker environment variable set on every child the
// local dispatcher spawns tells a fresh process to behave as a worker
// instead of a driver.
package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/faasless/faasless/local"
	"github.com/faasless/faasless/wire"
)

// WorkerEnvVar, when set to "1" in a process's environment, tells
// main to run as a worker (read one payload from stdin, write one
// response to stdout) instead of as the driving program.
const WorkerEnvVar = "FAASLESS_BENCH_WORKER"

// IsWorker reports whether this process was launched as a worker.
func IsWorker() bool {
	return os.Getenv(WorkerEnvVar) == "1"
}

// SelfInstance builds a local.Instance that dispatches back to this
// same executable: it writes the meta file package local expects next
// to the running binary, with a single entry point whose user_meta is
// id, then loads it through local.New with the worker marker set on
// every child's environment.
func SelfInstance(id string, codec wire.Codec) (*local.Instance, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("bench: locating self: %w", err)
	}
	meta := local.Meta{EntryPoints: []local.EntryPoint{{
		OriginalFunctionName: id,
		Filename:             exe,
		UserMeta:             id,
	}}}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("bench: encoding meta file: %w", err)
	}
	if err := os.WriteFile(local.MetaPathFor(exe), data, 0o644); err != nil {
		return nil, fmt.Errorf("bench: writing meta file: %w", err)
	}
	env := childEnv()
	return local.New(exe, codec, local.WithEnv(env))
}

func childEnv() []string {
	env := []string{WorkerEnvVar + "=1"}
	for _, name := range []string{"PATH", "SHELL", "HOME", "LANG"} {
		if v := os.Getenv(name); v != "" {
			env = append(env, name+"="+v)
		}
	}
	return env
}

// ReadPayload decodes this worker's {context, args} payload from its
// stdin.
func ReadPayload[C, A any](codec wire.Codec) (C, A, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		var c C
		var a A
		return c, a, fmt.Errorf("bench: reading stdin: %w", err)
	}
	return wire.DecodePayload[C, A](codec, data)
}

// WriteResponse encodes resp and writes it to this worker's stdout,
// the shape the owning local.Instance's waiter goroutine expects.
func WriteResponse[R any](codec wire.Codec, resp R) error {
	data, err := wire.EncodeResponse(codec, resp)
	if err != nil {
		return fmt.Errorf("bench: encoding response: %w", err)
	}
	_, err = os.Stdout.Write(data)
	return err
}
