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

// Package local is the development/test stand-in for package dispatch:
// it presents the same WaitOne surface, but instead of calling out to
// a Lambda-style HTTP/2 endpoint it forks one child process per
// dispatch and talks to it over stdin/stdout pipes, looking up the
// child's executable in a meta file co-located with the host binary.
package local

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/faasless/faasless/future"
	"github.com/faasless/faasless/wire"
)

// EntryPoint is one row of the meta file's "entry_points" array.
type EntryPoint struct {
	OriginalFunctionName string `json:"original_function_name"`
	Filename             string `json:"filename"`
	UserMeta             string `json:"user_meta"`
}

// Meta is the co-located <executable>.json file's shape.
type Meta struct {
	EntryPoints []EntryPoint `json:"entry_points"`
}

// LoadMeta reads and parses a meta file.
func LoadMeta(path string) (*Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m Meta
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("local: parsing meta file %s: %w", path, err)
	}
	return &m, nil
}

// MetaPathFor returns the conventional meta file path for an
// executable: the same base name with a .json extension.
func MetaPathFor(executable string) string {
	ext := filepath.Ext(executable)
	return executable[:len(executable)-len(ext)] + ".json"
}

// Option configures an Instance at construction time.
type Option func(*Instance)

// WithLogger sends the line logged for each child that exits with an
// error, including that child's captured stderr, to logger instead of
// the default log.Default().
func WithLogger(logger *log.Logger) Option {
	return func(i *Instance) { i.logger = logger }
}

// WithEnv overrides the environment passed to every child process. If
// unset, children inherit PATH, SHELL, HOME and LANG from this
// process, matching the minimal-inheritance default the corresponding
// remote backend's build environment expects.
func WithEnv(env []string) Option {
	return func(i *Instance) { i.env = env }
}

func defaultEnv() []string {
	var env []string
	for _, name := range []string{"PATH", "SHELL", "HOME", "LANG"} {
		if v := os.Getenv(name); v != "" {
			env = append(env, name+"="+v)
		}
	}
	return env
}

// Instance is the local-subprocess dispatcher described in the
// specification: on dispatch it looks up the task identifier in the
// table loaded from the meta file, forks a child, writes the
// serialized payload to its stdin, and starts a waiter goroutine that
// reaps the child and completes the future registry.
type Instance struct {
	byIdentifier map[string]string // task identifier -> executable path
	codec        wire.Codec
	reg          *future.Registry
	env          []string
	logger       *log.Logger

	mu     sync.Mutex
	nextID uint32
}

// New builds an Instance from the meta file co-located with
// executable (see MetaPathFor), using codec to serialize payloads and
// responses over the child's pipes.
func New(executable string, codec wire.Codec, opts ...Option) (*Instance, error) {
	m, err := LoadMeta(MetaPathFor(executable))
	if err != nil {
		return nil, err
	}
	inst := &Instance{
		byIdentifier: make(map[string]string, len(m.EntryPoints)),
		codec:        codec,
		reg:          future.NewRegistry(),
		env:          defaultEnv(),
		logger:       log.Default(),
	}
	for _, e := range m.EntryPoints {
		inst.byIdentifier[e.UserMeta] = e.Filename
	}
	for _, o := range opts {
		o(inst)
	}
	return inst, nil
}

// Close stops accepting new completions. Children already spawned are
// not killed; their waiter goroutines run to completion and simply
// find the registry closed.
func (inst *Instance) Close() {
	inst.reg.Close()
}

// identifier is the minimal task-descriptor surface Dispatch needs:
// satisfied by *task.Descriptor[Ctx, Args, Resp].
type identifier interface {
	ID() string
}

// Dispatch looks up d's identifier in the meta-file table, forks the
// matching executable, and writes the serialized {ctx, args} payload
// to its stdin. It returns as soon as the child has been started; a
// waiter goroutine reads the response and completes the returned
// future.
func Dispatch[Ctx, Args, Resp any](inst *Instance, d identifier, ctx Ctx, args Args) (uint32, future.Handle[Resp], error) {
	var h future.Handle[Resp]

	path, ok := inst.byIdentifier[d.ID()]
	if !ok {
		return 0, h, fmt.Errorf("local: no entry point registered for identifier %q", d.ID())
	}

	payload, err := wire.EncodePayload(inst.codec, ctx, args)
	if err != nil {
		return 0, h, fmt.Errorf("local: encoding payload: %w", err)
	}

	inst.mu.Lock()
	id := inst.nextID
	inst.nextID++
	inst.mu.Unlock()

	h = future.New[Resp]()
	future.Register(inst.reg, id, h)

	cmd := exec.Command(path)
	cmd.Env = inst.env
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		inst.reg.Fail(id, err)
		return id, h, nil
	}
	if err := cmd.Start(); err != nil {
		inst.reg.Fail(id, fmt.Errorf("local: starting %s: %w", path, err))
		return id, h, nil
	}

	go inst.wait(id, cmd, stdout, &stderr)

	return id, h, nil
}

func (inst *Instance) wait(id uint32, cmd *exec.Cmd, stdout io.Reader, stderr *bytes.Buffer) {
	out, readErr := io.ReadAll(stdout)
	err := cmd.Wait()
	if err != nil {
		inst.logger.Printf("local: task %d: %s exited: %v: %s", id, cmd.Path, err, stderr.String())
		inst.reg.Fail(id, fmt.Errorf("local: child exited: %w", err))
		return
	}
	if readErr != nil {
		inst.reg.Fail(id, fmt.Errorf("local: reading child stdout: %w", readErr))
		return
	}
	inst.reg.Complete(inst.codec, id, out)
}

// WaitOne drives the event loop exactly as dispatch.Instance.WaitOne.
func (inst *Instance) WaitOne() (uint32, bool) {
	return inst.reg.TakeOne()
}

// Wait calls WaitOne n times.
func (inst *Instance) Wait(n int) []uint32 {
	ids := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		id, ok := inst.WaitOne()
		if !ok {
			break
		}
		ids = append(ids, id)
	}
	return ids
}
