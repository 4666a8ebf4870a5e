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

// Package task describes one remotely-invocable unit of work: a
// stable identifier, a resource configuration, and the captured state
// ("context") that should travel with every invocation.
//
// There is deliberately no compiler magic here. A Task is data, not a
// rewritten closure: callers declare the captured state as an
// ordinary Go struct and a free function that consumes it, and this
// package derives a stable identifier from the struct's and
// function's type names. That identifier is what ties a Task value to
// a specific remote function (or local executable) across runs of the
// same binary.
package task

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
)

// Config is the resource configuration a task should run with on the
// remote backend. The local-subprocess backend (see package local)
// ignores it entirely; it exists for the HTTP/2 backend to translate
// into Lambda's per-function memory/storage/timeout settings.
type Config struct {
	MemoryMB           int
	EphemeralStorageMB int
	TimeoutSeconds     int
	Description        string
}

// DefaultConfig mirrors the defaults described in the specification:
// 1024MB memory, 512MB of ephemeral storage, a five-minute timeout.
var DefaultConfig = Config{
	MemoryMB:           1024,
	EphemeralStorageMB: 512,
	TimeoutSeconds:     300,
}

// Descriptor is a stable, reusable handle for one callable: a unique
// identifier, a resource configuration, and the Go types of its
// captured context, argument tuple and response, which the
// serialization façade uses to round-trip values without a schema.
//
// A Descriptor does not hold a specific invocation's arguments; it is
// constructed once per (callable, argument-type list) pair and reused
// across every call to Dispatch with that callable.
type Descriptor[Ctx, Args, Resp any] struct {
	id     string
	config Config
}

// Describe builds a Descriptor for a callable identified by location,
// a short string naming the source-code site of the call (the
// specification's "source-location token"). Two Describe calls at
// distinct call sites, or with distinct Ctx or Args types, are
// guaranteed to produce distinct identifiers (Resp is not part of the
// identifier); two calls at the same
// site with the same type parameters always agree, even across
// process restarts of the same binary, which is what lets the local
// dispatcher and the remote dispatcher find the same function twice.
func Describe[Ctx, Args, Resp any](location string) *Descriptor[Ctx, Args, Resp] {
	var ctx Ctx
	var args Args
	id := location + "@" + typeToken(ctx) + typeToken(args)
	return &Descriptor[Ctx, Args, Resp]{
		id:     id,
		config: DefaultConfig,
	}
}

// WithConfig returns a copy of d with its resource configuration
// replaced by cfg. It does not mutate d, since a Descriptor is
// typically a long-lived, shared value.
func (d *Descriptor[Ctx, Args, Resp]) WithConfig(cfg Config) *Descriptor[Ctx, Args, Resp] {
	cp := *d
	cp.config = cfg
	return &cp
}

// ID is the stable identifier described in the specification:
// "<source-token>@<callable-type-token><argument-type-tokens>".
func (d *Descriptor[Ctx, Args, Resp]) ID() string { return d.id }

// Config is the resource configuration this task should run with.
func (d *Descriptor[Ctx, Args, Resp]) Config() Config { return d.config }

// FunctionSuffix returns the first 8 hex digits of SHA-256(ID()),
// which the HTTP/2 backend appends to BUILD_PREFIX to name the
// remote Lambda function. The local backend's meta file is keyed by
// the full ID, not by this suffix.
func (d *Descriptor[Ctx, Args, Resp]) FunctionSuffix() string {
	sum := sha256.Sum256([]byte(d.id))
	return hex.EncodeToString(sum[:])[:8]
}

// typeToken returns a deterministic textual encoding of v's static
// type. Go's reflect.Type.String already satisfies the specification's
// only requirement of a type-token function -- that distinct types
// produce distinct strings -- for every type this package is used
// with (structs, basic types, slices and maps of those).
func typeToken(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	return fmt.Sprintf("<%s>", t.String())
}
