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

// Package dispatch is the user-facing façade (the specification's
// dispatcher instance, C6): dispatch(task, future, args) -> id and
// wait_one() -> id, orchestrating the task descriptor (C3), the
// serialization façade (C2), the signer (C1), the HTTP/2 session (C5)
// and the future registry (C4) behind three calls.
package dispatch

import (
	"context"
	"fmt"

	"github.com/faasless/faasless/future"
	"github.com/faasless/faasless/sigv4"
	"github.com/faasless/faasless/task"
	"github.com/faasless/faasless/trace"
	"github.com/faasless/faasless/transport"
	"github.com/faasless/faasless/wire"
)

// Instance owns one HTTP/2 session and the future registry that
// backs it. It is intended for use from a single "owner" goroutine:
// Dispatch and WaitOne must not be called concurrently with each
// other, though Dispatch itself is safe to call repeatedly in a tight
// loop since id assignment is the only mutable owner-thread state.
type Instance struct {
	codec       wire.Codec
	session     *transport.Session
	reg         *future.Registry
	buildPrefix string
	nextID      uint32
	tracer      *trace.Tree
}

// New opens an Instance against the given region using creds loaded
// from the environment (see sigv4.EnvKey), speaking codec on the wire
// and naming remote functions "<buildPrefix>-<suffix>".
func New(region, buildPrefix string, codec wire.Codec) (*Instance, error) {
	key, err := sigv4.EnvKey()
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	return NewWithKey(region, buildPrefix, codec, key), nil
}

// NewWithKey is New without the environment-variable credential
// lookup, for callers (and tests) that already hold a derived key.
// Trailing transport.Options are forwarded to the underlying session,
// letting tests point a dispatch.Instance at an in-process server
// instead of the real Lambda endpoint.
func NewWithKey(region, buildPrefix string, codec wire.Codec, key *sigv4.SigningKey, opts ...transport.Option) *Instance {
	return &Instance{
		codec:       codec,
		session:     transport.New(region, key, opts...),
		reg:         future.NewRegistry(),
		buildPrefix: buildPrefix,
		tracer:      trace.New(),
	}
}

// Close tears down the HTTP/2 session. Per the specification, any
// invocation still outstanding is abandoned: its future never becomes
// ready.
func (inst *Instance) Close() {
	inst.session.Close(inst.tracer)
	inst.reg.Close()
}

// Tracer returns the span tree this instance records dispatch and
// HTTP/2 phase spans into.
func (inst *Instance) Tracer() *trace.Tree { return inst.tracer }

// Dispatch assigns a fresh, strictly increasing invocation id,
// serializes {ctx, args} with the instance's codec, computes the
// remote function name from d's identifier, and submits the request
// without waiting for a response. The returned Handle's value is safe
// to read once WaitOne has surfaced the returned id.
func Dispatch[Ctx, Args, Resp any](inst *Instance, d *task.Descriptor[Ctx, Args, Resp], ctx Ctx, args Args) (uint32, future.Handle[Resp], error) {
	var h future.Handle[Resp]

	payload, err := wire.EncodePayload(inst.codec, ctx, args)
	if err != nil {
		return 0, h, fmt.Errorf("dispatch: encoding payload: %w", err)
	}

	id := inst.nextID
	inst.nextID++

	h = future.New[Resp]()
	future.Register(inst.reg, id, h)

	fn := inst.buildPrefix + "-" + d.FunctionSuffix()
	span := inst.tracer.Root("dispatch")
	transport.Submit(context.Background(), inst.session, inst.codec, inst.reg, id, fn, payload, span)
	span.Close()

	return id, h, nil
}

// WaitOne drives the event loop until the future registry reports a
// completion, and returns that invocation's id. It reports false only
// if the instance was closed with nothing left to complete.
func (inst *Instance) WaitOne() (uint32, bool) {
	return inst.reg.TakeOne()
}

// Wait calls WaitOne n times, returning the ids in completion order.
// It stops early if WaitOne ever reports no more completions.
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
