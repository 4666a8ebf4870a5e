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

package dispatch

import (
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/faasless/faasless/sigv4"
	"github.com/faasless/faasless/task"
	"github.com/faasless/faasless/transport"
	"github.com/faasless/faasless/wire"
	"github.com/faasless/faasless/wire/binary"
)

type echoCtx struct{ N int }
type echoArgs struct{}

var echoTask = task.Describe[echoCtx, echoArgs, int]("dispatch_test.go:echo")

// newTestInstance starts an in-process h2c server that decodes the
// request payload's Context.N and echoes it back as the response, and
// returns an Instance dialed against it instead of a real Lambda
// endpoint.
func newTestInstance(t *testing.T) (*Instance, *binary.Archive) {
	t.Helper()
	codec := binary.New()

	h2s := &http2.Server{}
	srv := httptest.NewServer(h2c.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		ctx, _, err := wire.DecodePayload[echoCtx, echoArgs](codec, data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp, err := wire.EncodeResponse(codec, ctx.N)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(resp)
	}), h2s))
	t.Cleanup(srv.Close)

	tr := &http2.Transport{
		AllowHTTP: true,
		DialTLS: func(network, addr string, cfg *tls.Config) (net.Conn, error) {
			return net.Dial(network, addr)
		},
	}
	key := sigv4.DeriveKey("AKIDEXAMPLE", "secret", "us-east-1")
	inst := NewWithKey("us-east-1", "faasless", codec, key,
		transport.WithHTTPTransport(tr), transport.WithHost(srv.Listener.Addr().String()))
	t.Cleanup(inst.Close)
	return inst, codec
}

// TestDispatchIdsAreMonotonic checks the specification's invariant
// that ids returned by Dispatch on one instance strictly increase.
func TestDispatchIdsAreMonotonic(t *testing.T) {
	inst, _ := newTestInstance(t)

	var ids []uint32
	for i := 0; i < 5; i++ {
		id, _, err := Dispatch[echoCtx, echoArgs, int](inst, echoTask, echoCtx{N: i}, echoArgs{})
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not strictly increasing: %v", ids)
		}
	}
	inst.Wait(len(ids))
}

// TestCompletionTotality checks that after N dispatches, N calls to
// WaitOne return exactly that multiset of ids, and that every future's
// value matches what its own dispatch sent.
func TestCompletionTotality(t *testing.T) {
	inst, _ := newTestInstance(t)

	const n = 8
	dispatched := make(map[uint32]int)
	handles := make(map[uint32]interface{ Value() (int, error) })
	for i := 0; i < n; i++ {
		id, h, err := Dispatch[echoCtx, echoArgs, int](inst, echoTask, echoCtx{N: i * 10}, echoArgs{})
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		dispatched[id] = i * 10
		handles[id] = h
	}

	var completed []uint32
	for i := 0; i < n; i++ {
		id, ok := inst.WaitOne()
		if !ok {
			t.Fatalf("WaitOne returned ok=false after only %d completions", i)
		}
		completed = append(completed, id)
	}

	if len(completed) != n {
		t.Fatalf("got %d completions, want %d", len(completed), n)
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i] < completed[j] })
	var want []uint32
	for id := range dispatched {
		want = append(want, id)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	for i := range want {
		if completed[i] != want[i] {
			t.Fatalf("completed ids = %v, want %v", completed, want)
		}
	}

	for id, wantN := range dispatched {
		v, err := handles[id].Value()
		if err != nil {
			t.Fatalf("id %d: Value() error = %v", id, err)
		}
		if v != wantN {
			t.Fatalf("id %d: Value() = %d, want %d", id, v, wantN)
		}
	}
}
