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

package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/faasless/faasless/future"
	"github.com/faasless/faasless/sigv4"
	"github.com/faasless/faasless/trace"
	"github.com/faasless/faasless/wire/binary"
)

// newTestSession starts a cleartext HTTP/2 (h2c) server driven by
// handler and returns a Session dialed against it, bypassing TLS
// entirely so these tests need no certificates.
func newTestSession(t *testing.T, handler http.HandlerFunc) *Session {
	t.Helper()
	h2s := &http2.Server{}
	srv := httptest.NewServer(h2c.NewHandler(handler, h2s))
	t.Cleanup(srv.Close)

	tr := &http2.Transport{
		AllowHTTP: true,
		DialTLS: func(network, addr string, cfg *tls.Config) (net.Conn, error) {
			return net.Dial(network, addr)
		},
	}
	key := sigv4.DeriveKey("AKIDEXAMPLE", "secret", "us-east-1")
	return New("us-east-1", key, WithHTTPTransport(tr), WithHost(srv.Listener.Addr().String()))
}

// TestSubmitCompletesOnSuccess checks that a 200 response decodes into
// the registered future and surfaces through TakeOne, per the
// specification's "status 200 hands the buffer to Complete" wire
// contract.
func TestSubmitCompletesOnSuccess(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-amz-date") == "" || r.Header.Get("Authorization") == "" {
			t.Errorf("missing signed headers on request")
		}
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
		resp, _ := binary.New().Encode(42)
		w.Write(resp)
	})

	reg := future.NewRegistry()
	h := future.New[int]()
	future.Register(reg, 7, h)

	tree := trace.New()
	root := tree.Root("dispatch")
	Submit(context.Background(), s, binary.New(), reg, 7, "echo", []byte("payload"), root)
	root.Close()

	id, ok := reg.TakeOne()
	if !ok || id != 7 {
		t.Fatalf("TakeOne() = (%d, %v), want (7, true)", id, ok)
	}
	v, err := h.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != 42 {
		t.Fatalf("Value() = %d, want 42", v)
	}
}

// TestSubmitFailsOnNon200 checks the specification's §9 open question
// resolution: a non-200 response must route a *RemoteFailure into the
// future rather than leaving it uncompleted forever.
func TestSubmitFailsOnNon200(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})

	reg := future.NewRegistry()
	h := future.New[int]()
	future.Register(reg, 1, h)

	tree := trace.New()
	root := tree.Root("dispatch")
	Submit(context.Background(), s, binary.New(), reg, 1, "echo", []byte("payload"), root)
	root.Close()

	id, ok := reg.TakeOne()
	if !ok || id != 1 {
		t.Fatalf("TakeOne() = (%d, %v), want (1, true)", id, ok)
	}
	_, err := h.Value()
	if err == nil {
		t.Fatal("Value() error = nil, want a *RemoteFailure")
	}
	rf, ok := err.(*RemoteFailure)
	if !ok {
		t.Fatalf("Value() error type = %T, want *RemoteFailure", err)
	}
	if rf.Status != http.StatusInternalServerError {
		t.Fatalf("RemoteFailure.Status = %d, want %d", rf.Status, http.StatusInternalServerError)
	}
}
