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

// Package transport implements the HTTP/2 invocation session: one
// long-lived, TLS-secured connection to a Lambda-style endpoint that
// carries many concurrently in-flight invocation requests, built on
// golang.org/x/net/http2 rather than relying on net/http's implicit
// (and per-host-pooled, not single-connection) HTTP/2 support.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"

	"golang.org/x/net/http2"

	"github.com/faasless/faasless/future"
	"github.com/faasless/faasless/sigv4"
	"github.com/faasless/faasless/trace"
	"github.com/faasless/faasless/wire"
)

// RemoteFailure is recorded when the endpoint answers with a non-200
// status; the specification requires this never populate the future
// with a decoded value.
type RemoteFailure struct {
	Status int
	Body   []byte
}

func (e *RemoteFailure) Error() string {
	return fmt.Sprintf("transport: remote invocation failed: status %d: %s", e.Status, e.Body)
}

// Session is a single HTTP/2 connection to lambda.<region>.amazonaws.com,
// opened on construction and closed by Close. All of Session's methods
// except Close are safe to call concurrently; each call to Submit runs
// its round trip on its own goroutine, mirroring the "one additional
// worker thread per session" the specification allows for TLS/IO,
// while the http2.Transport multiplexes the actual wire traffic over
// one TCP connection.
type Session struct {
	region string
	host   string
	key    *sigv4.SigningKey
	client *http.Client
	tr     *http2.Transport
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithHTTPTransport overrides the underlying *http2.Transport, mainly
// so tests can point a Session at an in-process server with a custom
// DialTLS.
func WithHTTPTransport(tr *http2.Transport) Option {
	return func(s *Session) { s.tr = tr }
}

// WithHost overrides the endpoint host (normally
// lambda.<region>.amazonaws.com), again for tests that dial an
// in-process server instead of the real Lambda endpoint.
func WithHost(host string) Option {
	return func(s *Session) { s.host = host }
}

// New opens a Session for region, authenticated with key. The
// endpoint host is lambda.<region>.amazonaws.com, per the
// specification's wire contract.
func New(region string, key *sigv4.SigningKey, opts ...Option) *Session {
	s := &Session{
		region: region,
		host:   fmt.Sprintf("lambda.%s.amazonaws.com", region),
		key:    key,
	}
	for _, o := range opts {
		o(s)
	}
	if s.tr == nil {
		s.tr = &http2.Transport{
			TLSClientConfig: &tls.Config{NextProtos: []string{"h2"}},
		}
	}
	s.client = &http.Client{Transport: s.tr}
	return s
}

// Close closes the session's idle connections, recording a
// "shutdown" span under tracer. It does not cancel invocations still
// in flight; dispatch.Instance.Close also closes the future registry,
// which discards their completions.
func (s *Session) Close(tracer *trace.Tree) {
	span := tracer.Root("shutdown")
	defer span.Close()
	s.tr.CloseIdleConnections()
}

// Submit signs and sends one invocation request for function fn with
// the given payload, and arranges for reg to be completed or failed
// with id once the response arrives. It returns as soon as the
// request has been handed to the transport; it does not wait for the
// response.
func Submit(ctx context.Context, s *Session, c wire.Codec, reg *future.Registry, id uint32, fn string, payload []byte, parent trace.Span) {
	go s.roundTrip(ctx, c, reg, id, fn, payload, parent)
}

func (s *Session) roundTrip(ctx context.Context, c wire.Codec, reg *future.Registry, id uint32, fn string, payload []byte, parent trace.Span) {
	span := parent.Child("invoke")
	defer span.Close()

	path := fmt.Sprintf("/2015-03-31/functions/%s/invocations", fn)
	url := "https://" + s.host + path + "?Qualifier=$LATEST"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		reg.Fail(id, err)
		return
	}
	req.Host = s.host
	req.Header.Set("host", s.host)

	signSpan := span.Child("sign")
	s.key.SignLambdaInvoke(req, payload)
	signSpan.Close()

	var resolveSpan, connectSpan, tlsSpan, writeSpan *trace.Span
	ct := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			sp := span.Child("resolve")
			resolveSpan = &sp
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			if resolveSpan != nil {
				resolveSpan.Close()
			}
		},
		ConnectStart: func(string, string) {
			sp := span.Child("connect")
			connectSpan = &sp
		},
		ConnectDone: func(string, string, error) {
			if connectSpan != nil {
				connectSpan.Close()
			}
		},
		TLSHandshakeStart: func() {
			sp := span.Child("tls")
			tlsSpan = &sp
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			if tlsSpan != nil {
				tlsSpan.Close()
			}
		},
		// GotConn fires once a connection (fresh or pooled) is ready to
		// carry the request; WroteRequest fires once the body has been
		// flushed, so the span in between brackets the "write" phase
		// regardless of whether resolve/connect/tls ran for this call.
		GotConn: func(httptrace.GotConnInfo) {
			sp := span.Child("write")
			writeSpan = &sp
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			if writeSpan != nil {
				writeSpan.Close()
			}
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), ct))

	readSpan := span.Child("read")
	resp, err := s.client.Do(req)
	if err != nil {
		readSpan.Close()
		reg.Fail(id, err)
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	readSpan.Close()
	if err != nil {
		reg.Fail(id, err)
		return
	}
	if resp.StatusCode != http.StatusOK {
		reg.Fail(id, &RemoteFailure{Status: resp.StatusCode, Body: body})
		return
	}
	reg.Complete(c, id, body)
}
