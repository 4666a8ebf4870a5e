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

// Package sigv4 is a lightweight implementation of the subset of the
// AWS Signature Version 4 algorithm needed to authenticate Lambda
// Invoke requests against lambda.<region>.amazonaws.com.
//
// It does not attempt to be a general-purpose SigV4 client: there is
// no support for chunked uploads, presigned URLs, or services other
// than the one the caller configures. The only job of this package is
// producing the Authorization header for one invocation request.
package sigv4

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

var (
	faketime bool = false
	fakenow  time.Time
)

func signtime() time.Time {
	if faketime {
		return fakenow
	}
	return time.Now()
}

const (
	// LongDateFormat is the format of the x-amz-date header value.
	LongDateFormat = "20060102T150405Z"
	shortFormat    = "20060102"
)

// minimal set of headers that must be part of every
// signature; callers may not omit these.
//
// note: this list needs to be alphabetically sorted
var baseHeaders = []string{
	"host",
	"x-amz-date",
}

func (s *SigningKey) toscope(dst *bytes.Buffer, now time.Time) {
	dst.WriteString(now.Format(shortFormat))
	dst.WriteByte('/')
	dst.WriteString(s.Region)
	dst.WriteByte('/')
	dst.WriteString(s.Service)
	dst.WriteString("/aws4_request")
}

// string to sign
// see https://docs.aws.amazon.com/general/latest/gr/sigv4-create-canonical-request.html
func (s *SigningKey) tosign(dst *bytes.Buffer, now time.Time, reqhash string) {
	dst.WriteString("AWS4-HMAC-SHA256\n")
	dst.WriteString(now.Format(LongDateFormat))
	dst.WriteByte('\n')
	s.toscope(dst, now)
	dst.WriteByte('\n')
	dst.WriteString(reqhash)
}

// signedHeaders returns the sorted list of header names that will be
// part of the signature: the base set plus x-amz-security-token if a
// session token is present.
func (s *SigningKey) signedHeaders(req *http.Request) []string {
	hdrs := append([]string{}, baseHeaders...)
	if req.Header.Get("x-amz-security-token") != "" {
		hdrs = append(hdrs, "x-amz-security-token")
	}
	sort.Strings(hdrs)
	return hdrs
}

// canonicalQuery percent-encodes and sorts a raw query string per
// RFC 3986 (unreserved characters only), as required by SigV4.
func canonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	pairs := make([][2]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		k, v, _ := strings.Cut(p, "=")
		dk, err1 := url.QueryUnescape(k)
		dv, err2 := url.QueryUnescape(v)
		if err1 != nil {
			dk = k
		}
		if err2 != nil {
			dv = v
		}
		pairs = append(pairs, [2]string{dk, dv})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	var out strings.Builder
	for i, kv := range pairs {
		if i > 0 {
			out.WriteByte('&')
		}
		out.WriteString(rfc3986Escape(kv[0]))
		out.WriteByte('=')
		out.WriteString(rfc3986Escape(kv[1]))
	}
	return out.String()
}

func rfc3986Escape(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			out.WriteByte(c)
		default:
			out.WriteByte('%')
			out.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
		}
	}
	return out.String()
}

// canonical writes the SigV4 canonical request for req into dst.
// bodyHash is the lowercase hex SHA-256 digest of the request body.
func canonical(dst *bytes.Buffer, req *http.Request, signed []string, bodyHash string) {
	dst.WriteString(req.Method)
	dst.WriteByte('\n')

	uri := req.URL.EscapedPath()
	if uri == "" {
		uri = "/"
	}
	dst.WriteString(uri)
	dst.WriteByte('\n')

	dst.WriteString(canonicalQuery(req.URL.RawQuery))
	dst.WriteByte('\n')

	if req.Header.Get("Host") == "" && req.Host != "" {
		req.Header.Set("Host", req.Host)
	}
	for _, h := range signed {
		dst.WriteString(h)
		dst.WriteByte(':')
		dst.WriteString(strings.TrimSpace(req.Header.Get(h)))
		dst.WriteByte('\n')
	}
	dst.WriteByte('\n')

	dst.WriteString(strings.Join(signed, ";"))
	dst.WriteByte('\n')
	dst.WriteString(bodyHash)
}

// SignLambdaInvoke signs an Invoke request against the AWS Lambda
// Invoke API. It sets the x-amz-date (and, if the key carries a
// session token, x-amz-security-token) headers and populates
// Authorization.
func (s *SigningKey) SignLambdaInvoke(req *http.Request, body []byte) {
	now := signtime().UTC()
	req.Header.Set("x-amz-date", now.Format(LongDateFormat))
	if s.Token != "" {
		req.Header.Set("x-amz-security-token", s.Token)
	}
	if req.Header.Get("host") == "" {
		req.Header.Set("host", req.URL.Host)
	}

	signed := s.signedHeaders(req)
	h := sha256.Sum256(body)
	bodyHash := hex.EncodeToString(h[:])

	var buf bytes.Buffer
	canonical(&buf, req, signed, bodyHash)
	creqHash := sha256.Sum256(buf.Bytes())

	buf.Reset()
	s.tosign(&buf, now, hex.EncodeToString(creqHash[:]))

	var hexsig [2 * sha256.Size]byte
	s.sign(buf.Bytes(), hexsig[:], now)

	buf.Reset()
	buf.WriteString("AWS4-HMAC-SHA256 Credential=")
	buf.WriteString(s.AccessKey)
	buf.WriteByte('/')
	s.toscope(&buf, now)
	buf.WriteString(", SignedHeaders=")
	buf.WriteString(strings.Join(signed, ";"))
	buf.WriteString(", Signature=")
	buf.Write(hexsig[:])

	req.Header.Set("Authorization", buf.String())
}

// SigningKey is a date/region/service-scoped derived key that can be
// used to sign Lambda Invoke requests for one UTC day.
//
// Keys roll over at UTC midnight: signing with a time past the
// derivation day automatically picks the next day's clamped secret,
// so a long-lived dispatcher instance never needs to notice the
// rollover itself.
type SigningKey struct {
	Region    string    // AWS region, e.g. "us-east-1"
	Service   string    // AWS service, always "lambda" for this package
	AccessKey string    // AWS access key ID
	Token     string    // session token, if the key was derived from STS creds
	Derived   time.Time // UTC time the key was derived

	// we only store the clamped secret so that this object
	// can't be repurposed for other services / regions
	//
	// clamped0 is "today's" key when the key was derived;
	// clamped1 is "tomorrow's" key
	clamped0 []byte
	clamped1 []byte
}

func macinto(key, mem []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(mem)
	return h.Sum(key[:0])
}

func derive(secret string, when time.Time, region, service string) []byte {
	datestr := when.Format(shortFormat)
	k := []byte("AWS4" + secret)
	k = macinto(k, []byte(datestr))
	k = macinto(k, []byte(region))
	k = macinto(k, []byte(service))
	k = macinto(k, []byte("aws4_request"))
	return k
}

// DeriveKey derives a SigningKey for Lambda invocations in the given
// region, scoped to the UTC day it is called. The returned key
// remains valid across the following UTC midnight as well, since both
// today's and tomorrow's clamped secrets are precomputed.
func DeriveKey(accessKey, secret, region string) *SigningKey {
	now := signtime().UTC()
	return &SigningKey{
		Region:    region,
		Service:   "lambda",
		AccessKey: accessKey,
		Derived:   now,
		clamped0:  derive(secret, now, region, "lambda"),
		clamped1:  derive(secret, now.Add(24*time.Hour), region, "lambda"),
	}
}

func (s *SigningKey) pickKey(when time.Time) []byte {
	if when.Sub(s.Derived) >= 24*time.Hour || when.Day() != s.Derived.Day() {
		return s.clamped1
	}
	return s.clamped0
}

func (s *SigningKey) sign(src, dst []byte, when time.Time) {
	var tmp [sha256.Size]byte
	m := hmac.New(sha256.New, s.pickKey(when))
	m.Write(src)
	hex.Encode(dst, m.Sum(tmp[:0]))
}
