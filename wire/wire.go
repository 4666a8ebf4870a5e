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

// Package wire is the serialization façade: it turns a task's
// captured context and argument tuple into a single wire payload, and
// turns a response body back into a typed value. Two archives satisfy
// the same Codec interface:
//
//   - Binary: a compact, schema-free, length-prefixed format used on
//     the fast path (see package wire/binary).
//   - Structured: a self-describing, key/value format that doubles as
//     JSON when written to a text stream, used for debugging and for
//     any remote side that isn't this package (see package
//     wire/structured).
package wire

// Codec encodes and decodes arbitrary Go values to and from a wire
// archive. Implementations must satisfy Decode(Encode(x)) == x for
// every value x they support.
type Codec interface {
	// Name identifies the archive, e.g. "binary" or "structured".
	Name() string
	// Encode serializes v into a new byte slice.
	Encode(v any) ([]byte, error)
	// Decode populates v (which must be a non-nil pointer) from data.
	Decode(data []byte, v any) error
}

// payload is the two-field record every invocation transports: the
// task's captured state and its argument tuple, in that field order.
type payload[C, A any] struct {
	Context C
	Args    A
}

// EncodePayload encodes a task's captured context and argument tuple
// as a single wire payload using c.
func EncodePayload[C, A any](c Codec, ctx C, args A) ([]byte, error) {
	return c.Encode(payload[C, A]{Context: ctx, Args: args})
}

// DecodePayload decodes a payload produced by EncodePayload, returning
// the context and argument values with their original static types.
func DecodePayload[C, A any](c Codec, data []byte) (ctx C, args A, err error) {
	var p payload[C, A]
	if err = c.Decode(data, &p); err != nil {
		return ctx, args, err
	}
	return p.Context, p.Args, nil
}

// EncodeResponse encodes the value a task returns with the same Codec
// used for the request payload.
func EncodeResponse[R any](c Codec, resp R) ([]byte, error) {
	return c.Encode(resp)
}

// DecodeResponse decodes a response value encoded by EncodeResponse.
func DecodeResponse[R any](c Codec, data []byte) (R, error) {
	var r R
	err := c.Decode(data, &r)
	return r, err
}
