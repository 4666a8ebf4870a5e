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

// Package structured implements the self-describing archive by
// adapting the project's own Ion-style encoder (package ion): every
// value carries its own symbol table and type tags, so a payload can
// be inspected or converted to JSON (via ion.ToJSON) without knowing
// the Go types on the other end. This is the archive used when tracing
// or debugging a dispatch, and the one remote callers that aren't this
// package would be expected to speak.
package structured

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/faasless/faasless/ion"
)

// Archive implements wire.Codec on top of ion.Marshal/ion.Unmarshal.
type Archive struct{}

// New returns a ready-to-use structured Archive.
func New() *Archive { return &Archive{} }

// Name implements wire.Codec.
func (*Archive) Name() string { return "structured" }

// Encode implements wire.Codec. The result is a self-contained Ion
// stream: a symbol table segment followed by the value's data
// segment, so Decode never needs auxiliary state.
func (*Archive) Encode(v any) ([]byte, error) {
	var st ion.Symtab
	var data ion.Buffer
	if err := ion.Marshal(&st, &data, v); err != nil {
		return nil, fmt.Errorf("structured: encode: %w", err)
	}
	var out ion.Buffer
	st.Marshal(&out, true)
	out.UnsafeAppend(data.Bytes())
	return out.Bytes(), nil
}

// Decode implements wire.Codec.
func (*Archive) Decode(data []byte, v any) error {
	var st ion.Symtab
	rest, err := st.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("structured: decode: reading symbol table: %w", err)
	}
	if _, err := ion.Unmarshal(&st, rest, v); err != nil {
		return fmt.Errorf("structured: decode: %w", err)
	}
	return nil
}

// ToJSON renders an Encode-produced archive as newline-delimited JSON,
// the representation used by tracing exporters and the CLI debugging
// tools in package cmd.
func ToJSON(w io.Writer, data []byte) error {
	_, err := ion.ToJSON(w, bufio.NewReader(bytes.NewReader(data)))
	return err
}
