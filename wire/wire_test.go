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

package wire_test

import (
	"testing"

	"github.com/faasless/faasless/wire"
	"github.com/faasless/faasless/wire/binary"
	"github.com/faasless/faasless/wire/structured"
)

type fibCtx struct{ N int }
type fibArgs struct{}

func TestPayloadRoundTripBothArchives(t *testing.T) {
	for _, c := range []wire.Codec{binary.New(), structured.New()} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := wire.EncodePayload(c, fibCtx{N: 12}, fibArgs{})
			if err != nil {
				t.Fatal(err)
			}
			ctx, args, err := wire.DecodePayload[fibCtx, fibArgs](c, data)
			if err != nil {
				t.Fatal(err)
			}
			if ctx.N != 12 {
				t.Fatalf("got ctx = %+v", ctx)
			}
			_ = args
		})
	}
}

func TestResponseRoundTripBothArchives(t *testing.T) {
	for _, c := range []wire.Codec{binary.New(), structured.New()} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := wire.EncodeResponse(c, 89)
			if err != nil {
				t.Fatal(err)
			}
			got, err := wire.DecodeResponse[int](c, data)
			if err != nil {
				t.Fatal(err)
			}
			if got != 89 {
				t.Fatalf("got %d, want 89", got)
			}
		})
	}
}
