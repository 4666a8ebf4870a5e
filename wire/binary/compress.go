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

package binary

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compressed wraps an Archive (or any wire.Codec, really, though it's
// defined here since the binary archive is the one large task
// payloads -- image buffers, model weights -- actually flow through)
// with zstd, for tasks whose captured context or arguments are large
// enough that the wire time dominates dispatch latency.
type Compressed struct {
	inner   *Archive
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressed returns a ready-to-use Compressed archive. The
// returned value owns background goroutines (zstd's encoder/decoder
// pools); call Close when done with it.
func NewCompressed() (*Compressed, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("binary: creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("binary: creating zstd decoder: %w", err)
	}
	return &Compressed{inner: New(), encoder: enc, decoder: dec}, nil
}

// Close releases the zstd encoder/decoder goroutine pools.
func (c *Compressed) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// Name implements wire.Codec.
func (*Compressed) Name() string { return "binary+zstd" }

// Encode implements wire.Codec.
func (c *Compressed) Encode(v any) ([]byte, error) {
	raw, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return c.encoder.EncodeAll(raw, nil), nil
}

// Decode implements wire.Codec.
func (c *Compressed) Decode(data []byte, v any) error {
	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("binary: zstd decompression: %w", err)
	}
	return c.inner.Decode(raw, v)
}
