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

// Package binary implements the compact, field-order-driven archive
// described in the specification's serialization façade: little-
// endian, length-prefixed variable-length fields, and no embedded
// schema. It is the fast path used for the bulk of task traffic; see
// package wire/structured for the self-describing alternative.
//
// There is no existing third-party library for this: the wire format
// is bespoke by design (the specification calls for a specific,
// minimal, schema-free layout), so this package is hand-rolled on top
// of encoding/binary and reflection, in the spirit of the
// buffer-writing style used by the project's own structured archive
// (see ion/writer.go) but without a symbol table or type tags.
package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"
)

// Archive implements wire.Codec using the compact binary layout.
type Archive struct{}

// New returns a ready-to-use binary Archive.
func New() *Archive { return &Archive{} }

// Name implements wire.Codec.
func (*Archive) Name() string { return "binary" }

// Encode implements wire.Codec.
func (*Archive) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	val := reflect.ValueOf(v)
	if err := encodeValue(&buf, val); err != nil {
		return nil, fmt.Errorf("binary: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode implements wire.Codec.
func (*Archive) Decode(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("binary: decode destination must be a non-nil pointer, got %T", v)
	}
	r := bytes.NewReader(data)
	if err := decodeValue(r, rv.Elem()); err != nil {
		return fmt.Errorf("binary: decode: %w", err)
	}
	return nil
}

// variantRegistry maps a registered name to its zero value's type and
// back, so that interface-typed fields ("tagged-variant trees" in the
// specification's language) can round-trip without a full reflection
// schema: only the small set of concrete types that ever flow through
// an interface{} field must be registered up front.
var variantRegistry = struct {
	sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}{
	byName: map[string]reflect.Type{},
	byType: map[reflect.Type]string{},
}

// RegisterVariant associates a stable name with the concrete type of
// zero, so that values of that type can be carried through fields
// declared as an interface. Call it once at program startup for every
// concrete type that can appear in such a field, on both ends of the
// wire.
func RegisterVariant(name string, zero any) {
	t := reflect.TypeOf(zero)
	variantRegistry.Lock()
	defer variantRegistry.Unlock()
	variantRegistry.byName[name] = t
	variantRegistry.byType[t] = name
}

func writeUvarint(w *bytes.Buffer, n uint64) {
	var tmp [binary.MaxVarintLen64]byte
	l := binary.PutUvarint(tmp[:], n)
	w.Write(tmp[:l])
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func encodeValue(w *bytes.Buffer, v reflect.Value) error {
	if !v.IsValid() {
		return fmt.Errorf("cannot encode invalid value")
	}
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return binary.Write(w, binary.LittleEndian, v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return binary.Write(w, binary.LittleEndian, v.Uint())
	case reflect.Float32:
		return binary.Write(w, binary.LittleEndian, float32(v.Float()))
	case reflect.Float64:
		return binary.Write(w, binary.LittleEndian, v.Float())
	case reflect.String:
		s := v.String()
		writeUvarint(w, uint64(len(s)))
		w.WriteString(s)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := v.Bytes()
			writeUvarint(w, uint64(len(b)))
			w.Write(b)
			return nil
		}
		n := v.Len()
		writeUvarint(w, uint64(n))
		for i := 0; i < n; i++ {
			if err := encodeValue(w, v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Array:
		n := v.Len()
		for i := 0; i < n; i++ {
			if err := encodeValue(w, v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		keys := v.MapKeys()
		sortMapKeys(keys)
		writeUvarint(w, uint64(len(keys)))
		for _, k := range keys {
			if err := encodeValue(w, k); err != nil {
				return err
			}
			if err := encodeValue(w, v.MapIndex(k)); err != nil {
				return err
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).PkgPath != "" {
				continue // unexported
			}
			if err := encodeValue(w, v.Field(i)); err != nil {
				return fmt.Errorf("field %s: %w", t.Field(i).Name, err)
			}
		}
	case reflect.Pointer:
		if v.IsNil() {
			w.WriteByte(0)
			return nil
		}
		w.WriteByte(1)
		return encodeValue(w, v.Elem())
	case reflect.Interface:
		return encodeVariant(w, v)
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}

func encodeVariant(w *bytes.Buffer, v reflect.Value) error {
	if v.IsNil() {
		writeUvarint(w, 0)
		return nil
	}
	elem := v.Elem()
	variantRegistry.RLock()
	name, ok := variantRegistry.byType[elem.Type()]
	variantRegistry.RUnlock()
	if !ok {
		return fmt.Errorf("type %s was never registered with RegisterVariant", elem.Type())
	}
	writeUvarint(w, uint64(len(name)))
	w.WriteString(name)
	return encodeValue(w, elem)
}

func decodeValue(r *bytes.Reader, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		v.SetBool(b != 0)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var x int64
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return err
		}
		v.SetInt(x)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		var x uint64
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return err
		}
		v.SetUint(x)
	case reflect.Float32:
		var x float32
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return err
		}
		v.SetFloat(float64(x))
	case reflect.Float64:
		var x float64
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return err
		}
		v.SetFloat(x)
	case reflect.String:
		n, err := readUvarint(r)
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		v.SetString(string(buf))
	case reflect.Slice:
		n, err := readUvarint(r)
		if err != nil {
			return err
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, n)
			if _, err := io.ReadFull(r, buf); err != nil {
				return err
			}
			v.SetBytes(buf)
			return nil
		}
		out := reflect.MakeSlice(v.Type(), int(n), int(n))
		for i := 0; i < int(n); i++ {
			if err := decodeValue(r, out.Index(i)); err != nil {
				return err
			}
		}
		v.Set(out)
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := decodeValue(r, v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		n, err := readUvarint(r)
		if err != nil {
			return err
		}
		out := reflect.MakeMapWithSize(v.Type(), int(n))
		kt, vt := v.Type().Key(), v.Type().Elem()
		for i := 0; i < int(n); i++ {
			k := reflect.New(kt).Elem()
			if err := decodeValue(r, k); err != nil {
				return err
			}
			val := reflect.New(vt).Elem()
			if err := decodeValue(r, val); err != nil {
				return err
			}
			out.SetMapIndex(k, val)
		}
		v.Set(out)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).PkgPath != "" {
				continue
			}
			if err := decodeValue(r, v.Field(i)); err != nil {
				return fmt.Errorf("field %s: %w", t.Field(i).Name, err)
			}
		}
	case reflect.Pointer:
		tag, err := r.ReadByte()
		if err != nil {
			return err
		}
		if tag == 0 {
			v.Set(reflect.Zero(v.Type()))
			return nil
		}
		p := reflect.New(v.Type().Elem())
		if err := decodeValue(r, p.Elem()); err != nil {
			return err
		}
		v.Set(p)
	case reflect.Interface:
		return decodeVariant(r, v)
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}

func decodeVariant(r *bytes.Reader, v reflect.Value) error {
	n, err := readUvarint(r)
	if err != nil {
		return err
	}
	if n == 0 {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	name := string(buf)
	variantRegistry.RLock()
	t, ok := variantRegistry.byName[name]
	variantRegistry.RUnlock()
	if !ok {
		return fmt.Errorf("variant %q was never registered with RegisterVariant", name)
	}
	p := reflect.New(t).Elem()
	if err := decodeValue(r, p); err != nil {
		return err
	}
	v.Set(p)
	return nil
}

func sortMapKeys(keys []reflect.Value) {
	if len(keys) == 0 {
		return
	}
	switch keys[0].Kind() {
	case reflect.String:
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sort.Slice(keys, func(i, j int) bool { return keys[i].Int() < keys[j].Int() })
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		sort.Slice(keys, func(i, j int) bool { return keys[i].Uint() < keys[j].Uint() })
	}
}
