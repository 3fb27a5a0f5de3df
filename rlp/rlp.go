// Copyright 2014 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package rlp implements the subset of Recursive Length Prefix encoding this
// repository needs to persist domain structs (BlockWrapper and friends) to
// probedb. It supports structs built from uint64, bool, []byte, fixed-size
// byte arrays, strings and slices of those - enough for every on-disk type
// in this package tree, not a general-purpose codec.
package rlp

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrExpectedList   = errors.New("rlp: expected list")
	ErrExpectedString = errors.New("rlp: expected string")
	ErrUnsupportedType = errors.New("rlp: unsupported type")
)

// EncodeToBytes returns the RLP encoding of val, which must be a struct, a
// pointer to one, or one of the primitive kinds this package understands.
func EncodeToBytes(val interface{}) ([]byte, error) {
	v := reflect.ValueOf(val)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	enc, err := encodeValue(v)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

// DecodeBytes parses data into val, which must be a non-nil pointer to a
// struct or primitive matching the shape used to encode it.
func DecodeBytes(data []byte, val interface{}) error {
	v := reflect.ValueOf(val)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("rlp: DecodeBytes requires a non-nil pointer, got %T", val)
	}
	content, _, err := splitItem(data)
	if err != nil {
		return err
	}
	return decodeValue(content, v.Elem())
}

func encodeValue(v reflect.Value) ([]byte, error) {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return encodeString([]byte{1}), nil
		}
		return encodeString(nil), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return encodeString(uintToBytes(v.Uint())), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return encodeString(uintToBytes(uint64(v.Int()))), nil
	case reflect.String:
		return encodeString([]byte(v.String())), nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return encodeString(v.Bytes()), nil
		}
		return encodeList(v)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			return encodeString(b), nil
		}
		return encodeList(v)
	case reflect.Struct:
		return encodeStruct(v)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, v.Kind())
	}
}

func encodeStruct(v reflect.Value) ([]byte, error) {
	var items [][]byte
	for i := 0; i < v.NumField(); i++ {
		if v.Type().Field(i).PkgPath != "" {
			continue // unexported
		}
		enc, err := encodeValue(v.Field(i))
		if err != nil {
			return nil, err
		}
		items = append(items, enc)
	}
	return wrapList(items), nil
}

func encodeList(v reflect.Value) ([]byte, error) {
	var items [][]byte
	for i := 0; i < v.Len(); i++ {
		enc, err := encodeValue(v.Index(i))
		if err != nil {
			return nil, err
		}
		items = append(items, enc)
	}
	return wrapList(items), nil
}

func wrapList(items [][]byte) []byte {
	var body []byte
	for _, it := range items {
		body = append(body, it...)
	}
	return append(encodeLength(len(body), 0xc0), body...)
}

func encodeString(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	return append(encodeLength(len(b), 0x80), b...)
}

func encodeLength(l int, offset byte) []byte {
	if l < 56 {
		return []byte{offset + byte(l)}
	}
	lb := uintToBytes(uint64(l))
	return append([]byte{offset + 55 + byte(len(lb))}, lb...)
}

func uintToBytes(i uint64) []byte {
	if i == 0 {
		return nil
	}
	var b [8]byte
	for n := 8; n > 0; n-- {
		b[n-1] = byte(i)
		i >>= 8
	}
	start := 0
	for start < 7 && b[start] == 0 {
		start++
	}
	return b[start:]
}

// splitItem parses the outermost RLP item in data and returns its content
// (payload bytes, with list framing stripped but not decoded) and whether
// it was a list.
func splitItem(data []byte) (content []byte, isList bool, err error) {
	if len(data) == 0 {
		return nil, false, errors.New("rlp: empty input")
	}
	b0 := data[0]
	switch {
	case b0 < 0x80:
		return data[:1], false, nil
	case b0 < 0xb8:
		n := int(b0 - 0x80)
		return data[1 : 1+n], false, nil
	case b0 < 0xc0:
		ll := int(b0 - 0xb7)
		n := int(bytesToUint(data[1 : 1+ll]))
		return data[1+ll : 1+ll+n], false, nil
	case b0 < 0xf8:
		n := int(b0 - 0xc0)
		return data[1 : 1+n], true, nil
	default:
		ll := int(b0 - 0xf7)
		n := int(bytesToUint(data[1 : 1+ll]))
		return data[1+ll : 1+ll+n], true, nil
	}
}

func bytesToUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// splitList walks the concatenated items inside a list's content and
// returns each sub-item still framed (header plus payload), so callers
// strip it exactly once via splitItem regardless of whether it is itself
// a list or a string.
func splitList(content []byte) ([][]byte, error) {
	var items [][]byte
	for len(content) > 0 {
		if _, _, err := splitItem(content); err != nil {
			return nil, err
		}
		consumed := itemSize(content)
		items = append(items, content[:consumed])
		content = content[consumed:]
	}
	return items, nil
}

func itemSize(data []byte) int {
	b0 := data[0]
	switch {
	case b0 < 0x80:
		return 1
	case b0 < 0xb8:
		return 1 + int(b0-0x80)
	case b0 < 0xc0:
		ll := int(b0 - 0xb7)
		n := int(bytesToUint(data[1 : 1+ll]))
		return 1 + ll + n
	case b0 < 0xf8:
		return 1 + int(b0-0xc0)
	default:
		ll := int(b0 - 0xf7)
		n := int(bytesToUint(data[1 : 1+ll]))
		return 1 + ll + n
	}
}

func decodeValue(content []byte, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		v.SetBool(len(content) == 1 && content[0] == 1)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v.SetUint(bytesToUint(content))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v.SetInt(int64(bytesToUint(content)))
		return nil
	case reflect.String:
		v.SetString(string(content))
		return nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			v.SetBytes(append([]byte(nil), content...))
			return nil
		}
		return decodeListInto(content, v, true)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			reflect.Copy(v, reflect.ValueOf(content))
			return nil
		}
		return decodeListInto(content, v, false)
	case reflect.Struct:
		items, err := splitList(content)
		if err != nil {
			return err
		}
		fi := 0
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).PkgPath != "" {
				continue
			}
			if fi >= len(items) {
				return fmt.Errorf("rlp: too few fields decoding %s", v.Type())
			}
			raw, _, err := splitItem(items[fi])
			if err != nil {
				return err
			}
			if err := decodeValue(raw, v.Field(i)); err != nil {
				return err
			}
			fi++
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, v.Kind())
	}
}

func decodeListInto(content []byte, v reflect.Value, isSlice bool) error {
	items, err := splitList(content)
	if err != nil {
		return err
	}
	if isSlice {
		v.Set(reflect.MakeSlice(v.Type(), len(items), len(items)))
	} else if v.Len() < len(items) {
		return fmt.Errorf("rlp: array too short for %d items", len(items))
	}
	for i, raw := range items {
		item, _, err := splitItem(raw)
		if err != nil {
			return err
		}
		if err := decodeValue(item, v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}
