package abi

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"ledgerd/pkg/bytesx"
)

// encodeBuiltinBin appends the binary encoding of a builtin-tagged JSON
// value to buf and returns the extended slice.
func encodeBuiltinBin(buf []byte, tag BuiltinTag, v any) ([]byte, error) {
	switch tag {
	case BuiltinBool:
		b, err := asBool(v)
		if err != nil {
			return nil, err
		}
		if b {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil

	case BuiltinInt8, BuiltinUint8:
		n, err := asInt64(v)
		if err != nil {
			return nil, err
		}
		return append(buf, byte(n)), nil

	case BuiltinInt16, BuiltinUint16:
		n, err := asInt64(v)
		if err != nil {
			return nil, err
		}
		tmp := make([]byte, 2)
		bytesx.PutUint16(tmp, uint16(n))
		return append(buf, tmp...), nil

	case BuiltinInt32, BuiltinUint32, BuiltinTimePointSec:
		n, err := asInt64(v)
		if err != nil {
			return nil, err
		}
		tmp := make([]byte, 4)
		bytesx.PutUint32(tmp, uint32(n))
		return append(buf, tmp...), nil

	case BuiltinVarUint32:
		n, err := asInt64(v)
		if err != nil {
			return nil, err
		}
		return bytesx.PutVarUint32(buf, uint32(n)), nil

	case BuiltinVarInt32:
		n, err := asInt64(v)
		if err != nil {
			return nil, err
		}
		// zig-zag encode the signed value into the unsigned varint space.
		zz := uint32((int32(n) << 1) ^ (int32(n) >> 31))
		return bytesx.PutVarUint32(buf, zz), nil

	case BuiltinInt64, BuiltinUint64, BuiltinTimePoint:
		n, err := asStringInt64(v)
		if err != nil {
			return nil, err
		}
		tmp := make([]byte, 8)
		bytesx.PutUint64(tmp, uint64(n))
		return append(buf, tmp...), nil

	case BuiltinInt128, BuiltinUint128:
		s, err := asString(v)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 16)
		negative := len(s) > 0 && s[0] == '-'
		if negative {
			s = s[1:]
		}
		if err := bytesx.DecimalToBinary(out, s); err != nil {
			return nil, err
		}
		if negative {
			bytesx.Negate(out)
		}
		return append(buf, out...), nil

	case BuiltinFloat32:
		f, err := asFloat64(v)
		if err != nil {
			return nil, err
		}
		tmp := make([]byte, 4)
		binary.LittleEndian.PutUint32(tmp, math.Float32bits(float32(f)))
		return append(buf, tmp...), nil

	case BuiltinFloat64:
		f, err := asFloat64(v)
		if err != nil {
			return nil, err
		}
		tmp := make([]byte, 8)
		binary.LittleEndian.PutUint64(tmp, math.Float64bits(f))
		return append(buf, tmp...), nil

	case BuiltinFloat128:
		b, err := asFixedHexBytes(v, 16)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil

	case BuiltinName:
		s, err := asString(v)
		if err != nil {
			return nil, err
		}
		packed, err := packName(s)
		if err != nil {
			return nil, err
		}
		tmp := make([]byte, 8)
		bytesx.PutUint64(tmp, packed)
		return append(buf, tmp...), nil

	case BuiltinBytes:
		b, err := asHexBytes(v)
		if err != nil {
			return nil, err
		}
		buf = bytesx.PutVarUint32(buf, uint32(len(b)))
		return append(buf, b...), nil

	case BuiltinString:
		s, err := asString(v)
		if err != nil {
			return nil, err
		}
		buf = bytesx.PutVarUint32(buf, uint32(len(s)))
		return append(buf, s...), nil

	case BuiltinChecksum160:
		b, err := asFixedHexBytes(v, 20)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil

	case BuiltinChecksum256:
		b, err := asFixedHexBytes(v, 32)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil

	case BuiltinChecksum512:
		b, err := asFixedHexBytes(v, 64)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil

	case BuiltinPublicKey:
		b, err := asHexBytes(v)
		if err != nil {
			return nil, err
		}
		tmp := make([]byte, 1)
		tmp[0] = byte(len(b))
		buf = append(buf, tmp...)
		return append(buf, b...), nil

	case BuiltinSignature:
		b, err := asHexBytes(v)
		if err != nil {
			return nil, err
		}
		tmp := make([]byte, 1)
		tmp[0] = byte(len(b))
		buf = append(buf, tmp...)
		return append(buf, b...), nil

	case BuiltinSymbol:
		s, err := asString(v)
		if err != nil {
			return nil, err
		}
		return append(buf, []byte(s)...), nil

	case BuiltinAsset:
		s, err := asString(v)
		if err != nil {
			return nil, err
		}
		buf = bytesx.PutVarUint32(buf, uint32(len(s)))
		return append(buf, s...), nil
	}
	return nil, fmt.Errorf("abi: unsupported builtin tag %v", tag)
}

// decodeBuiltinBin decodes a builtin-tagged value from buf starting at pos,
// returning the JSON-ready value and the number of bytes consumed.
func decodeBuiltinBin(buf []byte, pos int, tag BuiltinTag) (any, int, error) {
	need := func(n int) error {
		if pos+n > len(buf) {
			return fmt.Errorf("abi: short read decoding %v: need %d have %d", tag, n, len(buf)-pos)
		}
		return nil
	}
	switch tag {
	case BuiltinBool:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return buf[pos] != 0, 1, nil

	case BuiltinInt8:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return float64(int8(buf[pos])), 1, nil
	case BuiltinUint8:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return float64(buf[pos]), 1, nil

	case BuiltinInt16:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return float64(int16(bytesx.Uint16(buf[pos:]))), 2, nil
	case BuiltinUint16:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return float64(bytesx.Uint16(buf[pos:])), 2, nil

	case BuiltinInt32:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return float64(int32(bytesx.Uint32(buf[pos:]))), 4, nil
	case BuiltinUint32, BuiltinTimePointSec:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return float64(bytesx.Uint32(buf[pos:])), 4, nil

	case BuiltinVarUint32:
		n, m, err := bytesx.ReadVarUint32(buf[pos:])
		if err != nil {
			return nil, 0, err
		}
		return float64(n), m, nil

	case BuiltinVarInt32:
		n, m, err := bytesx.ReadVarUint32(buf[pos:])
		if err != nil {
			return nil, 0, err
		}
		signed := int32(n>>1) ^ -int32(n&1)
		return float64(signed), m, nil

	case BuiltinInt64, BuiltinTimePoint:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return strconv.FormatInt(int64(bytesx.Uint64(buf[pos:])), 10), 8, nil
	case BuiltinUint64:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return strconv.FormatUint(bytesx.Uint64(buf[pos:]), 10), 8, nil

	case BuiltinInt128, BuiltinUint128:
		if err := need(16); err != nil {
			return nil, 0, err
		}
		raw := append([]byte(nil), buf[pos:pos+16]...)
		negative := tag == BuiltinInt128 && bytesx.IsNegative(raw)
		if negative {
			bytesx.Negate(raw)
		}
		s := bytesx.BinaryToDecimal(raw)
		if negative {
			s = "-" + s
		}
		return s, 16, nil

	case BuiltinFloat32:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[pos:]))), 4, nil
	case BuiltinFloat64:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(buf[pos:])), 8, nil
	case BuiltinFloat128:
		if err := need(16); err != nil {
			return nil, 0, err
		}
		return bytesx.EncodeHex(buf[pos : pos+16]), 16, nil

	case BuiltinName:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return unpackName(bytesx.Uint64(buf[pos:])), 8, nil

	case BuiltinBytes:
		n, m, err := bytesx.ReadVarUint32(buf[pos:])
		if err != nil {
			return nil, 0, err
		}
		if err := need(m + int(n)); err != nil {
			return nil, 0, err
		}
		return bytesx.EncodeHex(buf[pos+m : pos+m+int(n)]), m + int(n), nil

	case BuiltinString:
		n, m, err := bytesx.ReadVarUint32(buf[pos:])
		if err != nil {
			return nil, 0, err
		}
		if err := need(m + int(n)); err != nil {
			return nil, 0, err
		}
		return string(buf[pos+m : pos+m+int(n)]), m + int(n), nil

	case BuiltinChecksum160:
		if err := need(20); err != nil {
			return nil, 0, err
		}
		return bytesx.EncodeHex(buf[pos : pos+20]), 20, nil
	case BuiltinChecksum256:
		if err := need(32); err != nil {
			return nil, 0, err
		}
		return bytesx.EncodeHex(buf[pos : pos+32]), 32, nil
	case BuiltinChecksum512:
		if err := need(64); err != nil {
			return nil, 0, err
		}
		return bytesx.EncodeHex(buf[pos : pos+64]), 64, nil

	case BuiltinPublicKey, BuiltinSignature:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		n := int(buf[pos])
		if err := need(1 + n); err != nil {
			return nil, 0, err
		}
		return bytesx.EncodeHex(buf[pos+1 : pos+1+n]), 1 + n, nil

	case BuiltinSymbol:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return bytesx.EncodeHex(buf[pos : pos+8]), 8, nil

	case BuiltinAsset:
		n, m, err := bytesx.ReadVarUint32(buf[pos:])
		if err != nil {
			return nil, 0, err
		}
		if err := need(m + int(n)); err != nil {
			return nil, 0, err
		}
		return string(buf[pos+m : pos+m+int(n)]), m + int(n), nil
	}
	return nil, 0, fmt.Errorf("abi: unsupported builtin tag %v", tag)
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("abi: expected bool, got %T", v)
	}
	return b, nil
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("abi: expected number, got %T", v)
	}
}

func asStringInt64(v any) (int64, error) {
	switch t := v.(type) {
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, nil
		}
		n, err := strconv.ParseUint(t, 10, 64)
		return int64(n), err
	case float64:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("abi: expected numeric string, got %T", v)
	}
}

func asFloat64(v any) (float64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("abi: expected number, got %T", v)
	}
	return f, nil
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("abi: expected string, got %T", v)
	}
	return s, nil
}

func asHexBytes(v any) ([]byte, error) {
	s, err := asString(v)
	if err != nil {
		return nil, err
	}
	return bytesx.DecodeHex(s)
}

func asFixedHexBytes(v any, size int) ([]byte, error) {
	b, err := asHexBytes(v)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("abi: expected %d raw bytes, got %d", size, len(b))
	}
	return b, nil
}

const nameCharset = ".12345abcdefghijklmnopqrstuvwxyz"

// packName encodes an EOSIO-style base32 "name" into its packed uint64 form.
func packName(s string) (uint64, error) {
	if len(s) > 13 {
		return 0, fmt.Errorf("abi: name %q longer than 13 characters", s)
	}
	var value uint64
	for i := 0; i < 12; i++ {
		var ch byte
		if i < len(s) {
			ch = s[i]
		}
		idx := indexByte(nameCharset, ch)
		if ch != 0 && idx < 0 {
			return 0, fmt.Errorf("abi: invalid name character %q", ch)
		}
		bits := uint64(idx)
		if bits > 31 {
			bits = 0
		}
		shift := uint(64 - 5*(i+1))
		value |= bits << shift
	}
	if len(s) == 13 {
		idx := indexByte(nameCharset, s[12])
		if idx < 0 {
			return 0, fmt.Errorf("abi: invalid name character %q", s[12])
		}
		value |= uint64(idx) & 0x0F
	}
	return value, nil
}

func unpackName(packed uint64) string {
	out := make([]byte, 0, 13)
	tmp := packed
	for i := 0; i < 12; i++ {
		idx := (tmp >> uint(64-5*(i+1))) & 0x1F
		if idx == 0 {
			continue
		}
		out = append(out, nameCharset[idx])
	}
	if tail := packed & 0x0F; tail != 0 {
		out = append(out, nameCharset[tail])
	}
	return string(out)
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
