package abi

import (
	"encoding/json"
	"fmt"

	"ledgerd/pkg/bytesx"
)

// EncodeJSONBytes is EncodeJSON for callers holding raw JSON text rather
// than an already-decoded Go value.
func EncodeJSONBytes(r *Resolver, typeID TypeID, jsonText []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(jsonText, &v); err != nil {
		return nil, fmt.Errorf("abi: parse json: %w", err)
	}
	return EncodeJSON(r, typeID, v)
}

// DecodeToJSONBytes is DecodeBinary for callers that want canonical JSON
// text (fields emitted in declared order) rather than a Go value.
func DecodeToJSONBytes(r *Resolver, typeID TypeID, buf []byte) ([]byte, int, error) {
	return RoundTripJSON(r, typeID, buf)
}

// EncodeJSON translates a JSON-decoded value (as produced by
// encoding/json.Unmarshal: map[string]any, []any, string, float64, bool,
// nil) into the binary wire format for the given resolved type.
//
// The translation runs as an explicit recursive descent bounded to
// MaxCodecStackDepth levels - each call frame plays the role of one entry
// in the stack-bounded work list described in spec.md 4.C; encode and
// decode are kept as separate, symmetric passes rather than unified behind
// one visitor, which keeps each direction's short-read / omission handling
// readable on its own.
func EncodeJSON(r *Resolver, typeID TypeID, value any) ([]byte, error) {
	e := &encoder{r: r}
	buf, err := e.encode(nil, typeID, value, true, 0)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeBinary translates a binary-encoded value back into a JSON-ready Go
// value for the given resolved type. It returns the value and the number of
// bytes consumed from buf.
func DecodeBinary(r *Resolver, typeID TypeID, buf []byte) (any, int, error) {
	d := &decoder{r: r, buf: buf}
	v, n, err := d.decode(typeID, true, 0)
	if err != nil {
		return nil, 0, err
	}
	return v, n, nil
}

type encoder struct {
	r *Resolver
}

func (e *encoder) encode(buf []byte, id TypeID, value any, allowExtensions bool, depth int) ([]byte, error) {
	if depth > MaxCodecStackDepth {
		return nil, ErrRecursionLimitReached
	}
	t := e.r.Type(id)
	switch t.Kind {
	case KindBuiltin:
		return encodeBuiltinBin(buf, t.Builtin, value)

	case KindOptional:
		if value == nil {
			return append(buf, 0), nil
		}
		buf = append(buf, 1)
		return e.encode(buf, t.Inner, value, allowExtensions, depth+1)

	case KindExtension:
		// Transparent: only a struct's last-field check treats this kind
		// specially, the value itself carries no extra framing.
		return e.encode(buf, t.Inner, value, allowExtensions, depth+1)

	case KindArray:
		arr, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("abi: %s: expected array, got %T", t.Name, value)
		}
		insertAt := len(buf)
		for _, elem := range arr {
			var err error
			buf, err = e.encode(buf, t.Inner, elem, false, depth+1)
			if err != nil {
				return nil, err
			}
		}
		sizeBytes := bytesx.PutVarUint32(nil, uint32(len(arr)))
		buf = spliceBytes(buf, insertAt, sizeBytes)
		return buf, nil

	case KindVariant:
		pair, ok := value.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("%w: %s expects a [typename, value] pair", ErrInvalidTypeForVariant, t.Name)
		}
		typeName, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s variant label must be a string", ErrInvalidTypeForVariant, t.Name)
		}
		idx := -1
		for i, alt := range t.Alts {
			if alt.Name == typeName {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q is not an alternative of %s", ErrInvalidTypeForVariant, typeName, t.Name)
		}
		buf = bytesx.PutVarUint32(buf, uint32(idx))
		return e.encode(buf, t.Alts[idx].Type, pair[1], allowExtensions, depth+1)

	case KindStruct:
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("abi: %s: expected object, got %T", t.Name, value)
		}
		for i, f := range t.Fields {
			isLast := i == len(t.Fields)-1
			fieldAllow := allowExtensions && isLast
			val, present := obj[f.Name]
			if !present {
				// Whether a trailing absent field may be skipped at all is
				// gated on the struct-level allowExtensions alone, matching
				// abieos's json_to_bin: fieldAllow (allowExtensions &&
				// isLast) is only meaningful for that field's own recursive
				// encode, not for this skip decision. Gating the skip on
				// fieldAllow would stop skipping as soon as a trailing
				// extension field isn't the very last one.
				if allowExtensions && e.r.Type(f.Type).Kind == KindExtension {
					continue
				}
				return nil, fmt.Errorf("abi: %s: missing field %q", t.Name, f.Name)
			}
			var err error
			buf, err = e.encode(buf, f.Type, val, fieldAllow, depth+1)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	}
	return nil, fmt.Errorf("abi: unhandled kind %v", t.Kind)
}

// spliceBytes inserts ins into buf at position pos, shifting the tail right.
// This is the "size_insertion" mechanism spec.md 4.C describes: the array
// element count is not known until every element has been encoded, so its
// varuint32 encoding is spliced in once the array frame closes.
func spliceBytes(buf []byte, pos int, ins []byte) []byte {
	out := make([]byte, 0, len(buf)+len(ins))
	out = append(out, buf[:pos]...)
	out = append(out, ins...)
	out = append(out, buf[pos:]...)
	return out
}

type decoder struct {
	r   *Resolver
	buf []byte
}

func (d *decoder) decode(id TypeID, allowExtensions bool, depth int) (any, int, error) {
	if depth > MaxCodecStackDepth {
		return nil, 0, ErrRecursionLimitReached
	}
	t := d.r.Type(id)
	switch t.Kind {
	case KindBuiltin:
		return decodeBuiltinBin(d.buf, 0, t.Builtin)

	case KindOptional:
		if len(d.buf) == 0 {
			return nil, 0, fmt.Errorf("abi: %s: short read on presence flag", t.Name)
		}
		switch d.buf[0] {
		case 0:
			return nil, 1, nil
		case 1:
			sub := &decoder{r: d.r, buf: d.buf[1:]}
			v, n, err := sub.decode(t.Inner, allowExtensions, depth+1)
			if err != nil {
				return nil, 0, err
			}
			return v, n + 1, nil
		default:
			return nil, 0, fmt.Errorf("abi: %s: invalid optional flag byte 0x%02x", t.Name, d.buf[0])
		}

	case KindExtension:
		sub := &decoder{r: d.r, buf: d.buf}
		return sub.decode(t.Inner, allowExtensions, depth+1)

	case KindArray:
		n, consumed, err := bytesx.ReadVarUint32(d.buf)
		if err != nil {
			return nil, 0, err
		}
		out := make([]any, 0, n)
		pos := consumed
		for i := uint32(0); i < n; i++ {
			sub := &decoder{r: d.r, buf: d.buf[pos:]}
			v, m, err := sub.decode(t.Inner, false, depth+1)
			if err != nil {
				return nil, 0, err
			}
			out = append(out, v)
			pos += m
		}
		return out, pos, nil

	case KindVariant:
		idx, consumed, err := bytesx.ReadVarUint32(d.buf)
		if err != nil {
			return nil, 0, err
		}
		if int(idx) >= len(t.Alts) {
			return nil, 0, fmt.Errorf("%w: %s index %d", ErrBadVariantIndex, t.Name, idx)
		}
		alt := t.Alts[idx]
		sub := &decoder{r: d.r, buf: d.buf[consumed:]}
		v, m, err := sub.decode(alt.Type, allowExtensions, depth+1)
		if err != nil {
			return nil, 0, err
		}
		return []any{alt.Name, v}, consumed + m, nil

	case KindStruct:
		obj := make(map[string]any, len(t.Fields))
		pos := 0
		extensionsSkipped := false
		for i, f := range t.Fields {
			isLast := i == len(t.Fields)-1
			fieldAllow := allowExtensions && isLast
			if pos >= len(d.buf) {
				// Same struct-level gating as the encoder: allowExtensions
				// alone decides whether a run of trailing absent extension
				// fields may be skipped, not allowExtensions && isLast.
				if allowExtensions && d.r.Type(f.Type).Kind == KindExtension {
					extensionsSkipped = true
					continue
				}
				if extensionsSkipped {
					return nil, 0, fmt.Errorf("%w: %s.%s after a skipped extension field", ErrUnexpectedField, t.Name, f.Name)
				}
				return nil, 0, fmt.Errorf("abi: %s: short read at field %q", t.Name, f.Name)
			}
			sub := &decoder{r: d.r, buf: d.buf[pos:]}
			v, m, err := sub.decode(f.Type, fieldAllow, depth+1)
			if err != nil {
				return nil, 0, err
			}
			obj[f.Name] = v
			pos += m
		}
		return obj, pos, nil
	}
	return nil, 0, fmt.Errorf("abi: unhandled kind %v", t.Kind)
}
