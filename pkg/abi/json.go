package abi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RoundTripJSON decodes binary wire data back to canonical JSON text, with
// struct fields emitted in declared order rather than the arbitrary order
// encoding/json.Marshal would give a map[string]any (spec.md 4.C: "on
// output emitted in declared order").
func RoundTripJSON(r *Resolver, typeID TypeID, buf []byte) ([]byte, int, error) {
	v, n, err := DecodeBinary(r, typeID, buf)
	if err != nil {
		return nil, 0, err
	}
	var out bytes.Buffer
	if err := marshalOrdered(&out, r, typeID, v); err != nil {
		return nil, 0, err
	}
	return out.Bytes(), n, nil
}

func marshalOrdered(w *bytes.Buffer, r *Resolver, id TypeID, v any) error {
	t := r.Type(id)
	switch t.Kind {
	case KindStruct:
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("abi: %s: expected object value, got %T", t.Name, v)
		}
		w.WriteByte('{')
		first := true
		for _, f := range t.Fields {
			val, present := obj[f.Name]
			if !present {
				continue
			}
			if !first {
				w.WriteByte(',')
			}
			first = false
			key, _ := json.Marshal(f.Name)
			w.Write(key)
			w.WriteByte(':')
			if err := marshalOrdered(w, r, f.Type, val); err != nil {
				return err
			}
		}
		w.WriteByte('}')
		return nil

	case KindArray:
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("abi: %s: expected array value, got %T", t.Name, v)
		}
		w.WriteByte('[')
		for i, elem := range arr {
			if i > 0 {
				w.WriteByte(',')
			}
			if err := marshalOrdered(w, r, t.Inner, elem); err != nil {
				return err
			}
		}
		w.WriteByte(']')
		return nil

	case KindOptional:
		if v == nil {
			w.WriteString("null")
			return nil
		}
		return marshalOrdered(w, r, t.Inner, v)

	case KindExtension:
		return marshalOrdered(w, r, t.Inner, v)

	case KindVariant:
		pair, ok := v.([]any)
		if !ok || len(pair) != 2 {
			return fmt.Errorf("abi: %s: expected [typename, value] pair", t.Name)
		}
		w.WriteByte('[')
		label, _ := json.Marshal(pair[0])
		w.Write(label)
		w.WriteByte(',')
		idx := -1
		for i, alt := range t.Alts {
			if name, _ := pair[0].(string); alt.Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidTypeForVariant, pair[0])
		}
		if err := marshalOrdered(w, r, t.Alts[idx].Type, pair[1]); err != nil {
			return err
		}
		w.WriteByte(']')
		return nil

	default: // builtin
		out, err := json.Marshal(v)
		if err != nil {
			return err
		}
		w.Write(out)
		return nil
	}
}
