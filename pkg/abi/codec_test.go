package abi

import (
	"reflect"
	"testing"
)

// TestVariantWireExample mirrors spec.md S4: a variant{"a":u32,"b":string}
// where JSON ["b","hi"] encodes to 01 02 'h' 'i', and binary
// 00 07 00 00 00 decodes to ["a",7].
func TestVariantWireExample(t *testing.T) {
	r := mustResolver(t, `
variants:
  - name: v
    types: [a, b]
aliases:
  - {name: a, type: uint32}
  - {name: b, type: string}
`)
	id, err := r.Resolve("v")
	if err != nil {
		t.Fatalf("resolve v: %v", err)
	}

	enc, err := EncodeJSON(r, id, []any{"b", "hi"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0x01, 0x02, 'h', 'i'}
	if !reflect.DeepEqual(enc, want) {
		t.Fatalf("encode = % x, want % x", enc, want)
	}

	dec, n, err := DecodeBinary(r, id, []byte{0x00, 0x07, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != 5 {
		t.Fatalf("consumed %d bytes, want 5", n)
	}
	gotPair, ok := dec.([]any)
	if !ok || len(gotPair) != 2 || gotPair[0] != "a" || gotPair[1].(float64) != 7 {
		t.Fatalf("decode = %#v, want [a 7]", dec)
	}
}

func TestBadVariantIndex(t *testing.T) {
	r := mustResolver(t, `
variants:
  - name: v
    types: [a]
aliases:
  - {name: a, type: uint32}
`)
	id, _ := r.Resolve("v")
	if _, _, err := DecodeBinary(r, id, []byte{0x05, 0, 0, 0, 0}); err == nil {
		t.Fatal("expected bad_variant_index error")
	}
}

func TestStructArrayOptionalRoundTrip(t *testing.T) {
	r := mustResolver(t, `
structs:
  - name: item
    fields:
      - {name: id, type: uint64}
      - {name: note, type: string?}
  - name: bag
    fields:
      - {name: items, type: item[]}
      - {name: total, type: uint32}
`)
	if err := r.ResolveAll(); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	id, err := r.Resolve("bag")
	if err != nil {
		t.Fatalf("resolve bag: %v", err)
	}

	value := map[string]any{
		"items": []any{
			map[string]any{"id": "1", "note": "hello"},
			map[string]any{"id": "2", "note": nil},
		},
		"total": float64(2),
	}
	enc, err := EncodeJSON(r, id, value)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, n, err := DecodeBinary(r, id, enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(enc) {
		t.Fatalf("consumed %d of %d bytes", n, len(enc))
	}
	decMap := dec.(map[string]any)
	if decMap["total"].(float64) != 2 {
		t.Fatalf("total mismatch: %#v", decMap["total"])
	}
	items := decMap["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	first := items[0].(map[string]any)
	if first["id"] != "1" || first["note"] != "hello" {
		t.Fatalf("first item mismatch: %#v", first)
	}
	second := items[1].(map[string]any)
	if second["note"] != nil {
		t.Fatalf("second note should decode back to nil, got %#v", second["note"])
	}
}

// TestExtensionCompatibility exercises spec.md's testable property 7: a
// newer schema with a trailing extension field can be read by an older
// schema (the extension field is simply absent from the output), and an
// older writer's bytes decode cleanly against the newer schema.
func TestExtensionCompatibility(t *testing.T) {
	rOld := mustResolver(t, `
structs:
  - name: msg
    fields:
      - {name: a, type: uint32}
`)
	if _, err := rOld.Resolve("msg"); err != nil {
		t.Fatalf("resolve old: %v", err)
	}

	rNew := mustResolver(t, `
structs:
  - name: msg
    fields:
      - {name: a, type: uint32}
      - {name: b, type: uint32$}
`)
	newID, err := rNew.Resolve("msg")
	if err != nil {
		t.Fatalf("resolve new: %v", err)
	}

	// Old writer's bytes (no trailing extension) decode fine against the
	// new schema: the field is simply missing from the decoded object.
	oldBytes, err := EncodeJSON(rOld, mustID(t, rOld, "msg"), map[string]any{"a": float64(5)})
	if err != nil {
		t.Fatalf("encode old: %v", err)
	}
	decNew, _, err := DecodeBinary(rNew, newID, oldBytes)
	if err != nil {
		t.Fatalf("decode old bytes with new schema: %v", err)
	}
	obj := decNew.(map[string]any)
	if _, present := obj["b"]; present {
		t.Fatalf("extension field should be absent, got %#v", obj)
	}

	// New writer encoding without the extension field present must still
	// succeed (it's omittable), and with it present must also round-trip.
	if _, err := EncodeJSON(rNew, newID, map[string]any{"a": float64(5)}); err != nil {
		t.Fatalf("encode new without extension: %v", err)
	}
	withExt, err := EncodeJSON(rNew, newID, map[string]any{"a": float64(5), "b": float64(9)})
	if err != nil {
		t.Fatalf("encode new with extension: %v", err)
	}
	decWithExt, _, err := DecodeBinary(rNew, newID, withExt)
	if err != nil {
		t.Fatalf("decode with extension: %v", err)
	}
	if decWithExt.(map[string]any)["b"].(float64) != 9 {
		t.Fatalf("extension field value mismatch: %#v", decWithExt)
	}
}

// TestExtensionCompatibilityMultipleTrailingFields guards against gating
// the skip decision on allowExtensions && isLast instead of struct-level
// allowExtensions: with two or more trailing extension fields all absent,
// every one of them but the last must still be skippable, not just the
// final field.
func TestExtensionCompatibilityMultipleTrailingFields(t *testing.T) {
	rOld := mustResolver(t, `
structs:
  - name: msg
    fields:
      - {name: a, type: uint32}
`)
	if _, err := rOld.Resolve("msg"); err != nil {
		t.Fatalf("resolve old: %v", err)
	}

	rNew := mustResolver(t, `
structs:
  - name: msg
    fields:
      - {name: a, type: uint32}
      - {name: b, type: uint32$}
      - {name: c, type: uint32$}
`)
	newID, err := rNew.Resolve("msg")
	if err != nil {
		t.Fatalf("resolve new: %v", err)
	}

	oldBytes, err := EncodeJSON(rOld, mustID(t, rOld, "msg"), map[string]any{"a": float64(5)})
	if err != nil {
		t.Fatalf("encode old: %v", err)
	}
	decNew, _, err := DecodeBinary(rNew, newID, oldBytes)
	if err != nil {
		t.Fatalf("decode old bytes against schema with two trailing extensions: %v", err)
	}
	obj := decNew.(map[string]any)
	if _, present := obj["b"]; present {
		t.Fatalf("extension field b should be absent, got %#v", obj)
	}
	if _, present := obj["c"]; present {
		t.Fatalf("extension field c should be absent, got %#v", obj)
	}

	newBytes, err := EncodeJSON(rNew, newID, map[string]any{"a": float64(5)})
	if err != nil {
		t.Fatalf("encode new without either extension field: %v", err)
	}
	if _, _, err := DecodeBinary(rNew, newID, newBytes); err != nil {
		t.Fatalf("decode round trip with both extensions omitted: %v", err)
	}
}

func mustID(t *testing.T, r *Resolver, name string) TypeID {
	t.Helper()
	id, err := r.Resolve(name)
	if err != nil {
		t.Fatalf("resolve %s: %v", name, err)
	}
	return id
}
