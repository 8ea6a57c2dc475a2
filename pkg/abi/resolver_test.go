package abi

import (
	"errors"
	"testing"
)

func mustResolver(t *testing.T, yamlSrc string) *Resolver {
	t.Helper()
	s, err := ParseSchemaYAML([]byte(yamlSrc))
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	r, err := NewResolver(s)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r
}

func TestResolveWrappersAndStructBase(t *testing.T) {
	r := mustResolver(t, `
structs:
  - name: base_block
    fields:
      - {name: timestamp, type: time_point_sec}
  - name: signed_block
    base: base_block
    fields:
      - {name: producer, type: name}
      - {name: trx_ids, type: checksum256[]}
      - {name: memo, type: string?}
`)
	if err := r.ResolveAll(); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	id, err := r.Resolve("signed_block")
	if err != nil {
		t.Fatalf("resolve signed_block: %v", err)
	}
	ty := r.Type(id)
	if len(ty.Fields) != 4 {
		t.Fatalf("expected base fields flattened in: got %d fields: %+v", len(ty.Fields), ty.Fields)
	}
	if ty.Fields[0].Name != "timestamp" {
		t.Fatalf("base field should come first, got %s", ty.Fields[0].Name)
	}
	arrID := ty.Fields[2].Type
	if r.Type(arrID).Kind != KindArray {
		t.Fatalf("trx_ids should resolve to an array type")
	}
}

func TestInvalidNesting(t *testing.T) {
	r := mustResolver(t, `
structs:
  - name: s
    fields:
      - {name: f, type: string??}
`)
	if _, err := r.Resolve("s"); !errors.Is(err, ErrInvalidNesting) {
		t.Fatalf("expected ErrInvalidNesting, got %v", err)
	}
}

func TestExtensionTypedef(t *testing.T) {
	r := mustResolver(t, `
aliases:
  - {name: ext_alias, type: string$}
`)
	if _, err := r.Resolve("ext_alias"); !errors.Is(err, ErrExtensionTypedef) {
		t.Fatalf("expected ErrExtensionTypedef, got %v", err)
	}
}

func TestBaseNotAStruct(t *testing.T) {
	r := mustResolver(t, `
structs:
  - name: bad
    base: string
    fields: []
`)
	if _, err := r.Resolve("bad"); !errors.Is(err, ErrBaseNotAStruct) {
		t.Fatalf("expected ErrBaseNotAStruct, got %v", err)
	}
}

func TestRedefinedType(t *testing.T) {
	s, err := ParseSchemaYAML([]byte(`
structs:
  - name: dup
    fields: []
variants:
  - name: dup
    types: []
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := NewResolver(s); !errors.Is(err, ErrRedefinedType) {
		t.Fatalf("expected ErrRedefinedType, got %v", err)
	}
}

func TestBuiltinCollision(t *testing.T) {
	s, err := ParseSchemaYAML([]byte(`
structs:
  - name: uint64
    fields: []
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := NewResolver(s); !errors.Is(err, ErrRedefinedType) {
		t.Fatalf("expected ErrRedefinedType for builtin collision, got %v", err)
	}
}

func TestSelfReferentialViaOptional(t *testing.T) {
	// A linked-list style struct must resolve without tripping the
	// recursion-depth guard, since the self-reference goes through an
	// auto-materialized optional wrapper rather than by value.
	r := mustResolver(t, `
structs:
  - name: node
    fields:
      - {name: value, type: uint32}
      - {name: next, type: node?}
`)
	id, err := r.Resolve("node")
	if err != nil {
		t.Fatalf("resolve self-referential struct: %v", err)
	}
	ty := r.Type(id)
	nextField := ty.Fields[1]
	if r.Type(nextField.Type).Kind != KindOptional {
		t.Fatalf("expected next field to be optional")
	}
	if r.Type(nextField.Type).Inner != id {
		t.Fatalf("expected optional to wrap the struct itself")
	}
}
