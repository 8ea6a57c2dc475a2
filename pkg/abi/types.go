// Package abi implements the self-describing binary wire format used by the
// chain and its JSON counterpart: a declarative schema (structs with
// inheritance, tagged variants, optionals, arrays, extensions, aliases) is
// resolved once into an arena of canonical types, then driven by a
// stack-bounded codec in either direction.
package abi

import "errors"

// Kind discriminates the variants of a resolved Type.
type Kind int

const (
	KindBuiltin Kind = iota
	KindAlias
	KindOptional
	KindArray
	KindExtension
	KindStruct
	KindVariant
)

func (k Kind) String() string {
	switch k {
	case KindBuiltin:
		return "builtin"
	case KindAlias:
		return "alias"
	case KindOptional:
		return "optional"
	case KindArray:
		return "array"
	case KindExtension:
		return "extension"
	case KindStruct:
		return "struct"
	case KindVariant:
		return "variant"
	default:
		return "unknown"
	}
}

// TypeID indexes into Resolver.types. It is the sole means by which one
// resolved Type refers to another, which keeps the graph a DAG of plain
// integers even though the declared schema may look cyclic while it is
// being built.
type TypeID int

// Field is one member of a resolved struct.
type Field struct {
	Name string
	Type TypeID
}

// VariantAlternative is one named option of a resolved variant, in
// declaration order; its position in the slice is its wire discriminant.
type VariantAlternative struct {
	Name string
	Type TypeID
}

// Type is a fully resolved ABI type: exactly one of the kind-specific fields
// below is meaningful, selected by Kind.
type Type struct {
	Name    string
	Kind    Kind
	Builtin BuiltinTag // KindBuiltin
	Inner   TypeID     // KindOptional / KindArray / KindExtension
	Base    TypeID     // KindStruct: resolved base type, or NoType
	Fields  []Field    // KindStruct: base fields then own, in declared order
	Alts    []VariantAlternative
}

// NoType is the sentinel TypeID meaning "no base type".
const NoType TypeID = -1

// Sentinel schema-resolution errors, matching spec.md's named error
// conditions so callers can errors.Is against them.
var (
	ErrBadVarint             = errors.New("bad_varint")
	ErrInvalidNesting        = errors.New("invalid_nesting")
	ErrExtensionTypedef      = errors.New("extension_typedef")
	ErrBaseNotAStruct        = errors.New("base_not_a_struct")
	ErrRecursionLimitReached = errors.New("recursion_limit_reached")
	ErrRedefinedType         = errors.New("redefined_type")
	ErrUnknownType           = errors.New("unknown_type")
	ErrUnexpectedField       = errors.New("unexpected_field")
	ErrBadVariantIndex       = errors.New("bad_variant_index")
	ErrInvalidTypeForVariant = errors.New("invalid_type_for_variant")
)

// MaxResolutionDepth bounds alias/wrapper/base chain following during
// resolution (spec.md 4.B).
const MaxResolutionDepth = 32

// MaxCodecStackDepth bounds the explicit work-stack the streaming codec
// uses in either direction (spec.md 4.C).
const MaxCodecStackDepth = 128
