package abi

// BuiltinTag names a leaf ("builtin") ABI type. Leaf encoders/decoders are
// looked up by tag from a table rather than dispatched through a virtual
// hierarchy (spec.md 4.9, "dynamic dispatch over the ABI variant").
type BuiltinTag int

const (
	BuiltinBool BuiltinTag = iota
	BuiltinInt8
	BuiltinUint8
	BuiltinInt16
	BuiltinUint16
	BuiltinInt32
	BuiltinUint32
	BuiltinInt64
	BuiltinUint64
	BuiltinInt128
	BuiltinUint128
	BuiltinVarInt32
	BuiltinVarUint32
	BuiltinFloat32
	BuiltinFloat64
	BuiltinFloat128 // 128-bit IEEE quad, carried as an opaque 16-byte blob
	BuiltinTimePoint
	BuiltinTimePointSec
	BuiltinName      // 8-byte packed name, carried as a decoded string on the JSON side
	BuiltinBytes     // length-prefixed raw bytes, hex on the JSON side
	BuiltinString    // length-prefixed UTF-8
	BuiltinChecksum160
	BuiltinChecksum256
	BuiltinChecksum512
	BuiltinPublicKey
	BuiltinSignature
	BuiltinSymbol
	BuiltinAsset
)

// builtinNames is the declared-schema spelling for each builtin tag; it is
// also how the resolver recognizes a name as a leaf rather than a declared
// struct/variant/alias.
var builtinNames = map[string]BuiltinTag{
	"bool":            BuiltinBool,
	"int8":            BuiltinInt8,
	"uint8":           BuiltinUint8,
	"int16":           BuiltinInt16,
	"uint16":          BuiltinUint16,
	"int32":           BuiltinInt32,
	"uint32":          BuiltinUint32,
	"int64":           BuiltinInt64,
	"uint64":          BuiltinUint64,
	"int128":          BuiltinInt128,
	"uint128":         BuiltinUint128,
	"varint32":        BuiltinVarInt32,
	"varuint32":       BuiltinVarUint32,
	"float32":         BuiltinFloat32,
	"float64":         BuiltinFloat64,
	"float128":        BuiltinFloat128,
	"time_point":      BuiltinTimePoint,
	"time_point_sec":  BuiltinTimePointSec,
	"name":            BuiltinName,
	"bytes":           BuiltinBytes,
	"string":          BuiltinString,
	"checksum160":     BuiltinChecksum160,
	"checksum256":     BuiltinChecksum256,
	"checksum512":     BuiltinChecksum512,
	"public_key":      BuiltinPublicKey,
	"signature":       BuiltinSignature,
	"symbol":          BuiltinSymbol,
	"asset":           BuiltinAsset,
}

// integersEncodedAsStrings holds every builtin whose JSON representation is
// a string rather than a native JSON number, per spec.md 4.C ("Integers >=
// 64 bits encoded as JSON strings to avoid precision loss").
var integersEncodedAsStrings = map[BuiltinTag]bool{
	BuiltinInt64:   true,
	BuiltinUint64:  true,
	BuiltinInt128:  true,
	BuiltinUint128: true,
}
