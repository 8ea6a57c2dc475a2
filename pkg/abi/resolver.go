package abi

import (
	"fmt"
	"strings"
)

// rawKind tags what a not-yet-resolved declared name will become.
type rawKind int

const (
	rawNone rawKind = iota
	rawStruct
	rawVariant
	rawAlias
)

// Resolver holds the arena of resolved Types plus the raw declarations
// still pending resolution. Every named type, resolved or not, is an index
// into types - struct/variant/wrapper children carry indices, not owning
// references, so the graph stays a DAG of integers even while the
// declared schema is still being walked (spec.md 4.9, "cyclic references").
type Resolver struct {
	types  []Type
	byName map[string]TypeID

	rawKind    map[string]rawKind
	structDefs map[string]StructDef
	variantDef map[string]VariantDef
	aliasDef   map[string]AliasDef

	resolved map[string]bool // declared names whose Type is finished filling in
}

// NewResolver validates a Schema for duplicate names and prepares a
// Resolver. It does not resolve any type until Resolve or ResolveAll is
// called.
func NewResolver(s *Schema) (*Resolver, error) {
	r := &Resolver{
		byName:     make(map[string]TypeID),
		rawKind:    make(map[string]rawKind),
		structDefs: make(map[string]StructDef),
		variantDef: make(map[string]VariantDef),
		aliasDef:   make(map[string]AliasDef),
		resolved:   make(map[string]bool),
	}

	declare := func(name string) error {
		if _, isBuiltin := builtinNames[name]; isBuiltin {
			return fmt.Errorf("%w: %s collides with a builtin", ErrRedefinedType, name)
		}
		if _, exists := r.rawKind[name]; exists {
			return fmt.Errorf("%w: %s", ErrRedefinedType, name)
		}
		return nil
	}

	for _, sd := range s.Structs {
		if err := declare(sd.Name); err != nil {
			return nil, err
		}
		r.rawKind[sd.Name] = rawStruct
		r.structDefs[sd.Name] = sd.StructDef
	}
	for _, vd := range s.Variants {
		if err := declare(vd.Name); err != nil {
			return nil, err
		}
		r.rawKind[vd.Name] = rawVariant
		r.variantDef[vd.Name] = vd
	}
	for _, ad := range s.Aliases {
		if err := declare(ad.Name); err != nil {
			return nil, err
		}
		r.rawKind[ad.Name] = rawAlias
		r.aliasDef[ad.Name] = ad
	}

	// Reserve a stable TypeID for every declared name up front. This is
	// what lets a struct reference itself (or a sibling) through a wrapper
	// without re-entering resolution: the field only needs the index, not
	// the finished Type.
	for name, kind := range r.rawKind {
		id := TypeID(len(r.types))
		r.types = append(r.types, Type{Name: name})
		r.byName[name] = id
		_ = kind
	}

	return r, nil
}

// ResolveAll resolves every declared name, returning the first error met.
// Call this once after NewResolver; Resolve can then look up any declared
// or auto-materialized wrapper name in O(1).
func (r *Resolver) ResolveAll() error {
	for name := range r.rawKind {
		if _, err := r.resolveName(name, 0); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the TypeID for a declared name or an auto-materialized
// wrapper name ("foo?", "foo[]", "foo$"), resolving it (and anything it
// depends on) on demand.
func (r *Resolver) Resolve(name string) (TypeID, error) {
	return r.resolveName(name, 0)
}

// Type returns the resolved Type for id. Callers must only pass IDs
// obtained from Resolve/ResolveAll.
func (r *Resolver) Type(id TypeID) *Type {
	return &r.types[id]
}

func (r *Resolver) resolveName(name string, depth int) (TypeID, error) {
	if depth > MaxResolutionDepth {
		return 0, fmt.Errorf("%w: resolving %s", ErrRecursionLimitReached, name)
	}

	if id, ok := r.byName[name]; ok {
		if r.resolved[name] || r.rawKind[name] == rawNone {
			// Already finished, or a wrapper/builtin materialized earlier.
			return id, nil
		}
		// Declared but not yet filled in: fill it now. A field elsewhere
		// that refers to a struct `name` while it's mid-resolution still
		// gets this same stable id back from the branch above on its *next*
		// lookup, since resolveDeclared marks the struct resolved before
		// walking its members - self-reference through a wrapper type
		// terminates in one hop rather than looping.
		return r.resolveDeclared(name, id, depth)
	}

	switch {
	case strings.HasSuffix(name, "?"):
		return r.materializeWrapper(name, name[:len(name)-1], KindOptional, depth)
	case strings.HasSuffix(name, "[]"):
		return r.materializeWrapper(name, name[:len(name)-2], KindArray, depth)
	case strings.HasSuffix(name, "$"):
		return r.materializeWrapper(name, name[:len(name)-1], KindExtension, depth)
	}

	if tag, ok := builtinNames[name]; ok {
		id := TypeID(len(r.types))
		r.types = append(r.types, Type{Name: name, Kind: KindBuiltin, Builtin: tag})
		r.byName[name] = id
		r.rawKind[name] = rawNone
		r.resolved[name] = true
		return id, nil
	}

	return 0, fmt.Errorf("%w: %s", ErrUnknownType, name)
}

func (r *Resolver) materializeWrapper(name, baseName string, kind Kind, depth int) (TypeID, error) {
	baseID, err := r.resolveName(baseName, depth+1)
	if err != nil {
		return 0, err
	}
	base := &r.types[baseID]
	if base.Kind == KindOptional || base.Kind == KindArray || base.Kind == KindExtension {
		return 0, fmt.Errorf("%w: %s wraps already-wrapped type %s", ErrInvalidNesting, name, base.Name)
	}
	id := TypeID(len(r.types))
	r.types = append(r.types, Type{Name: name, Kind: kind, Inner: baseID})
	r.byName[name] = id
	r.rawKind[name] = rawNone
	r.resolved[name] = true
	return id, nil
}

func (r *Resolver) resolveDeclared(name string, id TypeID, depth int) (TypeID, error) {
	if depth > MaxResolutionDepth {
		return 0, fmt.Errorf("%w: resolving %s", ErrRecursionLimitReached, name)
	}
	switch r.rawKind[name] {
	case rawAlias:
		ad := r.aliasDef[name]
		targetID, err := r.resolveName(ad.Type, depth+1)
		if err != nil {
			return 0, err
		}
		if r.types[targetID].Kind == KindExtension {
			return 0, fmt.Errorf("%w: alias %s -> %s", ErrExtensionTypedef, name, ad.Type)
		}
		// Aliases are resolved away: every future lookup of `name` returns
		// the target's id directly, so the codec never observes KindAlias.
		r.byName[name] = targetID
		r.rawKind[name] = rawNone
		r.resolved[name] = true
		return targetID, nil

	case rawStruct:
		sd := r.structDefs[name]
		// Mark name resolved before walking its base and fields, so a member
		// that refers back to it gets the stable id from resolveName instead
		// of re-entering; the mark is withdrawn if resolution fails.
		r.resolved[name] = true
		fail := func(err error) (TypeID, error) {
			delete(r.resolved, name)
			return 0, err
		}
		var fields []Field
		base := NoType
		if sd.Base != "" {
			baseID, err := r.resolveName(sd.Base, depth+1)
			if err != nil {
				return fail(err)
			}
			baseType := &r.types[baseID]
			if baseType.Kind != KindStruct {
				return fail(fmt.Errorf("%w: %s bases %s", ErrBaseNotAStruct, name, sd.Base))
			}
			fields = append(fields, baseType.Fields...)
			base = baseID
		}
		for _, fd := range sd.Fields {
			ftid, err := r.resolveName(fd.Type, depth+1)
			if err != nil {
				return fail(err)
			}
			fields = append(fields, Field{Name: fd.Name, Type: ftid})
		}
		r.types[id] = Type{Name: name, Kind: KindStruct, Base: base, Fields: fields}
		r.resolved[name] = true
		return id, nil

	case rawVariant:
		vd := r.variantDef[name]
		alts := make([]VariantAlternative, 0, len(vd.Types))
		for _, tn := range vd.Types {
			tid, err := r.resolveName(tn, depth+1)
			if err != nil {
				return 0, err
			}
			alts = append(alts, VariantAlternative{Name: tn, Type: tid})
		}
		r.types[id] = Type{Name: name, Kind: KindVariant, Alts: alts}
		r.resolved[name] = true
		return id, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownType, name)
}
