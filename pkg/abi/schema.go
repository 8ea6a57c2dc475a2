package abi

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StructDef is a declared struct: an optional base type name and its own
// fields, in declaration order. Flattening with the base happens during
// resolution, not here.
type StructDef struct {
	Base   string          `yaml:"base,omitempty"`
	Fields []FieldDef      `yaml:"fields"`
}

// FieldDef is one declared struct field.
type FieldDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// VariantDef is a declared variant: an ordered list of (name, type) pairs.
// The position of an entry is its wire discriminant.
type VariantDef struct {
	Name  string   `yaml:"name"`
	Types []string `yaml:"types"`
}

// AliasDef is a declared alias, new_name -> existing_name.
type AliasDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Schema is the parsed, not-yet-resolved declaration of a set of ABI types.
// It is typically authored as YAML and compiled with NewResolver.
type Schema struct {
	Structs  []struct {
		Name string `yaml:"name"`
		StructDef `yaml:",inline"`
	} `yaml:"structs"`
	Variants []VariantDef `yaml:"variants"`
	Aliases  []AliasDef   `yaml:"aliases"`
}

// ParseSchemaYAML decodes a Schema from YAML source. Authoring schemas as
// YAML (rather than the wire format's own JSON) keeps declaration and
// on-the-wire representation visually distinct and lets comments live in
// the schema file.
func ParseSchemaYAML(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("abi: parse schema: %w", err)
	}
	return &s, nil
}
