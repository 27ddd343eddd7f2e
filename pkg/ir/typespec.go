package ir

import "fmt"

// Primitive type names accepted by TypeSpec.
var primitiveTypes = map[string]bool{
	"string": true, "int": true, "long": true, "float": true,
	"double": true, "boolean": true, "File": true, "Directory": true,
	"Any": true, "null": true,
}

// TypeSpec is a tagged union over the parameter type system: a primitive,
// array<T>, record{fields}, enum{symbols}, or union{members}.
type TypeSpec struct {
	Type     string               `json:"type" jsonschema:"required"`
	Items    *TypeSpec            `json:"items,omitempty"`
	Fields   map[string]*TypeSpec `json:"fields,omitempty"`
	Symbols  []string             `json:"symbols,omitempty"`
	Members  []*TypeSpec          `json:"members,omitempty"`
	Nullable bool                 `json:"nullable,omitempty"`
}

// PrimitiveType builds a TypeSpec for one of the primitive names.
func PrimitiveType(name string) TypeSpec { return TypeSpec{Type: name} }

// ArrayType builds an array<items> TypeSpec.
func ArrayType(items TypeSpec) TypeSpec { return TypeSpec{Type: "array", Items: &items} }

// UnionType builds a union TypeSpec; nullable is derived from the members.
func UnionType(members ...*TypeSpec) TypeSpec {
	t := TypeSpec{Type: "union", Members: members}
	for _, m := range members {
		if m != nil && m.Type == "null" {
			t.Nullable = true
		}
	}
	return t
}

// Validate checks the structural invariants of the type union.
func (t *TypeSpec) Validate() error {
	switch t.Type {
	case "array":
		if t.Items == nil {
			return fmt.Errorf("array type requires items")
		}
		return t.Items.Validate()
	case "record":
		if len(t.Fields) == 0 {
			return fmt.Errorf("record type requires at least one field")
		}
		for name, f := range t.Fields {
			if f == nil {
				return fmt.Errorf("record field %q has no type", name)
			}
			if err := f.Validate(); err != nil {
				return fmt.Errorf("record field %q: %w", name, err)
			}
		}
		return nil
	case "enum":
		if len(t.Symbols) == 0 {
			return fmt.Errorf("enum type requires at least one symbol")
		}
		return nil
	case "union":
		if len(t.Members) == 0 {
			return fmt.Errorf("union type requires at least one member")
		}
		hasNull := false
		for _, m := range t.Members {
			if m == nil {
				return fmt.Errorf("union member has no type")
			}
			if err := m.Validate(); err != nil {
				return fmt.Errorf("union member: %w", err)
			}
			if m.Type == "null" {
				hasNull = true
			}
		}
		if t.Nullable != hasNull {
			return fmt.Errorf("union nullable=%v but null member present=%v", t.Nullable, hasNull)
		}
		return nil
	default:
		if !primitiveTypes[t.Type] {
			return fmt.Errorf("unknown type %q", t.Type)
		}
		return nil
	}
}

// String renders the type in a compact human-readable form.
func (t *TypeSpec) String() string {
	switch t.Type {
	case "array":
		if t.Items != nil {
			return "array<" + t.Items.String() + ">"
		}
		return "array<?>"
	case "record":
		return fmt.Sprintf("record{%d fields}", len(t.Fields))
	case "enum":
		return fmt.Sprintf("enum{%d symbols}", len(t.Symbols))
	case "union":
		return fmt.Sprintf("union{%d members}", len(t.Members))
	default:
		return t.Type
	}
}
