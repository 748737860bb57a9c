package resultspec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Decl is the declarative (YAML/JSON) form of a Spec used by flow files and
// persisted task records. A bare scalar such as `result: integer` is
// shorthand for `result: {type: integer}`.
type Decl struct {
	Type    string      `yaml:"type" json:"type"`
	Options []any       `yaml:"options,omitempty" json:"options,omitempty"`
	Items   *Decl       `yaml:"items,omitempty" json:"items,omitempty"`
	Fields  []FieldDecl `yaml:"fields,omitempty" json:"fields,omitempty"`
	Hint    string      `yaml:"hint,omitempty" json:"hint,omitempty"`
}

// FieldDecl declares one field of an object result.
type FieldDecl struct {
	Name     string `yaml:"name" json:"name"`
	Decl     `yaml:",inline"`
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`
	MinLen   int  `yaml:"min_length,omitempty" json:"min_length,omitempty"`
	MaxLen   int  `yaml:"max_length,omitempty" json:"max_length,omitempty"`
}

// UnmarshalYAML accepts both the shorthand scalar form and the full mapping.
func (d *Decl) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		d.Type = node.Value
		return nil
	}
	type plain Decl
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*d = Decl(p)
	return nil
}

// UnmarshalYAML shadows the promoted Decl method so field metadata is kept.
func (f *FieldDecl) UnmarshalYAML(node *yaml.Node) error {
	var meta struct {
		Name     string `yaml:"name"`
		Required bool   `yaml:"required"`
		MinLen   int    `yaml:"min_length"`
		MaxLen   int    `yaml:"max_length"`
	}
	if err := node.Decode(&meta); err != nil {
		return err
	}
	var d Decl
	if err := node.Decode(&d); err != nil {
		return err
	}
	*f = FieldDecl{Name: meta.Name, Decl: d, Required: meta.Required, MinLen: meta.MinLen, MaxLen: meta.MaxLen}
	return nil
}

// MarshalYAML writes the field as one flat mapping. yaml.v3 does not inline
// an embedded struct that has its own UnmarshalYAML, so the Decl keys are
// copied out by hand.
func (f FieldDecl) MarshalYAML() (any, error) {
	return struct {
		Name     string      `yaml:"name"`
		Type     string      `yaml:"type"`
		Options  []any       `yaml:"options,omitempty"`
		Items    *Decl       `yaml:"items,omitempty"`
		Fields   []FieldDecl `yaml:"fields,omitempty"`
		Hint     string      `yaml:"hint,omitempty"`
		Required bool        `yaml:"required,omitempty"`
		MinLen   int         `yaml:"min_length,omitempty"`
		MaxLen   int         `yaml:"max_length,omitempty"`
	}{
		Name:     f.Name,
		Type:     f.Type,
		Options:  f.Options,
		Items:    f.Items,
		Fields:   f.Fields,
		Hint:     f.Hint,
		Required: f.Required,
		MinLen:   f.MinLen,
		MaxLen:   f.MaxLen,
	}, nil
}

// Build converts the declaration into a checked Spec.
func (d Decl) Build() (Spec, error) {
	spec, err := d.build()
	if err != nil {
		return nil, err
	}
	if err := Check(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

func (d Decl) build() (Spec, error) {
	var spec Spec
	switch d.Type {
	case "", "none":
		spec = None{}
	case "string", "str", "text":
		spec = Scalar{Kind: String}
	case "integer", "int":
		spec = Scalar{Kind: Integer}
	case "float", "number":
		spec = Scalar{Kind: Float}
	case "boolean", "bool":
		spec = Scalar{Kind: Boolean}
	case "choice":
		spec = Choice{Options: d.Options}
	case "choice_list", "choices":
		spec = ChoiceList{Options: d.Options}
	case "list", "sequence":
		if d.Items == nil {
			return nil, fmt.Errorf("%w: list declaration needs items", ErrInvalidSpec)
		}
		elem, err := d.Items.build()
		if err != nil {
			return nil, err
		}
		spec = Sequence{Elem: elem}
	case "object", "structured":
		fields := make([]Field, 0, len(d.Fields))
		for _, fd := range d.Fields {
			ft, err := fd.Decl.build()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", fd.Name, err)
			}
			fields = append(fields, Field{
				Name:     fd.Name,
				Type:     ft,
				Required: fd.Required,
				MinLen:   fd.MinLen,
				MaxLen:   fd.MaxLen,
			})
		}
		spec = Structured{Fields: fields}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidSpec, d.Type)
	}

	if d.Hint != "" {
		spec = Annotated{Base: spec, Hint: d.Hint}
	}
	return spec, nil
}

// DeclOf converts a Spec back into its declarative form.
func DeclOf(spec Spec) Decl {
	switch s := spec.(type) {
	case None:
		return Decl{Type: "none"}
	case Scalar:
		return Decl{Type: s.Kind.String()}
	case Choice:
		return Decl{Type: "choice", Options: s.Options}
	case ChoiceList:
		return Decl{Type: "choice_list", Options: s.Options}
	case Sequence:
		items := DeclOf(s.Elem)
		return Decl{Type: "list", Items: &items}
	case Structured:
		fields := make([]FieldDecl, 0, len(s.Fields))
		for _, f := range s.Fields {
			fields = append(fields, FieldDecl{
				Name:     f.Name,
				Decl:     DeclOf(f.Type),
				Required: f.Required,
				MinLen:   f.MinLen,
				MaxLen:   f.MaxLen,
			})
		}
		return Decl{Type: "object", Fields: fields}
	case Annotated:
		d := DeclOf(s.Base)
		if d.Hint != "" {
			d.Hint = s.Hint + " " + d.Hint
		} else {
			d.Hint = s.Hint
		}
		return d
	default:
		panic(fmt.Sprintf("resultspec: unhandled variant %T", spec))
	}
}
