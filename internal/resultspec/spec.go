package resultspec

import "fmt"

// Spec describes the shape a task result must take.
//
// The set of variants is closed: isSpec is unexported so only the types in
// this package satisfy the interface. Every switch over a Spec ends in a
// panic on an unknown variant, and Check rejects anything it does not know.
type Spec interface {
	isSpec()
	fmt.Stringer
}

// Kind identifies a primitive scalar type.
type Kind int

const (
	String Kind = iota
	Integer
	Float
	Boolean
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// None means no result is expected. Any output is discarded.
type None struct{}

// Scalar requires a single primitive value.
type Scalar struct {
	Kind Kind
}

// Choice requires the agent to select exactly one of Options by index.
type Choice struct {
	Options []any
}

// ChoiceList requires a non-empty, duplicate-free ordered selection of Options.
type ChoiceList struct {
	Options []any
}

// Sequence is an ordered list whose elements all conform to Elem.
type Sequence struct {
	Elem Spec
}

// Field is one named member of a Structured result.
type Field struct {
	Name     string
	Type     Spec
	Required bool
	MinLen   int // applies to strings and sequences; 0 means unbounded
	MaxLen   int // 0 means unbounded
}

// Structured is a record with declared fields.
type Structured struct {
	Fields []Field
}

// Annotated wraps Base with an advisory natural-language hint. The hint is
// only shown to the agent; it is never enforced.
type Annotated struct {
	Base Spec
	Hint string
}

// NoResult is the value produced by coercing against None.
type NoResult struct{}

func (None) isSpec()       {}
func (Scalar) isSpec()     {}
func (Choice) isSpec()     {}
func (ChoiceList) isSpec() {}
func (Sequence) isSpec()   {}
func (Structured) isSpec() {}
func (Annotated) isSpec()  {}

func (None) String() string         { return "none" }
func (s Scalar) String() string     { return s.Kind.String() }
func (c Choice) String() string     { return fmt.Sprintf("choice(%d options)", len(c.Options)) }
func (c ChoiceList) String() string { return fmt.Sprintf("choice_list(%d options)", len(c.Options)) }
func (s Sequence) String() string {
	if s.Elem == nil {
		return "list<?>"
	}
	return "list<" + s.Elem.String() + ">"
}
func (s Structured) String() string { return fmt.Sprintf("object(%d fields)", len(s.Fields)) }
func (a Annotated) String() string {
	if a.Base == nil {
		return "annotated(?)"
	}
	return a.Base.String()
}

// Clone returns a deep copy of spec so later mutation of the caller's
// option or field slices cannot leak into a running task.
func Clone(spec Spec) Spec {
	switch s := spec.(type) {
	case nil:
		return nil
	case None:
		return None{}
	case Scalar:
		return s
	case Choice:
		return Choice{Options: append([]any(nil), s.Options...)}
	case ChoiceList:
		return ChoiceList{Options: append([]any(nil), s.Options...)}
	case Sequence:
		return Sequence{Elem: Clone(s.Elem)}
	case Structured:
		fields := make([]Field, len(s.Fields))
		for i, f := range s.Fields {
			f.Type = Clone(f.Type)
			fields[i] = f
		}
		return Structured{Fields: fields}
	case Annotated:
		return Annotated{Base: Clone(s.Base), Hint: s.Hint}
	default:
		panic(fmt.Sprintf("resultspec: unhandled variant %T", spec))
	}
}

// Unwrap strips any Annotated layers.
func Unwrap(spec Spec) Spec {
	for {
		a, ok := spec.(Annotated)
		if !ok {
			return spec
		}
		spec = a.Base
	}
}

// IsNone reports whether spec (ignoring annotations) expects no result.
func IsNone(spec Spec) bool {
	_, ok := Unwrap(spec).(None)
	return ok
}
