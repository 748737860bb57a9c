package resultspec

import (
	"fmt"
	"strings"
)

// Describe renders spec as instructions for the agent that must produce the
// result. Choice options are numbered so the agent can answer with an index.
func Describe(spec Spec) string {
	var b strings.Builder
	describe(&b, spec, 0)
	return strings.TrimRight(b.String(), "\n")
}

func describe(b *strings.Builder, spec Spec, indent int) {
	pad := strings.Repeat("  ", indent)

	switch s := spec.(type) {
	case None:
		fmt.Fprintf(b, "%sNo result is required. Any output you give is ignored.\n", pad)
	case Scalar:
		fmt.Fprintf(b, "%sRespond with a single %s%s.\n", pad, s.Kind, scalarHint(s.Kind))
	case Choice:
		fmt.Fprintf(b, "%sRespond with the number of exactly one option:\n", pad)
		writeOptions(b, s.Options, pad)
	case ChoiceList:
		fmt.Fprintf(b, "%sRespond with a JSON list of one or more distinct option numbers, in order of preference:\n", pad)
		writeOptions(b, s.Options, pad)
	case Sequence:
		fmt.Fprintf(b, "%sRespond with a JSON list. Each element:\n", pad)
		describe(b, s.Elem, indent+1)
	case Structured:
		fmt.Fprintf(b, "%sRespond with a JSON object with these fields:\n", pad)
		for _, f := range s.Fields {
			fmt.Fprintf(b, "%s  - %s (%s%s)%s\n", pad, f.Name, Unwrap(f.Type), requiredLabel(f.Required), lengthLabel(f))
			if hint := hintOf(f.Type); hint != "" {
				fmt.Fprintf(b, "%s    %s\n", pad, hint)
			}
			switch inner := Unwrap(f.Type).(type) {
			case Structured, Sequence:
				describe(b, inner, indent+2)
			}
		}
	case Annotated:
		describe(b, s.Base, indent)
		if s.Hint != "" {
			fmt.Fprintf(b, "%sNote: %s\n", pad, s.Hint)
		}
	default:
		panic(fmt.Sprintf("resultspec: unhandled variant %T", spec))
	}
}

func writeOptions(b *strings.Builder, options []any, pad string) {
	for i, opt := range options {
		fmt.Fprintf(b, "%s  %d: %v\n", pad, i, opt)
	}
}

func scalarHint(k Kind) string {
	switch k {
	case Integer:
		return " (digits only, no decimal point)"
	case Boolean:
		return " (true or false)"
	default:
		return ""
	}
}

func requiredLabel(required bool) string {
	if required {
		return ", required"
	}
	return ", optional"
}

func lengthLabel(f Field) string {
	switch {
	case f.MinLen > 0 && f.MaxLen > 0:
		return fmt.Sprintf(" length %d-%d", f.MinLen, f.MaxLen)
	case f.MinLen > 0:
		return fmt.Sprintf(" length >= %d", f.MinLen)
	case f.MaxLen > 0:
		return fmt.Sprintf(" length <= %d", f.MaxLen)
	}
	return ""
}

func hintOf(spec Spec) string {
	var hints []string
	for {
		a, ok := spec.(Annotated)
		if !ok {
			break
		}
		if a.Hint != "" {
			hints = append(hints, a.Hint)
		}
		spec = a.Base
	}
	return strings.Join(hints, " ")
}
