package resultspec

import (
	"errors"
	"fmt"
)

// MaxDepth bounds how deeply specs may nest.
const MaxDepth = 32

// ErrInvalidSpec is wrapped by every error returned from Check.
var ErrInvalidSpec = errors.New("invalid result spec")

// Check verifies that spec is fully resolved and usable by Coerce.
func Check(spec Spec) error {
	return check(spec, "$", 0)
}

func check(spec Spec, path string, depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("%w: %s: nesting deeper than %d", ErrInvalidSpec, path, MaxDepth)
	}

	switch s := spec.(type) {
	case nil:
		return fmt.Errorf("%w: %s: missing spec", ErrInvalidSpec, path)
	case None:
		return nil
	case Scalar:
		if s.Kind < String || s.Kind > Boolean {
			return fmt.Errorf("%w: %s: unknown scalar kind %d", ErrInvalidSpec, path, int(s.Kind))
		}
		return nil
	case Choice:
		if len(s.Options) == 0 {
			return fmt.Errorf("%w: %s: choice has no options", ErrInvalidSpec, path)
		}
		return nil
	case ChoiceList:
		if len(s.Options) == 0 {
			return fmt.Errorf("%w: %s: choice list has no options", ErrInvalidSpec, path)
		}
		return nil
	case Sequence:
		if IsNone(s.Elem) {
			return fmt.Errorf("%w: %s: sequence element cannot be none", ErrInvalidSpec, path)
		}
		return check(s.Elem, path+"[]", depth+1)
	case Structured:
		seen := make(map[string]bool, len(s.Fields))
		for i, f := range s.Fields {
			if f.Name == "" {
				return fmt.Errorf("%w: %s: field %d has no name", ErrInvalidSpec, path, i)
			}
			if seen[f.Name] {
				return fmt.Errorf("%w: %s: duplicate field %q", ErrInvalidSpec, path, f.Name)
			}
			seen[f.Name] = true

			fieldPath := path + "." + f.Name
			switch Unwrap(f.Type).(type) {
			case Scalar, Structured, Sequence:
			default:
				return fmt.Errorf("%w: %s: field type must be scalar, object or list, got %T", ErrInvalidSpec, fieldPath, f.Type)
			}
			if f.MinLen < 0 || f.MaxLen < 0 || (f.MaxLen > 0 && f.MinLen > f.MaxLen) {
				return fmt.Errorf("%w: %s: bad length bounds [%d, %d]", ErrInvalidSpec, fieldPath, f.MinLen, f.MaxLen)
			}
			if err := check(f.Type, fieldPath, depth+1); err != nil {
				return err
			}
		}
		return nil
	case Annotated:
		return check(s.Base, path, depth+1)
	default:
		return fmt.Errorf("%w: %s: unsupported variant %T", ErrInvalidSpec, path, spec)
	}
}
