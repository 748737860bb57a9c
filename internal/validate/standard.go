package validate

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	shapeOnce sync.Once
	shape     *validator.Validate
)

func shapeValidator() *validator.Validate {
	shapeOnce.Do(func() {
		shape = validator.New()
	})
	return shape
}

// Range accepts numbers within [min, max].
func Range(min, max float64) Validator {
	return New(fmt.Sprintf("range(%g,%g)", min, max), func(value any) (any, error) {
		n, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %T", value)
		}
		if n < min || n > max {
			return nil, fmt.Errorf("%v is outside the range [%g, %g]", value, min, max)
		}
		return value, nil
	})
}

// Length bounds the length of strings (in characters), lists and objects.
// A max of 0 means no upper bound.
func Length(min, max int) Validator {
	return New(fmt.Sprintf("length(%d,%d)", min, max), func(value any) (any, error) {
		n, ok := lengthOf(value)
		if !ok {
			return nil, fmt.Errorf("length is undefined for %T", value)
		}
		if n < min {
			return nil, fmt.Errorf("length %d is below the minimum %d", n, min)
		}
		if max > 0 && n > max {
			return nil, fmt.Errorf("length %d exceeds the maximum %d", n, max)
		}
		return value, nil
	})
}

// RequiredKeys requires an object with non-null values for every key.
func RequiredKeys(keys ...string) Validator {
	return New("required_keys("+strings.Join(keys, ",")+")", func(value any) (any, error) {
		record, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected an object, got %T", value)
		}
		var missing []string
		for _, k := range keys {
			if v, present := record[k]; !present || v == nil {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("missing keys: %s", strings.Join(missing, ", "))
		}
		return value, nil
	})
}

// URL requires an absolute URL string.
func URL() Validator {
	return shapeCheck("url", "url", "a URL")
}

// Email requires an e-mail address string.
func Email() Validator {
	return shapeCheck("email", "email", "an e-mail address")
}

func shapeCheck(name, tag, what string) Validator {
	return New(name, func(value any) (any, error) {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", value)
		}
		if err := shapeValidator().Var(s, "required,"+tag); err != nil {
			return nil, fmt.Errorf("%q is not %s", s, what)
		}
		return s, nil
	})
}

// Pattern requires a string matching expr. It panics if expr does not compile;
// use PatternE for untrusted input.
func Pattern(expr string) Validator {
	v, err := PatternE(expr)
	if err != nil {
		panic(err)
	}
	return v
}

// PatternE is Pattern returning compile errors.
func PatternE(expr string) (Validator, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Validator{}, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	return New("pattern("+expr+")", func(value any) (any, error) {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", value)
		}
		if !re.MatchString(s) {
			return nil, fmt.Errorf("%q does not match %s", s, expr)
		}
		return s, nil
	}), nil
}

// OneOf requires value to equal one of allowed.
func OneOf(allowed ...any) Validator {
	return New(fmt.Sprintf("one_of%v", allowed), func(value any) (any, error) {
		for _, a := range allowed {
			if equalValues(a, value) {
				return value, nil
			}
		}
		return nil, fmt.Errorf("%v is not one of %v", value, allowed)
	})
}

// TrimSpace normalizes strings by trimming surrounding whitespace.
func TrimSpace() Validator {
	return New("trim", func(value any) (any, error) {
		if s, ok := value.(string); ok {
			return strings.TrimSpace(s), nil
		}
		return value, nil
	})
}

// Lowercase normalizes strings to lower case.
func Lowercase() Validator {
	return New("lowercase", func(value any) (any, error) {
		if s, ok := value.(string); ok {
			return strings.ToLower(s), nil
		}
		return value, nil
	})
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func lengthOf(v any) (int, bool) {
	switch t := v.(type) {
	case string:
		return utf8.RuneCountInString(t), true
	case []any:
		return len(t), true
	case map[string]any:
		return len(t), true
	default:
		return 0, false
	}
}

// equalValues compares numbers by value so that 3 and 3.0 match.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}
