// Package validate runs coerced task results through ordered chains of
// checks and transforms.
package validate

import "fmt"

// Func checks value and returns it, possibly normalized.
type Func func(value any) (any, error)

// Validator is a named step in a chain.
type Validator struct {
	Name string
	Fn   Func
}

// New builds a Validator.
func New(name string, fn Func) Validator {
	return Validator{Name: name, Fn: fn}
}

// ValidationError reports the validator that rejected a value.
type ValidationError struct {
	Validator string
	Index     int
	Message   string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validator %q (step %d) rejected value: %s", e.Validator, e.Index+1, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Run applies chain to value left to right. The first failure stops the
// chain and is returned; validators after it are never called. The value
// returned by the last validator is the result.
func Run(value any, chain ...Validator) (any, error) {
	current := value
	for i, v := range chain {
		if v.Fn == nil {
			return nil, &ValidationError{Validator: v.Name, Index: i, Message: "validator has no function"}
		}
		out, err := v.Fn(current)
		if err != nil {
			return nil, &ValidationError{Validator: v.Name, Index: i, Message: err.Error(), Err: err}
		}
		current = out
	}
	return current, nil
}

// Chain composes validators into a single Validator.
func Chain(name string, chain ...Validator) Validator {
	steps := append([]Validator(nil), chain...)
	return Validator{Name: name, Fn: func(value any) (any, error) {
		return Run(value, steps...)
	}}
}
