package validate

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Args are the declarative arguments of a registered validator, usually
// decoded from a flow file.
type Args map[string]any

// Factory builds a validator from its arguments.
type Factory func(args Args) (Validator, error)

// Registry maps validator names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry preloaded with the standard validators.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("range", func(a Args) (Validator, error) {
		min, err := a.number("min", math.Inf(-1))
		if err != nil {
			return Validator{}, err
		}
		max, err := a.number("max", math.Inf(1))
		if err != nil {
			return Validator{}, err
		}
		if min > max {
			return Validator{}, fmt.Errorf("range: min %g is greater than max %g", min, max)
		}
		return Range(min, max), nil
	})
	r.Register("length", func(a Args) (Validator, error) {
		min, err := a.integer("min", 0)
		if err != nil {
			return Validator{}, err
		}
		max, err := a.integer("max", 0)
		if err != nil {
			return Validator{}, err
		}
		return Length(min, max), nil
	})
	r.Register("required_keys", func(a Args) (Validator, error) {
		keys, err := a.stringList("keys")
		if err != nil {
			return Validator{}, err
		}
		return RequiredKeys(keys...), nil
	})
	r.Register("url", func(Args) (Validator, error) { return URL(), nil })
	r.Register("email", func(Args) (Validator, error) { return Email(), nil })
	r.Register("pattern", func(a Args) (Validator, error) {
		expr, ok := a["regex"].(string)
		if !ok {
			return Validator{}, fmt.Errorf("pattern: regex must be a string")
		}
		return PatternE(expr)
	})
	r.Register("one_of", func(a Args) (Validator, error) {
		values, ok := a["values"].([]any)
		if !ok || len(values) == 0 {
			return Validator{}, fmt.Errorf("one_of: values must be a non-empty list")
		}
		return OneOf(values...), nil
	})
	r.Register("trim", func(Args) (Validator, error) { return TrimSpace(), nil })
	r.Register("lowercase", func(Args) (Validator, error) { return Lowercase(), nil })
	r.Register("lua", func(a Args) (Validator, error) {
		script, ok := a["script"].(string)
		if !ok || script == "" {
			return Validator{}, fmt.Errorf("lua: script must be a non-empty string")
		}
		name, _ := a["name"].(string)
		if name == "" {
			name = "lua"
		}
		return Lua(name, script)
	})
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Build instantiates the named validator.
func (r *Registry) Build(name string, args Args) (Validator, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return Validator{}, fmt.Errorf("unknown validator %q", name)
	}
	v, err := f(args)
	if err != nil {
		return Validator{}, fmt.Errorf("build validator %q: %w", name, err)
	}
	return v, nil
}

// Names lists registered validators in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a Args) number(key string, def float64) (float64, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	return 0, fmt.Errorf("%s must be a number, got %T", key, v)
}

func (a Args) integer(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%s must be an integer, got %v", key, v)
}

func (a Args) stringList(key string) ([]string, error) {
	raw, ok := a[key].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%s must be a non-empty list", key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s entries must be strings, got %T", key, item)
		}
		out = append(out, s)
	}
	return out, nil
}
