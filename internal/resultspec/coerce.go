package resultspec

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	truthy = map[string]bool{"true": true, "yes": true, "y": true, "1": true, "on": true}
	falsy  = map[string]bool{"false": true, "no": true, "n": true, "0": true, "off": true}
)

// Coerce converts raw agent output into a value conforming to spec.
//
// raw is usually the agent's text, but already-decoded values (lists, maps,
// numbers) are accepted too. Result types are: string, int, float64, bool,
// the selected option values, []any, map[string]any, or NoResult.
func Coerce(raw any, spec Spec) (any, error) {
	v, err := coerceAt(raw, spec, "$")
	if err != nil {
		return nil, err
	}
	return v, nil
}

func coerceAt(raw any, spec Spec, path string) (any, *CoercionError) {
	switch s := spec.(type) {
	case None:
		return NoResult{}, nil
	case Scalar:
		return coerceScalar(raw, s.Kind, path)
	case Choice:
		idx, err := parseIndex(raw, len(s.Options), path)
		if err != nil {
			return nil, err
		}
		return s.Options[idx], nil
	case ChoiceList:
		return coerceChoiceList(raw, s.Options, path)
	case Sequence:
		return coerceSequence(raw, s.Elem, path)
	case Structured:
		return coerceStructured(raw, s.Fields, path)
	case Annotated:
		return coerceAt(raw, s.Base, path)
	default:
		panic(fmt.Sprintf("resultspec: unhandled variant %T", spec))
	}
}

func coerceScalar(raw any, kind Kind, path string) (any, *CoercionError) {
	if raw == nil {
		return nil, failf(path, "expected %s, got null", kind)
	}

	switch kind {
	case String:
		switch v := raw.(type) {
		case string:
			return strings.TrimSpace(v), nil
		case bool, int, int64, uint64, float64, json.Number:
			return fmt.Sprint(v), nil
		}
	case Integer:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case uint64:
			if v <= math.MaxInt64 {
				return int(v), nil
			}
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, failf(path, "%q is not an integer", v)
			}
			return n, nil
		case json.Number:
			n, err := strconv.Atoi(v.String())
			if err != nil {
				return nil, failf(path, "%s is not an integer", v)
			}
			return n, nil
		case float64:
			return nil, failf(path, "%v is a float, expected an integer", v)
		}
	case Float:
		switch v := raw.(type) {
		case float64:
			return finite(v, path)
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case uint64:
			return float64(v), nil
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, failf(path, "%s is not a number", v)
			}
			return finite(f, path)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, failf(path, "%q is not a number", v)
			}
			return finite(f, path)
		}
	case Boolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int:
			if v == 0 || v == 1 {
				return v == 1, nil
			}
		case string:
			token := strings.ToLower(strings.TrimSpace(v))
			if truthy[token] {
				return true, nil
			}
			if falsy[token] {
				return false, nil
			}
			return nil, failf(path, "%q is not a boolean (use true or false)", v)
		}
	default:
		panic(fmt.Sprintf("resultspec: unhandled kind %d", int(kind)))
	}
	return nil, failf(path, "expected %s, got %s", kind, typeName(raw))
}

func finite(f float64, path string) (any, *CoercionError) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, failf(path, "%v is not a finite number", f)
	}
	return f, nil
}

// parseIndex accepts a single option index such as `2`, `"2"` or `[2]`.
func parseIndex(raw any, n int, path string) (int, *CoercionError) {
	var idx int
	switch v := raw.(type) {
	case int:
		idx = v
	case int64:
		idx = int(v)
	case json.Number:
		i, err := strconv.Atoi(v.String())
		if err != nil {
			return 0, failf(path, "%s is not an option index", v)
		}
		idx = i
	case string:
		token := strings.TrimSpace(v)
		token = strings.Trim(token, "`\"'")
		if strings.HasPrefix(token, "[") && strings.HasSuffix(token, "]") {
			token = strings.TrimSpace(token[1 : len(token)-1])
		}
		if token == "" || strings.IndexFunc(token, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			return 0, failf(path, "%q is not an option index; answer with a single number", v)
		}
		i, err := strconv.Atoi(token)
		if err != nil {
			return 0, failf(path, "%q is not an option index", v)
		}
		idx = i
	default:
		return 0, failf(path, "expected an option index, got %s", typeName(raw))
	}

	if idx < 0 || idx >= n {
		return 0, failf(path, "index %d is out of range [0, %d]", idx, n-1)
	}
	return idx, nil
}

func coerceChoiceList(raw any, options []any, path string) (any, *CoercionError) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case string:
		decoded, err := decodeStructure(v)
		if err != nil {
			return nil, failf(path, "%v", err)
		}
		switch d := decoded.(type) {
		case []any:
			items = d
		case string:
			for _, part := range strings.Split(d, ",") {
				items = append(items, strings.TrimSpace(part))
			}
		default:
			items = []any{d}
		}
	default:
		items = []any{raw}
	}

	if len(items) == 0 {
		return nil, failf(path, "selection is empty; choose at least one option")
	}

	errs := &CoercionError{}
	seen := make(map[int]bool, len(items))
	selected := make([]any, 0, len(items))
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		idx, err := parseIndex(item, len(options), itemPath)
		if err != nil {
			errs.Issues = append(errs.Issues, err.Issues...)
			continue
		}
		if seen[idx] {
			errs.add(itemPath, "index %d selected more than once", idx)
			continue
		}
		seen[idx] = true
		selected = append(selected, options[idx])
	}
	if errs.hasIssues() {
		return nil, errs
	}
	return selected, nil
}

func coerceSequence(raw any, elem Spec, path string) (any, *CoercionError) {
	items, err := asList(raw, path)
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(items))
	for i, item := range items {
		v, err := coerceAt(item, elem, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func coerceStructured(raw any, fields []Field, path string) (any, *CoercionError) {
	record, err := asRecord(raw, path)
	if err != nil {
		return nil, err
	}

	errs := &CoercionError{}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		fieldPath := path + "." + f.Name
		v, present := record[f.Name]
		if !present || v == nil {
			if f.Required {
				errs.add(fieldPath, "required field is missing")
			}
			continue
		}

		coerced, ferr := coerceAt(v, f.Type, fieldPath)
		if ferr != nil {
			errs.Issues = append(errs.Issues, ferr.Issues...)
			continue
		}
		if msg := checkLength(coerced, f.MinLen, f.MaxLen); msg != "" {
			errs.add(fieldPath, "%s", msg)
			continue
		}
		out[f.Name] = coerced
	}

	if errs.hasIssues() {
		return nil, errs
	}
	return out, nil
}

func asList(raw any, path string) ([]any, *CoercionError) {
	if s, ok := raw.(string); ok {
		decoded, err := decodeStructure(s)
		if err != nil {
			return nil, failf(path, "%v", err)
		}
		raw = decoded
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, failf(path, "expected a list, got %s", typeName(raw))
	}
	return items, nil
}

func asRecord(raw any, path string) (map[string]any, *CoercionError) {
	if s, ok := raw.(string); ok {
		decoded, err := decodeStructure(s)
		if err != nil {
			return nil, failf(path, "%v", err)
		}
		raw = decoded
	}
	record, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, failf(path, "expected an object, got %s", typeName(raw))
	}
	return record, nil
}

func checkLength(v any, minLen, maxLen int) string {
	if minLen == 0 && maxLen == 0 {
		return ""
	}

	var n int
	var unit string
	switch t := v.(type) {
	case string:
		n, unit = utf8.RuneCountInString(t), "characters"
	case []any:
		n, unit = len(t), "items"
	default:
		return ""
	}

	if n < minLen {
		return fmt.Sprintf("has %d %s, need at least %d", n, unit, minLen)
	}
	if maxLen > 0 && n > maxLen {
		return fmt.Sprintf("has %d %s, allowed at most %d", n, unit, maxLen)
	}
	return ""
}
