package resultspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// decodeStructure turns agent text into generic lists and maps. JSON is a
// YAML subset, so yaml.v3 handles both; encoding/json is only a fallback for
// JSON that YAML rejects (for example some escape sequences).
func decodeStructure(text string) (any, error) {
	text = stripFence(text)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("output is empty")
	}

	var out any
	yamlErr := yaml.Unmarshal([]byte(text), &out)
	if yamlErr == nil {
		return normalize(out), nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	if err := dec.Decode(&out); err == nil {
		return normalize(out), nil
	}
	return nil, fmt.Errorf("output is not valid JSON or YAML: %v", yamlErr)
}

// stripFence removes a surrounding Markdown code fence such as ```json.
func stripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	nl := strings.IndexByte(trimmed, '\n')
	if nl < 0 {
		return stripInlineTag(strings.TrimSpace(strings.Trim(trimmed, "`")))
	}
	body := trimmed[nl+1:]
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return body
}

// stripInlineTag drops the language tag of a one-line fence such as
// ```json {"a":1}```. The tag is only removed when a JSON document follows.
func stripInlineTag(body string) string {
	i := strings.IndexAny(body, " \t")
	if i <= 0 {
		return body
	}
	tag, rest := body[:i], strings.TrimSpace(body[i:])
	if !strings.HasPrefix(rest, "{") && !strings.HasPrefix(rest, "[") {
		return body
	}
	for _, r := range tag {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '+' {
			return body
		}
	}
	return rest
}

// normalize converts yaml's map[interface{}]interface{} into
// map[string]any so the rest of the engine sees one map type.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			t[k] = normalize(inner)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[fmt.Sprint(k)] = normalize(inner)
		}
		return m
	case []any:
		for i, inner := range t {
			t[i] = normalize(inner)
		}
		return t
	default:
		return v
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, uint64:
		return "integer"
	case json.Number:
		return "number"
	case float64:
		return "float"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
