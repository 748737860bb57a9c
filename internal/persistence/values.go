package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/aristath/taskflow/internal/resultspec"
)

// encodeValue stores a coerced result as JSON. Absent results become NULL.
func encodeValue(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if _, ok := v.(resultspec.NoResult); ok {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode value: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// decodeValue reads a stored result back. JSON is valid YAML, and the YAML
// decoder keeps whole numbers as int where encoding/json would not.
func decodeValue(s sql.NullString) (any, error) {
	if !s.Valid {
		return nil, nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return v, nil
}

func encodeSpec(spec resultspec.Spec) (string, error) {
	if spec == nil {
		spec = resultspec.None{}
	}
	b, err := yaml.Marshal(resultspec.DeclOf(spec))
	if err != nil {
		return "", fmt.Errorf("failed to encode result spec: %w", err)
	}
	return string(b), nil
}

func decodeSpec(s string) (resultspec.Decl, error) {
	var d resultspec.Decl
	if err := yaml.Unmarshal([]byte(s), &d); err != nil {
		return d, fmt.Errorf("failed to decode result spec: %w", err)
	}
	return d, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
