package resultspec

import (
	"fmt"
	"strings"
)

// Issue is a single coercion problem located by a path such as
// "$.authors[2].name".
type Issue struct {
	Path    string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// CoercionError reports why raw output could not be mapped onto a Spec.
// Structured coercion collects every offending field before failing.
type CoercionError struct {
	Issues []Issue
}

func (e *CoercionError) Error() string {
	if len(e.Issues) == 1 {
		return "coercion failed: " + e.Issues[0].String()
	}
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.String())
	}
	return fmt.Sprintf("coercion failed (%d issues): %s", len(e.Issues), strings.Join(msgs, "; "))
}

// Paths returns the offending paths in report order.
func (e *CoercionError) Paths() []string {
	paths := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		paths[i] = issue.Path
	}
	return paths
}

func (e *CoercionError) add(path, format string, args ...any) {
	e.Issues = append(e.Issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (e *CoercionError) hasIssues() bool {
	return len(e.Issues) > 0
}

func failf(path, format string, args ...any) *CoercionError {
	e := &CoercionError{}
	e.add(path, format, args...)
	return e
}
