package scheduler

import (
	"strings"
	"testing"

	"github.com/aristath/taskflow/internal/resultspec"
)

// TestDAGValidate tests DAG validation with various graph structures.
func TestDAGValidate(t *testing.T) {
	tests := []struct {
		name        string
		setup       func() *DAG
		wantErr     bool
		errContains string
		wantLen     int
	}{
		{
			name: "valid linear chain",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A"})
				dag.AddTask(&Task{ID: "B", DependsOn: []string{"A"}})
				dag.AddTask(&Task{ID: "C", DependsOn: []string{"B"}})
				return dag
			},
			wantLen: 3,
		},
		{
			name: "valid parallel tasks",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A"})
				dag.AddTask(&Task{ID: "B"})
				dag.AddTask(&Task{ID: "C", DependsOn: []string{"A", "B"}})
				return dag
			},
			wantLen: 3,
		},
		{
			name: "direct cycle",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A", DependsOn: []string{"B"}})
				dag.AddTask(&Task{ID: "B", DependsOn: []string{"A"}})
				return dag
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "transitive cycle",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A", DependsOn: []string{"B"}})
				dag.AddTask(&Task{ID: "B", DependsOn: []string{"C"}})
				dag.AddTask(&Task{ID: "C", DependsOn: []string{"A"}})
				return dag
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "self-loop",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A", DependsOn: []string{"A"}})
				return dag
			},
			wantErr:     true,
			errContains: "itself",
		},
		{
			name: "missing dependency",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A", DependsOn: []string{"nonexistent"}})
				return dag
			},
			wantErr:     true,
			errContains: "nonexistent",
		},
		{
			name: "context reference is a dependency",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A", Context: map[string]any{"input": ResultOf("B")}})
				dag.AddTask(&Task{ID: "B", Context: map[string]any{"input": ResultOf("A")}})
				return dag
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "disconnected components",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A"})
				dag.AddTask(&Task{ID: "B", DependsOn: []string{"A"}})
				dag.AddTask(&Task{ID: "C"})
				dag.AddTask(&Task{ID: "D", DependsOn: []string{"C"}})
				return dag
			},
			wantLen: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dag := tt.setup()
			order, err := dag.Validate()

			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Error message %q doesn't contain %q", err.Error(), tt.errContains)
				}
				return
			}
			if len(order) != tt.wantLen {
				t.Errorf("Expected %d tasks in order, got %d: %v", tt.wantLen, len(order), order)
			}

			pos := make(map[string]int, len(order))
			for i, id := range order {
				pos[id] = i
			}
			for _, task := range dag.Tasks() {
				for _, dep := range dag.Dependencies(task.ID) {
					if pos[dep] > pos[task.ID] {
						t.Errorf("dependency %s ordered after %s: %v", dep, task.ID, order)
					}
				}
			}
		})
	}
}

func TestDAGAddTask(t *testing.T) {
	dag := NewDAG()

	if err := dag.AddTask(&Task{ID: "A"}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if err := dag.AddTask(&Task{ID: "A"}); err == nil {
		t.Error("expected error when adding duplicate task ID")
	}
	if err := dag.AddTask(&Task{}); err == nil {
		t.Error("expected error for task without ID")
	}
	if err := dag.AddTask(&Task{ID: "done", State: StateSuccessful}); err == nil {
		t.Error("expected error for non-pending task")
	}
	if err := dag.AddTask(&Task{ID: "bad", Spec: resultspec.Choice{}}); err == nil {
		t.Error("expected error for choice without options")
	}

	got, ok := dag.Get("A")
	if !ok {
		t.Fatal("task A not found")
	}
	if !resultspec.IsNone(got.Spec) {
		t.Errorf("nil spec should default to none, got %v", got.Spec)
	}
}

func TestDAGAddTaskCopiesSpec(t *testing.T) {
	options := []any{"red", "green"}
	task := &Task{ID: "pick", Spec: resultspec.Choice{Options: options}}

	dag := NewDAG()
	if err := dag.AddTask(task); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	options[0] = "blue"
	task.Objective = "changed"

	got, _ := dag.Get("pick")
	if got.Spec.(resultspec.Choice).Options[0] != "red" {
		t.Errorf("caller mutation leaked into stored spec: %v", got.Spec)
	}
	if got.Objective != "" {
		t.Errorf("caller mutation leaked into stored task: %q", got.Objective)
	}
}

func TestDAGDependenciesDeduplicated(t *testing.T) {
	dag := NewDAG()
	dag.AddTask(&Task{ID: "A"})
	dag.AddTask(&Task{
		ID:        "B",
		DependsOn: []string{"A", "A"},
		Context:   map[string]any{"x": ResultOf("A"), "plain": 3},
	})

	deps := dag.Dependencies("B")
	if len(deps) != 1 || deps[0] != "A" {
		t.Errorf("expected [A], got %v", deps)
	}
}

func TestDAGReadyOrdering(t *testing.T) {
	build := func() *DAG {
		dag := NewDAG()
		dag.AddTask(&Task{ID: "late-root", DependsOn: []string{"early"}, Priority: 1})
		dag.AddTask(&Task{ID: "early", Priority: 0})
		dag.AddTask(&Task{ID: "urgent", Priority: 5})
		dag.AddTask(&Task{ID: "plain", Priority: 0})
		return dag
	}

	tests := []struct {
		tie  TieBreak
		want []string
	}{
		{TieCreation, []string{"early", "urgent", "plain"}},
		{TiePriority, []string{"urgent", "early", "plain"}},
	}

	for _, tt := range tests {
		t.Run(tt.tie.String(), func(t *testing.T) {
			dag := build()
			dag.mu.Lock()
			ready := dag.readyLocked(tt.tie)
			dag.mu.Unlock()

			var got []string
			for _, task := range ready {
				got = append(got, task.ID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("ready order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDAGPublishIsInsertOnly(t *testing.T) {
	dag := NewDAG()
	dag.AddTask(&Task{ID: "A"})

	dag.mu.Lock()
	dag.publishLocked("A", 1)
	dag.publishLocked("A", 2)
	dag.mu.Unlock()

	v, ok := dag.Result("A")
	if !ok || v != 1 {
		t.Errorf("Result(A) = %v, %v; want 1, true", v, ok)
	}
	if _, ok := dag.Result("missing"); ok {
		t.Error("unexpected result for missing task")
	}
}

func TestParseTieBreak(t *testing.T) {
	for _, tie := range []TieBreak{TieCreation, TiePriority, TieTopological} {
		got, err := ParseTieBreak(tie.String())
		if err != nil || got != tie {
			t.Errorf("ParseTieBreak(%q) = %v, %v", tie.String(), got, err)
		}
	}
	if _, err := ParseTieBreak("random"); err == nil {
		t.Error("expected error for unknown tie-break")
	}
}
