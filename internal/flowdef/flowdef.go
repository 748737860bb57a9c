// Package flowdef loads flows from YAML documents.
package flowdef

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aristath/taskflow/internal/agent"
	"github.com/aristath/taskflow/internal/resultspec"
	"github.com/aristath/taskflow/internal/scheduler"
	"github.com/aristath/taskflow/internal/validate"
)

// Document is a flow file.
type Document struct {
	Name          string              `yaml:"name" validate:"required"`
	Instructions  string              `yaml:"instructions"`
	Agents        map[string]AgentDef `yaml:"agents"`
	DefaultAgents []string            `yaml:"default_agents"`
	Tasks         []TaskDef           `yaml:"tasks" validate:"required,min=1,dive"`
}

// AgentDef declares an agent inline, adding to or replacing a configured one.
type AgentDef struct {
	Name         string   `yaml:"name"`
	Instructions string   `yaml:"instructions"`
	Provider     string   `yaml:"provider"`
	Model        string   `yaml:"model"`
	Tools        []string `yaml:"tools"`
	UserAccess   bool     `yaml:"user_access"`
}

// TaskDef declares one task.
type TaskDef struct {
	ID           string                  `yaml:"id" validate:"required"`
	Name         string                  `yaml:"name"`
	Objective    string                  `yaml:"objective" validate:"required_without=AutoComplete"`
	Instructions string                  `yaml:"instructions"`
	Context      map[string]ContextValue `yaml:"context"`
	Result       resultspec.Decl         `yaml:"result"`
	Validators   []ValidatorDef          `yaml:"validators"`
	Agents       []string                `yaml:"agents"`
	Policy       PolicyDef               `yaml:"policy"`
	Interactive  bool                    `yaml:"interactive"`
	Retries      *int                    `yaml:"retries" validate:"omitempty,gte=0"`
	DependsOn    []string                `yaml:"depends_on"`
	Priority     int                     `yaml:"priority"`
	AutoComplete bool                    `yaml:"auto_complete"`
}

// ContextValue is a literal value or, written as {result_of: <task>}, a
// reference to another task's result.
type ContextValue struct {
	Value    any
	ResultOf string
}

// UnmarshalYAML recognises the single-key result_of mapping.
func (c *ContextValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode && len(node.Content) == 2 && node.Content[0].Value == "result_of" {
		c.ResultOf = node.Content[1].Value
		if c.ResultOf == "" {
			return fmt.Errorf("line %d: result_of needs a task ID", node.Line)
		}
		return nil
	}
	return node.Decode(&c.Value)
}

// ValidatorDef names a registered validator with its arguments. It is written
// as a bare name (`email`), a single-key mapping (`range: {min: 1}`), or an
// inline script (`lua: "function validate(v) ... end"`).
type ValidatorDef struct {
	Name string
	Args validate.Args
}

// UnmarshalYAML accepts the bare and mapping forms.
func (v *ValidatorDef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		v.Name = node.Value
		return nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: validator must have exactly one name", node.Line)
		}
		v.Name = node.Content[0].Value
		args := node.Content[1]
		switch {
		case args.Kind == yaml.ScalarNode && args.Tag == "!!null":
			return nil
		case args.Kind == yaml.ScalarNode && v.Name == "lua":
			v.Args = validate.Args{"script": args.Value}
			return nil
		default:
			return args.Decode(&v.Args)
		}
	default:
		return fmt.Errorf("line %d: validator must be a name or a mapping", node.Line)
	}
}

// PolicyDef selects the turn policy: a bare kind or {kind, agent}.
type PolicyDef struct {
	Kind  string `yaml:"kind"`
	Agent string `yaml:"agent"`
}

// UnmarshalYAML accepts the bare kind form.
func (p *PolicyDef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Kind = node.Value
		return nil
	}
	type plain PolicyDef
	return node.Decode((*plain)(p))
}

// Parse decodes and checks a flow document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing flow: %w", err)
	}
	if err := validator.New().Struct(&doc); err != nil {
		return nil, fmt.Errorf("invalid flow: %w", err)
	}
	return &doc, nil
}

// Load reads and parses a flow file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Options supply what a document refers to by name.
type Options struct {
	// Agents are the configured agents; inline definitions take precedence.
	Agents map[string]*agent.Agent
	// Registry builds named validators; defaults to validate.NewRegistry().
	Registry *validate.Registry
	// FlowID overrides the generated flow ID.
	FlowID string
}

// Build turns the document into a validated flow.
func (d *Document) Build(opts Options) (*scheduler.Flow, error) {
	registry := opts.Registry
	if registry == nil {
		registry = validate.NewRegistry()
	}

	agents := make(map[string]*agent.Agent, len(opts.Agents)+len(d.Agents))
	for id, a := range opts.Agents {
		agents[id] = a
	}
	for id, def := range d.Agents {
		agents[id] = &agent.Agent{
			ID:           id,
			Name:         def.Name,
			Instructions: def.Instructions,
			Provider:     def.Provider,
			Model:        def.Model,
			Tools:        def.Tools,
			UserAccess:   def.UserAccess,
		}
	}
	lookup := func(ids []string) ([]*agent.Agent, error) {
		out := make([]*agent.Agent, 0, len(ids))
		for _, id := range ids {
			a, ok := agents[id]
			if !ok {
				return nil, fmt.Errorf("unknown agent %q", id)
			}
			out = append(out, a)
		}
		return out, nil
	}

	defaults, err := lookup(d.DefaultAgents)
	if err != nil {
		return nil, fmt.Errorf("default_agents: %w", err)
	}
	flowOpts := []scheduler.FlowOption{
		scheduler.WithFlowInstructions(d.Instructions),
		scheduler.WithFlowAgents(defaults...),
	}
	if opts.FlowID != "" {
		flowOpts = append(flowOpts, scheduler.WithFlowID(opts.FlowID))
	}
	f := scheduler.NewFlow(d.Name, flowOpts...)

	for _, td := range d.Tasks {
		task, err := td.build(registry, lookup)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", td.ID, err)
		}
		if err := f.AddTask(task); err != nil {
			return nil, err
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (td TaskDef) build(registry *validate.Registry, lookup func([]string) ([]*agent.Agent, error)) (*scheduler.Task, error) {
	spec, err := td.Result.Build()
	if err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}

	opts := []scheduler.TaskOption{
		scheduler.WithID(td.ID),
		scheduler.WithName(td.Name),
		scheduler.WithInstructions(td.Instructions),
		scheduler.WithInteractive(td.Interactive),
		scheduler.WithPriority(td.Priority),
		scheduler.WithDependencies(td.DependsOn...),
	}
	if td.Retries != nil {
		opts = append(opts, scheduler.WithRetryBudget(*td.Retries))
	}
	if td.AutoComplete {
		opts = append(opts, scheduler.WithAutoComplete())
	}

	for key, cv := range td.Context {
		if cv.ResultOf != "" {
			opts = append(opts, scheduler.WithContext(key, scheduler.ResultOf(cv.ResultOf)))
		} else {
			opts = append(opts, scheduler.WithContext(key, cv.Value))
		}
	}

	for i, vd := range td.Validators {
		v, err := registry.Build(vd.Name, vd.Args)
		if err != nil {
			return nil, fmt.Errorf("validator %d: %w", i+1, err)
		}
		opts = append(opts, scheduler.WithValidators(v))
	}

	assigned, err := lookup(td.Agents)
	if err != nil {
		return nil, err
	}
	opts = append(opts, scheduler.WithAgents(assigned...))

	kind, err := scheduler.ParsePolicyKind(td.Policy.Kind)
	if err != nil {
		return nil, err
	}
	opts = append(opts, scheduler.WithPolicy(scheduler.TurnPolicy{Kind: kind, Agent: td.Policy.Agent}))

	return scheduler.NewTask(td.Objective, spec, opts...), nil
}
