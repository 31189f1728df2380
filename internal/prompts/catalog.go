// Package prompts loads the system prompts and instruction templates that
// the orchestrator and agents send to the model.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/rogers-f/deliberate/internal/domain"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Instruction template keys.
const (
	PlannerInitial   = "planner_initial"
	PlannerRetry     = "planner_retry"
	CriticPlanner    = "critic_planner"
	ResearcherStep   = "researcher_step"
	ResearcherRetry  = "researcher_retry"
	CriticResearcher = "critic_researcher"
	ExpertInitial    = "expert_initial"
	ExpertRetry      = "expert_retry"
	CriticExpert     = "critic_expert"
	Finalizer        = "finalizer"
	FinalizerFailed  = "finalizer_failed"
)

var requiredInstructions = []string{
	PlannerInitial, PlannerRetry, CriticPlanner,
	ResearcherStep, ResearcherRetry, CriticResearcher,
	ExpertInitial, ExpertRetry, CriticExpert,
	Finalizer, FinalizerFailed,
}

var requiredSystem = []domain.AgentID{
	domain.AgentPlanner, domain.AgentResearcher, domain.AgentExpert,
	domain.AgentCritic, domain.AgentFinalizer,
}

// Steps whose system prompt may differ from their agent's.
var stepSystem = []domain.Step{
	domain.StepCriticPlanner, domain.StepCriticResearcher, domain.StepCriticExpert,
}

// Data is the template context for instruction rendering.
type Data struct {
	Question        string
	File            string
	Feedback        string
	Topic           string
	Result          string
	ResearchSteps   []string
	ExpertSteps     []string
	ResearchResults []string
	Answer          string
	Reasoning       string
}

type document struct {
	System       map[string]string `yaml:"system"`
	Instructions map[string]string `yaml:"instructions"`
}

// Catalog is an immutable, parsed prompt set.
type Catalog struct {
	system       map[domain.AgentID]string
	steps        map[domain.Step]string
	instructions map[string]*template.Template
}

var funcs = template.FuncMap{
	"list": formatList,
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, it)
	}
	return b.String()
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := parse(defaultsYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("prompts: embedded defaults invalid: %v", err))
	}
	return c
}

// Load reads a YAML catalog from path and layers it over the defaults, so a
// file only needs the entries it overrides. An empty path yields Default().
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrPromptsInvalid.Code, "read prompts", err)
	}
	return parse(defaultsYAML, data)
}

func parse(base, override []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(base, &doc); err != nil {
		return nil, domain.WrapEngineError(domain.ErrPromptsInvalid.Code, "parse defaults", err)
	}
	if override != nil {
		var over document
		if err := yaml.Unmarshal(override, &over); err != nil {
			return nil, domain.WrapEngineError(domain.ErrPromptsInvalid.Code, "parse prompts", err)
		}
		for k, v := range over.System {
			doc.System[k] = v
		}
		for k, v := range over.Instructions {
			doc.Instructions[k] = v
		}
	}

	var problems []string
	c := &Catalog{
		system:       make(map[domain.AgentID]string),
		steps:        make(map[domain.Step]string),
		instructions: make(map[string]*template.Template),
	}
	for _, id := range requiredSystem {
		s := strings.TrimSpace(doc.System[string(id)])
		if s == "" {
			problems = append(problems, "system."+string(id)+" is empty")
			continue
		}
		c.system[id] = s
	}
	for _, step := range stepSystem {
		if s := strings.TrimSpace(doc.System[string(step)]); s != "" {
			c.steps[step] = s
		}
	}
	for _, key := range requiredInstructions {
		src, ok := doc.Instructions[key]
		if !ok || strings.TrimSpace(src) == "" {
			problems = append(problems, "instructions."+key+" is empty")
			continue
		}
		tmpl, err := template.New(key).Funcs(funcs).Option("missingkey=error").Parse(src)
		if err != nil {
			problems = append(problems, fmt.Sprintf("instructions.%s: %v", key, err))
			continue
		}
		c.instructions[key] = tmpl
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, domain.NewEngineError(domain.ErrPromptsInvalid.Code, strings.Join(problems, "; "))
	}
	return c, nil
}

// System returns the system prompt for an agent.
func (c *Catalog) System(id domain.AgentID) string {
	return c.system[id]
}

// SystemAt returns the prompt for id acting at step, falling back to the
// agent's own prompt.
func (c *Catalog) SystemAt(id domain.AgentID, step domain.Step) string {
	if s, ok := c.steps[step]; ok {
		return s
	}
	return c.system[id]
}

// Render executes the named instruction template.
func (c *Catalog) Render(key string, data Data) (string, error) {
	tmpl, ok := c.instructions[key]
	if !ok {
		return "", domain.NewEngineError(domain.ErrPromptsInvalid.Code, "unknown instruction "+key)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", domain.WrapEngineError(domain.ErrPromptsInvalid.Code, "render "+key, err)
	}
	return b.String(), nil
}
