// Package agent implements the role adapters invoked by the workflow
// driver. Each adapter reads its own conversation from the message log,
// calls its model, validates the output and writes session state.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/llm"
	"github.com/rogers-f/deliberate/internal/msglog"
	"github.com/rogers-f/deliberate/internal/prompts"
	"github.com/rogers-f/deliberate/internal/review"
	"github.com/rogers-f/deliberate/internal/tools"
	"github.com/rogers-f/deliberate/internal/workflow"
)

// Settings are the per-agent model parameters.
type Settings struct {
	Client      llm.Client
	Temperature *float64
	MaxTokens   int
	// SystemPrompt replaces the catalog prompt when set.
	SystemPrompt string
}

// base holds what every adapter needs.
type base struct {
	id       domain.AgentID
	settings Settings
	catalog  *prompts.Catalog
	logger   *slog.Logger
}

func newBase(id domain.AgentID, st Settings, catalog *prompts.Catalog, logger *slog.Logger) base {
	if catalog == nil {
		catalog = prompts.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return base{id: id, settings: st, catalog: catalog, logger: logger.With("agent", string(id))}
}

func (b base) system(step domain.Step) string {
	if b.settings.SystemPrompt != "" {
		return b.settings.SystemPrompt
	}
	return b.catalog.SystemAt(b.id, step)
}

func (b base) request(s *domain.SessionState, msgs []domain.ChatMessage) llm.Request {
	return llm.Request{
		Agent:       b.id,
		Session:     s.ID,
		System:      b.system(s.CurrentStep),
		Messages:    msgs,
		Temperature: b.settings.Temperature,
		MaxTokens:   b.settings.MaxTokens,
		JSON:        true,
	}
}

// complete makes one tool-less call and validates the reply against schema.
func (b base) complete(ctx context.Context, s *domain.SessionState, msgs []domain.ChatMessage, schema review.Schema) (review.Output, error) {
	resp, err := b.settings.Client.Complete(ctx, b.request(s, msgs))
	if err != nil {
		return nil, err
	}
	return schema.Parse(resp.Content)
}

// respond appends this agent's response to the orchestrator.
func (b base) respond(log *msglog.Log, out review.Output, stepID *int) error {
	body, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return log.Append(domain.Message{
		Sender:   b.id,
		Receiver: domain.AgentOrchestrator,
		Kind:     domain.KindResponse,
		Body:     string(body),
		StepID:   stepID,
	})
}

// chatFrom maps a log conversation onto chat turns: instructions are user
// turns and responses are assistant turns.
func chatFrom(msgs []domain.Message) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		role := domain.ChatUser
		if m.Kind == domain.KindResponse {
			role = domain.ChatAssistant
		}
		out = append(out, domain.ChatMessage{Role: role, Content: m.Body})
	}
	return out
}

func latestInstruction(msgs []domain.Message) (domain.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind == domain.KindInstruction {
			return msgs[i], true
		}
	}
	return domain.Message{}, false
}

func noInstruction(id domain.AgentID) error {
	return domain.NewEngineError(domain.ErrNoInstruction.Code, string(id)+" has no pending instruction")
}

// TeamConfig wires a full set of adapters.
type TeamConfig struct {
	Planner    Settings
	Researcher Settings
	Expert     Settings
	Critic     Settings
	Finalizer  Settings

	Catalog *prompts.Catalog
	Tools   *tools.Registry
	// MaxToolIterations bounds the researcher and expert tool loops.
	MaxToolIterations int
	Logger            *slog.Logger
}

// NewTeam builds the agent map the driver routes to.
func NewTeam(cfg TeamConfig) map[domain.AgentID]workflow.Agent {
	loop := func(names []string) *ToolLoop {
		if cfg.Tools == nil {
			return nil
		}
		return &ToolLoop{Tools: cfg.Tools, Names: cfg.Tools.Available(names), MaxIterations: cfg.MaxToolIterations}
	}
	return map[domain.AgentID]workflow.Agent{
		domain.AgentPlanner:    NewPlanner(cfg.Planner, cfg.Catalog, cfg.Logger),
		domain.AgentResearcher: NewResearcher(cfg.Researcher, loop(tools.ResearcherTools), cfg.Catalog, cfg.Logger),
		domain.AgentExpert:     NewExpert(cfg.Expert, loop(tools.ExpertTools), cfg.Catalog, cfg.Logger),
		domain.AgentCritic:     NewCritic(cfg.Critic, cfg.Catalog, cfg.Logger),
		domain.AgentFinalizer:  NewFinalizer(cfg.Finalizer, cfg.Catalog, cfg.Logger),
	}
}
