package main

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/rogers-f/deliberate/internal/agent"
	"github.com/rogers-f/deliberate/internal/config"
	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/llm"
	"github.com/rogers-f/deliberate/internal/metrics"
	"github.com/rogers-f/deliberate/internal/prompts"
	"github.com/rogers-f/deliberate/internal/store"
	"github.com/rogers-f/deliberate/internal/tools"
	"github.com/rogers-f/deliberate/internal/workflow"
)

// app is the wired orchestrator.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	recorder *store.Recorder
	metrics  *metrics.Recorder
	driver   *workflow.Driver
}

func mustBind(key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", f.Name, err))
	}
}

// newLogger builds the slog logger selected by cfg.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newApp(cfg *config.Config, logw io.Writer) (*app, error) {
	logger := newLogger(logw, cfg.Log)
	slog.SetDefault(logger)

	catalog := prompts.Default()
	if cfg.PromptsPath != "" {
		var err error
		if catalog, err = prompts.Load(cfg.PromptsPath); err != nil {
			return nil, fmt.Errorf("load prompts: %w", err)
		}
	}

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		recorder: store.NewRecorder(db, logger),
		metrics:  metrics.New(),
	}

	registry, err := tools.NewDefault(tools.Options{
		TavilyAPIKey: cfg.Tools.TavilyAPIKey,
		FilesRoot:    cfg.Tools.FilesRoot,
		HTTPTimeout:  cfg.Tools.HTTPTimeout,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("register tools: %w", err)
	}
	registry.Metrics = a.metrics

	team := agent.TeamConfig{
		Catalog:           catalog,
		Tools:             registry,
		MaxToolIterations: cfg.Tools.MaxIterations,
		Logger:            logger,
	}
	for id, dst := range map[domain.AgentID]*agent.Settings{
		domain.AgentPlanner:    &team.Planner,
		domain.AgentResearcher: &team.Researcher,
		domain.AgentExpert:     &team.Expert,
		domain.AgentCritic:     &team.Critic,
		domain.AgentFinalizer:  &team.Finalizer,
	} {
		st, err := a.settings(id)
		if err != nil {
			db.Close()
			return nil, err
		}
		*dst = st
	}

	ctrl := workflow.NewController(workflow.NewComposerRegistry(catalog), logger)
	ctrl.Recorder = a.recorder
	ctrl.Metrics = a.metrics

	d := workflow.NewDriver(ctrl, agent.NewTeam(team), cfg.RetryLimits(), logger)
	d.MaxSteps = cfg.MaxSteps
	d.Timeout = cfg.RunTimeout
	d.Recorder = a.recorder
	d.Metrics = a.metrics
	a.driver = d
	return a, nil
}

// settings builds one agent's model client: provider adapter, then rate
// limiting, then usage metering.
func (a *app) settings(id domain.AgentID) (agent.Settings, error) {
	ac := a.cfg.Agent(id)
	client, err := llm.New(llm.Config{
		Provider: ac.Provider,
		Model:    ac.Model,
		APIKey:   ac.APIKey,
		BaseURL:  ac.BaseURL,
		Timeout:  a.cfg.LLMTimeout,
	})
	if err != nil {
		return agent.Settings{}, fmt.Errorf("%s model client: %w", id, err)
	}
	client = llm.NewThrottled(client, a.cfg.RateLimit.RequestsPerSecond, a.cfg.RateLimit.Burst, a.metrics)
	client = llm.NewMetered(client, a.metrics, a.recorder, a.logger)
	a.logger.Debug("agent configured", "agent", id, "provider", ac.Provider, "model", ac.Model)
	return agent.Settings{
		Client:       client,
		Temperature:  ac.Temperature,
		MaxTokens:    ac.MaxTokens,
		SystemPrompt: ac.SystemPrompt,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
