package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/metrics"
)

// UsageSink persists per-call token usage.
type UsageSink interface {
	RecordUsage(ctx context.Context, u domain.Usage) error
}

// Metered records token usage and latency for every call.
type Metered struct {
	Client
	Metrics *metrics.Recorder
	Sink    UsageSink
	Logger  *slog.Logger
}

// NewMetered wraps inner. Any of m, sink, logger may be nil.
func NewMetered(inner Client, m *metrics.Recorder, sink UsageSink, logger *slog.Logger) *Metered {
	if logger == nil {
		logger = slog.Default()
	}
	return &Metered{Client: inner, Metrics: m, Sink: sink, Logger: logger}
}

// Complete delegates and records the outcome. Sink failures are logged and
// do not fail the call.
func (m *Metered) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := m.Client.Complete(ctx, req)
	elapsed := time.Since(start)

	var usage Usage
	if resp != nil {
		usage = resp.Usage
	}
	m.Metrics.ObserveLLM(m.Provider(), string(req.Agent), usage.InputTokens, usage.OutputTokens, err, elapsed)
	m.Logger.Debug("llm call",
		"provider", m.Provider(),
		"model", m.Model(),
		"agent", req.Agent,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"duration", elapsed,
		"error", err,
	)

	if err == nil && m.Sink != nil && req.Session != "" {
		rec := domain.Usage{
			SessionID:    req.Session,
			Agent:        req.Agent,
			Provider:     m.Provider(),
			Model:        m.Model(),
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
		}
		if serr := m.Sink.RecordUsage(ctx, rec); serr != nil {
			m.Logger.Warn("usage not recorded", "session", req.Session, "error", serr)
		}
	}
	return resp, err
}
