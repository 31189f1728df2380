package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rogers-f/deliberate/internal/config"
	"github.com/rogers-f/deliberate/internal/domain"
)

func TestQuestionFrom(t *testing.T) {
	q, err := questionFrom([]string{"What", "is", "2", "+", "2?"}, strings.NewReader("ignored"), true)
	require.NoError(t, err)
	assert.Equal(t, "What is 2 + 2?", q)

	q, err = questionFrom(nil, strings.NewReader("  piped question\n"), false)
	require.NoError(t, err)
	assert.Equal(t, "piped question", q)

	_, err = questionFrom(nil, strings.NewReader(""), true)
	assert.Error(t, err)

	_, err = questionFrom(nil, strings.NewReader("   "), false)
	assert.Error(t, err)
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, config.LogConfig{Level: "info", Format: "json"}).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	newLogger(&buf, config.LogConfig{Level: "warn", Format: "text"}).Info("dropped")
	assert.Empty(t, buf.String())
}

func TestPrintResult(t *testing.T) {
	res := &domain.RunResult{
		SessionID:      "s-1",
		FinalAnswer:    "4",
		FinalReasoning: "2+2=4",
		Messages: []domain.Message{
			{Sender: domain.AgentOrchestrator, Receiver: domain.AgentResearcher, Kind: domain.KindInstruction, Body: "look\nup", StepID: domain.StepIndex(0)},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, res, false, true))
	out := buf.String()
	assert.Contains(t, out, "orchestrator -> researcher (instruction) [step 0]")
	assert.Contains(t, out, "look\n    up")
	assert.Contains(t, out, "Answer: 4")

	buf.Reset()
	require.NoError(t, printResult(&buf, res, true, false))
	assert.Contains(t, buf.String(), `"final_answer": "4"`)
}

func TestNewApp_WiresEveryAgent(t *testing.T) {
	t.Setenv("DELIBERATE_DB_PATH", filepath.Join(t.TempDir(), "app.db"))
	t.Setenv("DELIBERATE_DEFAULT_PROVIDER", "ollama")
	t.Setenv("DELIBERATE_DEFAULT_MODEL", "llama3.1")
	t.Setenv("DELIBERATE_AGENTS_CRITIC_PROVIDER", "anthropic")
	t.Setenv("DELIBERATE_AGENTS_CRITIC_MODEL", "claude-sonnet-4-5")

	cfg, err := config.Load("")
	require.NoError(t, err)

	var logs bytes.Buffer
	a, err := newApp(cfg, &logs)
	require.NoError(t, err)
	defer a.Close()

	for _, id := range []domain.AgentID{domain.AgentPlanner, domain.AgentResearcher, domain.AgentExpert, domain.AgentCritic, domain.AgentFinalizer} {
		assert.Contains(t, a.driver.Agents, id)
	}
	assert.Equal(t, cfg.MaxSteps, a.driver.MaxSteps)
	assert.Equal(t, 3, a.driver.Limits[domain.RolePlanner])
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "deliberate dev")
}
