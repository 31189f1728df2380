// Package batch answers a JSONL file of questions, one fresh session per
// question, and writes one JSONL answer per task.
package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rogers-f/deliberate/internal/domain"
)

// Task is one input line. The question key is matched case-insensitively,
// so both "question" and "Question" are accepted.
type Task struct {
	TaskID   string `json:"task_id"`
	Question string `json:"question"`
	FileName string `json:"file_name"`
	Level    int    `json:"Level,omitempty"`
}

// Answer is one output line.
type Answer struct {
	TaskID         string `json:"task_id"`
	ModelAnswer    string `json:"model_answer"`
	ReasoningTrace string `json:"reasoning_trace"`
}

// Runner answers one question.
type Runner interface {
	Run(ctx context.Context, question, file string) (*domain.RunResult, error)
}

// Options tunes a batch run.
type Options struct {
	Concurrency int
	// FilesDir is joined with each task's file_name.
	FilesDir string
	// Level keeps only tasks of that level when positive.
	Level  int
	Logger *slog.Logger
}

// Summary counts what a batch run did.
type Summary struct {
	Total    int
	Skipped  int
	Answered int
	Failed   int
	Errors   int
}

// ReadTasks parses a JSONL stream, skipping blank and malformed lines.
func ReadTasks(r io.Reader, logger *slog.Logger) ([]Task, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var tasks []Task
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		var t Task
		if err := json.Unmarshal(b, &t); err != nil {
			logger.Warn("skipping malformed task line", "line", line, "error", err)
			continue
		}
		if t.TaskID == "" || t.Question == "" {
			logger.Warn("skipping task without task_id or question", "line", line)
			continue
		}
		tasks = append(tasks, t)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	return tasks, nil
}

// DoneIDs returns the task ids already present in an answers file. A
// missing file yields an empty set.
func DoneIDs(path string) (map[string]bool, error) {
	done := map[string]bool{}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return done, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open answers: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var a Answer
		if json.Unmarshal(sc.Bytes(), &a) == nil && a.TaskID != "" {
			done[a.TaskID] = true
		}
	}
	return done, sc.Err()
}

// Run answers every task not in done, writing answers to out as they
// complete. Individual run errors are logged and counted; only a write
// failure or cancellation stops the batch.
func Run(ctx context.Context, runner Runner, tasks []Task, done map[string]bool, out io.Writer, opts Options) (Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 1
	}

	var (
		mu  sync.Mutex
		sum Summary
		enc = json.NewEncoder(out)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, t := range tasks {
		if opts.Level > 0 && t.Level != opts.Level {
			continue
		}
		sum.Total++
		if done[t.TaskID] {
			sum.Skipped++
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			file := ""
			if t.FileName != "" {
				file = filepath.Join(opts.FilesDir, t.FileName)
			}
			logger.Info("answering task", "task", t.TaskID)
			res, err := runner.Run(gctx, t.Question, file)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sum.Errors++
				logger.Error("task failed", "task", t.TaskID, "error", err)
				return nil
			}
			if res.Failed {
				sum.Failed++
			}
			sum.Answered++
			if err := enc.Encode(Answer{TaskID: t.TaskID, ModelAnswer: res.FinalAnswer, ReasoningTrace: res.FinalReasoning}); err != nil {
				return fmt.Errorf("write answer %s: %w", t.TaskID, err)
			}
			logger.Info("task answered", "task", t.TaskID, "session", res.SessionID, "failed", res.Failed)
			return nil
		})
	}

	err := g.Wait()
	return sum, err
}

// RunFiles reads tasks from inPath and appends answers to outPath,
// skipping tasks already answered there.
func RunFiles(ctx context.Context, runner Runner, inPath, outPath string, opts Options) (Summary, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return Summary{}, fmt.Errorf("open tasks: %w", err)
	}
	defer in.Close()

	tasks, err := ReadTasks(in, opts.Logger)
	if err != nil {
		return Summary{}, err
	}
	done, err := DoneIDs(outPath)
	if err != nil {
		return Summary{}, err
	}

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return Summary{}, fmt.Errorf("open answers: %w", err)
	}
	sum, runErr := Run(ctx, runner, tasks, done, out, opts)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close answers: %w", err)
	}
	return sum, runErr
}
