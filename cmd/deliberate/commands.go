package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rogers-f/deliberate/internal/batch"
	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/ipc"
)

func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newAskCmd() *cobra.Command {
	var (
		file    string
		asJSON  bool
		showLog bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question; reads stdin when no question is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := questionFrom(args, cmd.InOrStdin(), stdinIsTerminal())
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				res, err := a.driver.Run(cmd.Context(), question, file)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), res, asJSON, showLog)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file attached to the question")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().BoolVar(&showLog, "trace", false, "print the inter-agent message log")
	return cmd
}

func newBatchCmd() *cobra.Command {
	var (
		in, out  string
		filesDir string
		level    int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Answer a JSONL file of questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				sum, err := batch.RunFiles(cmd.Context(), a.driver, in, out, batch.Options{
					Concurrency: a.cfg.BatchConcurrency,
					FilesDir:    filesDir,
					Level:       level,
					Logger:      a.logger,
				})
				fmt.Fprintf(cmd.OutOrStdout(), "tasks=%d answered=%d failed=%d skipped=%d errors=%d\n",
					sum.Total, sum.Answered, sum.Failed, sum.Skipped, sum.Errors)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "input JSONL with task_id, question and file_name")
	cmd.Flags().StringVar(&out, "out", "answers.jsonl", "output JSONL; existing task ids are skipped")
	cmd.Flags().StringVar(&filesDir, "files-dir", "", "directory holding attached files")
	cmd.Flags().IntVar(&level, "level", 0, "only answer tasks of this level")
	cmd.Flags().Int("concurrency", 0, "questions answered in parallel")
	mustBind("batch_concurrency", cmd.Flags().Lookup("concurrency"))
	cmd.MarkFlagRequired("in")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				h := &ipc.Handler{Runner: a.driver, Sessions: a.recorder, Logger: a.logger}
				srv := ipc.NewServer(h, a.cfg.ListenAddr, a.metrics.Handler())

				go func() {
					<-cmd.Context().Done()
					a.logger.Info("shutting down")
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := srv.Shutdown(ctx); err != nil {
						a.logger.Error("server shutdown", "error", err)
					}
				}()

				a.logger.Info("listening", "addr", a.cfg.ListenAddr)
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	mustBind("listen_addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func newResumeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Continue an interrupted session from its last checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				res, err := a.driver.Resume(cmd.Context(), a.recorder, args[0])
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), res, asJSON, false)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "deliberate %s (commit=%s, built=%s)\n", version, commit, date)
		},
	}
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// questionFrom joins the arguments, or reads the question from stdin when
// there are none and stdin is piped.
func questionFrom(args []string, stdin io.Reader, tty bool) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if tty {
		return "", errors.New("no question given")
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	q := strings.TrimSpace(string(b))
	if q == "" {
		return "", errors.New("no question given")
	}
	return q, nil
}

func printResult(w io.Writer, res *domain.RunResult, asJSON, showLog bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if showLog {
		for i, m := range res.Messages {
			step := ""
			if m.StepID != nil {
				step = fmt.Sprintf(" [step %d]", *m.StepID)
			}
			fmt.Fprintf(w, "%3d %s -> %s (%s)%s\n    %s\n", i+1, m.Sender, m.Receiver, m.Kind, step, indent(m.Body))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Session: %s\n", res.SessionID)
	if res.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", res.Error)
	}
	fmt.Fprintf(w, "Answer: %s\n", res.FinalAnswer)
	fmt.Fprintf(w, "Reasoning: %s\n", res.FinalReasoning)
	return nil
}

func indent(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n    ")
}
