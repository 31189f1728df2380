// Package main is the entry point for the deliberate orchestrator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rogers-f/deliberate/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// v collects flag bindings; config.FromViper layers file and environment
// values underneath them.
var v = viper.New()

var cfgPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "deliberate",
		Short:         "Answer questions with a planner, researcher, expert, critic and finalizer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env is normal.
			_ = godotenv.Load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgPath, "config", "", "path to a YAML, JSON or TOML config file (env DELIBERATE_CONFIG)")
	flags.String("db", "", "SQLite database path")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text, json")
	mustBind("db_path", flags.Lookup("db"))
	mustBind("log.level", flags.Lookup("log-level"))
	mustBind("log.format", flags.Lookup("log-format"))

	root.AddCommand(newAskCmd(), newBatchCmd(), newServeCmd(), newResumeCmd(), newVersionCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "_CONFIG")
	}
	return config.FromViper(v, path)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		stop()
		os.Exit(1)
	}
}
