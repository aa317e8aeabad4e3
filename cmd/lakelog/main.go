// cmd/lakelog/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"lakelog/pkg/config"
	"lakelog/pkg/lakelog"
	"lakelog/pkg/logging"
)

const usage = `Usage: lakelog <command> [flags]

Commands:
  init       provision monitoring tables and the semantic model
  status     print a JSON health report of the monitoring setup
  trim       remove event records past retention
  reconcile  re-run semantic model reconciliation

Common flags:
  -project   project name (or LAKELOG_PROJECT)

Trim flags:
  -days      retention window in days (default 90)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	project := fs.String("project", os.Getenv("LAKELOG_PROJECT"), "project name")
	days := fs.Int("days", lakelog.DefaultRetentionDays, "retention window in days")
	fs.Parse(os.Args[2:])

	// missing .env is fine, real deployments set variables directly
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*project)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	zlog, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer zlog.Sync()

	ctx := context.Background()

	if err := run(ctx, command, cfg, zlog, *days); err != nil {
		zlog.Error("Command failed", zap.String("command", command), zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg *config.Config, zlog *zap.Logger, days int) error {
	var opts []lakelog.Option
	if command == "status" || command == "trim" {
		// these commands inspect or prune, they never create tables
		opts = append(opts, lakelog.WithoutProvisioning())
	}

	logger, err := lakelog.New(ctx, cfg, zlog, opts...)
	if err != nil {
		return err
	}
	defer logger.Close()

	switch command {
	case "init":
		if !logger.Ready() {
			return fmt.Errorf("monitoring tables did not become ready")
		}
		return nil

	case "status":
		report := logger.Status(ctx)
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil

	case "trim":
		removed, err := logger.Trim(ctx, days)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d records\n", removed)
		return nil

	case "reconcile":
		result, err := logger.ReconcileModel(ctx)
		if err != nil {
			return err
		}
		if !result.Succeeded() {
			if result.Relationships.Instructions != "" {
				fmt.Fprint(os.Stderr, result.Relationships.Instructions)
			}
			if result.Measures.Instructions != "" {
				fmt.Fprint(os.Stderr, result.Measures.Instructions)
			}
			return fmt.Errorf("reconciliation incomplete")
		}
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}
