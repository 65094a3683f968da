package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mverde/ledgerpilot/internal/config"
	"github.com/mverde/ledgerpilot/internal/database"
	"github.com/mverde/ledgerpilot/internal/database/repository"
	"github.com/mverde/ledgerpilot/internal/llm"
	"github.com/mverde/ledgerpilot/internal/service"
	"github.com/mverde/ledgerpilot/internal/tool"
)

var (
	flagDebug bool
	flagOwner string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerpilot",
		Short:         "Autonomous ingestion and reconciliation for a personal ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			level := slog.LevelInfo
			if flagDebug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&flagOwner, "owner", "default", "acting owner id")

	root.AddCommand(newServeCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newIngestCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	return root
}

// openDatabase opens (creating parent dirs) and migrates the sqlite store.
func openDatabase(cfg config.Config) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrationsWithDB(db, cfg.Database.Migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func buildProvider(cfg config.Config) llm.Provider {
	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	switch cfg.LLM.Provider {
	case "openai":
		return llm.NewOpenAIProvider(cfg.LLM.Key(), cfg.LLM.Model, timeout)
	default:
		return llm.NewGeminiProvider(cfg.LLM.Key(), cfg.LLM.Model, timeout)
	}
}

// engine bundles the fully wired service layer.
type engine struct {
	db            *sql.DB
	entities      *repository.EntityRepo
	events        *repository.EventRepo
	confirmations *repository.ConfirmationRepo
	registry      *tool.Registry
	orchestrator  *service.Orchestrator
	executor      *service.Executor
	confirmSvc    *service.ConfirmationService
	scanner       *service.Scanner
}

func buildEngine(cfg config.Config) (*engine, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	entities := repository.NewEntityRepo(db)
	events := repository.NewEventRepo(db)
	confirmations := repository.NewConfirmationRepo(db)

	registry := tool.NewRegistry()
	registry.Register(&tool.QueryEventsTool{Events: events})
	tool.RegisterWriteTools(registry)

	orchestrator := &service.Orchestrator{
		Entities: entities,
		Registry: registry,
		Provider: buildProvider(cfg),
	}
	executor := &service.Executor{
		DB:                  db,
		Registry:            registry,
		ReconcileWindowDays: cfg.Ingest.ReconcileWindowDays,
		AnomalyMultiplier:   cfg.Ingest.AnomalyMultiplier,
	}
	return &engine{
		db:            db,
		entities:      entities,
		events:        events,
		confirmations: confirmations,
		registry:      registry,
		orchestrator:  orchestrator,
		executor:      executor,
		confirmSvc: &service.ConfirmationService{
			Confirmations: confirmations,
			Executor:      executor,
		},
		scanner: &service.Scanner{
			Entities:      entities,
			Confirmations: confirmations,
			Orchestrator:  orchestrator,
		},
	}, nil
}

func (e *engine) Close() { _ = e.db.Close() }
