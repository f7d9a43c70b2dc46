package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tbcv/tbcv/internal/broadcast"
	"github.com/tbcv/tbcv/internal/config"
	"github.com/tbcv/tbcv/internal/log"
	"github.com/tbcv/tbcv/internal/recommend"
	"github.com/tbcv/tbcv/internal/router"
	"github.com/tbcv/tbcv/internal/storage"
	"github.com/tbcv/tbcv/internal/storage/postgres"
	"github.com/tbcv/tbcv/internal/types"
	"github.com/tbcv/tbcv/internal/validator"
	"github.com/tbcv/tbcv/internal/workflow"
)

// Shared command state, wired once in PersistentPreRunE.
var (
	cfg      *config.Config
	store    storage.Storage
	logger   log.Logger
	bc       *broadcast.Broadcaster
	registry *validator.Registry
	dispatch *router.Router
	deriver  *recommend.Deriver
	engine   *workflow.Engine
)

var rootCmd = &cobra.Command{
	Use:   "tbcv",
	Short: "Content validation and recommendation pipeline",
	Long: `tbcv validates content artifacts (YAML, markdown, HTML, JSON, code),
derives improvement recommendations from the findings, and carries each
recommendation through an approval workflow: proposed, approved or rejected,
enhanced, applied.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
			cfg.Backend = config.BackendSQLite
			cfg.DBPath = dbPath
		}

		logger = log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})

		ctx := cmd.Context()
		switch cfg.Backend {
		case config.BackendPostgres:
			store, err = postgres.NewFromURL(ctx, cfg.PostgresURL)
		default:
			store, err = storage.NewStorage(ctx, &storage.Config{Path: cfg.DBPath})
		}
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}

		bc = broadcast.New(cfg.Heartbeat())

		registry, err = buildRegistry(cfg)
		if err != nil {
			return err
		}

		dispatch = router.New(registry, store, bc, logger, router.Options{
			ValidatorTimeout: cfg.ValidatorTimeout(),
			MaxConcurrent:    cfg.MaxConcurrentValidators,
			FailureThreshold: types.Severity(cfg.FailureThreshold),
		})
		deriver = recommend.NewDeriver(nil, store, bc)
		engine = workflow.New(store, newRewriter(), bc, logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if bc != nil {
			bc.Close()
		}
		if store != nil {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: closing store: %v\n", err)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides config)")
}

// buildRegistry registers the enabled validators.
func buildRegistry(cfg *config.Config) (*validator.Registry, error) {
	reg := validator.NewRegistry()

	if cfg.ValidatorEnabled("yaml") {
		reg.Register(validator.NewYAMLValidator())
	}
	if cfg.ValidatorEnabled("markdown") {
		reg.Register(validator.NewMarkdownValidator())
	}
	if cfg.ValidatorEnabled("code") {
		reg.Register(validator.NewCodeValidator())
	}
	if cfg.ValidatorEnabled("jsonschema") {
		schemaJSON := ""
		if cfg.SchemaPath != "" {
			data, err := os.ReadFile(cfg.SchemaPath)
			if err != nil {
				return nil, fmt.Errorf("reading schema file: %w", err)
			}
			schemaJSON = string(data)
		}
		sv, err := validator.NewSchemaValidator(schemaJSON)
		if err != nil {
			return nil, err
		}
		reg.Register(sv)
	}
	if cfg.ValidatorEnabled("links") {
		reg.Register(validator.NewLinkValidator(
			validator.NewHTTPResolver(cfg.LinkTimeout(), cfg.LinkRPS)))
	}
	if cfg.ValidatorEnabled("seo") {
		reg.Register(validator.NewSEOValidator())
	}
	if cfg.ValidatorEnabled("facts") && cfg.FactsPath != "" {
		checker, err := loadFactChecker(cfg.FactsPath)
		if err != nil {
			return nil, err
		}
		reg.Register(validator.NewFactValidator(checker))
	}
	return reg, nil
}

// loadFactChecker reads a YAML claim -> verdict table.
func loadFactChecker(path string) (validator.FactChecker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading facts file: %w", err)
	}
	var verdicts map[string]validator.Verdict
	if err := yaml.Unmarshal(data, &verdicts); err != nil {
		return nil, fmt.Errorf("parsing facts file: %w", err)
	}
	return &validator.StaticFactChecker{Verdicts: verdicts}, nil
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
