package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/heliogrid/onboard-engine/pkg/config"
	"github.com/heliogrid/onboard-engine/pkg/database"
	"github.com/heliogrid/onboard-engine/pkg/logging"
	"github.com/heliogrid/onboard-engine/pkg/models"
	"github.com/heliogrid/onboard-engine/pkg/repositories"
	"github.com/heliogrid/onboard-engine/pkg/retry"
	"github.com/heliogrid/onboard-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	source := flag.String("source", "", "provenance label for the batch (defaults to config)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: onboard-engine [flags] <batch-file.yaml|json>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())))

	ctx := context.Background()

	// Migrations run through database/sql with the pgx stdlib driver.
	migrationDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		logger.Fatal("failed to open migration connection", zap.String("error", logging.SanitizeError(err)))
	}
	if err := database.RunMigrations(migrationDB, cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.String("error", logging.SanitizeError(err)))
	}
	_ = migrationDB.Close()

	// Connecting races database startup in containerized deployments, so
	// transient failures get a few attempts.
	db, err := retry.DoWithResult(ctx, nil, func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	batch, err := loadBatch(flag.Arg(0))
	if err != nil {
		logger.Fatal("failed to load batch file", zap.Error(err))
	}

	label := *source
	if label == "" {
		label = cfg.Onboarding.DefaultSource
	}
	services.RegisterBatch(batch, label)

	svc := services.NewOnboardingService(
		db,
		repositories.NewLookupRepository(),
		repositories.NewCounterpartyRepository(),
		repositories.NewProjectRepository(),
		repositories.NewContractRepository(),
		repositories.NewTariffRepository(),
		repositories.NewAssetRepository(),
		repositories.NewProductionRepository(),
		logger,
	)

	// Preflight and assertion rejections are permanent and fail immediately;
	// only transient database errors are retried.
	var report *models.BatchReport
	err = retry.DoIfRetryable(ctx, nil, func() error {
		var onboardErr error
		report, onboardErr = svc.Onboard(ctx, batch)
		return onboardErr
	})
	if err != nil {
		logger.Fatal("onboarding failed", zap.Error(err))
	}

	fmt.Printf("batch %s committed for project %s\n", report.BatchID, report.ProjectID)
	for _, line := range services.SummarizeReport(report) {
		fmt.Println("  " + line)
	}
}

// loadBatch reads a staged batch from a YAML or JSON file.
func loadBatch(path string) (*models.StagingBatch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var batch models.StagingBatch
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("failed to parse JSON batch: %w", err)
		}
		return &batch, nil
	}
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse YAML batch: %w", err)
	}
	return &batch, nil
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
