package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"contracts-backend/internal/analysis"
	"contracts-backend/internal/analyzer"
	"contracts-backend/internal/contracts"
	"contracts-backend/internal/extractor"
	"contracts-backend/internal/notifications"
	"contracts-backend/internal/shared/config"
	"contracts-backend/internal/shared/storage/db"
	"contracts-backend/internal/shared/storage/object"
	"contracts-backend/internal/worker"
)

// WorkerApp holds the analysis worker process dependencies.
type WorkerApp struct {
	Config config.Config
	DB     *sql.DB
	Store  object.ObjectStore

	JobsRepo      analysis.Repo
	ContractsRepo contracts.Repo
	Engine        *analyzer.Engine
	Worker        *worker.Worker
}

// BuildWorker prepares the worker process. Unlike the API it has no
// in-memory fallback: the queue lives in Postgres.
func BuildWorker(cfg config.Config) (*WorkerApp, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the worker")
	}
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultWorkerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	jobsRepo := &analysis.PGRepo{DB: sqlDB}
	contractsRepo := &contracts.PGRepo{DB: sqlDB}
	notifRepo := &notifications.PGRepo{DB: sqlDB}

	llmClient, err := BuildLLM(cfg)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	extractClient, err := extractor.NewClient(cfg.ExtractorURL)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	engine := &analyzer.Engine{
		LLM:       llmClient,
		Contracts: contractsRepo,
		Store:     store,
		Extractor: extractClient,
		Jobs:      jobsRepo,
	}

	workerCfg := worker.DefaultConfig()
	if cfg.WorkerConcurrency > 0 {
		workerCfg.Concurrency = cfg.WorkerConcurrency
	}
	if cfg.WorkerPollEvery > 0 {
		workerCfg.PollInterval = cfg.WorkerPollEvery
	}
	if cfg.JobTimeout > 0 {
		workerCfg.JobTimeout = cfg.JobTimeout
	}
	if cfg.JobLeaseDuration > 0 {
		workerCfg.LeaseDuration = cfg.JobLeaseDuration
	}
	if cfg.SweepEvery > 0 {
		workerCfg.SweepInterval = cfg.SweepEvery
	}
	if cfg.StuckJobThreshold > 0 {
		workerCfg.StuckThreshold = cfg.StuckJobThreshold
	}

	sweeper := &analysis.Sweeper{Repo: jobsRepo, Threshold: workerCfg.StuckThreshold}
	notifier := notifications.NewService(notifRepo)

	w, err := worker.New(jobsRepo, sweeper, notifier, workerCfg)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	for _, handler := range engine.Handlers() {
		w.Register(handler)
	}

	return &WorkerApp{
		Config:        cfg,
		DB:            sqlDB,
		Store:         store,
		JobsRepo:      jobsRepo,
		ContractsRepo: contractsRepo,
		Engine:        engine,
		Worker:        w,
	}, nil
}
