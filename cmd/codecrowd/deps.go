package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rostilos/codecrow/internal/aiclient"
	"github.com/rostilos/codecrow/internal/branchanalysis"
	"github.com/rostilos/codecrow/internal/config"
	"github.com/rostilos/codecrow/internal/jobrecorder"
	"github.com/rostilos/codecrow/internal/locks"
	"github.com/rostilos/codecrow/internal/logging"
	"github.com/rostilos/codecrow/internal/pranalysis"
	"github.com/rostilos/codecrow/internal/rag"
	"github.com/rostilos/codecrow/internal/ragclient"
	"github.com/rostilos/codecrow/internal/store"
	"github.com/rostilos/codecrow/internal/telemetry"
	"github.com/rostilos/codecrow/internal/vcsadapter"
)

// deps is the fully-wired dependency graph used by serve, built once from
// the resolved config. status, migrate and sweep-locks open only the config,
// logger and database they need and do not call buildDeps.
type deps struct {
	cfg          *config.Config
	logger       *zap.Logger
	db           *store.DB
	projects     *store.ProjectRepository
	pullRequests *store.PullRequestRepository
	branches     *store.BranchRepository
	branchFiles  *store.BranchFileRepository
	codeAnalyses *store.CodeAnalysisRepository
	jobRuns      *store.JobRunRepository
	lockRepo     *store.LockRepository
	lockService  *locks.Service
	vcs          *vcsadapter.Adapter
	ai           *aiclient.Client
	ragBridge    *rag.Bridge
	telemetry    *telemetry.Telemetry
	registry     *prometheus.Registry
	jobRecorder  *jobrecorder.Recorder
	prProcessor  *pranalysis.Processor
	branchProc   *branchanalysis.Processor
}

// buildDeps loads config from configPath and wires every component, in the
// order each one's constructor needs its predecessors.
func buildDeps(configPath string) (*deps, error) {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := store.Open(cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	projects := store.NewProjectRepository(db.Conn())
	pullRequests := store.NewPullRequestRepository(db.Conn())
	branches := store.NewBranchRepository(db.Conn())
	branchFiles := store.NewBranchFileRepository(db.Conn())
	codeAnalyses := store.NewCodeAnalysisRepository(db.Conn())
	jobRuns := store.NewJobRunRepository(db.Conn())
	lockRepo := store.NewLockRepository(db.Conn())

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	lockService := locks.New(lockRepo, locks.Config{
		Logger:       logger,
		Redis:        redisClient,
		DefaultTTL:   cfg.LockTTLs.Default,
		PollInterval: cfg.LockWait.PollInterval,
		MaxWait:      cfg.LockWait.MaxWait,
	})

	vcs := vcsadapter.New(map[store.VcsProvider]vcsadapter.Provider{
		store.VcsGitHub:         vcsadapter.NewGitHubProvider(),
		store.VcsGitLab:         vcsadapter.NewGitLabProvider(),
		store.VcsBitbucketCloud: vcsadapter.NewBitbucketCloudProvider(),
	}, vcsadapter.BackoffConfig{
		InitialDelay: cfg.VcsBackoff.InitialDelay,
		MaxAttempts:  cfg.VcsBackoff.MaxAttempts,
	}, logger)

	ai := aiclient.New(aiclient.Config{
		BaseURL:       cfg.AiBaseURL,
		ServiceSecret: cfg.AiServiceSecret,
		Logger:        logger,
		HTTPClient:    &http.Client{Timeout: 0}, // streaming response, no fixed deadline
	})

	indexer := ragclient.New(ragclient.Config{
		BaseURL:       cfg.RagBaseURL,
		ServiceSecret: cfg.RagServiceSecret,
		Logger:        logger,
	})
	ragBridge := rag.New(indexer, logger)

	registry := prometheus.NewRegistry()
	tel := telemetry.New(registry)

	jobRecorder := jobrecorder.New(jobRuns, logger, 256)

	prProcessor := pranalysis.New(projects, pullRequests, codeAnalyses, lockService, vcs, ai, ragBridge, logger,
		pranalysis.WithTelemetry(tel), pranalysis.WithJobRecorder(jobRecorder))
	branchProc := branchanalysis.New(db.Conn(), projects, branches, branchFiles, codeAnalyses, lockService, vcs, ai, ragBridge, logger,
		branchanalysis.WithTelemetry(tel), branchanalysis.WithJobRecorder(jobRecorder))

	return &deps{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		projects:     projects,
		pullRequests: pullRequests,
		branches:     branches,
		branchFiles:  branchFiles,
		codeAnalyses: codeAnalyses,
		jobRuns:      jobRuns,
		lockRepo:     lockRepo,
		lockService:  lockService,
		vcs:          vcs,
		ai:           ai,
		ragBridge:    ragBridge,
		telemetry:    tel,
		registry:     registry,
		jobRecorder:  jobRecorder,
		prProcessor:  prProcessor,
		branchProc:   branchProc,
	}, nil
}

func (d *deps) Close() {
	d.jobRecorder.Close()
	if err := d.db.Close(); err != nil {
		d.logger.Warn("close database", zap.Error(err))
	}
	_ = d.logger.Sync()
}
