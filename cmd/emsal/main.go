package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/config"
	dbRedis "github.com/kailas-cloud/emsal/internal/db/redis"
	"github.com/kailas-cloud/emsal/internal/domain/decision"
	domquota "github.com/kailas-cloud/emsal/internal/domain/quota"
	logpkg "github.com/kailas-cloud/emsal/internal/logger"
	"github.com/kailas-cloud/emsal/internal/metrics"
	"github.com/kailas-cloud/emsal/internal/repository/fpcache"
	quotarepo "github.com/kailas-cloud/emsal/internal/repository/quota"
	quotasqlite "github.com/kailas-cloud/emsal/internal/repository/quota/sqlite"
	"github.com/kailas-cloud/emsal/internal/tracing"
	anthropicInf "github.com/kailas-cloud/emsal/internal/transport/anthropic"
	chiTransport "github.com/kailas-cloud/emsal/internal/transport/chi"
	openaiInf "github.com/kailas-cloud/emsal/internal/transport/openai"
	"github.com/kailas-cloud/emsal/internal/transport/retrieval"
	"github.com/kailas-cloud/emsal/internal/usecase/document"
	healthuc "github.com/kailas-cloud/emsal/internal/usecase/health"
	"github.com/kailas-cloud/emsal/internal/usecase/keywords"
	quotauc "github.com/kailas-cloud/emsal/internal/usecase/quota"
	"github.com/kailas-cloud/emsal/internal/usecase/scoring"
	"github.com/kailas-cloud/emsal/internal/usecase/search"
	"github.com/kailas-cloud/emsal/internal/usecase/workflow"
	"github.com/kailas-cloud/emsal/internal/version"
)

// inferenceClient is everything the pipeline asks of an LLM provider.
type inferenceClient interface {
	keywords.Extractor
	scoring.Scorer
	document.Generator
	healthuc.ServiceChecker
}

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, logpkg.Options{
		Level:   cfg.Logging.Level,
		Service: "emsal",
		Version: version.Version,
	})
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting emsal API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("inference_provider", cfg.Inference.Provider),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("quota_ledger", cfg.Quota.Ledger),
	)

	ctx := context.Background()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		ServiceVersion: version.Version,
	})
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Redis is only dialled when a component is configured to use it.
	var store *dbRedis.Store
	if cfg.NeedsRedis() {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database", zap.Strings("addrs", cfg.Database.Addrs))
	}

	// Cache tiers
	var cacheStore fpcache.Store
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		cacheStore = fpcache.NewRedis(store, logger)
	case config.CacheNone:
		cacheStore = fpcache.Nop{}
	default:
		cacheStore = fpcache.NewMemory()
	}
	keywordTier := fpcache.NewTier[[]string](
		fpcache.TierKeywords, cacheStore, cfg.Cache.KeywordsTTL, metrics.CacheTotal, logger)
	searchTier := fpcache.NewTier[[]decision.Candidate](
		fpcache.TierSearch, cacheStore, cfg.Cache.SearchTTL, metrics.CacheTotal, logger)
	scoreTier := fpcache.NewTier[decision.Relevance](
		fpcache.TierScores, cacheStore, cfg.Cache.ScoresTTL, metrics.CacheTotal, logger)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := fpcache.NewSweeper(cacheStore, cfg.Cache.SweepInterval, metrics.CacheSweptTotal, logger)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(sweepCtx)
	}()

	// External clients
	llm := buildInference(cfg.Inference, logger)
	retriever := retrieval.NewClient(&retrieval.Config{
		BaseURL: cfg.Retrieval.BaseURL,
		APIKey:  cfg.Retrieval.APIKey,
		Timeout: time.Duration(cfg.Retrieval.TimeoutSec) * time.Second,
		Logger:  logger,
	})

	// Pipeline services
	pcfg := cfg.Pipeline
	keywordSvc := keywords.New(llm, keywordTier, logger).
		WithLimits(pcfg.MaxKeywords, pcfg.MaxCaseChars)
	searchSvc := search.New(retriever, searchTier, logger).
		WithConcurrency(cfg.Retrieval.Concurrency).
		WithPartialTTL(cfg.Cache.PartialSearchTTL)
	scoringSvc := scoring.New(llm, scoreTier, logger).
		WithConcurrency(pcfg.ScoringConcurrency).
		WithMaxCandidates(pcfg.MaxCandidates)
	documentSvc := document.New(llm, logger).
		WithTopDecisions(pcfg.DocumentDecisions)

	// Quota gate
	plans, err := quotauc.NewStaticPlans(domainPlans(cfg.Quota.Plans), cfg.Quota.Users, cfg.Quota.DefaultPlan)
	if err != nil {
		logger.Fatal("Invalid quota plans", zap.Error(err))
	}

	var ledger quotauc.LedgerStore
	var dbPinger healthuc.DBPinger
	switch cfg.Quota.Ledger {
	case config.LedgerRedis:
		ledger = quotarepo.New(store, cfg.Quota.Grace)
	case config.LedgerSQLite:
		sq, err := quotasqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			logger.Fatal("Failed to open quota database", zap.Error(err))
		}
		defer func() { _ = sq.Close() }()
		ledger = sq
		dbPinger = sq
	default:
		ledger = quotarepo.NewMemory()
	}
	// Pass nil interface (not typed nil pointer!) when redis is not configured.
	if store != nil {
		dbPinger = store
	}

	gate := quotauc.NewGate(plans, ledger, metrics.QuotaDecisionsTotal, logger)

	workflowSvc := workflow.New(gate, keywordSvc, searchSvc, scoringSvc, documentSvc, logger).
		WithDeadline(pcfg.Deadline).
		WithRanking(pcfg.MaxResults, pcfg.MinScore).
		WithMetrics(workflow.Metrics{Runs: metrics.RunsTotal, Stages: metrics.StageDuration})

	healthSvc := healthuc.New(dbPinger, llm, retriever)

	server := chiTransport.NewServer(workflowSvc, gate, healthSvc, logger)
	router := chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	stopSweeper()
	<-sweeperDone

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Error flushing traces", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildInference picks the LLM provider.
func buildInference(cfg config.InferenceConfig, logger *zap.Logger) inferenceClient {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return anthropicInf.NewClient(&anthropicInf.Config{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			MaxTokens:         cfg.MaxTokens,
			DocumentMaxTokens: cfg.DocumentMaxTokens,
			Logger:            logger,
		})
	default:
		return openaiInf.NewClient(&openaiInf.Config{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			MaxTokens:         cfg.MaxTokens,
			DocumentMaxTokens: cfg.DocumentMaxTokens,
			Provider:          cfg.Provider,
			Logger:            logger,
		})
	}
}

func domainPlans(in []config.PlanConfig) []domquota.Plan {
	out := make([]domquota.Plan, len(in))
	for i, p := range in {
		out[i] = domquota.Plan{
			Name:     p.Name,
			Limit:    p.Limit,
			Window:   domquota.WindowKind(p.Window),
			Duration: p.Duration,
		}
	}
	return out
}
