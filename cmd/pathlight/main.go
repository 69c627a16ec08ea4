package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pathlight/pathlight/internal/api"
	"github.com/pathlight/pathlight/internal/assistant"
	"github.com/pathlight/pathlight/internal/config"
	"github.com/pathlight/pathlight/internal/embedding"
	"github.com/pathlight/pathlight/internal/llm"
	"github.com/pathlight/pathlight/internal/memory"
	"github.com/pathlight/pathlight/internal/store"
	"github.com/pathlight/pathlight/internal/vecindex"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Pathlight...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/pathlight.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// PostgreSQL store: the relational half of the memory system plus the
	// domain tables. Without it the service still answers, degraded.
	var db *store.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := store.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running degraded", zap.Error(pgErr))
		} else {
			migrationsDir := cfg.Database.Postgres.MigrationsDir
			if migrationsDir == "" {
				migrationsDir = "migrations"
			}
			if mErr := ps.Migrate(context.Background(), migrationsDir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			db = ps
			defer db.Close()
		}
	}

	// Embedding provider is optional: "none" keeps the service keyword-only.
	embedder := embedding.New(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
		TimeoutMS: cfg.Embedding.TimeoutMS,
	})
	if embedder == nil {
		logger.Warn("no embedding provider configured, semantic search disabled")
	}

	var index *vecindex.Index
	if embedder != nil {
		idx, idxErr := vecindex.Open(cfg.Memory.IndexPath, cfg.Embedding.Model, cfg.Embedding.Dimension, logger)
		if idxErr != nil {
			logger.Warn("vector index unavailable, semantic search disabled", zap.Error(idxErr))
		} else {
			index = idx
		}
	}

	// Redis notifier keeps reader processes' index copies fresh. Optional.
	var notifier *memory.Notifier
	if cfg.Database.Redis.URL != "" {
		n, nErr := memory.NewNotifier(context.Background(), cfg.Database.Redis.URL, logger)
		if nErr != nil {
			logger.Warn("Redis unavailable, index reload notifications disabled", zap.Error(nErr))
		} else {
			notifier = n
			defer notifier.Close()
		}
	}

	// Only reader processes watch for snapshot announcements: a reload in
	// the writer could race its own in-flight Add/Persist pair.
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if notifier != nil && index != nil && cfg.Memory.IsReader() {
		go notifier.Watch(watchCtx, index, cfg.Memory.ReloadInterval())
		logger.Info("index reload watch started (reader role)")
	}

	var records memory.RecordStore
	var domain memory.DomainReader
	if db != nil {
		records = db
		domain = db
	}
	memSvc := memory.NewService(embedder, index, records, domain, notifier, memory.Options{
		SimilarityThreshold: cfg.Memory.SimilarityThreshold,
		EmbedTimeout:        cfg.Memory.EmbedTimeout(),
	}, logger)

	llmClient := llm.NewFromConfig(cfg.LLM, logger)
	if llmClient == nil {
		logger.Warn("no LLM configured, assistant replies will be canned")
	}

	var convos assistant.ConversationStore
	if db != nil {
		convos = db
	}
	asst := assistant.New(memSvc, llmClient, convos, logger)

	handler := api.NewHandler(memSvc, asst, db, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Pathlight listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if index != nil {
		if err := index.Persist(); err != nil {
			logger.Error("final index persist", zap.Error(err))
		}
		index.Close()
	}
	logger.Info("Pathlight stopped")
}
