// Command server runs the document Q&A backend: an HTTP API for uploading
// documents, ingesting them into a vector index in the background, and
// answering questions grounded on the indexed content.
//
// Configuration comes from the environment (a local .env is honored in
// development); see internal/config for every knob and its default.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-docqa-backend/internal/chunk"
	"github.com/tbourn/go-docqa-backend/internal/cohere"
	"github.com/tbourn/go-docqa-backend/internal/config"
	httpapi "github.com/tbourn/go-docqa-backend/internal/http"
	"github.com/tbourn/go-docqa-backend/internal/ingest"
	"github.com/tbourn/go-docqa-backend/internal/observability"
	"github.com/tbourn/go-docqa-backend/internal/repo"
	"github.com/tbourn/go-docqa-backend/internal/retry"
	"github.com/tbourn/go-docqa-backend/internal/services"
	"github.com/tbourn/go-docqa-backend/internal/storage"
	"github.com/tbourn/go-docqa-backend/internal/sysutil"
	"github.com/tbourn/go-docqa-backend/internal/vectorstore"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	var out = zerolog.New(os.Stdout)
	if cfg.LogPretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	log := out.With().Timestamp().Str("service", cfg.OTEL.ServiceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	blobs, err := storage.NewFS(cfg.StorageRoot)
	if err != nil {
		log.Fatal().Err(err).Str("root", cfg.StorageRoot).Msg("blob storage init failed")
	}

	provider := cohere.New(cohere.Config{
		APIKey:       cfg.Cohere.APIKey,
		BaseURL:      cfg.Cohere.BaseURL,
		EmbedModel:   cfg.Cohere.EmbedModel,
		ChatModel:    cfg.Cohere.ChatModel,
		MaxBatchSize: cfg.Cohere.MaxBatchSize,
		BatchDelay:   cfg.Cohere.BatchDelay,
		Timeout:      cfg.Cohere.Timeout,
		Retry: retry.Policy{
			MaxAttempts: cfg.Cohere.RetryAttempts,
			BaseDelay:   250 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
	}, log)

	vec := vectorstore.New(db)
	splitter := chunk.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	pipeline := ingest.NewPipeline(db, blobs, splitter, provider, vec, log)
	pool := ingest.NewPool(pipeline, cfg.Ingest.Workers, cfg.Ingest.QueueSize, log)

	// Workers run on their own lifecycle context: a termination signal stops
	// HTTP intake, but queued ingestion must drain before workers are told
	// to abort, or documents strand in "processing" with no retry path.
	poolCtx, poolCancel := context.WithCancel(context.Background())
	defer poolCancel()
	pool.Start(poolCtx)

	docSvc := &services.DocumentService{
		DB:           db,
		Blobs:        blobs,
		Pool:         pool,
		Index:        vec,
		Log:          log,
		MaxFileBytes: cfg.Ingest.MaxFileBytes,
	}
	chatSvc := services.NewChatService(db)
	answerSvc := &services.AnswerService{
		DB:             db,
		Embedder:       provider,
		Search:         vec,
		Completer:      provider,
		Chats:          chatSvc,
		TopK:           cfg.TopK,
		MaxPromptRunes: 2000,
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	httpapi.RegisterRoutes(router, db, docSvc, chatSvc, answerSvc, log, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	// Let queued and in-flight ingestion jobs finish before the process
	// exits; only then release the workers' context.
	pool.Drain()
	poolCancel()
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("bye")
}
