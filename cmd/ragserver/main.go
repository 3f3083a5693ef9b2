package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/rstamps01/rag-app-sub001/internal/ai"
	"github.com/rstamps01/rag-app-sub001/internal/chunker"
	"github.com/rstamps01/rag-app-sub001/internal/config"
	"github.com/rstamps01/rag-app-sub001/internal/db"
	"github.com/rstamps01/rag-app-sub001/internal/embedcache"
	"github.com/rstamps01/rag-app-sub001/internal/extract"
	"github.com/rstamps01/rag-app-sub001/internal/filestore"
	"github.com/rstamps01/rag-app-sub001/internal/handler"
	"github.com/rstamps01/rag-app-sub001/internal/job"
	"github.com/rstamps01/rag-app-sub001/internal/middleware"
	"github.com/rstamps01/rag-app-sub001/internal/monitor"
	"github.com/rstamps01/rag-app-sub001/internal/repo"
	"github.com/rstamps01/rag-app-sub001/internal/resource"
	"github.com/rstamps01/rag-app-sub001/internal/schedule"
	"github.com/rstamps01/rag-app-sub001/internal/service"
	"github.com/rstamps01/rag-app-sub001/internal/vectorindex"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragserver",
		Short: "document question answering server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			database, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(database); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, database)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, database *sql.DB) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logutil.GetLogger(ctx).Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("vector_index", cfg.VectorIndex.Backend),
		zap.String("embedding_model", cfg.AI.Embedding.Model),
		zap.String("generation_model", cfg.AI.Generation.Model),
	)

	docRepo := repo.NewDocumentRepo(database)
	queryRepo := repo.NewQueryRepo(database)
	eventRepo := repo.NewEventRepo(database)
	cacheRepo := repo.NewEmbeddingCacheRepo(database)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	embedProvider, err := ai.NewProvider(cfg.AI.Embedding.Provider, cfg.AI.Embedding.Data)
	if err != nil {
		return fmt.Errorf("init embedding provider: %w", err)
	}
	genProvider, err := ai.NewProvider(cfg.AI.Generation.Provider, cfg.AI.Generation.Data)
	if err != nil {
		return fmt.Errorf("init generation provider: %w", err)
	}
	embedFallbacks, err := fallbackProviders(cfg.AI.Embedding.Fallbacks)
	if err != nil {
		return fmt.Errorf("init embedding fallbacks: %w", err)
	}
	genFallbacks, err := fallbackProviders(cfg.AI.Generation.Fallbacks)
	if err != nil {
		return fmt.Errorf("init generation fallbacks: %w", err)
	}

	res := resource.NewManager(resource.ManagerConfig{
		EmbedProvider:  embedProvider,
		EmbedModel:     cfg.AI.Embedding.Model,
		EmbedDimension: cfg.AI.Embedding.Dimension,
		EmbedFallbacks: embedFallbacks,
		GenProvider:    genProvider,
		GenModel:       cfg.AI.Generation.Model,
		GenFallbacks:   genFallbacks,
		WrapEmbedder: func(e ai.IEmbedder) ai.IEmbedder {
			e = embedcache.WrapDBCacheToEmbedder(e, cacheRepo)
			e = embedcache.WrapLruCacheToEmbedder(e, cfg.Pipeline.EmbedCacheSize,
				time.Duration(cfg.Pipeline.EmbedCacheTTLHours)*time.Hour)
			return e
		},
		GenerationSlots:  cfg.Pipeline.MaxGenerationSlots,
		QueueSize:        cfg.Pipeline.GenerationQueueSize,
		QueueWaitSeconds: cfg.Pipeline.QueueWaitSeconds,
	})
	if err := res.Warmup(ctx); err != nil {
		return fmt.Errorf("model warmup: %w", err)
	}

	index, err := vectorindex.New(cfg.VectorIndex, vectorindex.Deps{DB: database})
	if err != nil {
		return fmt.Errorf("init vector index: %w", err)
	}
	if err := index.EnsureCollection(ctx, cfg.AI.Embedding.Dimension); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	mon := monitor.New(0)
	extractors := extract.NewRegistry(
		extract.NewPlainTextExtractor(),
		extract.NewMarkdownExtractor(),
		extract.NewPDFExtractor(nil, cfg.Pipeline.MinCharsPerPage),
	)
	ck := chunker.New(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)

	embedTimeout := time.Duration(cfg.AI.EmbedTimeoutSeconds) * time.Second
	generateTimeout := time.Duration(cfg.AI.GenerateTimeoutSeconds) * time.Second
	searchTimeout := time.Duration(cfg.VectorIndex.SearchTimeoutSeconds) * time.Second

	ingestService := service.NewIngestService(cfg.Pipeline, embedTimeout,
		docRepo, store, extractors, ck, res, index, mon)
	queryService := service.NewQueryService(cfg.Pipeline, cfg.AI.Decoding,
		embedTimeout, generateTimeout, searchTimeout,
		queryRepo, res, index, mon)

	scheduler := schedule.NewScheduler()
	if err := scheduler.AddJob(job.NewEventFlushJob(mon, eventRepo), cfg.Jobs.EventFlushSpec); err != nil {
		return fmt.Errorf("schedule event flush: %w", err)
	}
	if err := scheduler.AddJob(job.NewCacheCleanupJob(cacheRepo, cfg.Jobs.CacheKeepDays), cfg.Jobs.CacheCleanupSpec); err != nil {
		return fmt.Errorf("schedule cache cleanup: %w", err)
	}
	if err := scheduler.AddJob(job.NewStuckDocumentJob(docRepo, index, cfg.Jobs.StuckDocDeadlineMin), cfg.Jobs.StuckDocSpec); err != nil {
		return fmt.Errorf("schedule stuck document check: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Documents:       handler.NewDocumentHandler(ingestService),
		Queries:         handler.NewQueryHandler(queryService),
		Monitor:         handler.NewMonitorHandler(mon, eventRepo),
		RateLimitWindow: time.Duration(cfg.Pipeline.RateLimitSeconds) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func fallbackProviders(list []config.FallbackConfig) ([]resource.ProviderModel, error) {
	out := make([]resource.ProviderModel, 0, len(list))
	for _, fb := range list {
		provider, err := ai.NewProvider(fb.Provider, fb.Data)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", fb.Provider, err)
		}
		out = append(out, resource.ProviderModel{Provider: provider, Model: fb.Model})
	}
	return out, nil
}
