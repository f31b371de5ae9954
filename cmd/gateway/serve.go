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
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/careconnect/data-gateway/internal/apikey"
	"github.com/careconnect/data-gateway/internal/audit"
	"github.com/careconnect/data-gateway/internal/cache"
	"github.com/careconnect/data-gateway/internal/config"
	"github.com/careconnect/data-gateway/internal/database"
	"github.com/careconnect/data-gateway/internal/gateway"
	"github.com/careconnect/data-gateway/internal/logging"
	"github.com/careconnect/data-gateway/internal/ratelimit"
	"github.com/careconnect/data-gateway/internal/server"
)

var (
	serveEnvFile    string
	serveListenAddr string
	serveDBPath     string
	serveLogLevel   string
	serveLogFile    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the data gateway server",
	Long:  `Start the gateway server using configuration from the environment.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveEnvFile, "env", ".env", "Path to .env file")
	serveCmd.Flags().StringVar(&serveListenAddr, "addr", "", "Address to listen on (overrides env var)")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "Path to SQLite database (overrides env var)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides env var)")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Path to log file (overrides env var, default: stdout)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(serveEnvFile); err == nil {
		if err := godotenv.Load(serveEnvFile); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error loading %s: %v\n", serveEnvFile, err)
		}
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if serveListenAddr != "" {
		cfg.ListenAddr = serveListenAddr
	}
	if serveDBPath != "" {
		cfg.DatabasePath = serveDBPath
	}
	if serveLogLevel != "" {
		cfg.LogLevel = serveLogLevel
	}
	if serveLogFile != "" {
		cfg.LogFile = serveLogFile
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.New(database.Config{
		Path:            cfg.DatabasePath,
		MaxOpenConns:    cfg.DatabasePoolSize,
		MaxIdleConns:    cfg.DatabasePoolSize / 2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	recorder, auditLog, err := buildRecorder(cfg, db, logger)
	if err != nil {
		return err
	}
	if auditLog != nil {
		defer func() { _ = auditLog.Close() }()
	}

	var redisClient *redis.Client
	if cfg.RedisRateLimitOn || (cfg.CacheEnabled && cfg.RedisCacheOn) {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer func() { _ = redisClient.Close() }()
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	if cfg.RedisRateLimitOn {
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RedisKeyPrefix+"ratelimit:", logger)
	}

	var cacheStore cache.Store
	if cfg.CacheEnabled {
		if cfg.RedisCacheOn {
			cacheStore = cache.NewRedisStore(redisClient, cfg.RedisKeyPrefix+"respcache:")
		} else {
			cacheStore = cache.NewMemoryStore()
		}
	}

	profile := ratelimit.DefaultCostProfile()
	if cfg.CostProfilePath != "" {
		profile, err = ratelimit.LoadCostProfile(cfg.CostProfilePath)
		if err != nil {
			return fmt.Errorf("failed to load cost profile: %w", err)
		}
	}

	validator := apikey.NewValidator(db, cfg.StoreTimeout, logger)
	manager := apikey.NewManager(db, recorder)

	pipeline := gateway.NewPipeline(gateway.PipelineConfig{
		Validator: validator,
		Limiter:   limiter,
		Profile:   profile,
		Cache:     cacheStore,
		CacheTTL:  cfg.CacheTTL,
		Fetcher:   seedFetcher(),
		Logger:    logger,
	})

	srv, err := server.New(server.Options{
		Config:    cfg,
		Logger:    logger,
		Manager:   manager,
		Store:     db,
		DB:        db,
		Cache:     cacheStore,
		Recorder:  recorder,
		DataPlane: pipeline.Handler(),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// buildRecorder assembles the audit pipeline from the configured sinks.
func buildRecorder(cfg *config.Config, db *database.DB, logger *zap.Logger) (*audit.Recorder, *audit.FileLogger, error) {
	var sinks []audit.Sink
	var fileLogger *audit.FileLogger

	if cfg.AuditLogFile != "" {
		var err error
		fileLogger, err = audit.NewFileLogger(audit.FileLoggerConfig{
			FilePath:  cfg.AuditLogFile,
			CreateDir: cfg.AuditCreateDir,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		sinks = append(sinks, fileLogger)
	}
	if cfg.AuditStoreInDB {
		sinks = append(sinks, db)
	}

	return audit.NewRecorder(logger, cfg.AuditTimeout, sinks...), fileLogger, nil
}

// seedFetcher loads the sample dataset served until a platform backend
// is attached.
func seedFetcher() *gateway.StaticFetcher {
	fetcher := gateway.NewStaticFetcher()
	fetcher.Load("volunteers", []map[string]any{
		{"name": "Priya Sharma", "location": "Mumbai", "skills": []string{"teaching", "first-aid"}, "totalVolunteerHours": 320},
		{"name": "Arjun Mehta", "location": "Delhi", "skills": []string{"logistics"}, "totalVolunteerHours": 140},
	})
	fetcher.Load("ngos", []map[string]any{
		{"name": "Helping Hands Foundation", "location": "Pune", "category": "education", "members": 240},
	})
	fetcher.Load("events", []map[string]any{
		{"title": "Beach Cleanup Drive", "location": "Chennai", "date": "2026-10-12"},
	})
	fetcher.Load("campaigns", []map[string]any{
		{"title": "Winter Relief 2026", "goal": 500000, "raised": 187500, "category": "disaster-relief"},
	})
	fetcher.Load("communities", []map[string]any{
		{"name": "Green Warriors", "location": "Bengaluru", "category": "environment", "members": 85},
	})
	fetcher.Load("stories", []map[string]any{
		{"title": "From Volunteer to Organizer", "author": "Priya Sharma"},
	})
	return fetcher
}
