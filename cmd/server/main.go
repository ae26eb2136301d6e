package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/requestr/api/internal/auth"
	"github.com/requestr/api/internal/client"
	"github.com/requestr/api/internal/config"
	"github.com/requestr/api/internal/handler"
	"github.com/requestr/api/internal/lock"
	"github.com/requestr/api/internal/middleware"
	"github.com/requestr/api/internal/queue"
	"github.com/requestr/api/internal/service"
	"github.com/requestr/api/internal/store/memstore"
	"github.com/requestr/api/internal/store/redisstore"
	"github.com/requestr/api/internal/store/sqlitestore"
	"github.com/requestr/api/internal/worker"
)

// backend is a store that holds both request queues and artist accounts
type backend interface {
	queue.Store
	service.ArtistStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.Server.LogLevel),
	})))

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Warn("redis not available", "addr", cfg.Redis.Addr, "error", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	store, closeStore, err := openStore(cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, err := newLocker(cfg, redisClient)
	if err != nil {
		return err
	}

	policy, err := queue.ParseReorderPolicy(cfg.Queue.ReorderPolicy)
	if err != nil {
		return err
	}
	rejectMode, err := service.ParseRejectMode(cfg.Queue.RejectMode)
	if err != nil {
		return err
	}

	engine := queue.NewEngine(store, locker,
		queue.WithReorderPolicy(policy),
		queue.WithNormalizeAfterReorder(cfg.Queue.NormalizeAfterReorder),
		queue.WithRepairScheduler(worker.NewScheduler(asynqClient)),
	)
	slog.Info("queue engine ready",
		"store", cfg.Store.Driver, "locks", cfg.Queue.LockBackend,
		"reorder_policy", policy, "reject_mode", rejectMode)

	// Track catalog (optional - submissions keep client-supplied metadata without it)
	spotifyClient := client.NewSpotifyClient(&cfg.Spotify)
	var catalog service.TrackCatalog
	if spotifyClient.IsConfigured() {
		catalog = client.NewCachedCatalog(spotifyClient, redisClient, cfg.Redis.Prefix, cfg.Spotify.CacheTTL)
	} else {
		slog.Info("spotify not configured, track lookup disabled")
	}

	// Initialize OIDC JWKS verifier (optional - HMAC tokens always work)
	var tokenVerifier auth.TokenVerifier
	if cfg.OIDC.Issuer != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			slog.Warn("JWKS verifier not initialized", "error", err)
		} else {
			defer jwksVerifier.Close()
			tokenVerifier = jwksVerifier
		}
	}

	validate := validator.New()

	// Initialize services
	artistService := service.NewArtistService(store, cfg.JWT.Secret, cfg.JWT.TTL())
	requestService := service.NewRequestService(engine, artistService, catalog, rejectMode)
	trackService := service.NewTrackService(catalog)

	// Auth middleware
	var requireArtist, requireAnyArtist fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind the gateway: ForwardAuth already verified the token
		slog.Info("gateway mode enabled, using header-based auth")
		requireArtist = middleware.GatewayAuthMiddleware(artistService, true)
		requireAnyArtist = middleware.GatewayAuthMiddleware(artistService, false)
	} else {
		authMiddleware := middleware.NewAuthMiddleware(tokenVerifier, cfg.JWT.Secret, artistService)
		requireArtist = authMiddleware.Authenticate()
		requireAnyArtist = authMiddleware.AuthenticateAnyStatus()
	}

	routes := &handler.Routes{
		Requests:         handler.NewRequestHandler(requestService, validate),
		Artists:          handler.NewArtistHandler(artistService),
		Auth:             handler.NewAuthHandler(artistService, validate, tokenVerifier, cfg.JWT.Secret),
		Tracks:           handler.NewTrackHandler(trackService),
		RequireArtist:    requireArtist,
		RequireAnyArtist: requireAnyArtist,
		Limiter:          middleware.NewRateLimiter(redisClient, cfg.Redis.Prefix),
		SubmitPerMin:     cfg.RateLimit.SubmitPerMin,
		SearchPerMin:     cfg.RateLimit.SearchPerMin,
		Health: func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"status": "ok",
				"services": fiber.Map{
					"store":   cfg.Store.Driver,
					"locks":   cfg.Queue.LockBackend,
					"spotify": spotifyClient.IsConfigured(),
					"oidc":    tokenVerifier != nil,
				},
			})
		},
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Server.Origins(), ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: true,
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Requestr API",
			"version": "1.0.0",
		})
	})
	routes.Register(app)

	// Start Asynq worker server
	workerSrv := newWorkerServer(cfg)
	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeNormalize, worker.NewNormalizeWorker(engine).ProcessTask)
	go func() {
		if err := workerSrv.Run(mux); err != nil {
			slog.Error("asynq worker error", "error", err)
		}
	}()
	defer workerSrv.Shutdown()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	slog.Info("server starting", "addr", addr)
	return app.Listen(addr)
}

// openStore builds the configured backend. The returned func releases it.
func openStore(cfg *config.Config, redisClient *redis.Client) (backend, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		s := memstore.New()
		return s, func() { s.Close() }, nil
	case "redis":
		return redisstore.New(redisClient, cfg.Redis.Prefix), func() {}, nil
	case "sqlite":
		s, err := sqlitestore.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Error("failed to close sqlite store", "error", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func newLocker(cfg *config.Config, redisClient *redis.Client) (queue.Locker, error) {
	switch cfg.Queue.LockBackend {
	case "local", "":
		return lock.NewKeyedMutex(), nil
	case "redis":
		return lock.NewRedisLocker(redisClient, cfg.Redis.Prefix, cfg.Queue.LockTTL, cfg.Queue.LockWait), nil
	}
	return nil, fmt.Errorf("unknown lock backend %q", cfg.Queue.LockBackend)
}

func newWorkerServer(cfg *config.Config) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				worker.QueueRepair: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
