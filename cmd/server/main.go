package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/HammerMeetNail/livebingo/internal/config"
	"github.com/HammerMeetNail/livebingo/internal/database"
	"github.com/HammerMeetNail/livebingo/internal/game"
	"github.com/HammerMeetNail/livebingo/internal/handlers"
	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/middleware"
	"github.com/HammerMeetNail/livebingo/internal/services"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Application error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	logger := logging.New()

	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Server.Debug {
		logger.SetLevel(logging.LevelDebug)
		logging.SetDefaultLevel(logging.LevelDebug)
		logger.Debug("Debug logging enabled", map[string]interface{}{"env": cfg.Server.Environment})
	}

	opts, err := gameOptions(cfg.Game)
	if err != nil {
		return fmt.Errorf("game options: %w", err)
	}

	logger.Info("Starting live bingo server...")

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	// Connect to Redis
	logger.Info("Connecting to Redis", map[string]interface{}{
		"addr": cfg.Redis.Addr(),
	})
	redisDB, err := database.NewRedisDB(startCtx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisDB.Close() }()
	logger.Info("Connected to Redis")

	redisAdapter := services.NewRedisAdapter(redisDB.Client)
	snapshots := services.NewRedisSnapshotSync(redisAdapter, cfg.Redis.SnapshotTTL)
	replicator := services.NewReplicator(snapshots)

	tokens := services.NewHostTokenStore(bcrypt.DefaultCost)
	tokens.SetBackend(redisAdapter, cfg.Redis.SnapshotTTL)

	gameService := services.NewGameService(opts, tokens)
	gameService.SetSnapshotSync(snapshots)
	gameService.SetReplicator(replicator)
	gameService.SetAutoDraw(cfg.Game.AutoDrawInterval)
	gameService.SetEviction(cfg.Game.CompletedRetention, cfg.Game.IdleTimeout)

	var dbPinger handlers.Pinger
	if cfg.History.Enabled {
		logger.Info("Connecting to PostgreSQL", map[string]interface{}{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
		})
		db, err := database.NewPostgresDB(startCtx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		dbPinger = db
		logger.Info("Connected to PostgreSQL")

		if err := migrate(cfg.Database, logger); err != nil {
			return err
		}
		gameService.SetHistory(services.NewPostgresHistory(services.NewPoolAdapter(db.Pool)))
	}

	replicatorCtx, replicatorCancel := context.WithCancel(context.Background())
	go replicator.Run(replicatorCtx)

	gameHandler := handlers.NewGameHandler(gameService)
	streamHandler := handlers.NewStreamHandler(gameService, checkOrigin(cfg.Server.Environment))
	healthHandler := handlers.NewHealthHandler(dbPinger, redisDB, gameService.GameCount)

	markLimiter := middleware.NewRateLimiter(
		redisDB.Client,
		resolveMarkRateLimit(cfg, logger),
		time.Minute,
		"ratelimit:marks:",
		middleware.PlayerKey,
		true,
	).WithLocalFallback()
	requestLogger := middleware.NewRequestLogger(logger)

	mux := http.NewServeMux()
	registerRoutes(mux, gameHandler, streamHandler, healthHandler, markLimiter)

	// Build middleware chain (order matters: outermost first)
	var handler http.Handler = mux
	handler = chimw.Recoverer(handler)
	handler = requestLogger.Apply(handler)
	handler = chimw.RequestID(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Could not gracefully shutdown the server", map[string]interface{}{
				"error": err.Error(),
			})
		}

		gameService.Close()
		replicatorCancel()
		select {
		case <-replicator.Done():
		case <-ctx.Done():
			logger.Warn("Timed out flushing game snapshots")
		}
		close(done)
	}()

	logger.Info("Server listening", map[string]interface{}{
		"addr": addr,
	})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		replicatorCancel()
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("Server stopped")
	return nil
}

func migrate(cfg config.DatabaseConfig, logger *logging.Logger) error {
	logger.Info("Running database migrations...")
	migrator, err := database.NewMigrator(cfg.DSN(), cfg.MigrationsPath)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	if version, dirty, err := migrator.Version(); err == nil {
		logger.Info("Migrations completed", map[string]interface{}{"version": version, "dirty": dirty})
	}
	return migrator.Close()
}

func registerRoutes(mux *http.ServeMux, games *handlers.GameHandler, stream *handlers.StreamHandler, health *handlers.HealthHandler, markLimiter *middleware.RateLimiter) {
	limited := func(h http.HandlerFunc) http.Handler {
		if markLimiter == nil {
			return h
		}
		return markLimiter.Middleware(h)
	}

	mux.HandleFunc("GET /health", health.Health)
	mux.HandleFunc("GET /ready", health.Ready)
	mux.HandleFunc("GET /live", health.Live)

	mux.HandleFunc("POST /api/games", games.Create)
	mux.HandleFunc("GET /api/games/{id}", games.Get)
	mux.HandleFunc("GET /api/games/{id}/history", games.History)
	mux.HandleFunc("POST /api/games/{id}/start", games.Start)
	mux.HandleFunc("POST /api/games/{id}/draw", games.Draw)
	mux.HandleFunc("POST /api/games/{id}/end", games.End)
	mux.HandleFunc("POST /api/games/{id}/players", games.Join)
	mux.HandleFunc("DELETE /api/games/{id}/players/{playerId}", games.Remove)
	mux.Handle("POST /api/games/{id}/players/{playerId}/marks", limited(games.Mark))
	mux.HandleFunc("GET /api/games/{id}/players/{playerId}/win", games.CheckWin)
	mux.Handle("POST /api/games/{id}/players/{playerId}/bingo", limited(games.Claim))
	mux.HandleFunc("GET /api/games/{id}/players/{playerId}/card.png", games.CardImage)

	mux.HandleFunc("GET /ws/games/{id}", stream.Stream)
}

func gameOptions(cfg config.GameConfig) (game.Options, error) {
	patterns, err := game.ParsePatterns(cfg.WinPatterns)
	if err != nil {
		return game.Options{}, err
	}
	removal, err := game.ParseRemovalPolicy(cfg.RemovalPolicy)
	if err != nil {
		return game.Options{}, err
	}

	opts := game.DefaultOptions()
	opts.FreeCenter = cfg.FreeCenter
	opts.Patterns = patterns
	opts.RequireDrawnMarks = cfg.RequireDrawnMarks
	opts.Strict = cfg.StrictTransitions
	opts.Removal = removal
	opts.EndOnWin = cfg.EndOnWin
	return opts, nil
}

func resolveMarkRateLimit(cfg *config.Config, logger *logging.Logger) int64 {
	limit := int64(cfg.Server.MarkRateLimit)
	if limit <= 0 {
		logger.Warn("Invalid MARK_RATE_LIMIT; using default", map[string]interface{}{
			"value": cfg.Server.MarkRateLimit,
			"limit": 120,
		})
		return 120
	}
	logger.Info("Using mark rate limit", map[string]interface{}{"limit": limit})
	return limit
}

// checkOrigin allows any websocket origin in development and only the
// serving host elsewhere.
func checkOrigin(environment string) func(r *http.Request) bool {
	if environment == "development" {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	}
}
