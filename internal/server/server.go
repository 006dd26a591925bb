package server

import (
	"context"
	"sync"

	"backend-stride/internal/auth"
	"backend-stride/internal/config"
	"backend-stride/internal/history"
	"backend-stride/internal/stream"
	"backend-stride/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Runs     *tracking.Registry
	Archiver *history.Archiver

	repo   *history.Repository
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	opts := tracking.Options{
		MinSeparationM: cfg.MinSampleSeparationM,
		StallAfter:     cfg.SignalStall(),
		EventBuffer:    cfg.EventBufferSize,
		Hub:            s.Stream,
	}
	// A nil pool must not end up inside a non-nil interface.
	if db != nil {
		s.repo = history.NewRepository(db)
		s.Archiver = history.NewArchiver(s.repo, cfg.ArchiveQueueSize)
		opts.Archiver = s.Archiver
		opts.Loader = s.repo
	}
	s.Runs = tracking.NewRegistry(opts)

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{"status": "ok", "trackers": s.Runs.Len()}
		if s.Archiver != nil {
			body["archive_dropped"] = s.Archiver.Dropped()
		}
		return c.JSON(body)
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	tracking.RegisterRoutes(s.App.Group("/runs"), s.Runs, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware)
}

// Migrate creates the runs table when a database is configured.
func (s *Server) Migrate(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.Migrate(ctx)
}

// Start launches the archive writer and the signal watchdog.
func (s *Server) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.Archiver != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Archiver.Run(ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Runs.RunWatchdog(ctx, s.Cfg.WatchdogInterval())
	}()
}

// Stop closes every tracker, so in-progress runs are archived, then waits for
// the background workers to drain.
func (s *Server) Stop() {
	s.Runs.Close()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.Stream.Close()
}
