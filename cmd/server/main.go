package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/geocheckin/geocheckin/internal/api/http"
	"github.com/geocheckin/geocheckin/internal/application/attendance"
	"github.com/geocheckin/geocheckin/internal/application/checkin"
	"github.com/geocheckin/geocheckin/internal/application/query"
	"github.com/geocheckin/geocheckin/internal/application/session"
	"github.com/geocheckin/geocheckin/internal/config"
	domainAttendance "github.com/geocheckin/geocheckin/internal/domain/attendance"
	domainSession "github.com/geocheckin/geocheckin/internal/domain/session"
	"github.com/geocheckin/geocheckin/internal/infrastructure/boltdb"
	"github.com/geocheckin/geocheckin/internal/infrastructure/memory"
	"github.com/geocheckin/geocheckin/internal/infrastructure/mongostore"
	"github.com/geocheckin/geocheckin/internal/infrastructure/postgres"
	"github.com/geocheckin/geocheckin/internal/infrastructure/sse"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Error().Err(err).Msg("failed to close store")
		}
	}()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("store opened")

	// infrastructure
	sseHub := sse.NewHub(httpapi.EncodeRecord)

	// services
	sessionSvc := session.NewService(st.sessions, logger)
	ledger := attendance.NewService(st.attendance, sseHub, logger)
	checkinSvc := checkin.NewService(sessionSvc, ledger, logger)
	querySvc := query.NewService(ledger)

	// API server
	apiServer := httpapi.NewServer(sessionSvc, checkinSvc, querySvc, sseHub, cfg.DefaultHostLocation, cfg.CORSAllowedOrigins, logger)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	httpServer.SetKeepAlivesEnabled(false)
	shutdownErr := make(chan error, 1)
	go func() {
		shutdownErr <- httpServer.Shutdown(ctxShutdown)
	}()

	// streams never go idle on their own; the hub also closes any stream
	// registered after this point
	sseHub.Stop()

	if err := <-shutdownErr; err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}
}

type store struct {
	sessions   domainSession.Repository
	attendance domainAttendance.Repository
	close      func() error
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return &store{
			sessions:   memory.NewSessionRepository(),
			attendance: memory.NewAttendanceRepository(),
			close:      func() error { return nil },
		}, nil

	case config.DriverBolt:
		db, err := boltdb.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return &store{sessions: db.Sessions(), attendance: db.Attendance(), close: db.Close}, nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration error: %w", err)
		}
		return &store{
			sessions:   postgres.NewSessionRepository(pool),
			attendance: postgres.NewAttendanceRepository(pool),
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil

	case config.DriverMongo:
		db, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		return &store{
			sessions:   db.Sessions(),
			attendance: db.Attendance(),
			close: func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return db.Close(ctx)
			},
		}, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}
