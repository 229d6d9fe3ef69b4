package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nidhogg/nuka-recall/internal/api"
	"github.com/nidhogg/nuka-recall/internal/card"
	"github.com/nidhogg/nuka-recall/internal/clock"
	"github.com/nidhogg/nuka-recall/internal/config"
	"github.com/nidhogg/nuka-recall/internal/emotion"
	"github.com/nidhogg/nuka-recall/internal/events"
	"github.com/nidhogg/nuka-recall/internal/fsrs"
	"github.com/nidhogg/nuka-recall/internal/relation"
	"github.com/nidhogg/nuka-recall/internal/review"
	"github.com/nidhogg/nuka-recall/internal/sleep"
	"github.com/nidhogg/nuka-recall/internal/spacing"
	"github.com/nidhogg/nuka-recall/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/nuka-recall.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "load config %s: %v\n", cfgPath, err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	logger.Info("Starting Nuka Recall...", zap.String("config", cfgPath))

	// Scheduler core
	fallback := sleep.DefaultSchedule()
	if cfg.Engine.DefaultSleepTime != "" || cfg.Engine.DefaultWakeTime != "" {
		s, sErr := sleep.NewSchedule(orDefault(cfg.Engine.DefaultSleepTime, "23:00"), orDefault(cfg.Engine.DefaultWakeTime, "07:00"))
		if sErr != nil {
			logger.Fatal("invalid default sleep schedule", zap.Error(sErr))
		}
		fallback = s
	}
	svc, err := review.NewService(review.Config{
		Model: fsrs.Config{
			TargetRetention: cfg.Engine.TargetRetention,
			MaxInterval:     cfg.Engine.MaxIntervalDays,
		},
		Spacing: spacing.Config{
			MinSamples: cfg.Engine.MinContextSamples,
			Window:     cfg.Engine.ContextWindow,
		},
		Emotion:       emotion.Config{Window: cfg.Engine.EmotionWindow},
		Sleep:         fallback,
		ReviewSeconds: cfg.Engine.ReviewSecondsPerCard,
	}, logger)
	if err != nil {
		logger.Fatal("failed to build review service", zap.Error(err))
	}

	ctx := context.Background()

	// Persistence: PostgreSQL first, SQLite as the single-node fallback
	var repo store.Repository
	switch {
	case cfg.Database.Postgres.DSN != "":
		pg, pgErr := store.NewPostgres(ctx, cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
			break
		}
		if mErr := pg.Migrate(ctx, cfg.Database.Postgres.MigrationsDir); mErr != nil {
			logger.Fatal("migration failed", zap.Error(mErr))
		}
		repo = pg
	case cfg.Database.SQLite.Path != "":
		lite, sqlErr := store.OpenSQLite(cfg.Database.SQLite.Path, logger)
		if sqlErr != nil {
			logger.Warn("SQLite unavailable, running without persistence", zap.Error(sqlErr))
			break
		}
		repo = lite
	}

	// Relationship mirror
	var driver neo4j.DriverWithContext
	var graphStore *relation.Neo4jStore
	if cfg.Database.Neo4j.URI != "" {
		d, nErr := relation.Connect(ctx, cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password)
		if nErr != nil {
			logger.Warn("Neo4j unavailable, running without graph mirror", zap.Error(nErr))
		} else {
			driver = d
			graphStore = relation.NewNeo4jStore(d, logger)
		}
	}

	if err := restore(ctx, svc, repo, graphStore, logger); err != nil {
		logger.Fatal("failed to restore state", zap.Error(err))
	}

	// Event stream
	var bus *events.Bus
	if cfg.Database.Redis.URL != "" {
		b, busErr := events.NewBus(ctx, cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without event stream", zap.Error(busErr))
		} else {
			bus = b
		}
	}

	// Background ticks
	clk := clock.New(cfg.Engine.RebuildInterval.Std(), svc.Now, logger)
	clk.AddListener(svc.Context())

	notify := func(ctx context.Context, userID string, due int, now time.Time) error {
		logger.Info("cards due", zap.String("user", userID), zap.Int("due", due))
		if bus == nil {
			return nil
		}
		return bus.Publish(ctx, events.Event{
			Kind:      events.KindDue,
			UserID:    userID,
			DueCount:  due,
			Timestamp: now,
		})
	}
	watcher := review.NewDueWatcher(svc, cfg.Engine.DueWatchInterval.Std(), notify, logger)
	clk.AddListener(watcher)
	clk.Start()

	opts := []api.Option{api.WithDueWatcher(watcher)}
	if repo != nil {
		opts = append(opts, api.WithRepository(repo))
	}
	if graphStore != nil {
		opts = append(opts, api.WithGraphMirror(graphStore))
	}
	if bus != nil {
		opts = append(opts, api.WithPublisher(bus))
	}
	handler := api.NewHandler(svc, logger, opts...)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Nuka Recall listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Nuka Recall...")
	clk.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if bus != nil {
		bus.Close()
	}
	if driver != nil {
		driver.Close(shutdownCtx)
	}
	if repo != nil {
		repo.Close()
	}
}

// restore loads cards, relationships and sleep schedules into svc. Edges
// from Neo4j only replace the repository's copy when they are newer.
func restore(ctx context.Context, svc *review.Service, repo store.Repository, graph *relation.Neo4jStore, logger *zap.Logger) error {
	var (
		cards     []card.Card
		edges     []relation.Edge
		schedules map[string]sleep.Schedule
	)
	if repo != nil {
		var err error
		if cards, err = repo.LoadCards(ctx); err != nil {
			return fmt.Errorf("load cards: %w", err)
		}
		if edges, err = repo.LoadEdges(ctx); err != nil {
			return fmt.Errorf("load edges: %w", err)
		}
		if schedules, err = repo.LoadSleepSchedules(ctx); err != nil {
			return fmt.Errorf("load sleep schedules: %w", err)
		}
	}
	if graph != nil {
		mirrored, err := graph.LoadEdges(ctx)
		if err != nil {
			logger.Warn("failed to load edges from Neo4j", zap.Error(err))
		} else {
			edges = relation.MergeEdges(edges, mirrored)
		}
	}
	return svc.Restore(cards, edges, schedules)
}

func newLogger(level string) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewDevelopmentConfig()
	if lvl > zapcore.DebugLevel {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
