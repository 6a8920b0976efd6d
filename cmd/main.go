package main

import (
	"collab-realtime/auth"
	"collab-realtime/contract"
	httpserver "collab-realtime/infrastructure/http"
	"collab-realtime/infrastructure/postgres"
	redisadapter "collab-realtime/infrastructure/redis"
	"collab-realtime/infrastructure/ws"
	"collab-realtime/observability"
	"collab-realtime/repositories"
	"collab-realtime/runtime"
	"collab-realtime/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the node and owns its lifecycle so every defer runs before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	if config.NodeID == "" {
		config.NodeID, _ = os.Hostname()
	}

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Data layer
	store, closeStore, err := openStore(ctx, config, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// 4. Observability
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)
	monitoring := observability.NewMonitoringManager(log, config.MonitoringInterval)

	// 5. Optional Redis: presence mirror and relay between nodes
	var presence contract.PresenceObserver
	var redisClient *redis.Client
	var redisPresence *redisadapter.Presence
	if config.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		defer func() {
			log.Info("Closing Redis client...")
			_ = redisClient.Close()
		}()
		redisPresence = redisadapter.NewPresence(redisClient, config.NodeID, config.PresenceTTL, log)
		presence = redisPresence
	}

	// 6. Runtime
	registry := runtime.NewRegistry()
	notifier := runtime.NewNotifier(log, store, config.FallbackTimeout, metrics, monitoring)
	dispatcher := runtime.NewDispatcher(log, registry, store, notifier, metrics, monitoring, config.MembershipTimeout)
	supervisor := workers.NewSupervisor(log, metrics, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(log, supervisor, registry, dispatcher, presence, metrics, monitoring)
	orchestrator.Add(
		workers.NewKeepaliveWorker(log, orchestrator, config.KeepaliveInterval, config.KeepaliveTimeout,
			config.KeepaliveConcurrency, metrics, monitoring),
		monitoring,
	)
	if redisClient != nil {
		// The node an event enters on pushes to its users and owns the fallbacks
		// of members no other node holds. Relayed events only reach local users.
		dispatcher.WithPresence(config.NodeID, redisPresence)
		orchestrator.
			WithRelay(redisadapter.NewPublisher(redisClient, config.RedisEmitChannel, config.NodeID)).
			Add(redisadapter.NewSubscriber(redisClient, config.RedisEmitChannel, config.NodeID, orchestrator, log))
	}

	// 7. HTTP
	server := httpserver.NewServer(httpserver.Config{
		Host:           config.Host,
		Port:           config.Port,
		AuthRequired:   config.AuthRequired,
		AllowedOrigins: splitList(config.AllowedOrigins),
		Connection: ws.Config{
			BufferSize:    config.ConnectionBufferSize,
			WriteTimeout:  config.WriteTimeout,
			MaxFrameBytes: config.MaxFrameBytes,
		},
		ShutdownTimeout: config.ShutdownTimeout,
	}, log, orchestrator, auth.NewAuthenticator(config.JWTSecret, config.EmitKeyHash), metrics, monitoring, reg)

	if redisPresence != nil {
		server.WithPresence(redisPresence)
	}

	// 8. Run until a signal or the first failure
	log.Info("Starting realtime node", "node_id", config.NodeID, "store", config.StoreDriver, "redis", redisClient != nil)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orchestrator.Start(gctx)
	})
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")
		orchestrator.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Program stopped cleanly")
	return nil
}

func openStore(ctx context.Context, config Config, log *slog.Logger) (contract.Store, func(), error) {
	switch config.StoreDriver {
	case "postgres":
		store, err := postgres.Open(ctx, config.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres opening failed: %w", err)
		}
		return store, func() {
			log.Info("Closing Postgres pool...")
			store.Close()
		}, nil
	default:
		db, err := repositories.OpenBadger(config.BadgerFilepath)
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		closeDB := func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}
		store := repositories.NewStore(db, log, config.LimitNotifications)
		if err := seedStore(store, config.SeedFile, log); err != nil {
			closeDB()
			return nil, nil, err
		}
		return store, closeDB, nil
	}
}

// seedStore imports SEED_FILE into the embedded store. The Badger store has no
// other writer, so a node started without one routes every group event to nobody.
func seedStore(store repositories.Store, path string, log *slog.Logger) error {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("seed opening failed: %w", err)
		}
		defer f.Close()
		counts, err := store.LoadSeed(f)
		if err != nil {
			return fmt.Errorf("seed loading failed: %w", err)
		}
		log.Info("Seed loaded", "file", path, "users", counts.Users, "memberships", counts.Memberships, "messages", counts.Messages)
	}

	hasMembers, err := store.HasMembers()
	if err != nil {
		return fmt.Errorf("store check failed: %w", err)
	}
	if !hasMembers {
		log.Warn("Badger store has no group members, set SEED_FILE or run cmd/seed")
	}
	return nil
}

func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	}))
}
