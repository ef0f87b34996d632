package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/storefront-cart/internal/config"
	h "github.com/fjod/storefront-cart/internal/http"
	"github.com/fjod/storefront-cart/internal/notify"
	"github.com/fjod/storefront-cart/internal/poller"
	"github.com/fjod/storefront-cart/internal/service"
	"github.com/fjod/storefront-cart/internal/stock"
	"github.com/fjod/storefront-cart/internal/storage"
	"github.com/fjod/storefront-cart/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("CART_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(logger.Options{Service: "cartd", Env: cfg.AppEnv, Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()
	zap.ReplaceGlobals(zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := connect(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to connect backends", zap.Error(err))
	}
	defer deps.close()

	stockSource, err := stock.NewMemoryStoreFrom(cfg.Stock)
	if err != nil {
		zl.Fatal("invalid stock config", zap.Error(err))
	}

	hub := notify.NewHub()
	engine := service.NewEngine(deps.store, hub, deps.feed, stockSource, zl)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Watch(ctx); err != nil {
			zl.Error("cart feed stopped", zap.Error(err))
		}
	}()

	if len(cfg.Kafka.Brokers) > 0 {
		p := poller.NewPoller(engine, zl, poller.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer p.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx)
		}()
		zl.Info("checkout poller started", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	router := h.NewRouter(
		h.NewCartHandler(engine, cfg.RequestTimeout, zl),
		h.NewEventsHandler(hub, engine, zl),
		zl,
		h.RouterOptions{RequestTimeout: cfg.RequestTimeout, MaxRequestBodySize: cfg.MaxRequestBodySize},
	)

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     otelhttp.NewHandler(router, "cartd"),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No WriteTimeout: the event stream is long-lived. Other routes use the
		// router's request timeout.
	}

	go func() {
		zl.Info("cart engine starting",
			zap.String("port", cfg.HTTPPort),
			zap.String("store", cfg.Store.Backend),
			zap.String("feed", cfg.Feed.Backend),
			zap.String("origin", engine.Origin()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	zl.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
	wg.Wait()
	zl.Info("server exited")
}

type backends struct {
	store   storage.BlobStore
	feed    notify.Feed
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// connect opens the configured store and feed. Remote stores are wrapped in a circuit
// breaker. The Redis client is shared when both store and feed use Redis.
func connect(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*backends, error) {
	b := &backends{}

	var redisClient *redis.Client
	getRedis := func() (*redis.Client, error) {
		if redisClient != nil {
			return redisClient, nil
		}
		client, err := storage.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		redisClient = client
		b.closers = append(b.closers, func() { client.Close() })
		zl.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
		return client, nil
	}

	switch cfg.Store.Backend {
	case "memory":
		b.store = storage.NewMemoryStore()
	case "file":
		fs, err := storage.NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, err
		}
		b.store = fs
	case "redis":
		client, err := getRedis()
		if err != nil {
			b.close()
			return nil, err
		}
		b.store = storage.NewGuarded("redis-store", storage.NewRedisStore(client, cfg.Store.TTL), zl)
	case "mongo":
		db, err := storage.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Client().Disconnect(disconnectCtx)
		})
		ms := storage.NewMongoStore(db, cfg.Store.TTL)
		if err := ms.CreateIndexes(ctx); err != nil {
			b.close()
			return nil, err
		}
		b.store = storage.NewGuarded("mongo-store", ms, zl)
		zl.Info("connected to mongodb", zap.String("database", cfg.Mongo.Database))
	}

	switch cfg.Feed.Backend {
	case "none":
		b.feed = notify.NopFeed{}
	case "redis":
		client, err := getRedis()
		if err != nil {
			b.close()
			return nil, err
		}
		b.feed = notify.NewRedisFeed(client, zl)
	case "nats":
		conn, err := notify.ConnectNATS(cfg.Feed.NATSURL, zl)
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, func() { drainNATS(conn, zl) })
		b.feed = notify.NewNATSFeed(conn, zl)
		zl.Info("connected to nats", zap.String("url", cfg.Feed.NATSURL))
	case "file":
		b.feed = notify.NewFileWatchFeed(cfg.Store.Dir, zl)
	}

	return b, nil
}

func drainNATS(conn *nats.Conn, zl *zap.Logger) {
	if err := conn.Drain(); err != nil {
		zl.Warn("nats drain failed", zap.Error(err))
		conn.Close()
	}
}
