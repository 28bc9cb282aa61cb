package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/layer-3/keyauth/adapters/events"
	"github.com/layer-3/keyauth/adapters/registry"
	"github.com/layer-3/keyauth/adapters/signature"
	"github.com/layer-3/keyauth/adapters/store"
	"github.com/layer-3/keyauth/adapters/tokenizer"
	"github.com/layer-3/keyauth/config"
	"github.com/layer-3/keyauth/internal/logging"
	"github.com/layer-3/keyauth/ports"
	"github.com/layer-3/keyauth/service"
	transport "github.com/layer-3/keyauth/transport/http"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := logging.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("keyauth stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	nonces, publisher, cleanup, err := backends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	reg, ethClient, err := registry.Dial(ctx, cfg.RPCURL, cfg.RegistryAddress)
	if err != nil {
		return err
	}
	defer ethClient.Close()

	tok, err := tokenizer.NewJWTTokenizer(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(
		tok,
		nonces,
		signature.NewPersonalSignVerifier(),
		reg,
		events.NewWatermillPublisher(publisher),
		service.WithLogger(logger),
		service.WithOracleTimeout(cfg.OracleTimeout),
		service.WithEventsTimeout(cfg.EventsTimeout),
		service.WithEventWindow(cfg.EventWindow),
	)

	gin.SetMode(ginMode(ctx, logger))

	routerCfg := transport.DefaultRouterConfig()
	routerCfg.AllowedOrigins = cfg.AllowedOrigins
	routerCfg.TrustedProxies = cfg.TrustedProxies

	router, err := transport.SetupRouter(authService, routerCfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", srv.Addr,
			"registry", cfg.RegistryAddress.Hex(),
			"rpc", cfg.RPCURL,
			"redis", cfg.RedisURL != "",
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// ginMode keeps gin's debug output only when the logger runs at debug level
func ginMode(ctx context.Context, logger *slog.Logger) string {
	if logger.Enabled(ctx, slog.LevelDebug) {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}

// backends picks the nonce store and event publisher. With REDIS_URL both live
// in Redis; otherwise nonces are kept in memory and events go to an in-process
// channel.
func backends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.NonceStore, message.Publisher, func(), error) {
	wmLogger := watermill.NewSlogLogger(logger)

	if cfg.RedisURL == "" {
		pub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		nonces := store.NewMemoryStore(ctx, cfg.NonceTTL, cfg.NonceTTL)
		return nonces, pub, func() { _ = pub.Close() }, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(opts)

	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, nil, nil, fmt.Errorf("failed to reach Redis: %w", err)
	}

	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, nil, fmt.Errorf("failed to create Redis publisher: %w", err)
	}

	nonces := store.NewRedisStore(redisClient, cfg.NonceTTL)
	cleanup := func() {
		_ = pub.Close()
		_ = nonces.Close()
	}
	return nonces, pub, cleanup, nil
}
