package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"provisionstore/backend/internal/cache"
	"provisionstore/backend/internal/config"
	"provisionstore/backend/internal/domain"
	"provisionstore/backend/internal/httpapi"
	"provisionstore/backend/internal/logger"
	"provisionstore/backend/internal/metrics"
	"provisionstore/backend/internal/service"
	"provisionstore/backend/internal/store"
	"provisionstore/backend/internal/store/memory"
	"provisionstore/backend/internal/store/mongostore"
	pgstore "provisionstore/backend/internal/store/postgres"
)

type closer func(context.Context) error

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "read .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "provisionstore",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})
	ctx := context.Background()

	if warning := pinWarning(cfg.DefaultPIN); warning != "" {
		logg.Warn(ctx, "default pin is weak, change it after first login", errors.New(warning))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	repo, closers, err := openRepository(startCtx, cfg)
	if err != nil {
		logg.Error(ctx, "repository unavailable", err)
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "backend", cfg.Backend()), "repository ready")

	productCache, cacheCloser := openCache(startCtx, cfg, logg)
	if cacheCloser != nil {
		closers = append(closers, cacheCloser)
	}

	svc := service.New(repo, productCache, service.Options{
		ShopName:        cfg.ShopName,
		Location:        cfg.Location(),
		BarcodeCacheTTL: cfg.BarcodeCacheTTL,
		Logger:          logg,
		Metrics:         m,
	})
	if _, err := svc.EnsureSettings(startCtx, domain.Settings{
		PIN:               cfg.DefaultPIN,
		LowStockThreshold: cfg.DefaultLowStockThreshold,
	}); err != nil {
		logg.Error(ctx, "failed to seed settings", err)
		os.Exit(1)
	}

	api := httpapi.New(svc, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		Logger:         logg,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", cfg.Address()), "pos backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-sigCtx.Done():
	case err := <-serveErr:
		if err != nil {
			logg.Error(ctx, "server error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Warn(ctx, "shutdown error", err)
	}
	for _, closeFn := range closers {
		if err := closeFn(shutdownCtx); err != nil {
			logg.Warn(ctx, "close error", err)
		}
	}

	logg.Info(ctx, "server stopped")
}

// openRepository picks MongoDB, then Postgres, then the seeded in-memory
// store. A configured backend that cannot be reached is an error rather than
// a silent fallback.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, []closer, error) {
	switch cfg.Backend() {
	case "mongodb":
		mg, err := mongostore.New(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("mongodb: %w", err)
		}
		return mg, []closer{mg.Close}, nil
	case "postgres":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		return pg, []closer{func(context.Context) error { return pg.Close() }}, nil
	}
	return memory.NewSeeded(), nil, nil
}

// openCache returns the redis barcode cache when it answers a ping, otherwise
// the noop cache. Lookups still work without redis, only slower.
func openCache(ctx context.Context, cfg config.Config, logg *logger.Logger) (cache.ProductCache, closer) {
	if cfg.RedisAddr == "" {
		return cache.NoopProductCache{}, nil
	}
	redisCache := cache.NewRedisProductCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		logg.Warn(ctx, "redis unavailable, using noop cache", err)
		_ = redisCache.Close()
		return cache.NoopProductCache{}, nil
	}
	return redisCache, func(context.Context) error { return redisCache.Close() }
}

// pinWarning flags PINs that are all one digit, run in sequence, or appear
// on a short list of common choices. The result is advisory.
func pinWarning(pin string) string {
	common := map[string]bool{
		"1234": true, "0000": true, "1111": true, "1212": true,
		"4321": true, "2580": true, "6969": true, "1004": true,
	}
	if common[pin] {
		return "common pin"
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return "all digits are the same"
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return "sequential digits"
	}
	return ""
}
