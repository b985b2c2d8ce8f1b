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

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/universal-rate/db"
	"github.com/Clark-Hu/universal-rate/internal/cache"
	"github.com/Clark-Hu/universal-rate/internal/config"
	httpserver "github.com/Clark-Hu/universal-rate/internal/http"
	"github.com/Clark-Hu/universal-rate/internal/identity"
	"github.com/Clark-Hu/universal-rate/internal/logging"
	"github.com/Clark-Hu/universal-rate/internal/repository"
	"github.com/Clark-Hu/universal-rate/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New("ratings-api", logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DBURL, logger); err != nil {
			return err
		}
	}

	deps := httpserver.Dependencies{
		Store: st,
		Repo:  repository.New(st),
	}

	var lookupCache cache.Cache = cache.Nop{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(dbCtx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rc.Close()
		lookupCache = rc
		deps.Cache = rc
		logger.Info().Msg("identity lookups cached in redis")
	}

	byName, err := buildProviders(cfg, lookupCache, logger)
	if err != nil {
		return err
	}
	handleProviders := pick(byName, cfg.HandleProviders)
	profileProviders := pick(byName, cfg.ProfileProviders)
	var castProviders []identity.Provider
	if cfg.NeynarAllowCastURL {
		castProviders = pick(byName, []string{config.ProviderNeynar})
	}

	deps.Resolver = identity.NewResolver(identity.ResolverOptions{
		HandleProviders: handleProviders,
		CastProviders:   castProviders,
		AllowCastURL:    cfg.NeynarAllowCastURL,
		Logger:          logger,
	})
	deps.Directory = identity.NewDirectory(profileProviders, logger)
	deps.Providers = pick(byName, []string{config.ProviderNeynar, config.ProviderWarpcast})

	logger.Info().
		Strs("handle_providers", cfg.HandleProviders).
		Strs("profile_providers", cfg.ProfileProviders).
		Bool("cast_url", cfg.NeynarAllowCastURL).
		Msg("identity resolution configured")

	server := httpserver.New(cfg, deps, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("listening")
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// buildProviders constructs every adapter the configuration allows. Neynar
// needs an API key; without one it is simply absent.
func buildProviders(cfg config.Config, c cache.Cache, logger zerolog.Logger) (map[string]identity.Provider, error) {
	timeout := time.Duration(cfg.IdentityTimeoutSecs) * time.Second
	out := make(map[string]identity.Provider, 2)

	warpcast, err := identity.NewWarpcast(identity.Options{
		BaseURL: cfg.WarpcastBaseURL,
		Timeout: timeout,
		Cache:   c,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init warpcast client: %w", err)
	}
	out[config.ProviderWarpcast] = warpcast

	if cfg.NeynarAPIKey != "" {
		neynar, err := identity.NewNeynar(identity.Options{
			BaseURL: cfg.NeynarBaseURL,
			APIKey:  cfg.NeynarAPIKey,
			Timeout: timeout,
			Cache:   c,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init neynar client: %w", err)
		}
		out[config.ProviderNeynar] = neynar
	}
	return out, nil
}

func pick(byName map[string]identity.Provider, names []string) []identity.Provider {
	out := make([]identity.Provider, 0, len(names))
	for _, name := range names {
		if p, ok := byName[name]; ok {
			out = append(out, p)
		}
	}
	return out
}
