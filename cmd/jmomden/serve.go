package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xmlongan/jmomden/internal/cache"
	httpapi "github.com/xmlongan/jmomden/internal/interfaces/http"
	"github.com/xmlongan/jmomden/internal/metrics"
	"github.com/xmlongan/jmomden/internal/persistence/postgres"
	"github.com/xmlongan/jmomden/internal/service"
)

const shutdownTimeout = 15 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	var (
		host    string
		port    int
		preload modelFlags
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve models over HTTP and websocket",
		Long: `Start the HTTP API. Models are built with POST /models and evaluated with
POST /models/{id}/joint, POST /models/{id}/conditional or the websocket
stream at /models/{id}/stream. Prometheus metrics are exposed at /metrics.

With a cache or database configured, built models survive restarts and are
shared between instances.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *c.cfg
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			c.cfg = &cfg
			return c.serve(cmd.Context(), &preload)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides config)")
	preload.register(cmd.Flags())
	return cmd
}

func (c *cli) serve(ctx context.Context, preload *modelFlags) error {
	cfg := c.cfg
	m := metrics.New()
	opts := []service.Option{
		service.WithLogger(log.Logger),
		service.WithMetrics(m),
		service.WithDefaults(cfg.Model.Degree, cfg.Model.Family),
	}

	if cfg.Cache.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr, DB: cfg.Cache.DB})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Cache.Addr).Msg("redis unreachable, circuit breaker will guard calls")
		}
		opts = append(opts, service.WithCache(cache.NewRedis(client, cfg.Cache.Prefix, cache.WithLogger(log.Logger)), cfg.Cache.TTL))
		log.Info().Str("addr", cfg.Cache.Addr).Msg("redis snapshot cache enabled")
	} else {
		opts = append(opts, service.WithCache(cache.NewMemory(), cfg.Cache.TTL))
	}

	var serverOpts []httpapi.Option
	if cfg.Database.Enabled {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		opts = append(opts, service.WithStore(postgres.NewSnapshotRepo(db, cfg.Database.QueryTimeout)))
		serverOpts = append(serverOpts, httpapi.WithHealth(postgres.NewHealthChecker(db, cfg.Database.QueryTimeout)))
		logPool(db)
	}

	reg := service.NewRegistry(opts...)
	if err := c.preload(ctx, reg, preload); err != nil {
		return err
	}

	serverOpts = append(serverOpts,
		httpapi.WithMetrics(m),
		httpapi.WithLogger(log.Logger),
		httpapi.WithVersion(version),
		httpapi.WithModelDefaults(cfg.Model.Degree, cfg.Model.Family),
	)
	srv := httpapi.NewServer(cfg.Server, reg, serverOpts...)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// preload builds the configured moments file, if any, so it is ready at startup
func (c *cli) preload(ctx context.Context, reg *service.Registry, mf *modelFlags) error {
	if mf.moments == "" && c.cfg.Model.MomentsFile == "" {
		return nil
	}
	model, err := c.resolve(mf)
	if err != nil {
		return err
	}
	built, err := reg.Build(ctx, service.BuildRequest{
		Moments: model.Table,
		Degree:  model.Degree,
		Family:  model.Family,
	})
	if err != nil {
		return fmt.Errorf("preload model: %w", err)
	}
	log.Info().Str("model_id", built.ID).Int("degree", built.Degree).Msg("model preloaded")
	return nil
}

func logPool(db *sqlx.DB) {
	st := db.Stats()
	log.Info().
		Int("max_open", st.MaxOpenConnections).
		Int("open", st.OpenConnections).
		Msg("postgres snapshot store enabled")
}
