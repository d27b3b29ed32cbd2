// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/blobcache"
	"github.com/C-0711/Vaultclaw/pkg/crypt"
	"github.com/C-0711/Vaultclaw/pkg/logger"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db/memory"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db/postgres"
	"github.com/C-0711/Vaultclaw/pkg/quota"
	"github.com/C-0711/Vaultclaw/pkg/storage"
	"github.com/C-0711/Vaultclaw/pkg/vault"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServeOpts holds the serve command configuration
type ServeOpts struct {
	LogLevel    string
	MetricsPort int
	DataDir     string

	DBDriver       string
	DBDSN          string
	DBMaxOpenConns int
	DBMaxIdleConns int

	MasterKey     string
	TokenSecret   string
	SpaceQuota    string
	EnforceAccess bool

	CacheRedisEnabled  bool
	CacheRedisAddr     string
	CacheRedisPassword string
	CacheRedisDB       int
	CacheTTL           time.Duration

	GCInterval    time.Duration
	GCGracePeriod time.Duration
	GCRetention   time.Duration
	GCBatchSize   int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vault storage node",
	Long: `Start a Vaultclaw storage node: chunk store, object layer, version
graph and review engine over the configured metadata database, with the
garbage collection sweeps running in the background.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("log_level", "info", "Log level (trace, debug, info, warn, error)")
	f.Int("metrics_port", 9600, "HTTP port for Prometheus metrics and health")
	f.String("data_dir", "/var/lib/vaultclaw/chunks", "Directory for encrypted chunk payloads")

	f.String("db_driver", "postgres", "Metadata database driver (memory, postgres)")
	f.String("db_dsn", "", "Database connection string")
	f.Int("db_max_open_conns", 25, "Maximum open database connections")
	f.Int("db_max_idle_conns", 5, "Maximum idle database connections")

	f.String("master_key", "", "Hex-encoded 32-byte chunk encryption key (or set MASTER_KEY)")
	f.String("token_secret", "", "Secret for signing scoped access tokens (or set TOKEN_SECRET)")
	f.String("space_quota", "0", "Per-space storage quota, e.g. '50GB'; 0 disables enforcement")
	f.Bool("enforce_access", true, "Gate every operation on the calling actor's memberships")

	f.Bool("cache_redis_enabled", false, "Enable the Redis chunk read cache")
	f.String("cache_redis_addr", "localhost:6379", "Redis address for the chunk cache")
	f.String("cache_redis_password", "", "Redis password")
	f.Int("cache_redis_db", 0, "Redis database number")
	f.Duration("cache_ttl", time.Hour, "Chunk cache entry TTL")

	f.Duration("gc_interval", 5*time.Minute, "How often the GC sweeps run")
	f.Duration("gc_grace_period", time.Hour, "How long a chunk sits at zero refs before collection")
	f.Duration("gc_retention", 30*24*time.Hour, "How long tombstoned versions stay before purge")
	f.Int("gc_batch_size", 1000, "Rows processed per GC sweep")

	viper.BindPFlags(f)
}

func loadServeOpts() *ServeOpts {
	return &ServeOpts{
		LogLevel:           viper.GetString("log_level"),
		MetricsPort:        viper.GetInt("metrics_port"),
		DataDir:            viper.GetString("data_dir"),
		DBDriver:           viper.GetString("db_driver"),
		DBDSN:              viper.GetString("db_dsn"),
		DBMaxOpenConns:     viper.GetInt("db_max_open_conns"),
		DBMaxIdleConns:     viper.GetInt("db_max_idle_conns"),
		MasterKey:          viper.GetString("master_key"),
		TokenSecret:        viper.GetString("token_secret"),
		SpaceQuota:         viper.GetString("space_quota"),
		EnforceAccess:      viper.GetBool("enforce_access"),
		CacheRedisEnabled:  viper.GetBool("cache_redis_enabled"),
		CacheRedisAddr:     viper.GetString("cache_redis_addr"),
		CacheRedisPassword: viper.GetString("cache_redis_password"),
		CacheRedisDB:       viper.GetInt("cache_redis_db"),
		CacheTTL:           viper.GetDuration("cache_ttl"),
		GCInterval:         viper.GetDuration("gc_interval"),
		GCGracePeriod:      viper.GetDuration("gc_grace_period"),
		GCRetention:        viper.GetDuration("gc_retention"),
		GCBatchSize:        viper.GetInt("gc_batch_size"),
	}
}

// openDB builds the metadata database for the configured driver and runs
// migrations.
func openDB(ctx context.Context, opts *ServeOpts) (db.DB, error) {
	switch db.Driver(opts.DBDriver) {
	case db.DriverMemory:
		return memory.New(), nil
	case db.DriverPostgres:
		cfg := db.DefaultConfig(db.DriverPostgres)
		cfg.DSN = opts.DBDSN
		cfg.MaxOpenConns = opts.DBMaxOpenConns
		cfg.MaxIdleConns = opts.DBMaxIdleConns
		pg, err := postgres.New(cfg)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", opts.DBDriver)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	loadConfiguration("vaultclaw")
	opts := loadServeOpts()

	if level, err := zerolog.ParseLevel(opts.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mdb, err := openDB(ctx, opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("open metadata database")
	}

	rawKey, err := hex.DecodeString(opts.MasterKey)
	if err != nil || len(rawKey) != crypt.KeySize {
		logger.Fatal().Msgf("master_key must be %d hex-encoded bytes", crypt.KeySize)
	}

	var backend storage.Backend
	fsBackend, err := storage.NewFS(opts.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", opts.DataDir).Msg("open chunk store")
	}
	backend = fsBackend

	if opts.CacheRedisEnabled {
		client := redis.NewClient(&redis.Options{
			Addr:     opts.CacheRedisAddr,
			Password: opts.CacheRedisPassword,
			DB:       opts.CacheRedisDB,
		})
		backend, err = blobcache.New(blobcache.Config{
			Backend: backend,
			Client:  client,
			TTL:     opts.CacheTTL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("build chunk cache")
		}
		logger.Info().Str("addr", opts.CacheRedisAddr).Msg("chunk read cache enabled")
	}

	var reserver quota.Reserver
	quotaBytes, err := humanize.ParseBytes(opts.SpaceQuota)
	if err != nil {
		logger.Fatal().Err(err).Str("space_quota", opts.SpaceQuota).Msg("parse space quota")
	}
	if quotaBytes > 0 {
		reserver = quota.NewStaticReserver(quotaBytes)
		logger.Info().Str("quota", humanize.IBytes(quotaBytes)).Msg("per-space quota enforced")
	}

	node, err := vault.New(vault.Config{
		DB:            mdb,
		Backend:       backend,
		Keys:          crypt.StaticKeyProvider(rawKey),
		TokenSecret:   []byte(opts.TokenSecret),
		Reserver:      reserver,
		EnforceAccess: opts.EnforceAccess,
		GCInterval:    opts.GCInterval,
		GCGracePeriod: opts.GCGracePeriod,
		GCRetention:   opts.GCRetention,
		GCBatchSize:   opts.GCBatchSize,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("build vault node")
	}
	defer node.Close()

	node.Start(ctx)

	// Surface new-content events in the log until a pipeline subscribes
	eventCh, cancelEvents := node.Events.Subscribe(256)
	defer cancelEvents()
	go func() {
		for ev := range eventCh {
			logger.Debug().
				Str("space", ev.Space.String()).
				Str("path", ev.Path).
				Str("size", humanize.IBytes(ev.Size)).
				Msg("file version created")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.MetricsPort),
		Handler: mux,
	}
	go func() {
		logger.Info().Int("port", opts.MetricsPort).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server")
		}
	}()

	logger.Info().
		Str("db_driver", opts.DBDriver).
		Str("data_dir", opts.DataDir).
		Msg("vault storage node started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}
