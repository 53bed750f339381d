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

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pharmadesk/m/internal/api"
	"pharmadesk/m/internal/auth"
	"pharmadesk/m/internal/config"
	"pharmadesk/m/internal/database"
	"pharmadesk/m/internal/lock"
	"pharmadesk/m/internal/logger"
	"pharmadesk/m/internal/metrics"
	"pharmadesk/m/internal/migrations"
	"pharmadesk/m/internal/payments"
	"pharmadesk/m/internal/seed"
	"pharmadesk/m/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "pharmadesk",
		Short:         "Multi-tenant pharmacy point of sale and inventory server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (default ./config.toml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(cmd.Context(), configPath, func(ctx context.Context, _ *config.Config, db *sqlx.DB, log *zap.Logger) error {
					if err := migrations.Run(ctx, db, log); err != nil {
						return err
					}
					log.Info("database is up to date", zap.Int("version", migrations.Latest()))
					return nil
				})
			},
		},
		newSeedCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "pharmadesk", version)
			},
		},
	)
	return root
}

func newSeedCmd(configPath *string) *cobra.Command {
	var medicines string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed subscription plans and the medicine catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), *configPath, func(ctx context.Context, cfg *config.Config, db *sqlx.DB, log *zap.Logger) error {
				if err := migrations.Run(ctx, db, log); err != nil {
					return err
				}
				return seedAll(ctx, cfg, db, log, medicines)
			})
		},
	}
	cmd.Flags().StringVar(&medicines, "medicines", "", "medicine catalog CSV (default seed.medicine_csv)")
	return cmd
}

func seedAll(ctx context.Context, cfg *config.Config, db *sqlx.DB, log *zap.Logger, medicines string) error {
	if err := seed.Plans(ctx, db); err != nil {
		return err
	}
	if medicines == "" {
		medicines = cfg.Seed.MedicineCSV
	}
	if medicines == "" {
		return nil
	}
	n, err := seed.LoadMedicinesFile(ctx, db, medicines, log)
	if err != nil {
		return err
	}
	log.Info("medicine catalog loaded", zap.String("file", medicines), zap.Int("rows", n))
	return nil
}

func withDB(ctx context.Context, configPath string, fn func(context.Context, *config.Config, *sqlx.DB, *zap.Logger) error) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, cfg, db, log)
}

func serve(parent context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withDB(ctx, configPath, func(ctx context.Context, cfg *config.Config, db *sqlx.DB, log *zap.Logger) error {
		if err := migrations.Run(ctx, db, log); err != nil {
			return err
		}
		if err := seedAll(ctx, cfg, db, log, ""); err != nil {
			return err
		}

		var (
			locks     lock.Locker
			blacklist auth.Blacklist
		)
		if cfg.Redis.Enabled() {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("unable to reach redis at %s: %w", cfg.Redis.Addr, err)
			}
			locks = lock.NewRedis(rdb, 10*time.Second, 5*time.Second)
			blacklist = auth.NewRedisBlacklist(rdb)
			log.Info("using redis for locks and token revocation", zap.String("addr", cfg.Redis.Addr))
		} else {
			locks = lock.NewLocal()
			blacklist = auth.NewMemoryBlacklist()
		}

		handler := api.New(api.Deps{
			Store:     store.New(db, locks, log),
			Tokens:    auth.NewTokens(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL, cfg.JWT.Issuer),
			Blacklist: blacklist,
			Payments:  payments.NewStripe(cfg.Billing, log),
			Metrics:   metrics.New(),
			Logger:    log,
			HTTP:      cfg.HTTP,
			Billing:   cfg.Billing,
		})

		srv := &http.Server{
			Addr:         ":" + cfg.App.Port,
			Handler:      handler.Router(),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info("pharmadesk server starting", zap.String("addr", srv.Addr), zap.String("version", version))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			log.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	})
}
