package common

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"milestone-escrow-go/internal/clock"
	"milestone-escrow-go/internal/database"
	"milestone-escrow-go/internal/escrow"
	"milestone-escrow-go/internal/formance"
	"milestone-escrow-go/internal/gateway"
	"milestone-escrow-go/internal/locker"
	"milestone-escrow-go/internal/models"
	"milestone-escrow-go/internal/scheduler"
	"milestone-escrow-go/internal/withdrawal"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService    *database.Service
	Locker       locker.Locker
	Mirror       *formance.Service
	Escrow       *escrow.Service
	Withdrawals  *withdrawal.Service
	Gateway      *gateway.Handler
	AutoReleaser *scheduler.AutoReleaser
	redis        redis.UniversalClient
}

func InitializeLogger(cfg models.LogConfig) (*zap.Logger, func()) {
	build := zap.NewProduction
	if cfg.Development {
		build = zap.NewDevelopment
	}
	logger, err := build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the store, lock backend, optional ledger mirror
// and every domain service from cfg.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	services := &Services{DbService: dbService}

	if err := services.initLocker(ctx, cfg.Redis); err != nil {
		services.Close()
		return nil, err
	}

	var escrowOpts []escrow.Option
	var withdrawalOpts []withdrawal.Option
	if cfg.Formance.StackURL != "" {
		mirror, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.Mirror = mirror
		escrowOpts = append(escrowOpts, escrow.WithMirror(mirror))
		withdrawalOpts = append(withdrawalOpts, withdrawal.WithMirror(mirror))
	} else {
		zap.L().Info("Formance mirror disabled, local journal only")
	}

	fees, err := LoadFeeSchedule(cfg.Withdrawal.FeesFile)
	if err != nil {
		services.Close()
		return nil, err
	}

	clk := clock.Real()
	services.Escrow = escrow.NewService(dbService, services.Locker, clk, cfg.Escrow, escrowOpts...)
	services.Withdrawals = withdrawal.NewService(dbService, services.Locker, clk, fees, cfg.Withdrawal, withdrawalOpts...)
	services.Gateway = gateway.NewHandler(services.Escrow, clk, cfg.Gateway)
	services.AutoReleaser = scheduler.NewAutoReleaser(scheduler.AutoReleaserConfig{
		Store:     dbService,
		Approver:  services.Escrow,
		Clock:     clk,
		Interval:  cfg.Scheduler.Interval,
		BatchSize: cfg.Scheduler.BatchSize,
		Workers:   cfg.Scheduler.Workers,
	})

	return services, nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) initLocker(ctx context.Context, cfg models.RedisConfig) error {
	if cfg.Address == "" {
		zap.L().Info("Using in-process locks")
		cs.Locker = locker.NewKeyedMutex()
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("unable to reach redis at %s: %w", cfg.Address, err)
	}

	zap.L().Info("Using redis distributed locks", zap.String("address", cfg.Address))
	cs.redis = rdb
	cs.Locker = locker.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
	return nil
}

func (cs *Services) Close() {
	if cs.redis != nil {
		if err := cs.redis.Close(); err != nil {
			zap.L().Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
