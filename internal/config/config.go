/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"milestone-escrow-go/internal/models"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

func Load() (*models.Config, error) {
	var (
		connMaxLifetime, connMaxIdleTime, pingTimeout, busyTimeout time.Duration
		securityHold, reviewWindow, handlerTimeout                 time.Duration
		sweepInterval, readTimeout, writeTimeout, shutdownTimeout  time.Duration
		lockTTL, lockWait                                          time.Duration
	)

	var err error
	if connMaxLifetime, err = getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute); err != nil {
		return nil, err
	}
	if connMaxIdleTime, err = getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second); err != nil {
		return nil, err
	}
	if pingTimeout, err = getEnvDuration("DB_PING_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if busyTimeout, err = getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if securityHold, err = getEnvDuration("SECURITY_HOLD_DURATION", 5*day); err != nil {
		return nil, err
	}
	if reviewWindow, err = getEnvDuration("REVIEW_WINDOW", 14*day); err != nil {
		return nil, err
	}
	if handlerTimeout, err = getEnvDuration("GATEWAY_HANDLER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if sweepInterval, err = getEnvDuration("SCHEDULER_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if readTimeout, err = getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if writeTimeout, err = getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if shutdownTimeout, err = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if lockTTL, err = getEnvDuration("LOCK_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if lockWait, err = getEnvDuration("LOCK_WAIT", 5*time.Second); err != nil {
		return nil, err
	}

	platformFee, err := getEnvDecimal("PLATFORM_FEE_PERCENT", decimal.Zero)
	if err != nil {
		return nil, err
	}
	minimum, err := getEnvDecimal("WITHDRAWAL_MINIMUM", decimal.NewFromInt(100000))
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "escrow.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			BusyTimeout:     busyTimeout,
		},
		Escrow: models.EscrowConfig{
			SecurityHold:       securityHold,
			ReviewWindow:       reviewWindow,
			MaxRevisions:       getEnvInt("MAX_REVISIONS", 2),
			PlatformFeePercent: platformFee,
		},
		Withdrawal: models.WithdrawalConfig{
			Minimum:      minimum,
			HistoryLimit: getEnvInt("WITHDRAWAL_HISTORY_LIMIT", 20),
			FeesFile:     getEnvString("FEES_FILE", "fees.yaml"),
		},
		Gateway: models.GatewayConfig{
			ServerKey:      os.Getenv("GATEWAY_SERVER_KEY"),
			HandlerTimeout: handlerTimeout,
		},
		Scheduler: models.SchedulerConfig{
			Interval:  sweepInterval,
			BatchSize: getEnvInt("SCHEDULER_BATCH_SIZE", 100),
			Workers:   getEnvInt("SCHEDULER_WORKERS", 4),
		},
		HTTP: models.HTTPConfig{
			Addr:            getEnvString("HTTP_ADDR", ":8080"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			H2C:             getEnvBool("HTTP_H2C", false),
		},
		Auth: models.AuthConfig{
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		},
		Redis: models.RedisConfig{
			Address:  os.Getenv("REDIS_ADDRESS"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			LockTTL:  lockTTL,
			LockWait: lockWait,
		},
		Formance: models.FormanceConfig{
			StackURL:     os.Getenv("FORMANCE_STACK_URL"),
			ClientID:     os.Getenv("FORMANCE_CLIENT_ID"),
			ClientSecret: os.Getenv("FORMANCE_CLIENT_SECRET"),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "milestone-escrow"),
		},
		Log: models.LogConfig{
			Development: getEnvBool("LOG_DEVELOPMENT", false),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	if cfg.Escrow.SecurityHold < 0 {
		return fmt.Errorf("SECURITY_HOLD_DURATION cannot be negative, got %v", cfg.Escrow.SecurityHold)
	}
	if cfg.Escrow.ReviewWindow <= 0 {
		return fmt.Errorf("REVIEW_WINDOW must be positive, got %v", cfg.Escrow.ReviewWindow)
	}
	if cfg.Escrow.MaxRevisions < 0 {
		return fmt.Errorf("MAX_REVISIONS cannot be negative, got %d", cfg.Escrow.MaxRevisions)
	}
	if cfg.Escrow.PlatformFeePercent.IsNegative() || cfg.Escrow.PlatformFeePercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("PLATFORM_FEE_PERCENT must be in [0, 100), got %s", cfg.Escrow.PlatformFeePercent)
	}
	if !cfg.Withdrawal.Minimum.IsPositive() {
		return fmt.Errorf("WITHDRAWAL_MINIMUM must be positive, got %s", cfg.Withdrawal.Minimum)
	}
	if cfg.Scheduler.Interval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL must be positive, got %v", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.Workers <= 0 {
		return fmt.Errorf("SCHEDULER_WORKERS must be positive, got %d", cfg.Scheduler.Workers)
	}
	if cfg.Gateway.HandlerTimeout <= 0 {
		return fmt.Errorf("GATEWAY_HANDLER_TIMEOUT must be positive, got %v", cfg.Gateway.HandlerTimeout)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
