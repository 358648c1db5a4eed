package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Escrow     EscrowConfig
	Withdrawal WithdrawalConfig
	Gateway    GatewayConfig
	Scheduler  SchedulerConfig
	HTTP       HTTPConfig
	Auth       AuthConfig
	Redis      RedisConfig
	Formance   FormanceConfig
	Log        LogConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// EscrowConfig holds the milestone policy. SecurityHold governs withdrawal
// eligibility after release; ReviewWindow governs auto-approval.
type EscrowConfig struct {
	SecurityHold       time.Duration
	ReviewWindow       time.Duration
	MaxRevisions       int
	PlatformFeePercent decimal.Decimal
}

// WithdrawalConfig holds payout request policy
type WithdrawalConfig struct {
	Minimum      decimal.Decimal
	HistoryLimit int
	FeesFile     string
}

// GatewayConfig holds payment gateway callback settings
type GatewayConfig struct {
	ServerKey      string
	HandlerTimeout time.Duration
}

// SchedulerConfig holds auto-release sweep settings
type SchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
	Workers   int
}

// HTTPConfig holds API server settings
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	H2C             bool
}

// AuthConfig holds session verification settings
type AuthConfig struct {
	JWTSecret string
}

// RedisConfig enables distributed locking when Address is set
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	LockTTL  time.Duration
	LockWait time.Duration
}

// FormanceConfig enables the external ledger mirror when StackURL is set
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

type LogConfig struct {
	Development bool
}
