package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"milestone-escrow-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// FeeTierConfig is one row of the withdrawal fee file. Amounts are strings
// so YAML never rounds them through float64.
type FeeTierConfig struct {
	MinAmount string `yaml:"min_amount"`
	Flat      string `yaml:"flat"`
	Percent   string `yaml:"percent"`
}

type FeesConfig struct {
	WithdrawalFees []FeeTierConfig `yaml:"withdrawal_fees"`
}

// LoadFeeSchedule reads the withdrawal fee tiers. A missing file means no
// withdrawal fees.
func LoadFeeSchedule(feesFile string) (*models.FeeSchedule, error) {
	if feesFile == "" {
		return nil, nil
	}

	var feesPath string
	if filepath.IsAbs(feesFile) {
		feesPath = feesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		feesPath = filepath.Join(wd, feesFile)
	}

	data, err := os.ReadFile(feesPath)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Info("No fee file found, withdrawals are free", zap.String("file", feesPath))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", feesFile, err)
	}

	var config FeesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", feesFile, err)
	}

	tiers := make([]models.FeeTier, 0, len(config.WithdrawalFees))
	for i, tier := range config.WithdrawalFees {
		minAmount, err := parseFeeAmount(tier.MinAmount)
		if err != nil {
			return nil, fmt.Errorf("fee tier at index %d min_amount: %w", i, err)
		}
		flat, err := parseFeeAmount(tier.Flat)
		if err != nil {
			return nil, fmt.Errorf("fee tier at index %d flat: %w", i, err)
		}
		percent, err := parseFeeAmount(tier.Percent)
		if err != nil {
			return nil, fmt.Errorf("fee tier at index %d percent: %w", i, err)
		}
		tiers = append(tiers, models.FeeTier{MinAmount: minAmount, Flat: flat, Percent: percent})
	}

	schedule, err := models.NewFeeSchedule(tiers)
	if err != nil {
		return nil, fmt.Errorf("invalid fee schedule in %s: %w", feesFile, err)
	}
	zap.L().Info("Loaded withdrawal fee schedule", zap.String("file", feesPath), zap.Int("tiers", len(tiers)))
	return schedule, nil
}

func parseFeeAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
