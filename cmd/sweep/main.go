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

package main

import (
	"context"
	"fmt"

	"milestone-escrow-go/internal/common"
	"milestone-escrow-go/internal/config"

	"go.uber.org/zap"
)

// sweep runs one auto-release pass and exits, for cron-driven deployments.
func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	ctx := context.Background()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	result, err := services.AutoReleaser.Sweep(ctx)
	if err != nil {
		zap.L().Fatal("Auto-release sweep failed", zap.Error(err))
	}

	common.PrintHeader("AUTO-RELEASE SWEEP", common.DefaultWidth)
	fmt.Printf("Due milestones:  %d\n", result.Scanned)
	fmt.Printf("Released:        %d\n", result.Released)
	fmt.Printf("Skipped:         %d\n", result.Skipped)
	fmt.Printf("Failed:          %d\n", result.Failed)
	common.PrintSeparator("=", common.DefaultWidth)

	if result.Failed > 0 {
		zap.L().Warn("Some milestones failed to release and will be retried",
			zap.Int("failed", result.Failed))
	}
}
