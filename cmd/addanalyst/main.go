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
	"flag"
	"fmt"
	"regexp"
	"strings"
	"time"

	"milestone-escrow-go/internal/api"
	"milestone-escrow-go/internal/common"
	"milestone-escrow-go/internal/config"
	"milestone-escrow-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var accountNumberRegex = regexp.MustCompile(`^[0-9]{6,20}$`)

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

// validateBank accepts an all-empty destination so profiles can be created
// before bank details are known.
func validateBank(bankName, accountNumber, accountName string) error {
	if bankName == "" && accountNumber == "" && accountName == "" {
		return nil
	}
	if accountNumber != "" && !accountNumberRegex.MatchString(accountNumber) {
		return fmt.Errorf("invalid account number: %s", accountNumber)
	}
	return nil
}

func main() {
	ctx := context.Background()

	idFlag := flag.String("id", "", "Analyst user id (generated when empty)")
	nameFlag := flag.String("name", "", "Analyst's full name (required)")
	bankFlag := flag.String("bank", "", "Bank name")
	accountFlag := flag.String("account-number", "", "Bank account number")
	holderFlag := flag.String("account-name", "", "Bank account holder name")
	tokenFlag := flag.Duration("token-ttl", 0, "Also print a session token valid for this long (requires AUTH_JWT_SECRET)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateBank(*bankFlag, *accountFlag, *holderFlag); err != nil {
		zap.L().Fatal("Invalid bank details", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	userId := strings.TrimSpace(*idFlag)
	if userId == "" {
		userId = uuid.New().String()
	}

	profile := &models.AnalystProfile{
		UserId:            userId,
		Name:              *nameFlag,
		BankName:          *bankFlag,
		BankAccountNumber: *accountFlag,
		BankAccountName:   *holderFlag,
		UpdatedAt:         time.Now().UTC(),
	}
	if err := dbService.UpsertAnalystProfile(ctx, profile); err != nil {
		zap.L().Fatal("Failed to save analyst profile", zap.Error(err))
	}

	fmt.Println()
	common.PrintHeader("ANALYST SAVED", common.DefaultWidth)
	fmt.Printf("ID:       %s\n", profile.UserId)
	fmt.Printf("Name:     %s\n", profile.Name)
	fmt.Printf("Bank:     %s\n", profile.BankName)
	fmt.Printf("Account:  %s (%s)\n", profile.BankAccountNumber, profile.BankAccountName)
	common.PrintSeparator("=", common.DefaultWidth)

	if !profile.BankInfoComplete() {
		fmt.Println("Bank details are incomplete; withdrawals stay blocked until they are set")
	}

	if *tokenFlag > 0 {
		token, err := api.IssueToken(cfg.Auth.JWTSecret, models.Actor{UserId: profile.UserId, Role: models.RoleAnalyst}, *tokenFlag)
		if err != nil {
			zap.L().Fatal("Failed to issue session token", zap.Error(err))
		}
		fmt.Printf("Token:    %s\n", token)
	}
	fmt.Println()

	zap.L().Info("Analyst profile saved", zap.String("user_id", profile.UserId))
}
