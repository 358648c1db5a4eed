package formance

import (
	"context"
	"fmt"
	"math/big"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AnalystEarnings returns the mirrored earnings balance of an analyst,
// used to reconcile against the local ledger.
func (s *Service) AnalystEarnings(ctx context.Context, analystId string) (decimal.Decimal, error) {
	zap.L().Debug("Getting analyst earnings from Formance", zap.String("analyst_id", analystId))

	vols, err := s.getAccountVolumes(ctx, earningsAccount(analystId))
	if err != nil {
		return decimal.Zero, err
	}
	if bal := volumeBalance(vols, formanceAsset(ledgerAsset)); bal != nil {
		return bigIntToDecimal(bal, ledgerAsset), nil
	}
	return decimal.Zero, nil
}

// AnalystPendingPayouts returns the mirrored reserved-payout balance.
func (s *Service) AnalystPendingPayouts(ctx context.Context, analystId string) (decimal.Decimal, error) {
	vols, err := s.getAccountVolumes(ctx, "analysts:"+analystId+":payouts:pending")
	if err != nil {
		return decimal.Zero, err
	}
	if bal := volumeBalance(vols, formanceAsset(ledgerAsset)); bal != nil {
		return bigIntToDecimal(bal, ledgerAsset), nil
	}
	return decimal.Zero, nil
}

// ---------- helpers ----------

func earningsAccount(analystId string) string {
	return "analysts:" + analystId + ":earnings"
}

// getAccountVolumes fetches volumes for a single account.
func (s *Service) getAccountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", address, err)
	}
	return resp.V2AccountResponse.Data.Volumes, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a *big.Int in smallest-unit to a decimal amount.
func bigIntToDecimal(raw *big.Int, symbol string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(symbol)))
}
