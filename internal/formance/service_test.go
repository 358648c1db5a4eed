package formance

import (
	"errors"
	"math/big"
	"testing"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
)

// ---------- Unit tests for pure helpers (no Formance stack needed) ----------

func TestFormanceAsset(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"IDR", "IDR/0"},
		{"USD", "USD/2"},
		{"EUR", "EUR/2"}, // default precision
	}
	for _, tt := range tests {
		if got := formanceAsset(tt.symbol); got != tt.want {
			t.Errorf("formanceAsset(%q) = %q, want %q", tt.symbol, got, tt.want)
		}
	}
}

func TestSmallestUnits(t *testing.T) {
	if got := smallestUnits(decimal.NewFromInt(1500000)); got != "1500000" {
		t.Errorf("expected 1500000, got %s", got)
	}
	// Rupiah has no minor unit; fractions are truncated.
	if got := smallestUnits(decimal.RequireFromString("99.9")); got != "99" {
		t.Errorf("expected 99, got %s", got)
	}
}

func TestBigIntToDecimal(t *testing.T) {
	result := bigIntToDecimal(big.NewInt(250000), "IDR")
	if !result.Equal(decimal.NewFromInt(250000)) {
		t.Errorf("expected 250000, got %s", result.String())
	}

	result = bigIntToDecimal(big.NewInt(1050), "USD")
	if !result.Equal(decimal.RequireFromString("10.50")) {
		t.Errorf("expected 10.50, got %s", result.String())
	}

	if result = bigIntToDecimal(nil, "IDR"); !result.IsZero() {
		t.Errorf("expected 0, got %s", result.String())
	}
}

func TestVolumeBalance(t *testing.T) {
	vols := map[string]shared.V2Volume{
		"IDR/0": {Input: big.NewInt(900000), Output: big.NewInt(400000)},
	}
	if got := volumeBalance(vols, "IDR/0"); got == nil || got.Int64() != 500000 {
		t.Errorf("expected 500000, got %v", got)
	}
	if got := volumeBalance(vols, "USD/2"); got != nil {
		t.Errorf("expected nil for missing asset, got %v", got)
	}
}

func TestIsConflictError(t *testing.T) {
	if isConflictError(nil) {
		t.Error("nil should not be a conflict error")
	}
	if isConflictError(errors.New("boom")) {
		t.Error("plain error should not be a conflict error")
	}
	conflict := &sdkerrors.V2ErrorResponse{ErrorCode: shared.V2ErrorsEnumConflict}
	if !isConflictError(conflict) {
		t.Error("expected CONFLICT to be detected")
	}
}
