package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func writeFeesFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fees.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write fees file: %v", err)
	}
	return path
}

func TestLoadFeeSchedule(t *testing.T) {
	path := writeFeesFile(t, `
withdrawal_fees:
  - min_amount: "0"
    flat: "2500"
  - min_amount: "5000000"
    flat: "0"
    percent: "0.1"
`)
	schedule, err := LoadFeeSchedule(path)
	if err != nil {
		t.Fatalf("LoadFeeSchedule failed: %v", err)
	}

	tests := []struct {
		amount int64
		want   int64
	}{
		{100000, 2500},
		{4999999, 2500},
		{5000000, 5000},
		{10000000, 10000},
	}
	for _, tt := range tests {
		if got := schedule.FeeFor(decimal.NewFromInt(tt.amount)); !got.Equal(decimal.NewFromInt(tt.want)) {
			t.Errorf("FeeFor(%d) = %s, want %d", tt.amount, got, tt.want)
		}
	}
}

func TestLoadFeeScheduleMissingFile(t *testing.T) {
	schedule, err := LoadFeeSchedule(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Expected missing file to be allowed, got %v", err)
	}
	if !schedule.FeeFor(decimal.NewFromInt(1000000)).IsZero() {
		t.Error("Expected zero fees without a schedule")
	}
}

func TestLoadFeeScheduleRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not a number", "withdrawal_fees:\n  - min_amount: \"abc\"\n"},
		{"negative flat", "withdrawal_fees:\n  - min_amount: \"0\"\n    flat: \"-1\"\n"},
		{"percent too high", "withdrawal_fees:\n  - min_amount: \"0\"\n    percent: \"100\"\n"},
		{"malformed yaml", "withdrawal_fees: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFeeSchedule(writeFeesFile(t, tt.body)); err == nil {
				t.Error("Expected error")
			}
		})
	}
}
