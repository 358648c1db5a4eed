package withdrawal

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"milestone-escrow-go/internal/clock"
	"milestone-escrow-go/internal/database"
	"milestone-escrow-go/internal/locker"
	"milestone-escrow-go/internal/models"
	"milestone-escrow-go/internal/store"

	"github.com/shopspring/decimal"
)

var (
	t0      = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	analyst = models.Actor{UserId: "analyst-1", Role: models.RoleAnalyst}
	admin   = models.Actor{UserId: "ops-1", Role: models.RoleAdmin}
)

func setup(t *testing.T, fees *models.FeeSchedule) (*Service, *database.Service, *clock.Manual) {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "escrow.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	clk := clock.NewManual(t0)
	cfg := models.WithdrawalConfig{Minimum: decimal.NewFromInt(100000), HistoryLimit: 20}
	return NewService(db, locker.NewKeyedMutex(), clk, fees, cfg), db, clk
}

// seedRelease stores a released transaction of net amount for analystId.
func seedRelease(t *testing.T, db *database.Service, analystId, id string, net int64, hold models.Hold) {
	t.Helper()
	ctx := context.Background()
	p := &models.Project{Id: "p-" + id, ClientId: "client-1", HiredAnalystId: analystId,
		Title: "Dashboard", Status: models.ProjectInProgress, CreatedAt: t0, UpdatedAt: t0}
	if err := db.InsertProject(ctx, p); err != nil {
		t.Fatalf("InsertProject failed: %v", err)
	}
	m := &models.Milestone{Id: "m-" + id, ProjectId: p.Id, Title: "Deliverable",
		Amount: decimal.NewFromInt(net), Status: models.MilestoneApproved, CreatedAt: t0, UpdatedAt: t0}
	if err := db.InsertMilestone(ctx, m); err != nil {
		t.Fatalf("InsertMilestone failed: %v", err)
	}
	captured := t0
	tx := &models.Transaction{Id: id, ProjectId: p.Id, MilestoneId: m.Id, Status: models.TransactionReleased,
		GrossAmount: decimal.NewFromInt(net), Fee: decimal.Zero, NetAmount: decimal.NewFromInt(net),
		Hold: hold, CapturedAt: &captured, ReleasedAt: &captured, CreatedAt: t0, UpdatedAt: t0}
	if err := db.InsertTransaction(ctx, tx); err != nil {
		t.Fatalf("InsertTransaction failed: %v", err)
	}
}

func seedProfile(t *testing.T, db *database.Service, p models.AnalystProfile) {
	t.Helper()
	p.UpdatedAt = t0
	if err := db.UpsertAnalystProfile(context.Background(), &p); err != nil {
		t.Fatalf("UpsertAnalystProfile failed: %v", err)
	}
}

func completeProfile(userId string) models.AnalystProfile {
	return models.AnalystProfile{UserId: userId, Name: "Dewi", BankName: "BCA",
		BankAccountNumber: "1234567890", BankAccountName: "Dewi Lestari"}
}

func TestRequestValidation(t *testing.T) {
	svc, db, _ := setup(t, nil)
	seedRelease(t, db, analyst.UserId, "tx-1", 500000, models.NoHold())
	seedProfile(t, db, completeProfile(analyst.UserId))
	seedProfile(t, db, models.AnalystProfile{UserId: "analyst-2", Name: "Budi", BankName: "BNI"})
	seedRelease(t, db, "analyst-2", "tx-2", 500000, models.NoHold())

	tests := []struct {
		name   string
		actor  models.Actor
		amount int64
		want   error
	}{
		{"exceeds balance", analyst, 600000, models.ErrInsufficientBalance},
		{"below minimum", analyst, 50000, models.ErrBelowMinimum},
		{"below minimum is validation", analyst, 50000, models.ErrValidation},
		{"client cannot withdraw", models.Actor{UserId: "client-1", Role: models.RoleClient}, 100000, models.ErrForbidden},
		{"incomplete bank info", models.Actor{UserId: "analyst-2", Role: models.RoleAnalyst}, 100000, models.ErrIncompleteBankInfo},
		{"no profile", models.Actor{UserId: "analyst-3", Role: models.RoleAnalyst}, 100000, models.ErrIncompleteBankInfo},
		{"incomplete bank info before minimum", models.Actor{UserId: "analyst-2", Role: models.RoleAnalyst}, 50000, models.ErrIncompleteBankInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Request(context.Background(), tt.actor, decimal.NewFromInt(tt.amount))
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	history, err := db.ListAnalystWithdrawals(context.Background(), analyst.UserId, 0)
	if err != nil {
		t.Fatalf("ListAnalystWithdrawals failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Expected no withdrawals after rejected requests, got %d", len(history))
	}
}

func TestRequestReservesBalance(t *testing.T) {
	svc, db, _ := setup(t, nil)
	ctx := context.Background()
	seedRelease(t, db, analyst.UserId, "tx-1", 500000, models.NoHold())
	seedProfile(t, db, completeProfile(analyst.UserId))

	w, err := svc.Request(ctx, analyst, decimal.NewFromInt(100000))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if w.Status != models.WithdrawalPending || !w.Fee.IsZero() || !w.NetAmount.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("Unexpected withdrawal: status=%s fee=%s net=%s", w.Status, w.Fee, w.NetAmount)
	}
	if w.BankAccountNumber != "1234567890" {
		t.Errorf("Expected bank snapshot, got %q", w.BankAccountNumber)
	}

	overview, err := svc.Overview(ctx, analyst)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if !overview.Balance.Pending.Equal(decimal.NewFromInt(100000)) || !overview.Balance.Available.Equal(decimal.NewFromInt(400000)) {
		t.Errorf("Unexpected balance pending=%s available=%s", overview.Balance.Pending, overview.Balance.Available)
	}
	if overview.BankInfo == nil || len(overview.Withdrawals) != 1 {
		t.Errorf("Expected bank info and one withdrawal in overview")
	}
}

func TestHeldFundsAreNotWithdrawable(t *testing.T) {
	svc, db, clk := setup(t, nil)
	ctx := context.Background()
	seedRelease(t, db, analyst.UserId, "tx-1", 500000, models.HoldUntil(t0.Add(5*24*time.Hour)))
	seedProfile(t, db, completeProfile(analyst.UserId))

	if _, err := svc.Request(ctx, analyst, decimal.NewFromInt(100000)); !errors.Is(err, models.ErrInsufficientBalance) {
		t.Fatalf("Expected held funds to be unavailable, got %v", err)
	}
	clk.Advance(5 * 24 * time.Hour)
	if _, err := svc.Request(ctx, analyst, decimal.NewFromInt(100000)); err != nil {
		t.Fatalf("Expected funds available at hold maturity, got %v", err)
	}
}

func TestConcurrentRequestsCannotOverdraw(t *testing.T) {
	svc, db, _ := setup(t, nil)
	seedRelease(t, db, analyst.UserId, "tx-1", 500000, models.NoHold())
	seedProfile(t, db, completeProfile(analyst.UserId))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Request(context.Background(), analyst, decimal.NewFromInt(400000))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrInsufficientBalance):
				rejected++
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || rejected != 1 {
		t.Errorf("Expected one success and one rejection, got %d/%d", succeeded, rejected)
	}
}

func TestFeeScheduleApplied(t *testing.T) {
	fees, err := models.NewFeeSchedule([]models.FeeTier{
		{MinAmount: decimal.Zero, Flat: decimal.NewFromInt(2500)},
		{MinAmount: decimal.NewFromInt(1000000), Flat: decimal.NewFromInt(5000)},
	})
	if err != nil {
		t.Fatalf("NewFeeSchedule failed: %v", err)
	}
	svc, db, _ := setup(t, fees)
	seedRelease(t, db, analyst.UserId, "tx-1", 2000000, models.NoHold())
	seedProfile(t, db, completeProfile(analyst.UserId))

	w, err := svc.Request(context.Background(), analyst, decimal.NewFromInt(1500000))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if !w.Fee.Equal(decimal.NewFromInt(5000)) || !w.NetAmount.Equal(decimal.NewFromInt(1495000)) {
		t.Errorf("Unexpected fee=%s net=%s", w.Fee, w.NetAmount)
	}

	// The fee is charged against earnings: the full amount is reserved.
	overview, err := svc.Overview(context.Background(), analyst)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if !overview.Balance.Pending.Equal(decimal.NewFromInt(1500000)) {
		t.Errorf("Expected pending 1500000, got %s", overview.Balance.Pending)
	}
	if !overview.Balance.Available.Equal(decimal.NewFromInt(500000)) {
		t.Errorf("Expected available 500000, got %s", overview.Balance.Available)
	}
	if _, err := svc.Request(context.Background(), analyst, decimal.NewFromInt(600000)); !errors.Is(err, models.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance for 600000, got %v", err)
	}

	entries, err := db.ListJournalEntries(context.Background(), w.Id)
	if err != nil {
		t.Fatalf("ListJournalEntries failed: %v", err)
	}
	for _, e := range entries {
		if e.AccountType == store.AccountAnalyst && !e.DebitAmount.Equal(overview.Balance.Pending) {
			t.Errorf("Journal debits %s from earnings, aggregator reserves %s", e.DebitAmount, overview.Balance.Pending)
		}
	}
}

func TestTransitions(t *testing.T) {
	svc, db, _ := setup(t, nil)
	ctx := context.Background()
	seedRelease(t, db, analyst.UserId, "tx-1", 500000, models.NoHold())
	seedProfile(t, db, completeProfile(analyst.UserId))

	w, err := svc.Request(ctx, analyst, decimal.NewFromInt(200000))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	if _, err := svc.Transition(ctx, analyst, w.Id, models.WithdrawalProcessing, ""); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("Expected analyst to be forbidden, got %v", err)
	}
	if _, err := svc.Transition(ctx, admin, w.Id, models.WithdrawalCompleted, ""); !errors.Is(err, models.ErrInvalidWithdrawalTransition) {
		t.Errorf("Expected PENDING -> COMPLETED rejected, got %v", err)
	}
	if _, err := svc.Transition(ctx, admin, w.Id, models.WithdrawalProcessing, ""); err != nil {
		t.Fatalf("PROCESSING failed: %v", err)
	}
	failed, err := svc.Transition(ctx, admin, w.Id, models.WithdrawalFailed, "account closed")
	if err != nil {
		t.Fatalf("FAILED failed: %v", err)
	}
	if failed.ProcessedAt == nil || failed.FailureReason != "account closed" {
		t.Errorf("Expected processed_at and failure reason set")
	}
	if _, err := svc.Transition(ctx, admin, w.Id, models.WithdrawalCompleted, ""); !errors.Is(err, models.ErrInvalidWithdrawalTransition) {
		t.Errorf("Expected FAILED to be terminal, got %v", err)
	}

	overview, err := svc.Overview(ctx, analyst)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if !overview.Balance.Available.Equal(decimal.NewFromInt(500000)) {
		t.Errorf("Expected failed withdrawal returned to balance, got %s", overview.Balance.Available)
	}
}
