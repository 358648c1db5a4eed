package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"milestone-escrow-go/internal/models"
	"milestone-escrow-go/internal/store"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func setupTestDb(t *testing.T) (*Service, func()) {
	t.Helper()
	cfg := models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "escrow.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
	}
	service, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	return service, service.Close
}

func seedProject(t *testing.T, s *Service, analystId string, amounts ...int64) (*models.Project, []models.Milestone) {
	t.Helper()
	ctx := context.Background()
	p := &models.Project{
		Id:             "p-" + analystId,
		ClientId:       "client-1",
		HiredAnalystId: analystId,
		Title:          "Churn analysis",
		Status:         models.ProjectInProgress,
		CreatedAt:      t0,
		UpdatedAt:      t0,
	}
	if err := s.InsertProject(ctx, p); err != nil {
		t.Fatalf("InsertProject failed: %v", err)
	}
	var milestones []models.Milestone
	for i, amount := range amounts {
		m := models.Milestone{
			Id:        p.Id + "-m" + string(rune('1'+i)),
			ProjectId: p.Id,
			Title:     "Deliverable",
			Amount:    decimal.NewFromInt(amount),
			Status:    models.MilestonePending,
			SortOrder: i,
			CreatedAt: t0,
			UpdatedAt: t0,
		}
		if err := s.InsertMilestone(ctx, &m); err != nil {
			t.Fatalf("InsertMilestone failed: %v", err)
		}
		milestones = append(milestones, m)
	}
	return p, milestones
}

func TestMilestoneRoundTrip(t *testing.T) {
	s, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	_, ms := seedProject(t, s, "a-1", 1000000, 250000)

	got, err := s.GetMilestone(ctx, ms[0].Id)
	if err != nil {
		t.Fatalf("GetMilestone failed: %v", err)
	}
	if !got.Amount.Equal(decimal.NewFromInt(1000000)) {
		t.Errorf("expected amount 1000000, got %s", got.Amount)
	}
	if got.Status != models.MilestonePending || got.FundedAt != nil {
		t.Errorf("unexpected milestone state: %+v", got)
	}

	list, err := s.ListProjectMilestones(ctx, got.ProjectId)
	if err != nil {
		t.Fatalf("ListProjectMilestones failed: %v", err)
	}
	if len(list) != 2 || list[0].SortOrder != 0 || list[1].SortOrder != 1 {
		t.Errorf("expected 2 milestones in sort order, got %+v", list)
	}

	if _, err := s.GetMilestone(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMilestone_CompareAndSet(t *testing.T) {
	s, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	_, ms := seedProject(t, s, "a-1", 1000000)
	m := ms[0]

	funded := t0.Add(time.Hour)
	m.Status = models.MilestoneFunded
	m.FundedAt = &funded
	m.UpdatedAt = funded
	if err := s.UpdateMilestone(ctx, &m, models.MilestonePending); err != nil {
		t.Fatalf("UpdateMilestone failed: %v", err)
	}

	// A second writer still expecting PENDING must lose.
	m.Status = models.MilestoneDisputed
	if err := s.UpdateMilestone(ctx, &m, models.MilestonePending); !errors.Is(err, store.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}

	got, _ := s.GetMilestone(ctx, m.Id)
	if got.Status != models.MilestoneFunded || got.FundedAt == nil || !got.FundedAt.Equal(funded) {
		t.Errorf("unexpected milestone after CAS: %+v", got)
	}
}

func TestListDueAutoReleases(t *testing.T) {
	s, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	_, ms := seedProject(t, s, "a-1", 100, 200, 300)
	deadlines := []time.Time{t0.Add(2 * time.Hour), t0.Add(time.Hour), t0.Add(10 * time.Hour)}
	for i := range ms {
		d := deadlines[i]
		ms[i].Status = models.MilestoneSubmitted
		ms[i].AutoReleaseAt = &d
		if err := s.UpdateMilestone(ctx, &ms[i], models.MilestonePending); err != nil {
			t.Fatalf("UpdateMilestone failed: %v", err)
		}
	}

	due, err := s.ListDueAutoReleases(ctx, t0.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("ListDueAutoReleases failed: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due milestones, got %d", len(due))
	}
	if due[0].Id != ms[1].Id || due[1].Id != ms[0].Id {
		t.Errorf("expected earliest deadline first, got %s, %s", due[0].Id, due[1].Id)
	}

	limited, err := s.ListDueAutoReleases(ctx, t0.Add(24*time.Hour), 1)
	if err != nil {
		t.Fatalf("ListDueAutoReleases failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected batch of 1, got %d", len(limited))
	}
}

func TestTransaction_ActiveFundingIsUnique(t *testing.T) {
	s, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	p, ms := seedProject(t, s, "a-1", 1000000)
	newTx := func(id string) *models.Transaction {
		return &models.Transaction{
			Id:          id,
			ProjectId:   p.Id,
			MilestoneId: ms[0].Id,
			Status:      models.TransactionPending,
			GrossAmount: decimal.NewFromInt(1000000),
			Fee:         decimal.Zero,
			NetAmount:   decimal.NewFromInt(1000000),
			CreatedAt:   t0,
			UpdatedAt:   t0,
		}
	}

	first := newTx("order-1")
	if err := s.InsertTransaction(ctx, first); err != nil {
		t.Fatalf("InsertTransaction failed: %v", err)
	}
	if err := s.InsertTransaction(ctx, newTx("order-2")); !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}

	// A failed attempt frees the milestone for a new order.
	first.Status = models.TransactionFailed
	first.UpdatedAt = t0.Add(time.Minute)
	if err := s.UpdateTransaction(ctx, first, models.TransactionPending); err != nil {
		t.Fatalf("UpdateTransaction failed: %v", err)
	}
	if err := s.InsertTransaction(ctx, newTx("order-3")); err != nil {
		t.Fatalf("expected retry funding to succeed, got %v", err)
	}

	active, err := s.GetFundingTransaction(ctx, ms[0].Id)
	if err != nil {
		t.Fatalf("GetFundingTransaction failed: %v", err)
	}
	if active.Id != "order-3" {
		t.Errorf("expected order-3, got %s", active.Id)
	}
}

func TestTransaction_HoldPersistence(t *testing.T) {
	s, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	p, ms := seedProject(t, s, "a-1", 1000000, 500000)
	held := &models.Transaction{
		Id: "order-held", ProjectId: p.Id, MilestoneId: ms[0].Id,
		Status: models.TransactionReleased, GrossAmount: decimal.NewFromInt(1000000),
		Fee: decimal.Zero, NetAmount: decimal.NewFromInt(1000000),
		Hold:      models.HoldUntil(t0.Add(5 * 24 * time.Hour)),
		CreatedAt: t0, UpdatedAt: t0,
	}
	legacy := &models.Transaction{
		Id: "order-legacy", ProjectId: p.Id, MilestoneId: ms[1].Id,
		Status: models.TransactionReleased, GrossAmount: decimal.NewFromInt(500000),
		Fee: decimal.Zero, NetAmount: decimal.NewFromInt(500000),
		Hold:      models.NoHold(),
		CreatedAt: t0.Add(time.Second), UpdatedAt: t0,
	}
	for _, tx := range []*models.Transaction{held, legacy} {
		if err := s.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("InsertTransaction failed: %v", err)
		}
	}

	txs, err := s.ListAnalystTransactions(ctx, "a-1")
	if err != nil {
		t.Fatalf("ListAnalystTransactions failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if until, ok := txs[0].Hold.Until(); !ok || !until.Equal(t0.Add(5*24*time.Hour)) {
		t.Errorf("expected hold until +5d, got %v %v", until, ok)
	}
	if _, ok := txs[1].Hold.Until(); ok {
		t.Error("expected legacy transaction to have no hold")
	}

	other, err := s.ListAnalystTransactions(ctx, "a-2")
	if err != nil {
		t.Fatalf("ListAnalystTransactions failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no transactions for another analyst, got %d", len(other))
	}
}

func TestRecordNotification_Dedup(t *testing.T) {
	s, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	r := models.NotificationReceipt{Key: "order-1:settlement", OrderId: "order-1", TransactionStatus: "settlement", ReceivedAt: t0}
	if err := s.RecordNotification(ctx, r); err != nil {
		t.Fatalf("RecordNotification failed: %v", err)
	}
	if err := s.RecordNotification(ctx, r); !errors.Is(err, models.ErrDuplicateNotification) {
		t.Fatalf("expected ErrDuplicateNotification, got %v", err)
	}
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	s, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(q store.Queries) error {
		if err := q.UpsertAnalystProfile(ctx, &models.AnalystProfile{UserId: "a-1", Name: "Dana", UpdatedAt: t0}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetAnalystProfile(ctx, "a-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected profile write to be rolled back, got %v", err)
	}

	err = s.RunInTx(ctx, func(q store.Queries) error {
		return q.UpsertAnalystProfile(ctx, &models.AnalystProfile{UserId: "a-1", Name: "Dana", UpdatedAt: t0})
	})
	if err != nil {
		t.Fatalf("RunInTx failed: %v", err)
	}
	if _, err := s.GetAnalystProfile(ctx, "a-1"); err != nil {
		t.Errorf("expected committed profile, got %v", err)
	}
}

func TestWithdrawals_NewestFirstWithLimit(t *testing.T) {
	s, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		at := t0.Add(time.Duration(i) * time.Hour)
		w := &models.Withdrawal{
			Id: "w-" + string(rune('a'+i)), AnalystId: "a-1",
			Amount: decimal.NewFromInt(100000), Fee: decimal.Zero, NetAmount: decimal.NewFromInt(100000),
			Status:   models.WithdrawalPending,
			BankName: "BCA", BankAccountNumber: "123", BankAccountName: "Dana",
			CreatedAt: at, UpdatedAt: at,
		}
		if err := s.InsertWithdrawal(ctx, w); err != nil {
			t.Fatalf("InsertWithdrawal failed: %v", err)
		}
	}

	got, err := s.ListAnalystWithdrawals(ctx, "a-1", 2)
	if err != nil {
		t.Fatalf("ListAnalystWithdrawals failed: %v", err)
	}
	if len(got) != 2 || got[0].Id != "w-c" || got[1].Id != "w-b" {
		t.Errorf("expected [w-c w-b], got %+v", got)
	}

	all, err := s.ListAnalystWithdrawals(ctx, "a-1", 0)
	if err != nil {
		t.Fatalf("ListAnalystWithdrawals failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 withdrawals, got %d", len(all))
	}

	w := all[0]
	w.Status = models.WithdrawalProcessing
	if err := s.UpdateWithdrawal(ctx, &w, models.WithdrawalCompleted); !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("expected ErrConcurrentModification for stale status, got %v", err)
	}
}

func TestJournalEntries(t *testing.T) {
	s, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	entries := store.Posting("order-1", store.EventMilestoneFunded, t0, store.Leg{
		SourceType: store.AccountClient, SourceId: "client-1",
		DestinationType: store.AccountEscrow, DestinationId: "m-1",
		Amount: decimal.NewFromInt(1000000),
	})
	if err := s.InsertJournalEntries(ctx, entries); err != nil {
		t.Fatalf("InsertJournalEntries failed: %v", err)
	}

	got, err := s.ListJournalEntries(ctx, "order-1")
	if err != nil {
		t.Fatalf("ListJournalEntries failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if !got[0].DebitAmount.Equal(decimal.NewFromInt(1000000)) || got[0].AccountType != store.AccountClient {
		t.Errorf("unexpected debit leg: %+v", got[0])
	}
	if !got[1].CreditAmount.Equal(decimal.NewFromInt(1000000)) || got[1].AccountType != store.AccountEscrow {
		t.Errorf("unexpected credit leg: %+v", got[1])
	}
}
