package escrow

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

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

var (
	client  = models.Actor{UserId: "client-1", Role: models.RoleClient}
	analyst = models.Actor{UserId: "analyst-1", Role: models.RoleAnalyst}
)

type recordingMirror struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingMirror) record(e string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingMirror) MilestoneFunded(context.Context, *models.Transaction, string) error {
	return r.record(store.EventMilestoneFunded)
}
func (r *recordingMirror) MilestoneReleased(context.Context, *models.Transaction, string) error {
	return r.record(store.EventMilestoneReleased)
}
func (r *recordingMirror) MilestoneRefunded(context.Context, *models.Transaction, string) error {
	return r.record(store.EventMilestoneRefunded)
}
func (r *recordingMirror) WithdrawalRequested(context.Context, *models.Withdrawal) error { return nil }
func (r *recordingMirror) WithdrawalCompleted(context.Context, *models.Withdrawal) error { return nil }
func (r *recordingMirror) WithdrawalFailed(context.Context, *models.Withdrawal) error    { return nil }

type fixture struct {
	svc    *Service
	db     *database.Service
	clock  *clock.Manual
	mirror *recordingMirror
}

func setup(t *testing.T) *fixture {
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
	mirror := &recordingMirror{}
	cfg := models.EscrowConfig{
		SecurityHold:       5 * 24 * time.Hour,
		ReviewWindow:       14 * 24 * time.Hour,
		MaxRevisions:       2,
		PlatformFeePercent: decimal.NewFromInt(10),
	}
	svc := NewService(db, locker.NewKeyedMutex(), clk, cfg, WithMirror(mirror))
	return &fixture{svc: svc, db: db, clock: clk, mirror: mirror}
}

func (f *fixture) project(t *testing.T, amounts ...int64) []models.Milestone {
	t.Helper()
	in := models.ProposalAcceptance{AnalystId: analyst.UserId, Title: "Churn model"}
	for i, a := range amounts {
		in.Milestones = append(in.Milestones, models.MilestoneDraft{
			Title: "Deliverable", Amount: decimal.NewFromInt(a), SortOrder: i,
		})
	}
	_, ms, err := f.svc.AcceptProposal(context.Background(), client, in)
	if err != nil {
		t.Fatalf("AcceptProposal failed: %v", err)
	}
	return ms
}

func (f *fixture) fund(t *testing.T, milestoneId string) *models.FundingResult {
	t.Helper()
	ctx := context.Background()
	res, err := f.svc.FundMilestone(ctx, client, milestoneId)
	if err != nil {
		t.Fatalf("FundMilestone failed: %v", err)
	}
	err = f.svc.ApplyPaymentEvent(ctx, PaymentEvent{
		OrderId:       res.OrderId,
		Outcome:       OutcomeCaptured,
		PaymentMethod: "bank_transfer",
		GrossAmount:   res.GrossAmount,
		Receipt:       receipt(res.OrderId, "settlement"),
	})
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	return res
}

func (f *fixture) submitted(t *testing.T, amount int64) (models.Milestone, *models.FundingResult) {
	t.Helper()
	ctx := context.Background()
	m := f.project(t, amount)[0]
	res := f.fund(t, m.Id)
	if _, err := f.svc.Start(ctx, analyst, m.Id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := f.svc.Submit(ctx, analyst, m.Id); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return m, res
}

func receipt(orderId, status string) models.NotificationReceipt {
	n := models.GatewayNotification{OrderId: orderId, TransactionStatus: status}
	return models.NotificationReceipt{Key: n.DedupKey(), OrderId: orderId, TransactionStatus: status, ReceivedAt: t0}
}

func TestFundingComputesFeeAndIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.project(t, 1000000)[0]

	first, err := f.svc.FundMilestone(ctx, client, m.Id)
	if err != nil {
		t.Fatalf("FundMilestone failed: %v", err)
	}
	if !first.Fee.Equal(decimal.NewFromInt(100000)) || !first.NetAmount.Equal(decimal.NewFromInt(900000)) {
		t.Errorf("Unexpected split fee=%s net=%s", first.Fee, first.NetAmount)
	}
	second, err := f.svc.FundMilestone(ctx, client, m.Id)
	if err != nil {
		t.Fatalf("second FundMilestone failed: %v", err)
	}
	if second.OrderId != first.OrderId {
		t.Errorf("Expected same order, got %s and %s", first.OrderId, second.OrderId)
	}
	if _, err := f.svc.FundMilestone(ctx, analyst, m.Id); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("Expected ErrForbidden for analyst, got %v", err)
	}
}

func TestCaptureFundsMilestoneAndJournals(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.project(t, 500000)[0]
	res := f.fund(t, m.Id)

	got, err := f.svc.GetMilestone(ctx, client, m.Id)
	if err != nil {
		t.Fatalf("GetMilestone failed: %v", err)
	}
	if got.Status != models.MilestoneFunded || got.FundedAt == nil {
		t.Errorf("Expected FUNDED with funded_at, got %s", got.Status)
	}

	entries, err := f.db.ListJournalEntries(ctx, res.OrderId)
	if err != nil {
		t.Fatalf("ListJournalEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 journal legs, got %d", len(entries))
	}
	if len(f.mirror.events) != 1 || f.mirror.events[0] != store.EventMilestoneFunded {
		t.Errorf("Unexpected mirror events: %v", f.mirror.events)
	}
}

func TestDuplicateCaptureIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.project(t, 500000)[0]
	res := f.fund(t, m.Id)

	ev := PaymentEvent{OrderId: res.OrderId, Outcome: OutcomeCaptured, GrossAmount: res.GrossAmount,
		Receipt: receipt(res.OrderId, "settlement")}
	if err := f.svc.ApplyPaymentEvent(ctx, ev); !IsDuplicate(err) {
		t.Fatalf("Expected duplicate, got %v", err)
	}
	// A capture status seen for the first time after settlement is stale.
	ev.Receipt = receipt(res.OrderId, "capture")
	if err := f.svc.ApplyPaymentEvent(ctx, ev); !IsDuplicate(err) {
		t.Fatalf("Expected stale capture to be a duplicate, got %v", err)
	}

	entries, _ := f.db.ListJournalEntries(ctx, res.OrderId)
	if len(entries) != 2 {
		t.Errorf("Expected journal untouched by replays, got %d legs", len(entries))
	}
}

func TestGrossMismatchRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.project(t, 500000)[0]
	res, err := f.svc.FundMilestone(ctx, client, m.Id)
	if err != nil {
		t.Fatalf("FundMilestone failed: %v", err)
	}
	err = f.svc.ApplyPaymentEvent(ctx, PaymentEvent{OrderId: res.OrderId, Outcome: OutcomeCaptured,
		GrossAmount: decimal.NewFromInt(1), Receipt: receipt(res.OrderId, "settlement")})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("Expected ErrValidation, got %v", err)
	}
	tx, _ := f.db.GetTransaction(ctx, res.OrderId)
	if tx.Captured() {
		t.Error("Expected transaction to remain uncaptured")
	}
}

func TestFailedPaymentAllowsNewOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.project(t, 500000)[0]
	res, _ := f.svc.FundMilestone(ctx, client, m.Id)

	err := f.svc.ApplyPaymentEvent(ctx, PaymentEvent{OrderId: res.OrderId, Outcome: OutcomeFailed,
		Receipt: receipt(res.OrderId, "expire")})
	if err != nil {
		t.Fatalf("ApplyPaymentEvent failed: %v", err)
	}
	again, err := f.svc.FundMilestone(ctx, client, m.Id)
	if err != nil {
		t.Fatalf("FundMilestone after failure: %v", err)
	}
	if again.OrderId == res.OrderId {
		t.Error("Expected a new order after the first failed")
	}
}

func TestRefundOfReleasedRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m, res := f.submitted(t, 500000)
	if _, err := f.svc.Approve(ctx, client, m.Id); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	err := f.svc.ApplyPaymentEvent(ctx, PaymentEvent{OrderId: res.OrderId, Outcome: OutcomeRefunded,
		Receipt: receipt(res.OrderId, "refund")})
	if !errors.Is(err, models.ErrInvalidLedgerTransition) {
		t.Fatalf("Expected ErrInvalidLedgerTransition, got %v", err)
	}
}

func TestApproveReleasesWithHold(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m, res := f.submitted(t, 1000000)

	f.clock.Advance(time.Hour)
	approved, err := f.svc.Approve(ctx, client, m.Id)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != models.MilestoneApproved {
		t.Errorf("Expected APPROVED, got %s", approved.Status)
	}

	tx, err := f.db.GetTransaction(ctx, res.OrderId)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	until, held := tx.Hold.Until()
	if tx.Status != models.TransactionReleased || !held || !until.Equal(f.clock.Now().Add(5*24*time.Hour)) {
		t.Errorf("Unexpected release: status=%s held=%t until=%s", tx.Status, held, until)
	}

	p, _ := f.db.GetProject(ctx, m.ProjectId)
	if p.Status != models.ProjectCompleted {
		t.Errorf("Expected single-milestone project COMPLETED, got %s", p.Status)
	}
}

func TestProjectCompletesOnlyWhenAllApproved(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ms := f.project(t, 100000, 200000)
	for _, m := range ms {
		f.fund(t, m.Id)
		if _, err := f.svc.Start(ctx, analyst, m.Id); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if _, err := f.svc.Submit(ctx, analyst, m.Id); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	if _, err := f.svc.Approve(ctx, client, ms[0].Id); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	p, _ := f.db.GetProject(ctx, ms[0].ProjectId)
	if p.Status != models.ProjectInProgress {
		t.Fatalf("Expected IN_PROGRESS after first approval, got %s", p.Status)
	}
	if _, err := f.svc.Approve(ctx, client, ms[1].Id); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	p, _ = f.db.GetProject(ctx, ms[0].ProjectId)
	if p.Status != models.ProjectCompleted {
		t.Errorf("Expected COMPLETED, got %s", p.Status)
	}
}

func TestRevisionLimitDisputes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m, _ := f.submitted(t, 300000)

	for i := 0; i < 2; i++ {
		got, err := f.svc.RequestRevision(ctx, client, m.Id)
		if err != nil {
			t.Fatalf("RequestRevision %d failed: %v", i, err)
		}
		if got.Status != models.MilestoneRevisionRequested || got.AutoReleaseAt != nil {
			t.Fatalf("Expected REVISION_REQUESTED with no deadline, got %s", got.Status)
		}
		if _, err := f.svc.Submit(ctx, analyst, m.Id); err != nil {
			t.Fatalf("resubmit failed: %v", err)
		}
	}

	got, err := f.svc.RequestRevision(ctx, client, m.Id)
	if err != nil {
		t.Fatalf("RequestRevision failed: %v", err)
	}
	if got.Status != models.MilestoneDisputed || got.RevisionCount != 2 {
		t.Errorf("Expected DISPUTED with 2 revisions, got %s/%d", got.Status, got.RevisionCount)
	}
}

func TestIllegalTransitionsLeaveNoTrace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m := f.project(t, 100000)[0]

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"start unfunded", func() error { _, err := f.svc.Start(ctx, analyst, m.Id); return err }, models.ErrIllegalMilestoneTransition},
		{"submit unfunded", func() error { _, err := f.svc.Submit(ctx, analyst, m.Id); return err }, models.ErrIllegalMilestoneTransition},
		{"approve pending", func() error { _, err := f.svc.Approve(ctx, client, m.Id); return err }, models.ErrIllegalMilestoneTransition},
		{"revision pending", func() error { _, err := f.svc.RequestRevision(ctx, client, m.Id); return err }, models.ErrIllegalMilestoneTransition},
		{"client starts", func() error { _, err := f.svc.Start(ctx, client, m.Id); return err }, models.ErrForbidden},
		{"stranger disputes", func() error {
			_, err := f.svc.Dispute(ctx, models.Actor{UserId: "x", Role: models.RoleClient}, m.Id)
			return err
		}, models.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	got, _ := f.db.GetMilestone(ctx, m.Id)
	if got.Status != models.MilestonePending || !got.UpdatedAt.Equal(t0) {
		t.Errorf("Expected untouched PENDING milestone, got %s at %s", got.Status, got.UpdatedAt)
	}
}

func TestDisputeFreezesAutoRelease(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m, _ := f.submitted(t, 100000)

	got, err := f.svc.Dispute(ctx, analyst, m.Id)
	if err != nil {
		t.Fatalf("Dispute failed: %v", err)
	}
	if got.AutoReleaseAt != nil || got.DisputedAt == nil {
		t.Error("Expected deadline cleared and disputed_at set")
	}
	if _, err := f.svc.Dispute(ctx, client, m.Id); !errors.Is(err, models.ErrIllegalMilestoneTransition) {
		t.Errorf("Expected second dispute rejected, got %v", err)
	}

	f.clock.Advance(30 * 24 * time.Hour)
	released, err := f.svc.ForceApprove(ctx, m.Id)
	if err != nil || released {
		t.Errorf("Expected no release of disputed milestone, got %t %v", released, err)
	}
}

func TestForceApproveRespectsDeadline(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m, _ := f.submitted(t, 100000)

	f.clock.Advance(14*24*time.Hour - time.Second)
	if released, err := f.svc.ForceApprove(ctx, m.Id); err != nil || released {
		t.Fatalf("Expected early force approve to skip, got %t %v", released, err)
	}
	f.clock.Advance(time.Second)
	if released, err := f.svc.ForceApprove(ctx, m.Id); err != nil || !released {
		t.Fatalf("Expected release at deadline, got %t %v", released, err)
	}
	if released, err := f.svc.ForceApprove(ctx, m.Id); err != nil || released {
		t.Errorf("Expected repeat force approve to be a no-op, got %t %v", released, err)
	}
}

func TestConcurrentApprovalsReleaseOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m, res := f.submitted(t, 100000)
	f.clock.Advance(15 * 24 * time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(manual bool) {
			defer wg.Done()
			if manual {
				_, _ = f.svc.Approve(ctx, client, m.Id)
				return
			}
			_, _ = f.svc.ForceApprove(ctx, m.Id)
		}(i%2 == 0)
	}
	wg.Wait()

	entries, err := f.db.ListJournalEntries(ctx, res.OrderId)
	if err != nil {
		t.Fatalf("ListJournalEntries failed: %v", err)
	}
	releases := 0
	for _, e := range entries {
		if e.EventType == store.EventMilestoneReleased && e.AccountType == store.AccountAnalyst {
			releases++
		}
	}
	if releases != 1 {
		t.Errorf("Expected exactly one release posting, got %d", releases)
	}
}
