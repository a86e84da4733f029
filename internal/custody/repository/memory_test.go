package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	auditdomain "cheque-custody/backend/internal/audit/domain"
	chequedomain "cheque-custody/backend/internal/cheque/domain"
	apperrors "cheque-custody/backend/internal/errors"
	otpdomain "cheque-custody/backend/internal/otp/domain"
	overridedomain "cheque-custody/backend/internal/override/domain"
)

func newCheque(id, no string) *chequedomain.Cheque {
	now := time.Now().UTC()
	return &chequedomain.Cheque{
		ID: id, ChequeNo: no, Amount: decimal.RequireFromString("1500.00"), Currency: "INR",
		Bank: "HDFC", PayerName: "Acme", PayeeName: "Vendor", DueDate: now,
		Status: chequedomain.StatusSigned, InitiatorID: "op-1", CreatedAt: now, UpdatedAt: now,
	}
}

func TestMemory_CreateChequeDuplicateNumber(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository(0)
	if err := r.CreateCheque(ctx, newCheque("c1", "000123"), nil); err != nil {
		t.Fatalf("CreateCheque: %v", err)
	}
	err := r.CreateCheque(ctx, newCheque("c2", "000123"), nil)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("duplicate CreateCheque err = %v, want Conflict", err)
	}
}

func TestMemory_CreateChequeRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository(0)
	boom := errors.New("boom")
	err := r.CreateCheque(ctx, newCheque("c1", "1"), func(tx Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if c, _ := r.GetCheque(ctx, "c1"); c != nil {
		t.Error("cheque should not exist after failed create")
	}
}

func TestMemory_WithinChequeNotFound(t *testing.T) {
	r := NewMemoryRepository(0)
	err := r.WithinCheque(context.Background(), "missing", func(tx Tx) error { return nil })
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestMemory_WithinChequeCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository(0)
	if err := r.CreateCheque(ctx, newCheque("c1", "1"), nil); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()

	boom := errors.New("boom")
	_ = r.WithinCheque(ctx, "c1", func(tx Tx) error {
		_ = tx.UpdateChequeStatus(ctx, chequedomain.StatusReadyForDispatch, now)
		_ = tx.AppendAudit(ctx, &auditdomain.Entry{ID: "a1", ChequeID: "c1", Action: "x"})
		return boom
	})
	c, _ := r.GetCheque(ctx, "c1")
	if c.Status != chequedomain.StatusSigned {
		t.Errorf("status after rollback = %q, want %q", c.Status, chequedomain.StatusSigned)
	}
	if entries, _ := r.ListAudit(ctx, "c1"); len(entries) != 0 {
		t.Errorf("audit after rollback = %d entries, want 0", len(entries))
	}

	err := r.WithinCheque(ctx, "c1", func(tx Tx) error {
		if err := tx.UpdateChequeStatus(ctx, chequedomain.StatusReadyForDispatch, now); err != nil {
			return err
		}
		if tx.Cheque().Status != chequedomain.StatusReadyForDispatch {
			t.Error("Tx.Cheque should reflect the status update")
		}
		return tx.AppendCustody(ctx, &auditdomain.CustodyEntry{ID: "m1", ChequeID: "c1", FromRole: "initiator", ToRole: "dispatch"})
	})
	if err != nil {
		t.Fatalf("WithinCheque: %v", err)
	}
	c, _ = r.GetCheque(ctx, "c1")
	if c.Status != chequedomain.StatusReadyForDispatch {
		t.Errorf("status = %q, want %q", c.Status, chequedomain.StatusReadyForDispatch)
	}
	if moves, _ := r.ListCustody(ctx, "c1"); len(moves) != 1 {
		t.Errorf("custody = %d entries, want 1", len(moves))
	}
}

func TestMemory_OneActiveChallenge(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository(0)
	_ = r.CreateCheque(ctx, newCheque("c1", "1"), nil)
	err := r.WithinCheque(ctx, "c1", func(tx Tx) error {
		if err := tx.InsertChallenge(ctx, &otpdomain.Challenge{ID: "ch1", ChequeID: "c1"}); err != nil {
			return err
		}
		return tx.InsertChallenge(ctx, &otpdomain.Challenge{ID: "ch2", ChequeID: "c1"})
	})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("second active challenge err = %v, want Conflict", err)
	}
}

func TestMemory_ChallengeUpdateIsolation(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository(0)
	_ = r.CreateCheque(ctx, newCheque("c1", "1"), func(tx Tx) error {
		return tx.InsertChallenge(ctx, &otpdomain.Challenge{ID: "ch1", ChequeID: "c1", AttemptsRemaining: 3})
	})
	_ = r.WithinCheque(ctx, "c1", func(tx Tx) error {
		ch, _ := tx.ActiveChallenge(ctx)
		ch.AttemptsRemaining = 0
		_ = tx.UpdateChallenge(ctx, ch)
		return errors.New("abort")
	})
	_ = r.WithinCheque(ctx, "c1", func(tx Tx) error {
		ch, _ := tx.ActiveChallenge(ctx)
		if ch == nil || ch.AttemptsRemaining != 3 {
			t.Errorf("challenge after rollback = %+v, want 3 attempts", ch)
		}
		return nil
	})
}

func TestMemory_OverrideIndexAndPending(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository(0)
	_ = r.CreateCheque(ctx, newCheque("c1", "1"), nil)
	err := r.WithinCheque(ctx, "c1", func(tx Tx) error {
		if err := tx.InsertOverride(ctx, &overridedomain.Request{ID: "o1", ChequeID: "c1", Status: overridedomain.StatusPending}); err != nil {
			return err
		}
		p, _ := tx.PendingOverride(ctx)
		if p == nil || p.ID != "o1" {
			t.Errorf("PendingOverride = %+v, want o1", p)
		}
		return tx.InsertOverride(ctx, &overridedomain.Request{ID: "o2", ChequeID: "c1", Status: overridedomain.StatusPending})
	})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("second pending err = %v, want Conflict", err)
	}
	if o, _ := r.GetOverride(ctx, "o1"); o != nil {
		t.Error("rolled back override should not be indexed")
	}

	_ = r.WithinCheque(ctx, "c1", func(tx Tx) error {
		return tx.InsertOverride(ctx, &overridedomain.Request{ID: "o1", ChequeID: "c1", Status: overridedomain.StatusApproved})
	})
	o, _ := r.GetOverride(ctx, "o1")
	if o == nil || o.ChequeID != "c1" {
		t.Fatalf("GetOverride = %+v, want o1 on c1", o)
	}
	_ = r.WithinCheque(ctx, "c1", func(tx Tx) error {
		u, _ := tx.UsableOverride(ctx)
		if u == nil || u.ID != "o1" {
			t.Errorf("UsableOverride = %+v, want o1", u)
		}
		return nil
	})
}

func TestMemory_LockTimeoutIsBusy(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository(20 * time.Millisecond)
	_ = r.CreateCheque(ctx, newCheque("c1", "1"), nil)
	_ = r.CreateCheque(ctx, newCheque("c2", "2"), nil)

	held := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.WithinCheque(ctx, "c1", func(tx Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	if err := r.WithinCheque(ctx, "c1", func(tx Tx) error { return nil }); !errors.Is(err, apperrors.ErrBusy) {
		t.Errorf("contended WithinCheque err = %v, want Busy", err)
	}
	if err := r.WithinCheque(ctx, "c2", func(tx Tx) error { return nil }); err != nil {
		t.Errorf("other cheque should not contend: %v", err)
	}
	close(release)
	wg.Wait()
}

func TestMemory_HandoverOnce(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository(0)
	_ = r.CreateCheque(ctx, newCheque("c1", "1"), nil)
	err := r.WithinCheque(ctx, "c1", func(tx Tx) error {
		if err := tx.InsertHandover(ctx, &chequedomain.HandoverRecord{ID: "h1", ChequeID: "c1"}); err != nil {
			return err
		}
		return tx.InsertHandover(ctx, &chequedomain.HandoverRecord{ID: "h2", ChequeID: "c1"})
	})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("second handover err = %v, want Conflict", err)
	}
	if h, _ := r.GetHandover(ctx, "c1"); h != nil {
		t.Error("handover should not persist after rollback")
	}
}

func TestMemory_TrailsKeepAppendOrder(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository(0)
	if err := r.CreateCheque(ctx, newCheque("c1", "1"), nil); err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	err := r.WithinCheque(ctx, "c1", func(tx Tx) error {
		// ids sort opposite to insert order; timestamps are equal.
		if err := tx.AppendAudit(ctx, &auditdomain.Entry{ID: "z", ChequeID: "c1", Action: auditdomain.ActionOTPVerified, CreatedAt: at}); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, &auditdomain.Entry{ID: "a", ChequeID: "c1", Action: auditdomain.ActionChequeIssued, CreatedAt: at}); err != nil {
			return err
		}
		if err := tx.AppendCustody(ctx, &auditdomain.CustodyEntry{ID: "z", ChequeID: "c1", FromRole: "dispatch", ToRole: "reception", CreatedAt: at}); err != nil {
			return err
		}
		return tx.AppendCustody(ctx, &auditdomain.CustodyEntry{ID: "a", ChequeID: "c1", FromRole: "reception", ToRole: "recipient", CreatedAt: at})
	})
	if err != nil {
		t.Fatalf("WithinCheque: %v", err)
	}
	entries, _ := r.ListAudit(ctx, "c1")
	if len(entries) != 2 || entries[0].Action != auditdomain.ActionOTPVerified || entries[1].Action != auditdomain.ActionChequeIssued {
		t.Fatalf("audit order = %v, want otp.verified then cheque.issued", actions(entries))
	}
	moves, _ := r.ListCustody(ctx, "c1")
	if len(moves) != 2 || moves[0].ToRole != "reception" || moves[1].ToRole != "recipient" {
		t.Fatalf("custody order wrong: %+v", moves)
	}
}

func actions(entries []*auditdomain.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}
