package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultline/aa-relayer-go/internal/model"
)

type mockHoldRepo struct {
	captured []model.Hold
	updates  int
}

func (m *mockHoldRepo) FindByApprovalID(ctx context.Context, approvalID string) (*model.Hold, error) {
	return nil, nil
}

func (m *mockHoldRepo) FindActive(ctx context.Context, limit int) ([]model.Hold, error) {
	return nil, nil
}

func (m *mockHoldRepo) FindCaptured(ctx context.Context, limit int) ([]model.Hold, error) {
	if limit < len(m.captured) {
		return m.captured[:limit], nil
	}
	return m.captured, nil
}

func (m *mockHoldRepo) UpdateStatus(ctx context.Context, approvalID string, from, to model.HoldStatus) (bool, error) {
	m.updates++
	return true, nil
}

type mockLedgerRepo struct {
	debits map[string]*model.LedgerEntry
}

func (m *mockLedgerRepo) FindDebitByRefID(ctx context.Context, refID string) (*model.LedgerEntry, error) {
	return m.debits[refID], nil
}

type mockDiscrepancyRepo struct {
	created []model.CreateDiscrepancyParams
	seen    map[string]bool
}

func (m *mockDiscrepancyRepo) Record(ctx context.Context, params model.CreateDiscrepancyParams) (bool, error) {
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	key := params.EntityID + "|" + params.Message
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	m.created = append(m.created, params)
	return true, nil
}

func (m *mockDiscrepancyRepo) FindByEntityID(ctx context.Context, entityID string) ([]model.Discrepancy, error) {
	return nil, nil
}

func capturedHold(approvalID string) model.Hold {
	return model.Hold{
		ApprovalID: approvalID,
		OrgID:      "org-1",
		Amount:     decimal.NewFromInt(50),
		Status:     model.HoldStatusCaptured,
	}
}

func strPtr(s string) *string { return &s }

func TestLedgerReconcilerSweep(t *testing.T) {
	t.Run("missing debit is recorded", func(t *testing.T) {
		holds := &mockHoldRepo{captured: []model.Hold{capturedHold("appr-1")}}
		ledger := &mockLedgerRepo{debits: map[string]*model.LedgerEntry{}}
		disc := &mockDiscrepancyRepo{}
		r := NewLedgerReconciler(holds, ledger, disc, time.Minute)

		r.sweep()

		require.Len(t, disc.created, 1)
		assert.Equal(t, model.DiscrepancyMissingDebit, disc.created[0].Message)
		assert.Equal(t, "appr-1", disc.created[0].EntityID)
		assert.Contains(t, string(disc.created[0].Metadata), "org-1")
	})

	t.Run("debit without provider ref is recorded", func(t *testing.T) {
		holds := &mockHoldRepo{captured: []model.Hold{capturedHold("appr-2")}}
		ledger := &mockLedgerRepo{debits: map[string]*model.LedgerEntry{
			"appr-2": {ID: "le-1", RefID: "appr-2", Type: model.LedgerEntryDebit},
		}}
		disc := &mockDiscrepancyRepo{}
		r := NewLedgerReconciler(holds, ledger, disc, time.Minute)

		r.sweep()

		require.Len(t, disc.created, 1)
		assert.Equal(t, model.DiscrepancyMissingProviderRef, disc.created[0].Message)
	})

	t.Run("healthy hold produces no discrepancy", func(t *testing.T) {
		holds := &mockHoldRepo{captured: []model.Hold{capturedHold("appr-3")}}
		ledger := &mockLedgerRepo{debits: map[string]*model.LedgerEntry{
			"appr-3": {ID: "le-2", RefID: "appr-3", Type: model.LedgerEntryDebit, ProviderRef: strPtr("0xtx")},
		}}
		disc := &mockDiscrepancyRepo{}
		r := NewLedgerReconciler(holds, ledger, disc, time.Minute)

		r.sweep()

		assert.Empty(t, disc.created)
	})

	t.Run("never mutates hold state", func(t *testing.T) {
		holds := &mockHoldRepo{captured: []model.Hold{
			capturedHold("appr-4"), capturedHold("appr-5"),
		}}
		ledger := &mockLedgerRepo{debits: map[string]*model.LedgerEntry{}}
		r := NewLedgerReconciler(holds, ledger, &mockDiscrepancyRepo{}, time.Minute)

		r.sweep()

		assert.Zero(t, holds.updates)
	})

	t.Run("repeated sweeps record each discrepancy once", func(t *testing.T) {
		holds := &mockHoldRepo{captured: []model.Hold{capturedHold("appr-7")}}
		ledger := &mockLedgerRepo{debits: map[string]*model.LedgerEntry{}}
		disc := &mockDiscrepancyRepo{}
		r := NewLedgerReconciler(holds, ledger, disc, time.Minute)

		r.sweep()
		r.sweep()

		assert.Len(t, disc.created, 1)
	})

	t.Run("empty provider ref counts as missing", func(t *testing.T) {
		holds := &mockHoldRepo{captured: []model.Hold{capturedHold("appr-6")}}
		ledger := &mockLedgerRepo{debits: map[string]*model.LedgerEntry{
			"appr-6": {ID: "le-3", RefID: "appr-6", Type: model.LedgerEntryDebit, ProviderRef: strPtr("")},
		}}
		disc := &mockDiscrepancyRepo{}
		r := NewLedgerReconciler(holds, ledger, disc, time.Minute)

		r.sweep()

		require.Len(t, disc.created, 1)
		assert.Equal(t, model.DiscrepancyMissingProviderRef, disc.created[0].Message)
	})
}
