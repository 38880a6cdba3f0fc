package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vaultline/aa-relayer-go/internal/audit"
	"github.com/vaultline/aa-relayer-go/internal/config"
	"github.com/vaultline/aa-relayer-go/internal/model"
	"github.com/vaultline/aa-relayer-go/internal/repository"
)

// LedgerReconciler sweeps captured holds and checks that each one has a
// matching debit entry in the ledger. It records discrepancies for out-of-band
// resolution and never mutates hold or ledger state itself.
type LedgerReconciler struct {
	holdRepo        repository.HoldRepository
	ledgerRepo      repository.LedgerRepository
	discrepancyRepo repository.DiscrepancyRepository
	interval        time.Duration
	done            chan struct{}
}

func NewLedgerReconciler(
	holdRepo repository.HoldRepository,
	ledgerRepo repository.LedgerRepository,
	discrepancyRepo repository.DiscrepancyRepository,
	interval time.Duration,
) *LedgerReconciler {
	return &LedgerReconciler{
		holdRepo:        holdRepo,
		ledgerRepo:      ledgerRepo,
		discrepancyRepo: discrepancyRepo,
		interval:        interval,
		done:            make(chan struct{}),
	}
}

func (r *LedgerReconciler) Start() {
	go r.run()
	log.Info().Dur("interval", r.interval).Msg("ledger reconciler started")
}

func (r *LedgerReconciler) Stop() {
	close(r.done)
	log.Info().Msg("ledger reconciler stopped")
}

func (r *LedgerReconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *LedgerReconciler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	holds, err := r.holdRepo.FindCaptured(ctx, config.ReconcilerBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("reconciler failed to list captured holds")
		return
	}

	for _, hold := range holds {
		if err := r.reconcileHold(ctx, hold); err != nil {
			log.Error().Err(err).
				Str("approval_id", hold.ApprovalID).
				Msg("reconciler failed to check hold")
		}
	}
}

func (r *LedgerReconciler) reconcileHold(ctx context.Context, hold model.Hold) error {
	debit, err := r.ledgerRepo.FindDebitByRefID(ctx, hold.ApprovalID)
	if err != nil {
		return err
	}

	if debit == nil {
		// A captured hold with no debit means a settlement silently
		// failed. This always needs a human.
		log.Warn().
			Str("approval_id", hold.ApprovalID).
			Str("org_id", hold.OrgID).
			Msg("captured hold has no ledger debit")
		return r.record(ctx, hold, model.DiscrepancyMissingDebit)
	}

	if debit.ProviderRef == nil || *debit.ProviderRef == "" {
		log.Warn().
			Str("approval_id", hold.ApprovalID).
			Str("ledger_entry_id", debit.ID).
			Msg("ledger debit has no provider reference")
		return r.record(ctx, hold, model.DiscrepancyMissingProviderRef)
	}
	return nil
}

func (r *LedgerReconciler) record(ctx context.Context, hold model.Hold, message string) error {
	metadata, err := json.Marshal(map[string]string{
		"holdId": hold.ApprovalID,
		"orgId":  hold.OrgID,
	})
	if err != nil {
		return err
	}
	created, err := r.discrepancyRepo.Record(ctx, model.CreateDiscrepancyParams{
		EntityType: "hold",
		EntityID:   hold.ApprovalID,
		Message:    message,
		Metadata:   metadata,
	})
	if err != nil {
		return err
	}
	if !created {
		// Already recorded by an earlier sweep.
		return nil
	}
	audit.Log(ctx, audit.Event{
		Type:       audit.EventDiscrepancyFound,
		ApprovalID: hold.ApprovalID,
		OrgID:      hold.OrgID,
		Details:    map[string]interface{}{"message": message},
	})
	return nil
}
