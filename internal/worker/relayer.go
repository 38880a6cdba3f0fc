// Package worker runs the polling loop that drains active holds: claim a
// hold with a distributed lock, run it through the settlement pipeline,
// release the lock. Many worker processes may run in parallel; the lock is
// the only ordering primitive between them.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vaultline/aa-relayer-go/internal/audit"
	"github.com/vaultline/aa-relayer-go/internal/model"
	"github.com/vaultline/aa-relayer-go/internal/redis"
	"github.com/vaultline/aa-relayer-go/internal/service"
	"github.com/vaultline/aa-relayer-go/internal/signer"
	"github.com/vaultline/aa-relayer-go/internal/util"
)

// Relayer is the settlement pipeline the worker drives per hold.
type Relayer interface {
	SubmitAndSettle(ctx context.Context, params service.SubmitAndSettleParams) (*service.SettleResult, error)
}

// LockStore is the distributed lock used to claim holds.
type LockStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*redis.Lock, error)
	Release(ctx context.Context, lock *redis.Lock) (bool, error)
}

// HoldSource lists claimable holds and records their transitions.
type HoldSource interface {
	FindActive(ctx context.Context, limit int) ([]model.Hold, error)
	UpdateStatus(ctx context.Context, approvalID string, from, to model.HoldStatus) (bool, error)
}

// BuildTxRequest turns a hold into the transaction that captures it. The
// concrete mapping depends on the deployment's paymaster contract, so it is
// injected rather than hard-coded.
type BuildTxRequest func(hold model.Hold) (signer.TxRequest, error)

type RelayerWorker struct {
	holds          HoldSource
	locks          LockStore
	relayer        Relayer
	buildTx        BuildTxRequest
	interval       time.Duration
	batchSize      int
	lockTTL        time.Duration
	settleMaxTries int
	done           chan struct{}
}

func NewRelayerWorker(
	holds HoldSource,
	locks LockStore,
	relayer Relayer,
	buildTx BuildTxRequest,
	interval time.Duration,
	batchSize int,
	lockTTL time.Duration,
	settleMaxTries int,
) *RelayerWorker {
	return &RelayerWorker{
		holds:          holds,
		locks:          locks,
		relayer:        relayer,
		buildTx:        buildTx,
		interval:       interval,
		batchSize:      batchSize,
		lockTTL:        lockTTL,
		settleMaxTries: settleMaxTries,
		done:           make(chan struct{}),
	}
}

func (w *RelayerWorker) Start() {
	go w.run()
	log.Info().
		Dur("interval", w.interval).
		Int("batch_size", w.batchSize).
		Msg("relayer worker started")
}

func (w *RelayerWorker) Stop() {
	close(w.done)
	log.Info().Msg("relayer worker stopped")
}

func (w *RelayerWorker) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *RelayerWorker) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	holds, err := w.holds.FindActive(ctx, w.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to list active holds")
		return
	}

	for _, hold := range holds {
		select {
		case <-w.done:
			return
		default:
		}
		w.processHold(ctx, hold)
	}
}

// processHold claims one hold and runs it to settlement. Failures are
// logged and left for the next poll; they never block the rest of the
// batch.
func (w *RelayerWorker) processHold(ctx context.Context, hold model.Hold) {
	correlationID, err := util.GenerateToken()
	if err != nil {
		log.Error().Err(err).Str("approval_id", hold.ApprovalID).Msg("failed to generate correlation id")
		return
	}
	logger := log.With().
		Str("approval_id", hold.ApprovalID).
		Str("correlation_id", correlationID).
		Logger()

	lock, err := w.locks.Acquire(ctx, redis.HoldLockKey(hold.ApprovalID), w.lockTTL)
	if err != nil {
		logger.Error().Err(err).Msg("lock acquisition failed")
		return
	}
	if lock == nil {
		// Another worker owns this hold.
		logger.Debug().Msg("hold already locked, skipping")
		return
	}
	defer func() {
		released, err := w.locks.Release(ctx, lock)
		if err != nil {
			logger.Error().Err(err).Msg("lock release failed")
		} else if !released {
			logger.Warn().Msg("lock expired before release, another worker may have claimed it")
		}
	}()

	txReq, err := w.buildTx(hold)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build transaction request")
		return
	}

	result, err := w.relayer.SubmitAndSettle(ctx, service.SubmitAndSettleParams{
		ApprovalID:    hold.ApprovalID,
		ParamsHash:    hold.ParamsHash,
		CorrelationID: correlationID,
		TxRequest:     txReq,
		MaxAttempts:   w.settleMaxTries,
	})
	if err != nil {
		// The hold stays active for a future pass; persistently failing
		// holds surface through the reconciler sweep.
		logger.Error().Err(err).Msg("settlement run failed for hold, will retry next poll")
		return
	}

	transitioned, err := w.holds.UpdateStatus(ctx, hold.ApprovalID, model.HoldStatusActive, model.HoldStatusCaptured)
	if err != nil {
		logger.Error().Err(err).Msg("failed to mark hold captured")
		return
	}
	if !transitioned {
		logger.Warn().Msg("hold left active state while locked")
		return
	}

	logger.Info().Str("tx_hash", result.TxHash).Msg("hold captured")
	audit.Log(ctx, audit.Event{
		Type:          audit.EventHoldCaptured,
		ApprovalID:    hold.ApprovalID,
		OrgID:         hold.OrgID,
		CorrelationID: correlationID,
		TxHash:        result.TxHash,
	})
}
