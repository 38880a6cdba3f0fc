package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vaultline/aa-relayer-go/internal/audit"
	"github.com/vaultline/aa-relayer-go/internal/config"
	apperrors "github.com/vaultline/aa-relayer-go/internal/errors"
	"github.com/vaultline/aa-relayer-go/internal/signer"
)

// SubmissionState tracks one settlement attempt through its lifecycle.
type SubmissionState string

const (
	StateBuilt     SubmissionState = "built"
	StateSigned    SubmissionState = "signed"
	StateSubmitted SubmissionState = "submitted"
	StateConfirmed SubmissionState = "confirmed"
	StateSettled   SubmissionState = "settled"
	StateFailed    SubmissionState = "failed"
)

const defaultMaxAttempts = 3

// SubmitAndSettleParams describes one hold's settlement run. MaxAttempts
// of zero means the default of three.
type SubmitAndSettleParams struct {
	ApprovalID    string
	ParamsHash    string
	CorrelationID string
	TxRequest     signer.TxRequest
	MaxAttempts   int
}

// SettleResult carries the confirmed transaction the settlement endpoint
// acknowledged.
type SettleResult struct {
	TxHash               string
	GasUsedWei           string
	EffectiveGasPriceWei string
}

// RelayerService drives sign -> broadcast -> confirm -> settle for one hold
// at a time. A nil error from SubmitAndSettle always means the settlement
// endpoint acknowledged the request; an error always means it did not.
type RelayerService struct {
	signer  signer.Signer
	settler Settler
	backoff time.Duration
}

func NewRelayerService(s signer.Signer, settler Settler) *RelayerService {
	return &RelayerService{
		signer:  s,
		settler: settler,
		backoff: config.RetryBackoffBase,
	}
}

func (s *RelayerService) SubmitAndSettle(ctx context.Context, params SubmitAndSettleParams) (*SettleResult, error) {
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	logger := log.With().
		Str("approval_id", params.ApprovalID).
		Str("correlation_id", params.CorrelationID).
		Logger()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := s.backoff * (1 << attempt)
			logger.Info().
				Int("attempt", attempt).
				Dur("backoff", wait).
				Msg("retrying settlement run")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		result, err := s.attemptOnce(ctx, params, logger)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Misconfiguration will fail identically on every attempt.
		if apperrors.IsConfigError(err) {
			logger.Error().Err(err).Msg("configuration error, not retrying")
			break
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("settlement run failed")
	}

	logger.Error().Err(lastErr).
		Str("state", string(StateFailed)).
		Msg("settlement run exhausted")
	audit.Log(ctx, audit.Event{
		Type:          audit.EventSettlementFailure,
		ApprovalID:    params.ApprovalID,
		CorrelationID: params.CorrelationID,
		Details:       map[string]interface{}{"error": lastErr.Error()},
	})
	if apperrors.IsConfigError(lastErr) {
		// Not a settlement verdict: the deployment is broken, the hold
		// stays claimable once the config is fixed.
		return nil, lastErr
	}
	return nil, apperrors.SettlementFailed(params.ApprovalID, lastErr)
}

func (s *RelayerService) attemptOnce(ctx context.Context, params SubmitAndSettleParams, logger zerolog.Logger) (*SettleResult, error) {
	logger.Debug().Str("state", string(StateBuilt)).Msg("transaction request built")

	receipt, err := s.signer.SendTransaction(ctx, params.TxRequest)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("state", string(StateConfirmed)).
		Str("tx_hash", receipt.TxHash.Hex()).
		Msg("transaction confirmed")
	audit.Log(ctx, audit.Event{
		Type:          audit.EventOperationSubmitted,
		ApprovalID:    params.ApprovalID,
		CorrelationID: params.CorrelationID,
		TxHash:        receipt.TxHash.Hex(),
	})

	// Receipts are validated at the signer boundary; both values are
	// guaranteed non-nil here. There is no placeholder fallback in the
	// live path.
	req := SettleRequest{
		ApprovalID:           params.ApprovalID,
		ParamsHash:           params.ParamsHash,
		TxHash:               receipt.TxHash.Hex(),
		GasUsedWei:           receipt.GasUsed.String(),
		EffectiveGasPriceWei: receipt.EffectiveGasPrice.String(),
		CorrelationID:        params.CorrelationID,
	}
	if err := s.settler.Settle(ctx, req); err != nil {
		return nil, err
	}

	logger.Info().
		Str("state", string(StateSettled)).
		Str("tx_hash", receipt.TxHash.Hex()).
		Msg("settlement acknowledged")
	audit.Log(ctx, audit.Event{
		Type:          audit.EventSettlementSuccess,
		ApprovalID:    params.ApprovalID,
		CorrelationID: params.CorrelationID,
		TxHash:        receipt.TxHash.Hex(),
	})
	return &SettleResult{
		TxHash:               receipt.TxHash.Hex(),
		GasUsedWei:           receipt.GasUsed.String(),
		EffectiveGasPriceWei: receipt.EffectiveGasPrice.String(),
	}, nil
}
