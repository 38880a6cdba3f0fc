package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/vaultline/aa-relayer-go/internal/config"
	apperrors "github.com/vaultline/aa-relayer-go/internal/errors"
	"github.com/vaultline/aa-relayer-go/internal/util"
)

// SettleRequest is one settlement attempt against the ledger endpoint.
// GasUsedWei and EffectiveGasPriceWei are decimal strings so the ledger
// never sees float precision loss.
type SettleRequest struct {
	ApprovalID           string `json:"approvalId"`
	ParamsHash           string `json:"paramsHash"`
	TxHash               string `json:"txHash"`
	GasUsedWei           string `json:"gasUsedWei"`
	EffectiveGasPriceWei string `json:"effectiveGasPriceWei"`
	CorrelationID        string `json:"-"`
}

// Settler acknowledges a confirmed transaction against the hold ledger.
type Settler interface {
	Settle(ctx context.Context, req SettleRequest) error
}

// SettlementClient calls the ledger's settlement endpoint with an HMAC
// signature over the canonical request fields. Each call carries a fresh
// idempotency key; the endpoint deduplicates on it.
type SettlementClient struct {
	client *resty.Client
	secret string
}

func NewSettlementClient(baseURL, hmacSecret string) *SettlementClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(config.HTTPClientTimeout).
		SetHeader("Content-Type", "application/json")
	return &SettlementClient{client: client, secret: hmacSecret}
}

// canonicalString orders the signed fields. The ledger side recomputes the
// HMAC over the same ordering, so this must never change shape.
func canonicalString(req SettleRequest) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		req.ParamsHash, req.ApprovalID, req.GasUsedWei, req.EffectiveGasPriceWei)
}

func (c *SettlementClient) Settle(ctx context.Context, req SettleRequest) error {
	idempotencyKey, err := util.GenerateToken()
	if err != nil {
		return fmt.Errorf("generate idempotency key: %w", err)
	}
	signature := util.HmacSHA256(c.secret, canonicalString(req))

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", idempotencyKey).
		SetHeader("X-Signature", signature).
		SetHeader("X-Correlation-ID", req.CorrelationID).
		SetBody(req).
		Post("/internal/settlements")
	if err != nil {
		return apperrors.External("settlement", err)
	}

	switch {
	case resp.StatusCode() == http.StatusOK, resp.StatusCode() == http.StatusCreated:
		return nil
	case resp.StatusCode() == http.StatusConflict:
		// Already settled under a previous idempotency key.
		log.Info().
			Str("approval_id", req.ApprovalID).
			Str("correlation_id", req.CorrelationID).
			Msg("settlement already recorded")
		return nil
	default:
		return apperrors.External("settlement",
			fmt.Errorf("settlement endpoint returned %d: %s", resp.StatusCode(), resp.String()))
	}
}
