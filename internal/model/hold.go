package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type HoldStatus string

const (
	HoldStatusActive   HoldStatus = "active"
	HoldStatusCaptured HoldStatus = "captured"
	HoldStatusSettled  HoldStatus = "settled"
	HoldStatusFailed   HoldStatus = "failed"
)

// Hold is a financial pre-authorization created by the approval system.
// The relayer only owns the active -> captured transition; settlement is
// acknowledged by the ledger endpoint and audited by the reconciler.
type Hold struct {
	ApprovalID string          `db:"approval_id" json:"approvalId"`
	OrgID      string          `db:"org_id" json:"orgId"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	ParamsHash string          `db:"params_hash" json:"paramsHash"`
	Status     HoldStatus      `db:"status" json:"status"`
	ExpiresAt  time.Time       `db:"expires_at" json:"expiresAt"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updatedAt"`
}
