package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEntryType string

const (
	LedgerEntryDebit  LedgerEntryType = "debit"
	LedgerEntryCredit LedgerEntryType = "credit"
)

// LedgerEntry is one row in the internal ledger. Debit entries created by
// the settlement endpoint reference the hold via RefID and carry the
// on-chain transaction hash in ProviderRef.
type LedgerEntry struct {
	ID          string          `db:"id" json:"id"`
	RefID       string          `db:"ref_id" json:"refId"`
	Type        LedgerEntryType `db:"type" json:"type"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	ProviderRef *string         `db:"provider_ref" json:"providerRef,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

// Discrepancy messages recorded by the reconciler.
const (
	DiscrepancyMissingDebit       = "missing_debit"
	DiscrepancyMissingProviderRef = "missing_provider_ref"
)

type Discrepancy struct {
	ID         int64           `db:"id" json:"id"`
	EntityType string          `db:"entity_type" json:"entityType"`
	EntityID   string          `db:"entity_id" json:"entityId"`
	Message    string          `db:"message" json:"message"`
	Metadata   json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

type CreateDiscrepancyParams struct {
	EntityType string
	EntityID   string
	Message    string
	Metadata   json.RawMessage
}
