package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventOperationSubmitted EventType = "operation_submitted"
	EventSettlementSuccess  EventType = "settlement_success"
	EventSettlementFailure  EventType = "settlement_failure"
	EventHoldCaptured       EventType = "hold_captured"
	EventDiscrepancyFound   EventType = "discrepancy_found"
	EventSessionKeyIssued   EventType = "session_key_issued"
	EventSessionKeyRevoked  EventType = "session_key_revoked"
)

type Event struct {
	Type          EventType
	ApprovalID    string
	OrgID         string
	CorrelationID string
	TxHash        string
	Details       map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "settlement").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.ApprovalID != "" {
		logger = logger.With().Str("approval_id", event.ApprovalID).Logger()
	}
	if event.OrgID != "" {
		logger = logger.With().Str("org_id", event.OrgID).Logger()
	}
	if event.CorrelationID != "" {
		logger = logger.With().Str("correlation_id", event.CorrelationID).Logger()
	}
	if event.TxHash != "" {
		logger = logger.With().Str("tx_hash", event.TxHash).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("settlement audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
