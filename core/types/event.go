package types

import (
	models "github.com/herald-ai/herald/dbmodels"
)

// Event is a normalized external event delivered by the ingress.
// Delivery is at-least-once; the idempotency ledger absorbs duplicates.
type Event struct {
	// Type is one of the fixed trigger vocabulary (mailbox-received,
	// calendar-event, crm-update).
	Type models.TriggerType `json:"type"`
	// Address resolves the owning user (e.g. the recipient mailbox).
	Address string `json:"address"`
	// ExternalID is the upstream identifier used for deduplication.
	ExternalID string `json:"external_id"`
	// Payload carries the event's salient fields (sender, subject, body,
	// links...), already normalized to plain text by the ingress.
	Payload map[string]string `json:"payload"`
}
