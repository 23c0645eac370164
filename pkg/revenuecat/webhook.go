package revenuecat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RevenueCat webhook event types.
const (
	EventInitialPurchase     = "INITIAL_PURCHASE"
	EventRenewal             = "RENEWAL"
	EventCancellation        = "CANCELLATION"
	EventUncancellation      = "UNCANCELLATION"
	EventExpiration          = "EXPIRATION"
	EventBillingIssue        = "BILLING_ISSUE"
	EventProductChange       = "PRODUCT_CHANGE"
	EventNonRenewingPurchase = "NON_RENEWING_PURCHASE"
	EventSubscriberAlias     = "SUBSCRIBER_ALIAS"
	EventSubscriptionPaused  = "SUBSCRIPTION_PAUSED"
	EventTransfer            = "TRANSFER"
	EventTest                = "TEST"
)

// WebhookEvent is the subset of a RevenueCat webhook the service acts on.
type WebhookEvent struct {
	ID                string   `json:"id"`
	Type              string   `json:"type"`
	AppUserID         string   `json:"app_user_id"`
	OriginalAppUserID string   `json:"original_app_user_id"`
	Aliases           []string `json:"aliases"`
	ProductID         string   `json:"product_id"`
	EntitlementIDs    []string `json:"entitlement_ids"`
	EventTimestampMs  int64    `json:"event_timestamp_ms"`
	ExpirationAtMs    *int64   `json:"expiration_at_ms"`
	TransferredTo     []string `json:"transferred_to"`
}

type webhookEnvelope struct {
	APIVersion string       `json:"api_version"`
	Event      WebhookEvent `json:"event"`
}

// ParseWebhook decodes a webhook body and checks the fields every event carries.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	event := envelope.Event
	if strings.TrimSpace(event.ID) == "" {
		return nil, fmt.Errorf("webhook event id missing")
	}
	if strings.TrimSpace(event.Type) == "" {
		return nil, fmt.Errorf("webhook event type missing")
	}
	return &event, nil
}

// SubscriberIDs returns the app user ids the event concerns, most specific
// first and without duplicates. Transfers name the receiving users.
func (e *WebhookEvent) SubscriberIDs() []string {
	if e == nil {
		return nil
	}
	candidates := []string{e.AppUserID, e.OriginalAppUserID}
	if e.Type == EventTransfer {
		candidates = append([]string{}, e.TransferredTo...)
	}
	seen := make(map[string]struct{}, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, id := range candidates {
		id = strings.TrimSpace(id)
		if id == "" || isAnonymousID(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Anonymous ids are minted by the device SDK before login and never match a
// user of ours.
func isAnonymousID(id string) bool {
	return strings.HasPrefix(id, "$RCAnonymousID:")
}
