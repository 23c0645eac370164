package revenuecat

import (
	"strings"
	"time"
)

// CustomerInfo is the entitlement snapshot for one app user.
type CustomerInfo struct {
	OriginalAppUserID string
	Entitlements      map[string]EntitlementInfo
}

// EntitlementInfo describes one entitlement. Optional timestamps are nil when
// the provider omits them; WillRenew nil means renewal was never ruled out.
type EntitlementInfo struct {
	Identifier            string
	IsActive              bool
	ProductIdentifier     string
	ExpirationDate        *time.Time
	OriginalPurchaseDate  *time.Time
	WillRenew             *bool
	OriginalTransactionID string
}

// ActiveEntitlement returns the entitlement with the given identifier when it
// is currently active.
func (c *CustomerInfo) ActiveEntitlement(identifier string) (*EntitlementInfo, bool) {
	if c == nil {
		return nil, false
	}
	ent, ok := c.Entitlements[identifier]
	if !ok || !ent.IsActive {
		return nil, false
	}
	return &ent, true
}

// ActiveIdentifiers lists the active entitlement ids. Used for logging.
func (c *CustomerInfo) ActiveIdentifiers() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.Entitlements))
	for id, ent := range c.Entitlements {
		if ent.IsActive {
			ids = append(ids, id)
		}
	}
	return ids
}

type subscriberResponse struct {
	Subscriber struct {
		OriginalAppUserID string                          `json:"original_app_user_id"`
		Entitlements      map[string]entitlementPayload   `json:"entitlements"`
		Subscriptions     map[string]subscriptionPayload  `json:"subscriptions"`
		NonSubscriptions  map[string][]nonSubscriptionRef `json:"non_subscriptions"`
	} `json:"subscriber"`
}

type entitlementPayload struct {
	ExpiresDate            *time.Time `json:"expires_date"`
	GracePeriodExpiresDate *time.Time `json:"grace_period_expires_date"`
	ProductIdentifier      string     `json:"product_identifier"`
	PurchaseDate           *time.Time `json:"purchase_date"`
}

type subscriptionPayload struct {
	ExpiresDate             *time.Time `json:"expires_date"`
	PurchaseDate            *time.Time `json:"purchase_date"`
	OriginalPurchaseDate    *time.Time `json:"original_purchase_date"`
	UnsubscribeDetectedAt   *time.Time `json:"unsubscribe_detected_at"`
	BillingIssuesDetectedAt *time.Time `json:"billing_issues_detected_at"`
	StoreTransactionID      string     `json:"store_transaction_id"`
	OriginalTransactionID   string     `json:"original_transaction_id"`
	Store                   string     `json:"store"`
}

type nonSubscriptionRef struct {
	ID                 string     `json:"id"`
	PurchaseDate       *time.Time `json:"purchase_date"`
	StoreTransactionID string     `json:"store_transaction_id"`
}

// toCustomerInfo folds the raw subscriber document into the snapshot shape.
// Entitlements are active while their expiry (or grace period) is ahead of
// now; a missing expiry marks a non-expiring purchase.
func (r subscriberResponse) toCustomerInfo(now time.Time) *CustomerInfo {
	info := &CustomerInfo{
		OriginalAppUserID: r.Subscriber.OriginalAppUserID,
		Entitlements:      make(map[string]EntitlementInfo, len(r.Subscriber.Entitlements)),
	}
	for id, raw := range r.Subscriber.Entitlements {
		ent := EntitlementInfo{
			Identifier:        id,
			ProductIdentifier: raw.ProductIdentifier,
			ExpirationDate:    raw.ExpiresDate,
		}
		switch {
		case raw.ExpiresDate == nil:
			ent.IsActive = true
		case raw.ExpiresDate.After(now):
			ent.IsActive = true
		case raw.GracePeriodExpiresDate != nil && raw.GracePeriodExpiresDate.After(now):
			ent.IsActive = true
		}

		if sub, ok := r.Subscriber.Subscriptions[raw.ProductIdentifier]; ok {
			ent.OriginalPurchaseDate = sub.OriginalPurchaseDate
			renews := sub.UnsubscribeDetectedAt == nil && sub.BillingIssuesDetectedAt == nil
			ent.WillRenew = &renews
			ent.OriginalTransactionID = firstNonEmpty(sub.OriginalTransactionID, sub.StoreTransactionID)
		} else if refs := r.Subscriber.NonSubscriptions[raw.ProductIdentifier]; len(refs) > 0 {
			first := refs[0]
			ent.OriginalPurchaseDate = first.PurchaseDate
			ent.OriginalTransactionID = firstNonEmpty(first.StoreTransactionID, first.ID)
		} else {
			ent.OriginalPurchaseDate = raw.PurchaseDate
		}
		info.Entitlements[id] = ent
	}
	return info
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
