package revenuecat

import (
	"reflect"
	"testing"
)

func TestParseWebhook(t *testing.T) {
	body := []byte(`{"api_version":"1.0","event":{"id":"evt_1","type":"RENEWAL","app_user_id":"user_a","original_app_user_id":"user_a","product_id":"pro_monthly","entitlement_ids":["LinguaMate Pro"],"event_timestamp_ms":1710408600000}}`)
	event, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if event.ID != "evt_1" || event.Type != EventRenewal {
		t.Fatalf("unexpected event %+v", event)
	}
	if got := event.SubscriberIDs(); !reflect.DeepEqual(got, []string{"user_a"}) {
		t.Fatalf("unexpected subscriber ids %v", got)
	}
}

func TestParseWebhookRejectsIncompleteEvents(t *testing.T) {
	cases := map[string]string{
		"malformed":  `{"event":`,
		"missing id": `{"event":{"type":"RENEWAL"}}`,
		"no type":    `{"event":{"id":"evt_1"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseWebhook([]byte(body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSubscriberIDsSkipsAnonymousAndUsesTransferTargets(t *testing.T) {
	event := &WebhookEvent{
		Type:              EventInitialPurchase,
		AppUserID:         "$RCAnonymousID:abc",
		OriginalAppUserID: "user_b",
	}
	if got := event.SubscriberIDs(); !reflect.DeepEqual(got, []string{"user_b"}) {
		t.Fatalf("unexpected ids %v", got)
	}

	transfer := &WebhookEvent{
		Type:          EventTransfer,
		AppUserID:     "user_old",
		TransferredTo: []string{"user_new", "user_new", "$RCAnonymousID:x"},
	}
	if got := transfer.SubscriberIDs(); !reflect.DeepEqual(got, []string{"user_new"}) {
		t.Fatalf("unexpected transfer ids %v", got)
	}
}
