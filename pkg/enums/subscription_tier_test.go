package enums

import "testing"

func TestParseSubscriptionTier(t *testing.T) {
	for _, raw := range []string{"free", "pro", "pro_plus", " PRO "} {
		tier, err := ParseSubscriptionTier(raw)
		if err != nil {
			t.Fatalf("ParseSubscriptionTier(%q) unexpected error: %v", raw, err)
		}
		if !tier.IsValid() {
			t.Fatalf("expected %q to be valid", tier)
		}
	}
	if _, err := ParseSubscriptionTier("enterprise"); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestTierFromProductIdentifier(t *testing.T) {
	cases := map[string]SubscriptionTier{
		"com.app.yearly":         SubscriptionTierProPlus,
		"linguamate_annual_2024": SubscriptionTierProPlus,
		"com.app.monthly":        SubscriptionTierPro,
		"com.app.Monthly.Promo":  SubscriptionTierPro,
		"lifetime_unlock":        SubscriptionTierPro,
		"":                       SubscriptionTierPro,
	}
	for productID, want := range cases {
		if got := TierFromProductIdentifier(productID); got != want {
			t.Fatalf("TierFromProductIdentifier(%q) = %q, want %q", productID, got, want)
		}
	}
}

func TestIsPaid(t *testing.T) {
	if SubscriptionTierFree.IsPaid() {
		t.Fatal("free should not be paid")
	}
	if !SubscriptionTierPro.IsPaid() || !SubscriptionTierProPlus.IsPaid() {
		t.Fatal("pro tiers should be paid")
	}
}
