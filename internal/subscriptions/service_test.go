package subscriptions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/linguamate-backend/pkg/db/dbtest"
	"github.com/angelmondragon/linguamate-backend/pkg/db/models"
	"github.com/angelmondragon/linguamate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
	"github.com/angelmondragon/linguamate-backend/pkg/revenuecat"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type stubEntitlements struct {
	infos map[string]*revenuecat.CustomerInfo
	err   error
	calls int
}

func (s *stubEntitlements) GetCustomerInfo(_ context.Context, appUserID string) (*revenuecat.CustomerInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if info, ok := s.infos[appUserID]; ok {
		return info, nil
	}
	return &revenuecat.CustomerInfo{OriginalAppUserID: appUserID}, nil
}

type recordingTierSyncer struct {
	tiers map[string]enums.SubscriptionTier
}

func (r *recordingTierSyncer) SyncTier(_ context.Context, externalID string, tier enums.SubscriptionTier) error {
	if r.tiers == nil {
		r.tiers = map[string]enums.SubscriptionTier{}
	}
	r.tiers[externalID] = tier
	return nil
}

func boolPtr(v bool) *bool { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func activeInfo(userID, product string, expires *time.Time, willRenew *bool, ref string) *revenuecat.CustomerInfo {
	return &revenuecat.CustomerInfo{
		OriginalAppUserID: userID,
		Entitlements: map[string]revenuecat.EntitlementInfo{
			"LinguaMate Pro": {
				Identifier:            "LinguaMate Pro",
				IsActive:              true,
				ProductIdentifier:     product,
				ExpirationDate:        expires,
				OriginalPurchaseDate:  timePtr(testNow.AddDate(0, -1, 0)),
				WillRenew:             willRenew,
				OriginalTransactionID: ref,
			},
		},
	}
}

func newTestService(t *testing.T, billing EntitlementSource, syncer TierSyncer) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:       NewRepository(conn),
		Billing:    billing,
		TierSyncer: syncer,
		Logger:     logger.Nop(),
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return svc, conn
}

func seed(t *testing.T, conn *gorm.DB, sub models.Subscription) *models.Subscription {
	t.Helper()
	require.NoError(t, NewRepository(conn).Create(context.Background(), &sub))
	return &sub
}

func countSubscriptions(t *testing.T, conn *gorm.DB, userID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.Subscription{}).Where("user_id = ?", userID).Count(&count).Error)
	return count
}

func TestGetOrCreatePersistsFreeRecord(t *testing.T) {
	svc, conn := newTestService(t, nil, nil)

	sub, err := svc.GetOrCreate(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionTierFree, sub.Tier)
	assert.True(t, sub.IsActive)
	assert.Equal(t, 30, sub.DaysRemaining)
	assert.Empty(t, sub.BillingSubscriptionRef)
	assert.Equal(t, testNow.AddDate(0, 0, 30), sub.CurrentPeriodEnd)

	again, err := svc.GetOrCreate(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, int64(1), countSubscriptions(t, conn, "user-1"))
}

func TestGetOrCreatePrefersNewestActive(t *testing.T) {
	svc, conn := newTestService(t, nil, nil)
	seed(t, conn, models.Subscription{
		UserID: "user-1", Tier: enums.SubscriptionTierFree, IsActive: true,
		CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow, CreatedAt: testNow.Add(-48 * time.Hour),
	})
	paid := seed(t, conn, models.Subscription{
		UserID: "user-1", Tier: enums.SubscriptionTierPro, IsActive: true, BillingSubscriptionRef: "tx-1",
		CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow.Add(240 * time.Hour), CreatedAt: testNow.Add(-time.Hour),
	})
	seed(t, conn, models.Subscription{
		UserID: "user-1", Tier: enums.SubscriptionTierProPlus, IsActive: false, BillingSubscriptionRef: "tx-2",
		CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow, CreatedAt: testNow,
	})

	sub, err := svc.GetOrCreate(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, paid.ID, sub.ID)
}

func TestGetOrCreateFallsBackToNewestInactive(t *testing.T) {
	svc, conn := newTestService(t, nil, nil)
	seed(t, conn, models.Subscription{
		UserID: "user-1", Tier: enums.SubscriptionTierPro, IsActive: false, BillingSubscriptionRef: "old",
		CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow, CreatedAt: testNow.Add(-72 * time.Hour),
	})
	newest := seed(t, conn, models.Subscription{
		UserID: "user-1", Tier: enums.SubscriptionTierProPlus, IsActive: false, BillingSubscriptionRef: "new",
		CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow, CreatedAt: testNow.Add(-time.Hour),
	})

	sub, err := svc.GetOrCreate(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, newest.ID, sub.ID)
	assert.Equal(t, int64(2), countSubscriptions(t, conn, "user-1"), "no free record is added")
}

func TestGetOrCreateRejectsAnonymous(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	_, err := svc.GetOrCreate(context.Background(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestResolveTierFromBillingProduct(t *testing.T) {
	cases := map[string]enums.SubscriptionTier{
		"com.app.yearly":     enums.SubscriptionTierProPlus,
		"lm_annual_2025":     enums.SubscriptionTierProPlus,
		"com.app.monthly":    enums.SubscriptionTierPro,
		"com.app.weekly_pro": enums.SubscriptionTierPro,
	}
	for product, want := range cases {
		t.Run(product, func(t *testing.T) {
			billing := &stubEntitlements{infos: map[string]*revenuecat.CustomerInfo{
				"user-1": activeInfo("user-1", product, timePtr(testNow.AddDate(0, 1, 0)), nil, "tx-1"),
			}}
			svc, conn := newTestService(t, billing, nil)

			tier, err := svc.ResolveTier(context.Background(), "user-1")
			require.NoError(t, err)
			assert.Equal(t, want, tier)
			assert.Equal(t, int64(1), countSubscriptions(t, conn, "user-1"), "snapshot is projected")
		})
	}
}

func TestResolveTierWithoutEntitlementCreatesFree(t *testing.T) {
	svc, conn := newTestService(t, &stubEntitlements{}, nil)

	tier, err := svc.ResolveTier(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionTierFree, tier)
	assert.Equal(t, int64(1), countSubscriptions(t, conn, "user-1"))
}

func TestResolveTierUsesStoredRecordWithoutBilling(t *testing.T) {
	svc, conn := newTestService(t, nil, nil)
	seed(t, conn, models.Subscription{
		UserID: "user-1", Tier: enums.SubscriptionTierPro, IsActive: true, BillingSubscriptionRef: "tx-1",
		CurrentPeriodStart: testNow.AddDate(0, -1, 0), CurrentPeriodEnd: testNow.AddDate(0, 0, 3),
	})

	tier, err := svc.ResolveTier(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionTierPro, tier)
}

func TestResolveTierIgnoresLapsedRecord(t *testing.T) {
	svc, conn := newTestService(t, &stubEntitlements{}, nil)
	seed(t, conn, models.Subscription{
		UserID: "user-1", Tier: enums.SubscriptionTierProPlus, IsActive: true, BillingSubscriptionRef: "tx-1",
		CurrentPeriodStart: testNow.AddDate(-1, 0, 0), CurrentPeriodEnd: testNow.Add(-time.Minute),
	})

	tier, err := svc.ResolveTier(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionTierFree, tier)
}

func TestResolveTierPropagatesBillingErrors(t *testing.T) {
	billing := &stubEntitlements{err: pkgerrors.New(pkgerrors.CodeDependency, "revenuecat down")}
	svc, _ := newTestService(t, billing, nil)

	_, err := svc.ResolveTier(context.Background(), "user-1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestResolveTierRejectsAnonymous(t *testing.T) {
	billing := &stubEntitlements{}
	svc, _ := newTestService(t, billing, nil)
	_, err := svc.ResolveTier(context.Background(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	assert.Zero(t, billing.calls)
}

func TestSyncEntitlementNoEntitlementIsNoop(t *testing.T) {
	svc, conn := newTestService(t, nil, nil)
	sub, err := svc.SyncEntitlement(context.Background(), "user-1", &revenuecat.CustomerInfo{})
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.Zero(t, countSubscriptions(t, conn, "user-1"))
}

func TestSyncEntitlementInsertsThenUpdatesByRef(t *testing.T) {
	syncer := &recordingTierSyncer{}
	svc, conn := newTestService(t, nil, syncer)
	ctx := context.Background()

	expires := testNow.Add(36 * time.Hour)
	first, err := svc.SyncEntitlement(ctx, "user-1", activeInfo("user-1", "lm_monthly", &expires, nil, "tx-1"))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, enums.SubscriptionTierPro, first.Tier)
	assert.Equal(t, 2, first.DaysRemaining, "partial days round up")
	assert.True(t, first.IsActive, "absent renewal flag means active")
	assert.Equal(t, "tx-1", first.BillingSubscriptionRef)
	assert.Equal(t, "user-1", first.BillingCustomerRef)
	assert.Equal(t, testNow.AddDate(0, -1, 0), first.CurrentPeriodStart)
	assert.Equal(t, enums.SubscriptionTierPro, syncer.tiers["user-1"])

	second, err := svc.SyncEntitlement(ctx, "user-1", activeInfo("user-1", "lm_yearly", &expires, boolPtr(false), "tx-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, enums.SubscriptionTierProPlus, second.Tier)
	assert.False(t, second.IsActive)
	assert.Equal(t, int64(1), countSubscriptions(t, conn, "user-1"))

	_, err = svc.SyncEntitlement(ctx, "user-1", activeInfo("user-1", "lm_yearly", &expires, nil, "tx-2"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), countSubscriptions(t, conn, "user-1"), "a new billing ref inserts")
}

func TestSyncEntitlementMissingExpiryIsAlreadyExpired(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	sub, err := svc.SyncEntitlement(context.Background(), "user-1", activeInfo("user-1", "lm_monthly", nil, boolPtr(true), "tx-1"))
	require.NoError(t, err)
	assert.Equal(t, testNow, sub.CurrentPeriodEnd)
	assert.Zero(t, sub.DaysRemaining)
}

func TestSyncEntitlementPastExpiryClampsToZero(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	past := testNow.Add(-72 * time.Hour)
	sub, err := svc.SyncEntitlement(context.Background(), "user-1", activeInfo("user-1", "lm_monthly", &past, nil, "tx-1"))
	require.NoError(t, err)
	assert.Zero(t, sub.DaysRemaining)
}

func TestSyncEntitlementRoundsDaysRemainingUp(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	ctx := context.Background()

	tenDays := testNow.Add(10 * 24 * time.Hour)
	sub, err := svc.SyncEntitlement(ctx, "user-1", activeInfo("user-1", "lm_monthly", &tenDays, boolPtr(true), "tx-10"))
	require.NoError(t, err)
	assert.Equal(t, 10, sub.DaysRemaining)

	nineAndHalf := testNow.Add(9*24*time.Hour + 12*time.Hour)
	sub, err = svc.SyncEntitlement(ctx, "user-2", activeInfo("user-2", "lm_monthly", &nineAndHalf, boolPtr(true), "tx-9"))
	require.NoError(t, err)
	assert.Equal(t, 10, sub.DaysRemaining)
}

func TestSyncFromBillingRequiresProvider(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	_, err := svc.SyncFromBilling(context.Background(), "user-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestReconcileExpiresLapsedRecord(t *testing.T) {
	syncer := &recordingTierSyncer{}
	svc, conn := newTestService(t, &stubEntitlements{}, syncer)
	record := seed(t, conn, models.Subscription{
		UserID: "user-1", Tier: enums.SubscriptionTierPro, IsActive: true, DaysRemaining: 3, BillingSubscriptionRef: "tx-1",
		CurrentPeriodStart: testNow.AddDate(0, -1, 0), CurrentPeriodEnd: testNow.Add(-time.Hour),
	})

	outcome, err := svc.Reconcile(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, ReconcileExpired, outcome)

	stored, err := NewRepository(conn).FindByBillingRef(context.Background(), "user-1", "tx-1")
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Zero(t, stored.DaysRemaining)
	assert.Equal(t, enums.SubscriptionTierFree, syncer.tiers["user-1"])
}

func TestReconcileRecomputesDaysRemaining(t *testing.T) {
	svc, conn := newTestService(t, &stubEntitlements{}, nil)
	record := seed(t, conn, models.Subscription{
		UserID: "user-1", Tier: enums.SubscriptionTierPro, IsActive: true, DaysRemaining: 30, BillingSubscriptionRef: "tx-1",
		CurrentPeriodStart: testNow.AddDate(0, -1, 0), CurrentPeriodEnd: testNow.Add(49 * time.Hour),
	})

	outcome, err := svc.Reconcile(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, ReconcileRecomputed, outcome)
	assert.Equal(t, 3, record.DaysRemaining)

	outcome, err = svc.Reconcile(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, ReconcileUnchanged, outcome)
}

func TestReconcileSyncsActiveEntitlement(t *testing.T) {
	expires := testNow.AddDate(1, 0, 0)
	billing := &stubEntitlements{infos: map[string]*revenuecat.CustomerInfo{
		"user-1": activeInfo("user-1", "lm_yearly", &expires, nil, "tx-1"),
	}}
	svc, conn := newTestService(t, billing, nil)
	record := seed(t, conn, models.Subscription{
		UserID: "user-1", Tier: enums.SubscriptionTierPro, IsActive: true, BillingSubscriptionRef: "tx-1",
		CurrentPeriodStart: testNow.AddDate(0, -1, 0), CurrentPeriodEnd: testNow.Add(-time.Hour),
	})

	outcome, err := svc.Reconcile(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, ReconcileSynced, outcome)

	stored, err := NewRepository(conn).FindByBillingRef(context.Background(), "user-1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionTierProPlus, stored.Tier)
	assert.True(t, stored.CurrentPeriodEnd.Equal(expires))
}

func TestReconcileWrapsBillingErrors(t *testing.T) {
	boom := errors.New("boom")
	svc, conn := newTestService(t, &stubEntitlements{err: boom}, nil)
	record := seed(t, conn, models.Subscription{
		UserID: "user-1", Tier: enums.SubscriptionTierPro, IsActive: true,
		CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow,
	})
	_, err := svc.Reconcile(context.Background(), record)
	assert.ErrorIs(t, err, boom)
}

func TestDaysRemaining(t *testing.T) {
	assert.Equal(t, 0, DaysRemaining(testNow, testNow))
	assert.Equal(t, 1, DaysRemaining(testNow.Add(time.Minute), testNow))
	assert.Equal(t, 1, DaysRemaining(testNow.Add(24*time.Hour), testNow))
	assert.Equal(t, 0, DaysRemaining(testNow.Add(-240*time.Hour), testNow))
	assert.Equal(t, 10, DaysRemaining(testNow.Add(10*24*time.Hour), testNow))
	assert.Equal(t, 10, DaysRemaining(testNow.Add(9*24*time.Hour+12*time.Hour), testNow))
}

func TestListForReconciliation(t *testing.T) {
	_, conn := newTestService(t, nil, nil)
	repo := NewRepository(conn)
	cutoff := testNow.Add(-7 * 24 * time.Hour)

	seed(t, conn, models.Subscription{UserID: "free", Tier: enums.SubscriptionTierFree, IsActive: true, CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow})
	seed(t, conn, models.Subscription{UserID: "active", Tier: enums.SubscriptionTierPro, IsActive: true, CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow.AddDate(-1, 0, 0)})
	seed(t, conn, models.Subscription{UserID: "recent", Tier: enums.SubscriptionTierProPlus, IsActive: false, CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow.AddDate(0, 0, -2)})
	seed(t, conn, models.Subscription{UserID: "stale", Tier: enums.SubscriptionTierPro, IsActive: false, CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow.AddDate(0, 0, -30)})

	subs, err := repo.ListForReconciliation(context.Background(), cutoff, 10)
	require.NoError(t, err)
	users := map[string]bool{}
	for _, sub := range subs {
		users[sub.UserID] = true
	}
	assert.Equal(t, map[string]bool{"active": true, "recent": true}, users)
}

func TestHistoryListsNewestFirst(t *testing.T) {
	svc, conn := newTestService(t, nil, nil)
	seed(t, conn, models.Subscription{
		UserID: "user-1", Tier: enums.SubscriptionTierFree, IsActive: true,
		CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow, CreatedAt: testNow.Add(-48 * time.Hour),
	})
	newest := seed(t, conn, models.Subscription{
		UserID: "user-1", Tier: enums.SubscriptionTierPro, IsActive: true, BillingSubscriptionRef: "tx-1",
		CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow, CreatedAt: testNow.Add(-time.Hour),
	})
	seed(t, conn, models.Subscription{
		UserID: "user-2", Tier: enums.SubscriptionTierPro, IsActive: true,
		CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow, CreatedAt: testNow,
	})

	records, err := svc.History(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, newest.ID, records[0].ID)

	records, err = svc.History(context.Background(), "user-1", 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = svc.History(context.Background(), " ", 5)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}
