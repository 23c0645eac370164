package webhooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
	"github.com/angelmondragon/linguamate-backend/pkg/revenuecat"
)

const testSecret = "whsec_linguamate"

type stubService struct {
	events []*revenuecat.WebhookEvent
	err    error
}

func (s *stubService) HandleEvent(_ context.Context, event *revenuecat.WebhookEvent) error {
	s.events = append(s.events, event)
	return s.err
}

type stubGuard struct {
	seen    map[string]bool
	deleted []string
	err     error
}

func newStubGuard() *stubGuard {
	return &stubGuard{seen: map[string]bool{}}
}

func (g *stubGuard) Claim(_ context.Context, eventID string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if g.seen[eventID] {
		return false, nil
	}
	g.seen[eventID] = true
	return true, nil
}

func (g *stubGuard) Release(_ context.Context, eventID string) error {
	delete(g.seen, eventID)
	g.deleted = append(g.deleted, eventID)
	return nil
}

const renewalPayload = `{"api_version":"1.0","event":{"id":"evt_1","type":"RENEWAL","app_user_id":"user_2abc","product_id":"linguamate_pro_monthly"}}`

func webhookRequest(auth, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/revenuecat", strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return req
}

func TestRevenueCatWebhookProcessesOnce(t *testing.T) {
	svc := &stubService{}
	guard := newStubGuard()
	handler := RevenueCatWebhook(svc, testSecret, guard, logger.Nop())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, webhookRequest(testSecret, renewalPayload))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, webhookRequest("Bearer "+testSecret, renewalPayload))
	require.Equal(t, http.StatusOK, resp.Code)

	require.Len(t, svc.events, 1)
	assert.Equal(t, "user_2abc", svc.events[0].AppUserID)
}

func TestRevenueCatWebhookRejectsBadAuth(t *testing.T) {
	svc := &stubService{}
	for _, auth := range []string{"", "wrong", "Bearer wrong"} {
		resp := httptest.NewRecorder()
		RevenueCatWebhook(svc, testSecret, newStubGuard(), logger.Nop()).ServeHTTP(resp, webhookRequest(auth, renewalPayload))
		assert.Equal(t, http.StatusUnauthorized, resp.Code, auth)
	}
	assert.Empty(t, svc.events)
}

func TestRevenueCatWebhookUnconfiguredSecret(t *testing.T) {
	resp := httptest.NewRecorder()
	RevenueCatWebhook(&stubService{}, "", newStubGuard(), logger.Nop()).ServeHTTP(resp, webhookRequest("anything", renewalPayload))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestRevenueCatWebhookRejectsMalformedPayload(t *testing.T) {
	resp := httptest.NewRecorder()
	RevenueCatWebhook(&stubService{}, testSecret, newStubGuard(), logger.Nop()).ServeHTTP(resp, webhookRequest(testSecret, `{"event":{"type":"RENEWAL"}}`))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRevenueCatWebhookFailureUnmarksEvent(t *testing.T) {
	svc := &stubService{err: pkgerrors.New(pkgerrors.CodeDependency, "subscriber request failed")}
	guard := newStubGuard()
	resp := httptest.NewRecorder()
	RevenueCatWebhook(svc, testSecret, guard, logger.Nop()).ServeHTTP(resp, webhookRequest(testSecret, renewalPayload))

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Equal(t, []string{"evt_1"}, guard.deleted)
	assert.False(t, guard.seen["evt_1"])
}

func TestRevenueCatWebhookGuardFailure(t *testing.T) {
	guard := newStubGuard()
	guard.err = errors.New("redis down")
	resp := httptest.NewRecorder()
	RevenueCatWebhook(&stubService{}, testSecret, guard, logger.Nop()).ServeHTTP(resp, webhookRequest(testSecret, renewalPayload))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
