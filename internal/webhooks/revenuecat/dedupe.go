package revenuecatwebhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const defaultEventTTL = 72 * time.Hour

type claimStore interface {
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
}

// EventDeduper remembers delivered event ids for a TTL. RevenueCat retries
// failed deliveries, so a claim is released when processing fails.
type EventDeduper struct {
	store claimStore
	scope string
	ttl   time.Duration
	now   func() time.Time
}

func NewEventDeduper(store claimStore, ttl time.Duration, scope string) (*EventDeduper, error) {
	switch {
	case store == nil:
		return nil, errors.New("claim store required")
	case scope == "":
		return nil, errors.New("scope required")
	case ttl < 0:
		return nil, fmt.Errorf("negative ttl %s", ttl)
	case ttl == 0:
		ttl = defaultEventTTL
	}
	return &EventDeduper{store: store, scope: scope, ttl: ttl, now: time.Now}, nil
}

// Claim reports whether this is the first delivery of eventID. The stored
// value is the claim time, for debugging.
func (d *EventDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id required")
	}
	stamp := strconv.FormatInt(d.now().Unix(), 10)
	first, err := d.store.SetNX(ctx, d.store.IdempotencyKey(d.scope, eventID), stamp, d.ttl)
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return first, nil
}

// Release forgets eventID so the next delivery is processed.
func (d *EventDeduper) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id required")
	}
	return d.store.Del(ctx, d.store.IdempotencyKey(d.scope, eventID))
}
