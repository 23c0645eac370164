package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedJob string

func (n namedJob) Name() string              { return string(n) }
func (n namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	registry := NewRegistry(namedJob("subscription-reconcile"), nil, namedJob("usage-rollup"))
	assert.Equal(t, []string{"subscription-reconcile", "usage-rollup"}, registry.Names())

	jobs := registry.Jobs()
	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "callers must not mutate the registry")
}

func TestRegistryRejectsBadJobs(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(namedJob("subscription-reconcile")))

	assert.Error(t, registry.Register(namedJob("subscription-reconcile")))
	assert.Error(t, registry.Register(namedJob("  ")))
	assert.Error(t, registry.Register(nil))
	assert.Len(t, registry.Jobs(), 1)

	assert.Panics(t, func() { NewRegistry(namedJob("a"), namedJob("a")) })
}

func TestZeroRegistryAcceptsJobs(t *testing.T) {
	var registry Registry
	require.NoError(t, registry.Register(namedJob("subscription-reconcile")))
	assert.Equal(t, []string{"subscription-reconcile"}, registry.Names())
}
