package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLeases struct {
	values map[string]string
}

func (m *memoryLeases) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLeases) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := &memoryLeases{values: map[string]string{}}
	a, err := NewRedisLock(store, "ss:lock:cron-worker:prod", "cron-a", time.Minute)
	require.NoError(t, err)
	b, err := NewRedisLock(store, "ss:lock:cron-worker:prod", "cron-b", time.Minute)
	require.NoError(t, err)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(store.values["ss:lock:cron-worker:prod"], "cron-a/"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, b.Release(ctx))
	assert.Contains(t, store.values, "ss:lock:cron-worker:prod", "loser must not release the winner's lease")

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockLeavesExpiredLeaseToNewHolder(t *testing.T) {
	ctx := context.Background()
	store := &memoryLeases{values: map[string]string{}}
	a, _ := NewRedisLock(store, "k", "cron-a", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	// lease expired and another replica took it
	store.values["k"] = "cron-b/other"

	require.NoError(t, a.Release(ctx))
	assert.Equal(t, "cron-b/other", store.values["k"])
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", "h", time.Minute)
	assert.Error(t, err)
	_, err = NewRedisLock(&memoryLeases{}, "", "h", time.Minute)
	assert.Error(t, err)
	lock, err := NewRedisLock(&memoryLeases{}, "k", "h", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, lock.ttl)
}
