package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-workout-planner/internal/intake"
	"ai-workout-planner/internal/workout"
)

func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	id := uuid.NewString()
	t.Cleanup(func() { _ = store.Delete(ctx, id) })

	missing, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, missing)

	sess := &GuestSession{ID: id, State: workout.StateIntake, Fields: intake.Fields{"goal": "core"}}
	require.NoError(t, store.Create(ctx, sess))
	assert.Equal(t, int64(1), sess.Version)
	assert.ErrorIs(t, store.Create(ctx, &GuestSession{ID: id}), ErrAlreadyExists)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, workout.StateIntake, got.State)
	assert.Equal(t, "core", got.Fields["goal"])

	stale, err := store.Get(ctx, id)
	require.NoError(t, err)

	got.Attempts = 1
	got.State = workout.StatePlanning
	require.NoError(t, store.Update(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	stale.Attempts = 1
	assert.ErrorIs(t, store.Update(ctx, stale), ErrVersionConflict)

	plan := workout.Plan{Weeks: 1, DaysPerWeek: 1, Plan: []workout.Day{{Day: "Day 1", Workout: []workout.Exercise{}}}}
	got.Plan = &plan
	got.State = workout.StatePlanReady
	require.NoError(t, store.Update(ctx, got))

	final, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), final.Version)
	assert.Equal(t, 1, final.Attempts)
	require.NotNil(t, final.Plan)
	assert.Len(t, final.Plan.Plan, 1)

	assert.ErrorIs(t, store.Update(ctx, &GuestSession{ID: uuid.NewString(), Version: 1}), ErrNotFound)

	require.NoError(t, store.Delete(ctx, id))
	gone, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestMemoryStore(t *testing.T) {
	store, err := NewStore(StoreTypeMemory)
	require.NoError(t, err)
	runStoreContract(t, store)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sess := &GuestSession{ID: "g1", Fields: intake.Fields{"goal": "core"}}
	require.NoError(t, store.Create(ctx, sess))

	sess.Fields["goal"] = "mutated"
	got, err := store.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "core", got.Fields["goal"])

	got.Fields["goal"] = "mutated again"
	again, _ := store.Get(ctx, "g1")
	assert.Equal(t, "core", again.Fields["goal"])
}

func TestNewStoreValidation(t *testing.T) {
	_, err := NewStore(StoreTypeRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewStore("etcd")
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	store, err := NewStore(StoreTypeRedis, WithRedisClient(redis.NewClient(opts)), WithRedisTTL(time.Minute))
	require.NoError(t, err)
	defer store.Close()
	runStoreContract(t, store)
}
