// Copyright 2025 James Ross
package checkpoint

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jamesross/carefleet-sim/internal/config"
	"github.com/jamesross/carefleet-sim/internal/operator"
	"github.com/jamesross/carefleet-sim/internal/patient"
	"github.com/jamesross/carefleet-sim/internal/visit"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, compression string) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := NewStore(rdb, config.Checkpoint{KeyPrefix: "test:checkpoint:", Compression: compression})
	require.NoError(t, err)
	return store
}

func sampleSnapshot() Snapshot {
	p := patient.New(0, 2, true, patient.NoAssignedOperator, false)
	op := operator.New(1000, 2, 1, 480, 540, []bool{true, true, true, true, true}, []int{0, 0, 0, 0, 0}, []int{840, 840, 840, 840, 840})
	v := visit.New(1000000, 0, 1, 0, 300, 360)
	return Snapshot{
		RunID:     "run-a",
		Day:       2,
		Minute:    415,
		Running:   true,
		Patients:  []*patient.Patient{p},
		Operators: []*operator.Operator{op},
		Visits:    []*visit.Visit{v},
	}
}

func TestStoreSaveLoadRoundTripsGzip(t *testing.T) {
	store := newTestStore(t, "gzip")
	snap := sampleSnapshot()

	require.NoError(t, store.Save(context.Background(), snap))

	got, err := store.Load(context.Background(), "run-a")
	require.NoError(t, err)
	require.Equal(t, snap.Day, got.Day)
	require.Equal(t, snap.Minute, got.Minute)
	require.Len(t, got.Patients, 1)
	require.Len(t, got.Operators, 1)
	require.Len(t, got.Visits, 1)
	require.Equal(t, 1000, got.Operators[0].ID)
}

func TestStoreSaveLoadRoundTripsZstd(t *testing.T) {
	store := newTestStore(t, "zstd")
	snap := sampleSnapshot()

	require.NoError(t, store.Save(context.Background(), snap))

	got, err := store.Load(context.Background(), "run-a")
	require.NoError(t, err)
	require.Equal(t, snap.Visits[0].ID, got.Visits[0].ID)
}

func TestStoreLoadMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t, "")
	_, err := store.Load(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreDeleteRemovesCheckpoint(t *testing.T) {
	store := newTestStore(t, "gzip")
	snap := sampleSnapshot()
	require.NoError(t, store.Save(context.Background(), snap))

	require.NoError(t, store.Delete(context.Background(), snap.RunID))

	_, err := store.Load(context.Background(), snap.RunID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNewStoreRejectsUnknownCompression(t *testing.T) {
	_, err := NewStore(nil, config.Checkpoint{Compression: "lz4"})
	require.Error(t, err)
}
