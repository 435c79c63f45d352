// Copyright 2025 James Ross
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jamesross/carefleet-sim/internal/config"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Load when no checkpoint exists for a run.
var ErrNotFound = errors.New("checkpoint: not found")

// Store persists Snapshots to Redis, gzip/zstd-compressed, under a
// run-scoped key.
type Store struct {
	rdb        *redis.Client
	keyPrefix  string
	compressor Compressor
}

// NewStore builds a Store from a configured Redis client. It returns an
// error only if the configured compression algorithm is unrecognized.
func NewStore(rdb *redis.Client, cfg config.Checkpoint) (*Store, error) {
	compressor, err := newCompressor(cfg.Compression)
	if err != nil {
		return nil, err
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "carefleet:checkpoint:"
	}
	return &Store{rdb: rdb, keyPrefix: prefix, compressor: compressor}, nil
}

func (s *Store) key(runID string) string { return s.keyPrefix + runID }

// Save serializes and writes a snapshot, overwriting any prior one for
// the same run.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal snapshot: %w", err)
	}
	compressed, err := s.compressor.Compress(data)
	if err != nil {
		return fmt.Errorf("checkpoint: compress snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(snap.RunID), compressed, 0).Err(); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", snap.RunID, err)
	}
	return nil
}

// Load reads back the most recent snapshot for a run.
func (s *Store) Load(ctx context.Context, runID string) (*Snapshot, error) {
	raw, err := s.rdb.Get(ctx, s.key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read %s: %w", runID, err)
	}
	data, err := s.compressor.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: decompress %s: %w", runID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal %s: %w", runID, err)
	}
	return &snap, nil
}

// Delete removes a run's checkpoint, used once a run finishes cleanly.
func (s *Store) Delete(ctx context.Context, runID string) error {
	if err := s.rdb.Del(ctx, s.key(runID)).Err(); err != nil {
		return fmt.Errorf("checkpoint: delete %s: %w", runID, err)
	}
	return nil
}
