package clickhouse

import (
	"context"
	"fmt"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

// PoolSnapshotStore implements storage.PoolSnapshotStore using ClickHouse.
type PoolSnapshotStore struct {
	conn *Conn
}

// NewPoolSnapshotStore creates a new PoolSnapshotStore.
func NewPoolSnapshotStore(conn *Conn) *PoolSnapshotStore {
	return &PoolSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PoolSnapshotStore = (*PoolSnapshotStore)(nil)

// InsertBulk appends snapshot points.
func (s *PoolSnapshotStore) InsertBulk(ctx context.Context, points []*domain.PoolSnapshot) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO pool_snapshots (timestamp_ms, balance, block_number)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		if err := batch.Append(uint64(p.TimestampMs), p.Balance, p.BlockNumber); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves snapshots within [start, end] ms, ascending.
func (s *PoolSnapshotStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PoolSnapshot, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT timestamp_ms, balance, block_number
		FROM pool_snapshots
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query pool snapshots: %w", err)
	}
	defer rows.Close()

	var points []*domain.PoolSnapshot
	for rows.Next() {
		var ts, block uint64
		var balance float64
		if err := rows.Scan(&ts, &balance, &block); err != nil {
			return nil, fmt.Errorf("scan pool snapshot: %w", err)
		}
		points = append(points, &domain.PoolSnapshot{
			TimestampMs: int64(ts),
			Balance:     balance,
			BlockNumber: block,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool snapshots: %w", err)
	}

	return points, nil
}
