package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/metrics"
	"github.com/breadthlab/regimed/internal/persistence"
)

// snapshotRepo implements SnapshotRepo for PostgreSQL.
type snapshotRepo struct {
	db        *sqlx.DB
	timeout   time.Duration
	retention time.Duration
}

// NewSnapshotRepo creates a new PostgreSQL snapshot repository.
func NewSnapshotRepo(db *sqlx.DB, timeout, retention time.Duration) persistence.SnapshotRepo {
	return &snapshotRepo{db: db, timeout: timeout, retention: retention}
}

// SaveScan upserts a scan snapshot keyed by timestamp and prunes rows past
// the retention horizon.
func (r *snapshotRepo) SaveScan(ctx context.Context, snap domain.ScanSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO scan_snapshots (ts, long_count, short_count, ratio, total_stocks)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ts) DO UPDATE SET
			long_count = EXCLUDED.long_count,
			short_count = EXCLUDED.short_count,
			ratio = EXCLUDED.ratio,
			total_stocks = EXCLUDED.total_stocks`

	if _, err := r.db.ExecContext(ctx, query,
		snap.Timestamp, snap.LongCount, snap.ShortCount, snap.Ratio, snap.TotalStocks); err != nil {
		metrics.PersistenceErrors.WithLabelValues("save_scan").Inc()
		return fmt.Errorf("failed to save scan snapshot: %w", err)
	}

	return r.prune(ctx, "scan_snapshots")
}

// SaveBreadth upserts a breadth snapshot keyed by timestamp.
func (r *snapshotRepo) SaveBreadth(ctx context.Context, snap domain.BreadthSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO breadth_snapshots (ts, sma20_percent, sma50_percent, volume_participation)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ts) DO UPDATE SET
			sma20_percent = EXCLUDED.sma20_percent,
			sma50_percent = EXCLUDED.sma50_percent,
			volume_participation = EXCLUDED.volume_participation`

	if _, err := r.db.ExecContext(ctx, query,
		snap.Timestamp, snap.SMA20Percent, snap.SMA50Percent, snap.VolumeParticipation); err != nil {
		metrics.PersistenceErrors.WithLabelValues("save_breadth").Inc()
		return fmt.Errorf("failed to save breadth snapshot: %w", err)
	}

	return r.prune(ctx, "breadth_snapshots")
}

// RecentScans returns the newest scan snapshots, newest first.
func (r *snapshotRepo) RecentScans(ctx context.Context, limit int) ([]domain.ScanSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts, long_count, short_count, ratio, total_stocks
		FROM scan_snapshots
		ORDER BY ts DESC
		LIMIT $1`

	var snaps []domain.ScanSnapshot
	if err := r.db.SelectContext(ctx, &snaps, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query recent scans: %w", err)
	}
	return snaps, nil
}

// RecentBreadth returns the newest breadth snapshots, newest first.
func (r *snapshotRepo) RecentBreadth(ctx context.Context, limit int) ([]domain.BreadthSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts, sma20_percent, sma50_percent, volume_participation
		FROM breadth_snapshots
		ORDER BY ts DESC
		LIMIT $1`

	var snaps []domain.BreadthSnapshot
	if err := r.db.SelectContext(ctx, &snaps, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query recent breadth: %w", err)
	}
	return snaps, nil
}

func (r *snapshotRepo) prune(ctx context.Context, table string) error {
	// Table names come from the two call sites above, never from input.
	query := fmt.Sprintf(`DELETE FROM %s WHERE ts < $1`, table)
	if _, err := r.db.ExecContext(ctx, query, time.Now().Add(-r.retention)); err != nil {
		metrics.PersistenceErrors.WithLabelValues("prune").Inc()
		return fmt.Errorf("failed to prune %s: %w", table, err)
	}
	return nil
}
