// Package pgstore keeps share records in the Postgres shares table. The
// store TTL is emulated with a store_expires_at column that reads filter on;
// lapsed rows stay visible to List so the sweeper can reap them.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TobyX424242/ZeroShare/internal/metastore"
	"github.com/TobyX424242/ZeroShare/internal/share"
)

// Store wraps all SQL touching the shares table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New constructs a Store over an open pool. The schema is managed by the
// database package migrations.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Get(ctx context.Context, id string) (*share.Record, error) {
	var data []byte
	row := s.db.QueryRowContext(ctx, `
		SELECT record FROM shares
		WHERE id = $1 AND store_expires_at > $2
	`, id, s.now().UTC())
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, metastore.ErrNotFound
		}
		return nil, fmt.Errorf("select share: %w", err)
	}
	return share.Decode(data)
}

func (s *Store) Put(ctx context.Context, rec *share.Record, ttl time.Duration) error {
	if ttl <= 0 {
		return metastore.ErrInvalidTTL
	}
	data, err := share.Encode(rec)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shares (id, record, store_expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET record = EXCLUDED.record,
			store_expires_at = EXCLUDED.store_expires_at,
			updated_at = EXCLUDED.updated_at
	`, rec.ID, string(data), now.Add(ttl), now)
	if err != nil {
		return fmt.Errorf("upsert share: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM shares WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	return nil
}

// ConsumeView locks the row with SELECT ... FOR UPDATE so concurrent views of
// one share queue behind each other inside Postgres.
func (s *Store) ConsumeView(ctx context.Context, id string, now time.Time) (rec *share.Record, final bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin consume: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var data []byte
	row := tx.QueryRowContext(ctx, `
		SELECT record FROM shares
		WHERE id = $1 AND store_expires_at > $2
		FOR UPDATE
	`, id, s.now().UTC())
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, metastore.ErrNotFound
		}
		return nil, false, fmt.Errorf("lock share: %w", err)
	}
	rec, err = share.Decode(data)
	if err != nil {
		return nil, false, err
	}
	final, err = rec.Consume(now)
	if err != nil {
		return rec, false, err
	}

	if final {
		if _, err := tx.ExecContext(ctx, `DELETE FROM shares WHERE id = $1`, id); err != nil {
			return nil, false, fmt.Errorf("delete consumed share: %w", err)
		}
	} else {
		updated, err := share.Encode(rec)
		if err != nil {
			return nil, false, err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE shares
			SET record = $1, store_expires_at = $2, updated_at = $3
			WHERE id = $4
		`, string(updated), s.now().UTC().Add(rec.StoreTTL(now)), s.now().UTC(), id)
		if err != nil {
			return nil, false, fmt.Errorf("update share: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit consume: %w", err)
	}
	committed = true
	return rec, final, nil
}

// List pages through rows by id, including rows whose store TTL lapsed.
func (s *Store) List(ctx context.Context, cursor string, limit int) (metastore.Page, error) {
	if limit <= 0 {
		limit = metastore.DefaultPageSize
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record FROM shares
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`, cursor, limit)
	if err != nil {
		return metastore.Page{}, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	var page metastore.Page
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return metastore.Page{}, fmt.Errorf("scan share: %w", err)
		}
		rec, err := share.Decode(data)
		if err != nil {
			page.Entries = append(page.Entries, metastore.Entry{ID: id, Err: err})
			continue
		}
		page.Entries = append(page.Entries, metastore.Entry{ID: id, Record: rec})
	}
	if err := rows.Err(); err != nil {
		return metastore.Page{}, fmt.Errorf("iterate shares: %w", err)
	}
	if len(page.Entries) == limit {
		page.Next = page.Entries[len(page.Entries)-1].ID
	}
	return page, nil
}

// Close is a no-op: the pool belongs to the caller.
func (s *Store) Close() error { return nil }
