// Package view holds the read side: the subscription projection the event
// stream is folded into, and the cache of ingested public events that
// compiled filters are matched against.
package view

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hmcts/cpp-context-notification/pkg/filter"
)

// ErrSubscriptionNotFound is returned when the view has no row for a
// subscription id. Cancelled subscriptions are deleted from the view, so
// they are indistinguishable from never-created ones here.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// Subscription is one row of the subscription projection.
type Subscription struct {
	ID       string
	OwnerID  string
	Filter   filter.Filter
	Created  time.Time
	Modified time.Time
}

// SubscriptionStore persists the subscription projection in SQLite.
// Filters are stored serialized and re-parsed on every read; the stored
// form round-trips exactly.
type SubscriptionStore struct {
	db *sql.DB
}

// NewSubscriptionStore creates the store and its schema.
func NewSubscriptionStore(db *sql.DB) (*SubscriptionStore, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS subscription (
			id       TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			filter   TEXT NOT NULL,
			created  INTEGER NOT NULL,
			modified INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("failed to create subscription table: %w", err)
	}
	return &SubscriptionStore{db: db}, nil
}

// Save inserts or replaces a subscription row.
func (s *SubscriptionStore) Save(ctx context.Context, sub Subscription) error {
	serialized, err := filter.Serialize(sub.Filter)
	if err != nil {
		return fmt.Errorf("failed to serialize filter: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO subscription (id, owner_id, filter, created, modified)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			filter = excluded.filter,
			created = excluded.created,
			modified = excluded.modified
	`,
		sub.ID,
		sub.OwnerID,
		serialized,
		sub.Created.UnixMilli(),
		sub.Modified.UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// UpdateFilter replaces the stored filter and advances the modified
// timestamp. A missing row is not an error: the projection may simply be
// behind the log.
func (s *SubscriptionStore) UpdateFilter(ctx context.Context, id string, f filter.Filter, modified time.Time) error {
	serialized, err := filter.Serialize(f)
	if err != nil {
		return fmt.Errorf("failed to serialize filter: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE subscription SET filter = ?, modified = ? WHERE id = ?`,
		serialized, modified.UnixMilli(), id,
	); err != nil {
		return fmt.Errorf("failed to update subscription filter: %w", err)
	}
	return nil
}

// Delete removes a subscription row. Deleting an absent row is a no-op.
func (s *SubscriptionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM subscription WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// Get returns the subscription row for id, or ErrSubscriptionNotFound.
func (s *SubscriptionStore) Get(ctx context.Context, id string) (*Subscription, error) {
	var (
		sub        Subscription
		serialized string
		created    int64
		modified   int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, filter, created, modified
		FROM subscription
		WHERE id = ?
	`, id).Scan(&sub.ID, &sub.OwnerID, &serialized, &created, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query subscription: %w", err)
	}

	sub.Filter, err = filter.Parse([]byte(serialized))
	if err != nil {
		return nil, fmt.Errorf("stored filter for subscription %s is invalid: %w", id, err)
	}
	sub.Created = time.UnixMilli(created).UTC()
	sub.Modified = time.UnixMilli(modified).UTC()

	return &sub, nil
}

// FindExpiredIDs returns the ids of subscriptions whose last modification
// is strictly older than the expiry duration. A subscription modified
// exactly expiry ago is not expired.
func (s *SubscriptionStore) FindExpiredIDs(ctx context.Context, now time.Time, expiry time.Duration) ([]string, error) {
	cutoff := now.Add(-expiry).UnixMilli()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM subscription WHERE modified < ? ORDER BY modified ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired subscriptions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subscription id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired subscriptions: %w", err)
	}

	return ids, nil
}

// Reset clears the projection (for rebuilds).
func (s *SubscriptionStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subscription`); err != nil {
		return fmt.Errorf("failed to reset subscription view: %w", err)
	}
	return nil
}
