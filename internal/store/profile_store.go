package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/mailtriage/internal/model"
)

const profileColumns = `
	granularity, key, keep_count, delete_count, archive_count, last_decided_at`

// GetProfile retrieves the profile for a granularity and key.
func (q *queries) GetProfile(
	ctx context.Context,
	g model.Granularity,
	key string,
) (*model.SenderProfile, error) {
	var p model.SenderProfile
	err := sqlx.GetContext(ctx, q.ext, &p,
		"SELECT "+profileColumns+" FROM sender_profiles WHERE granularity = ? AND key = ?",
		string(g), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting %s profile %s: %w", g, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s profile %s: %w", g, key, err)
	}
	return &p, nil
}

// SaveProfile inserts or replaces a profile.
func (q *queries) SaveProfile(ctx context.Context, p model.SenderProfile) error {
	if p.Key == "" {
		return fmt.Errorf("profile key must not be empty")
	}

	_, err := q.ext.ExecContext(ctx, `
		INSERT OR REPLACE INTO sender_profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(p.Granularity), p.Key, p.KeepCount, p.DeleteCount, p.ArchiveCount,
		utcPtr(p.LastDecidedAt),
	)
	if err != nil {
		return fmt.Errorf("saving %s profile %s: %w", p.Granularity, p.Key, err)
	}
	return nil
}

// ListProfiles returns all profiles of a granularity, busiest first.
func (q *queries) ListProfiles(
	ctx context.Context,
	g model.Granularity,
) ([]model.SenderProfile, error) {
	var profiles []model.SenderProfile
	err := sqlx.SelectContext(ctx, q.ext, &profiles, `
		SELECT `+profileColumns+` FROM sender_profiles
		WHERE granularity = ?
		ORDER BY (keep_count + delete_count + archive_count) DESC, key ASC`,
		string(g))
	if err != nil {
		return nil, fmt.Errorf("listing %s profiles: %w", g, err)
	}
	return profiles, nil
}
