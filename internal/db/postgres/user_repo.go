package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"feedmaster/internal/core/users"
)

type postgresUserRepo struct {
	db *sql.DB
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *sql.DB) users.Repository {
	return &postgresUserRepo{db: db}
}

const userColumns = `did, handle, display_name, description, avatar_url,
		followers_count, following_count, posts_count,
		created_at, last_updated, is_prominent, last_prominent_refresh_check`

func (r *postgresUserRepo) GetByDID(ctx context.Context, did string) (*users.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE did = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, did))
	if err == sql.ErrNoRows {
		return nil, users.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by DID: %w", err)
	}
	return user, nil
}

func (r *postgresUserRepo) GetByHandle(ctx context.Context, handle string) (*users.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE handle = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, handle))
	if err == sql.ErrNoRows {
		return nil, users.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by handle: %w", err)
	}
	return user, nil
}

func (r *postgresUserRepo) GetByDIDs(ctx context.Context, dids []string) ([]*users.User, error) {
	if len(dids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE did = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(dids))
	if err != nil {
		return nil, fmt.Errorf("failed to get users by DIDs: %w", err)
	}
	defer rows.Close()

	var result []*users.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (r *postgresUserRepo) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *postgresUserRepo) EnsurePlaceholders(ctx context.Context, dids []string) error {
	if len(dids) == 0 {
		return nil
	}

	// unnest keeps this a single round trip regardless of batch size.
	// Existing rows, placeholder or resolved, are never touched.
	query := `
		INSERT INTO users (did, handle, created_at, last_updated)
		SELECT d.did, 'unknown.' || split_part(d.did, ':', 3), NOW(), NOW()
		FROM unnest($1::text[]) AS d(did)
		ON CONFLICT (did) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, pq.Array(dids)); err != nil {
		return fmt.Errorf("failed to insert placeholder users: %w", err)
	}
	return nil
}

func (r *postgresUserRepo) UpsertProfiles(ctx context.Context, profiles []*users.User) error {
	if len(profiles) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin profile upsert: %w", err)
	}
	defer tx.Rollback()

	// is_prominent and last_prominent_refresh_check belong to the
	// aggregation worker and the refresh scheduler; a profile refresh
	// must not reset them.
	query := `
		INSERT INTO users (
			did, handle, display_name, description, avatar_url,
			followers_count, following_count, posts_count, created_at, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (did) DO UPDATE SET
			handle = EXCLUDED.handle,
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			avatar_url = EXCLUDED.avatar_url,
			followers_count = EXCLUDED.followers_count,
			following_count = EXCLUDED.following_count,
			posts_count = EXCLUDED.posts_count,
			created_at = EXCLUDED.created_at,
			last_updated = NOW()`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare profile upsert: %w", err)
	}
	defer stmt.Close()

	for _, u := range profiles {
		_, err := stmt.ExecContext(ctx,
			u.DID, u.Handle, u.DisplayName, u.Description, u.AvatarURL,
			u.FollowersCount, u.FollowingCount, u.PostsCount, u.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert profile %s: %w", u.DID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit profile upsert: %w", err)
	}
	return nil
}

func (r *postgresUserRepo) FreeConflictingHandles(ctx context.Context, handles []string, keepDIDs []string) (int64, error) {
	if len(handles) == 0 {
		return 0, nil
	}

	// Runs in its own implicit transaction so the handle is released and
	// committed before the caller's upsert claims it.
	query := `
		UPDATE users
		SET handle = 'unknown.' || split_part(did, ':', 3), last_updated = NOW()
		WHERE handle = ANY($1) AND NOT (did = ANY($2))`

	res, err := r.db.ExecContext(ctx, query, pq.Array(handles), pq.Array(keepDIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to free conflicting handles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count freed handles: %w", err)
	}
	return n, nil
}

func (r *postgresUserRepo) FilterStale(ctx context.Context, dids []string, cutoff time.Time) ([]string, error) {
	if len(dids) == 0 {
		return nil, nil
	}

	query := `
		SELECT did FROM users
		WHERE did = ANY($1)
		  AND last_updated < $2
		  AND handle NOT LIKE 'unknown.%'`

	return r.queryDIDs(ctx, query, pq.Array(dids), cutoff)
}

func (r *postgresUserRepo) ProminentDIDs(ctx context.Context) ([]string, error) {
	return r.queryDIDs(ctx, `SELECT did FROM users WHERE is_prominent`)
}

func (r *postgresUserRepo) SetProminence(ctx context.Context, dids []string, prominent bool) error {
	if len(dids) == 0 {
		return nil
	}

	query := `UPDATE users SET is_prominent = $2 WHERE did = ANY($1)`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(dids), prominent); err != nil {
		return fmt.Errorf("failed to set prominence: %w", err)
	}
	return nil
}

func (r *postgresUserRepo) ProminentDueForRefresh(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		SELECT did FROM users
		WHERE is_prominent
		  AND (last_prominent_refresh_check IS NULL OR last_prominent_refresh_check < $1)`

	return r.queryDIDs(ctx, query, cutoff)
}

func (r *postgresUserRepo) PlaceholderDIDs(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT did FROM users
		WHERE handle LIKE 'unknown.%'
		ORDER BY last_updated ASC
		LIMIT $1`

	return r.queryDIDs(ctx, query, limit)
}

func (r *postgresUserRepo) StaleDIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		SELECT did FROM users
		WHERE NOT is_prominent
		  AND handle NOT LIKE 'unknown.%'
		  AND last_updated < $1
		ORDER BY last_updated ASC
		LIMIT $2`

	return r.queryDIDs(ctx, query, cutoff, limit)
}

func (r *postgresUserRepo) MarkProminentRefreshChecked(ctx context.Context, dids []string, at time.Time) error {
	if len(dids) == 0 {
		return nil
	}

	query := `UPDATE users SET last_prominent_refresh_check = $2 WHERE did = ANY($1)`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(dids), at); err != nil {
		return fmt.Errorf("failed to mark prominent refresh check: %w", err)
	}
	return nil
}

func (r *postgresUserRepo) queryDIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query DIDs: %w", err)
	}
	defer rows.Close()

	var dids []string
	for rows.Next() {
		var did string
		if err := rows.Scan(&did); err != nil {
			return nil, fmt.Errorf("failed to scan DID: %w", err)
		}
		dids = append(dids, did)
	}
	return dids, rows.Err()
}

// scanUser reads one user row from either a *sql.Row or *sql.Rows.
func scanUser(row interface{ Scan(...any) error }) (*users.User, error) {
	var (
		u            users.User
		displayName  sql.NullString
		description  sql.NullString
		avatarURL    sql.NullString
		refreshCheck sql.NullTime
	)
	err := row.Scan(
		&u.DID, &u.Handle, &displayName, &description, &avatarURL,
		&u.FollowersCount, &u.FollowingCount, &u.PostsCount,
		&u.CreatedAt, &u.LastUpdated, &u.IsProminent, &refreshCheck,
	)
	if err != nil {
		return nil, err
	}
	u.DisplayName = nullStringPtr(displayName)
	u.Description = nullStringPtr(description)
	u.AvatarURL = nullStringPtr(avatarURL)
	u.LastProminentRefreshCheck = nullTimePtr(refreshCheck)
	return &u, nil
}
