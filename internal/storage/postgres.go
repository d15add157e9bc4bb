package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/psv-academy/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// pgQuerier is satisfied by both the pool and a transaction
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	// Set pool configuration
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25 // default
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5 // default
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Profiles ---

// GetProfile retrieves a profile by ID
func (r *PostgresRepository) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM profiles WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return decodeProfile(data)
}

// SaveProfile inserts or replaces a profile
func (r *PostgresRepository) SaveProfile(ctx context.Context, p *models.Profile) error {
	return savePgProfile(ctx, r.pool, p)
}

func savePgProfile(ctx context.Context, q pgQuerier, p *models.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	query := `
		INSERT INTO profiles (id, xp, rank, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET xp = EXCLUDED.xp, rank = EXCLUDED.rank, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`
	if _, err := q.Exec(ctx, query, p.ID, p.XP, p.Rank, data, p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// DeleteProfile removes a profile together with its attempts and drafts
func (r *PostgresRepository) DeleteProfile(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM attempts WHERE profile_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete attempts: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM drafts WHERE profile_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete drafts: %w", err)
	}
	result, err := tx.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

// TopProfiles returns the highest-XP profiles
func (r *PostgresRepository) TopProfiles(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, xp FROM profiles ORDER BY xp DESC, id ASC LIMIT $1`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.ProfileID, &e.XP); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		e.Position = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecordProgress locks the profile row with SELECT ... FOR UPDATE for the duration of fn
func (r *PostgresRepository) RecordProgress(ctx context.Context, profileID string, fn ProgressFunc) (*models.Profile, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Make sure a row exists so concurrent first attempts serialize on the same lock
	fresh, err := json.Marshal(models.NewProfile(profileID, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO profiles (id, xp, rank, data, created_at, updated_at)
		VALUES ($1, 0, $2, $3, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`, profileID, models.RankApprentice, fresh); err != nil {
		return nil, fmt.Errorf("failed to ensure profile: %w", err)
	}

	var data []byte
	if err := tx.QueryRow(ctx, `SELECT data FROM profiles WHERE id = $1 FOR UPDATE`, profileID).Scan(&data); err != nil {
		return nil, fmt.Errorf("failed to lock profile: %w", err)
	}
	current, err := decodeProfile(data)
	if err != nil {
		return nil, err
	}

	history, err := listPgAttempts(ctx, tx, models.AttemptFilters{ProfileID: profileID, Limit: HistoryLimit})
	if err != nil {
		return nil, err
	}

	updated, attempt, err := fn(current, derefAttempts(history))
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return current, nil
	}

	if err := savePgProfile(ctx, tx, updated); err != nil {
		return nil, err
	}
	if err := insertPgAttempt(ctx, tx, attempt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit progress: %w", err)
	}
	return updated, nil
}

// --- Attempts ---

func insertPgAttempt(ctx context.Context, q pgQuerier, a *models.AttemptRecord) error {
	breakdown, answers, datasheet, err := encodeAttempt(a)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO attempts (id, profile_id, scenario_id, created_at, score, points_earned, mode, breakdown, answers, datasheet)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = q.Exec(ctx, query,
		a.ID,
		a.ProfileID,
		a.ScenarioID,
		a.Timestamp,
		a.Score,
		a.PointsEarned,
		string(a.Mode),
		breakdown,
		answers,
		datasheet,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// GetAttempt retrieves an attempt by ID
func (r *PostgresRepository) GetAttempt(ctx context.Context, id string) (*models.AttemptRecord, error) {
	query := `
		SELECT id, profile_id, scenario_id, created_at, score, points_earned, mode, breakdown, answers, datasheet
		FROM attempts
		WHERE id = $1
	`
	a, err := scanAttempt(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return a, nil
}

// ListAttempts returns attempts newest first
func (r *PostgresRepository) ListAttempts(ctx context.Context, filters models.AttemptFilters) ([]*models.AttemptRecord, error) {
	return listPgAttempts(ctx, r.pool, filters)
}

func listPgAttempts(ctx context.Context, q pgQuerier, filters models.AttemptFilters) ([]*models.AttemptRecord, error) {
	query := `
		SELECT id, profile_id, scenario_id, created_at, score, points_earned, mode, breakdown, answers, datasheet
		FROM attempts
		WHERE ($1 = '' OR profile_id = $1) AND ($2 = '' OR scenario_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	rows, err := q.Query(ctx, query, filters.ProfileID, filters.ScenarioID, listLimit(filters.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []*models.AttemptRecord{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// PruneAttempts keeps only the newest keepPerScenario attempts of each (profile, scenario)
func (r *PostgresRepository) PruneAttempts(ctx context.Context, keepPerScenario int) (int64, error) {
	query := `
		DELETE FROM attempts WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY profile_id, scenario_id ORDER BY created_at DESC, id DESC) AS rn
				FROM attempts
			) ranked
			WHERE rn > $1
		)
	`
	result, err := r.pool.Exec(ctx, query, keepPerScenario)
	if err != nil {
		return 0, fmt.Errorf("failed to prune attempts: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanAttempt(row pgx.Row) (*models.AttemptRecord, error) {
	var a models.AttemptRecord
	var mode string
	var breakdown, answers, datasheet []byte

	if err := row.Scan(
		&a.ID,
		&a.ProfileID,
		&a.ScenarioID,
		&a.Timestamp,
		&a.Score,
		&a.PointsEarned,
		&mode,
		&breakdown,
		&answers,
		&datasheet,
	); err != nil {
		return nil, err
	}
	a.Mode = models.Mode(mode)
	if err := decodeAttempt(&a, breakdown, answers, datasheet); err != nil {
		return nil, err
	}
	return &a, nil
}

// --- Drafts ---

// SaveDraft inserts or replaces the draft for (profile, scenario)
func (r *PostgresRepository) SaveDraft(ctx context.Context, d *models.Draft) error {
	data, err := json.Marshal(d.Datasheet)
	if err != nil {
		return fmt.Errorf("failed to marshal datasheet: %w", err)
	}

	query := `
		INSERT INTO drafts (profile_id, scenario_id, datasheet, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (profile_id, scenario_id) DO UPDATE
		SET datasheet = EXCLUDED.datasheet, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.pool.Exec(ctx, query, d.ProfileID, d.ScenarioID, data, d.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// GetDraft retrieves the draft for (profile, scenario)
func (r *PostgresRepository) GetDraft(ctx context.Context, profileID, scenarioID string) (*models.Draft, error) {
	d := models.Draft{ProfileID: profileID, ScenarioID: scenarioID}
	var data []byte

	err := r.pool.QueryRow(ctx,
		`SELECT datasheet, updated_at FROM drafts WHERE profile_id = $1 AND scenario_id = $2`,
		profileID, scenarioID,
	).Scan(&data, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}

	if err := json.Unmarshal(data, &d.Datasheet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal datasheet: %w", err)
	}
	return &d, nil
}

// DeleteDraft removes the draft for (profile, scenario)
func (r *PostgresRepository) DeleteDraft(ctx context.Context, profileID, scenarioID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM drafts WHERE profile_id = $1 AND scenario_id = $2`, profileID, scenarioID)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDraftsBefore removes drafts not updated since cutoff
func (r *PostgresRepository) DeleteDraftsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM drafts WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale drafts: %w", err)
	}
	return result.RowsAffected(), nil
}

// --- API Clients ---

// CreateClient registers a new API client
func (r *PostgresRepository) CreateClient(ctx context.Context, c *models.ApiClient) error {
	permissionsJSON, metadataJSON, err := encodeClient(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO api_clients (name, key_id, secret_hash, is_active, created_at, permissions, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = r.pool.QueryRow(ctx, query,
		c.Name, c.KeyID, c.SecretHash, c.IsActive, c.CreatedAt, permissionsJSON, metadataJSON,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}
	return nil
}

// GetClientByKeyID retrieves an API client by the public part of its key
func (r *PostgresRepository) GetClientByKeyID(ctx context.Context, keyID string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, key_id, secret_hash, is_active, created_at, last_used_at, permissions, metadata
		FROM api_clients
		WHERE key_id = $1
	`

	var client models.ApiClient
	var lastUsedAt sql.NullTime
	var permissionsJSON, metadataJSON []byte

	err := r.pool.QueryRow(ctx, query, keyID).Scan(
		&client.ID,
		&client.Name,
		&client.KeyID,
		&client.SecretHash,
		&client.IsActive,
		&client.CreatedAt,
		&lastUsedAt,
		&permissionsJSON,
		&metadataJSON,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if lastUsedAt.Valid {
		client.LastUsedAt = &lastUsedAt.Time
	}
	if err := decodeClient(&client, permissionsJSON, metadataJSON); err != nil {
		return nil, err
	}

	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, keyID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_clients SET last_used_at = NOW() WHERE key_id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("failed to update client last used: %w", err)
	}
	return nil
}
