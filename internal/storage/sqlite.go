package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // driver: sqlite

	"github.com/terra-clan/psv-academy/internal/models"
)

// SQLiteRepository implements Repository on an embedded SQLite database (single node)
type SQLiteRepository struct {
	db *sql.DB
}

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteRepository opens (creating if needed) the database at path and ensures the schema.
// path may be ":memory:".
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS profiles (
  id TEXT PRIMARY KEY,
  xp INTEGER NOT NULL DEFAULT 0,
  rank TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_profiles_xp ON profiles (xp DESC);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  profile_id TEXT NOT NULL,
  scenario_id TEXT NOT NULL,
  created_at TEXT NOT NULL,
  score INTEGER NOT NULL,
  points_earned INTEGER NOT NULL,
  mode TEXT NOT NULL,
  breakdown TEXT NOT NULL,
  answers TEXT NOT NULL,
  datasheet TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_profile_scenario ON attempts (profile_id, scenario_id, created_at DESC);

CREATE TABLE IF NOT EXISTS drafts (
  profile_id TEXT NOT NULL,
  scenario_id TEXT NOT NULL,
  datasheet TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (profile_id, scenario_id)
);

CREATE TABLE IF NOT EXISTS api_clients (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  key_id TEXT NOT NULL UNIQUE,
  secret_hash TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL,
  last_used_at TEXT,
  permissions TEXT NOT NULL DEFAULT '[]',
  metadata TEXT NOT NULL DEFAULT '{}'
);
`

// Ping checks database connectivity
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// --- Profiles ---

// GetProfile retrieves a profile by ID
func (r *SQLiteRepository) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	return getSQLiteProfile(ctx, r.db, id)
}

func getSQLiteProfile(ctx context.Context, q sqlQuerier, id string) (*models.Profile, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM profiles WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return decodeProfile([]byte(data))
}

// SaveProfile inserts or replaces a profile
func (r *SQLiteRepository) SaveProfile(ctx context.Context, p *models.Profile) error {
	return saveSQLiteProfile(ctx, r.db, p)
}

func saveSQLiteProfile(ctx context.Context, q sqlQuerier, p *models.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO profiles (id, xp, rank, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET xp = excluded.xp, rank = excluded.rank, data = excluded.data, updated_at = excluded.updated_at`,
		p.ID, p.XP, p.Rank, string(data), toTS(p.CreatedAt), toTS(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// DeleteProfile removes a profile together with its attempts and drafts
func (r *SQLiteRepository) DeleteProfile(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attempts WHERE profile_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete attempts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE profile_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete drafts: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// TopProfiles returns the highest-XP profiles
func (r *SQLiteRepository) TopProfiles(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, xp FROM profiles ORDER BY xp DESC, id ASC LIMIT ?`, listLimit(limit))
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

// RecordProgress runs fn inside an immediate (write-locking) transaction
func (r *SQLiteRepository) RecordProgress(ctx context.Context, profileID string, fn ProgressFunc) (*models.Profile, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getSQLiteProfile(ctx, tx, profileID)
	if errors.Is(err, ErrNotFound) {
		current = models.NewProfile(profileID, time.Now().UTC())
	} else if err != nil {
		return nil, err
	}

	history, err := listSQLiteAttempts(ctx, tx, models.AttemptFilters{ProfileID: profileID, Limit: HistoryLimit})
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

	if err := saveSQLiteProfile(ctx, tx, updated); err != nil {
		return nil, err
	}
	if err := insertSQLiteAttempt(ctx, tx, attempt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit progress: %w", err)
	}
	return updated, nil
}

// --- Attempts ---

func insertSQLiteAttempt(ctx context.Context, q sqlQuerier, a *models.AttemptRecord) error {
	breakdown, answers, datasheet, err := encodeAttempt(a)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO attempts
		(id, profile_id, scenario_id, created_at, score, points_earned, mode, breakdown, answers, datasheet)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.ProfileID,
		a.ScenarioID,
		toTS(a.Timestamp),
		a.Score,
		a.PointsEarned,
		string(a.Mode),
		string(breakdown),
		string(answers),
		string(datasheet),
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

const sqliteAttemptColumns = `id, profile_id, scenario_id, created_at, score, points_earned, mode, breakdown, answers, datasheet`

// GetAttempt retrieves an attempt by ID
func (r *SQLiteRepository) GetAttempt(ctx context.Context, id string) (*models.AttemptRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteAttemptColumns+` FROM attempts WHERE id = ?`, id)
	a, err := scanSQLiteAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return a, nil
}

// ListAttempts returns attempts newest first
func (r *SQLiteRepository) ListAttempts(ctx context.Context, filters models.AttemptFilters) ([]*models.AttemptRecord, error) {
	return listSQLiteAttempts(ctx, r.db, filters)
}

func listSQLiteAttempts(ctx context.Context, q sqlQuerier, filters models.AttemptFilters) ([]*models.AttemptRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+sqliteAttemptColumns+`
		FROM attempts
		WHERE (? = '' OR profile_id = ?) AND (? = '' OR scenario_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		filters.ProfileID, filters.ProfileID, filters.ScenarioID, filters.ScenarioID, listLimit(filters.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []*models.AttemptRecord{}
	for rows.Next() {
		a, err := scanSQLiteAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// PruneAttempts keeps only the newest keepPerScenario attempts of each (profile, scenario)
func (r *SQLiteRepository) PruneAttempts(ctx context.Context, keepPerScenario int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM attempts WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY profile_id, scenario_id ORDER BY created_at DESC, id DESC) AS rn
				FROM attempts
			)
			WHERE rn > ?
		)`,
		keepPerScenario,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune attempts: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAttempt(row rowScanner) (*models.AttemptRecord, error) {
	var a models.AttemptRecord
	var createdAt, mode, breakdown, answers, datasheet string

	if err := row.Scan(
		&a.ID,
		&a.ProfileID,
		&a.ScenarioID,
		&createdAt,
		&a.Score,
		&a.PointsEarned,
		&mode,
		&breakdown,
		&answers,
		&datasheet,
	); err != nil {
		return nil, err
	}
	a.Timestamp = fromTS(createdAt)
	a.Mode = models.Mode(mode)
	if err := decodeAttempt(&a, []byte(breakdown), []byte(answers), []byte(datasheet)); err != nil {
		return nil, err
	}
	return &a, nil
}

// --- Drafts ---

// SaveDraft inserts or replaces the draft for (profile, scenario)
func (r *SQLiteRepository) SaveDraft(ctx context.Context, d *models.Draft) error {
	data, err := json.Marshal(d.Datasheet)
	if err != nil {
		return fmt.Errorf("failed to marshal datasheet: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO drafts (profile_id, scenario_id, datasheet, updated_at)
		VALUES (?, ?, ?, ?)`,
		d.ProfileID, d.ScenarioID, string(data), toTS(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// GetDraft retrieves the draft for (profile, scenario)
func (r *SQLiteRepository) GetDraft(ctx context.Context, profileID, scenarioID string) (*models.Draft, error) {
	d := models.Draft{ProfileID: profileID, ScenarioID: scenarioID}
	var data, updatedAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT datasheet, updated_at FROM drafts WHERE profile_id = ? AND scenario_id = ?`,
		profileID, scenarioID,
	).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &d.Datasheet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal datasheet: %w", err)
	}
	d.UpdatedAt = fromTS(updatedAt)
	return &d, nil
}

// DeleteDraft removes the draft for (profile, scenario)
func (r *SQLiteRepository) DeleteDraft(ctx context.Context, profileID, scenarioID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE profile_id = ? AND scenario_id = ?`, profileID, scenarioID)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDraftsBefore removes drafts not updated since cutoff
func (r *SQLiteRepository) DeleteDraftsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE updated_at < ?`, toTS(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale drafts: %w", err)
	}
	return result.RowsAffected()
}

// --- API Clients ---

// CreateClient registers a new API client
func (r *SQLiteRepository) CreateClient(ctx context.Context, c *models.ApiClient) error {
	permissionsJSON, metadataJSON, err := encodeClient(c)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO api_clients (name, key_id, secret_hash, is_active, created_at, permissions, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.KeyID, c.SecretHash, boolToInt(c.IsActive), toTS(c.CreatedAt), string(permissionsJSON), string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read api client id: %w", err)
	}
	c.ID = int(id)
	return nil
}

// GetClientByKeyID retrieves an API client by the public part of its key
func (r *SQLiteRepository) GetClientByKeyID(ctx context.Context, keyID string) (*models.ApiClient, error) {
	var client models.ApiClient
	var isActive int
	var createdAt, permissionsJSON, metadataJSON string
	var lastUsedAt sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, key_id, secret_hash, is_active, created_at, last_used_at, permissions, metadata
		FROM api_clients
		WHERE key_id = ?`,
		keyID,
	).Scan(
		&client.ID,
		&client.Name,
		&client.KeyID,
		&client.SecretHash,
		&isActive,
		&createdAt,
		&lastUsedAt,
		&permissionsJSON,
		&metadataJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	client.IsActive = isActive == 1
	client.CreatedAt = fromTS(createdAt)
	if lastUsedAt.Valid {
		t := fromTS(lastUsedAt.String)
		client.LastUsedAt = &t
	}
	if err := decodeClient(&client, []byte(permissionsJSON), []byte(metadataJSON)); err != nil {
		return nil, err
	}
	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp
func (r *SQLiteRepository) UpdateClientLastUsed(ctx context.Context, keyID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_clients SET last_used_at = ? WHERE key_id = ?`, toTS(time.Now()), keyID)
	if err != nil {
		return fmt.Errorf("failed to update client last used: %w", err)
	}
	return nil
}

// Fixed-width UTC layout so text timestamps sort chronologically
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func toTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func fromTS(v string) time.Time {
	t, err := time.Parse(tsLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
