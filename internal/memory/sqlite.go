package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
	"github.com/fyrsmithlabs/chatloop/internal/learner"
	"github.com/fyrsmithlabs/chatloop/internal/verifier"
)

const schema = `
CREATE TABLE IF NOT EXISTS recipes (
	host        TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	selectors   TEXT NOT NULL,
	quality     REAL NOT NULL DEFAULT 0,
	notes       TEXT NOT NULL DEFAULT '',
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (host, fingerprint)
);

CREATE TABLE IF NOT EXISTS learner_states (
	host        TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	version     INTEGER NOT NULL,
	state       TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (host, fingerprint)
);

CREATE TABLE IF NOT EXISTS verifier_metrics (
	host        TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	score       REAL NOT NULL,
	status      TEXT NOT NULL,
	metrics     TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (host, fingerprint)
);

CREATE TABLE IF NOT EXISTS failure_cases (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	host        TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	metrics     TEXT NOT NULL,
	candidates  TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_failure_cases_key ON failure_cases(host, fingerprint, created_at);
`

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" opens a private in-memory database.
	// Default: "~/.config/chatloop/memory.db"
	Path string

	// BusyTimeout in milliseconds.
	// Default: 10000
	BusyTimeout int
}

// ApplyDefaults sets default values for unset fields.
func (c *SQLiteConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/chatloop/memory.db"
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 10_000
	}
}

// SQLiteStore implements Store on modernc.org/sqlite.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (creating if needed) the database and applies the schema.
func OpenSQLite(config SQLiteConfig, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", config.BusyTimeout),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	logger.Info("sqlite memory store opened", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetRecipe(ctx context.Context, key dom.Key) (*Recipe, error) {
	var (
		selectors string
		updated   string
		r         = Recipe{Host: key.Host, Fingerprint: key.Fingerprint}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT selectors, quality, notes, updated_at FROM recipes WHERE host = ? AND fingerprint = ?`,
		key.Host, key.Fingerprint,
	).Scan(&selectors, &r.Quality, &r.Notes, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying recipe: %w", err)
	}
	if err := json.Unmarshal([]byte(selectors), &r.Selectors); err != nil {
		return nil, fmt.Errorf("decoding recipe selectors: %w", err)
	}
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

func (s *SQLiteStore) GetLearnerState(ctx context.Context, key dom.Key) (*learner.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM learner_states WHERE host = ? AND fingerprint = ?`,
		key.Host, key.Fingerprint,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying learner state: %w", err)
	}

	var state learner.State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("decoding learner state: %w", err)
	}
	return &state, nil
}

func (s *SQLiteStore) GetVerifierMetrics(ctx context.Context, key dom.Key) (*verifier.Metrics, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT metrics FROM verifier_metrics WHERE host = ? AND fingerprint = ?`,
		key.Host, key.Fingerprint,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying verifier metrics: %w", err)
	}

	var m verifier.Metrics
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("decoding verifier metrics: %w", err)
	}
	return &m, nil
}

func (s *SQLiteStore) SaveRecipe(ctx context.Context, key dom.Key, recipe Recipe) error {
	selectors := recipe.Selectors
	if selectors == nil {
		selectors = []string{}
	}
	data, err := json.Marshal(selectors)
	if err != nil {
		return fmt.Errorf("encoding selectors: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recipes (host, fingerprint, selectors, quality, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(host, fingerprint) DO UPDATE SET
			selectors = excluded.selectors,
			quality = excluded.quality,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		key.Host, key.Fingerprint, string(data), recipe.Quality, recipe.Notes, formatTime(recipe.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving recipe: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveLearnerState(ctx context.Context, key dom.Key, state *learner.State) error {
	if state == nil {
		return fmt.Errorf("%w: nil learner state", ErrInvalidConfig)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding learner state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO learner_states (host, fingerprint, version, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(host, fingerprint) DO UPDATE SET
			version = excluded.version,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		key.Host, key.Fingerprint, state.Version, string(data), formatTime(state.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving learner state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveVerifierMetrics(ctx context.Context, key dom.Key, metrics verifier.Metrics) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("encoding verifier metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verifier_metrics (host, fingerprint, score, status, metrics, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(host, fingerprint) DO UPDATE SET
			score = excluded.score,
			status = excluded.status,
			metrics = excluded.metrics,
			updated_at = excluded.updated_at`,
		key.Host, key.Fingerprint, metrics.Score, string(metrics.Status), string(data), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("saving verifier metrics: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveFailureCase(ctx context.Context, key dom.Key, fc FailureCase) error {
	metrics, err := json.Marshal(fc.Metrics)
	if err != nil {
		return fmt.Errorf("encoding failure metrics: %w", err)
	}
	candidates := fc.Candidates
	if candidates == nil {
		candidates = []dom.Candidate{}
	}
	cands, err := json.Marshal(candidates)
	if err != nil {
		return fmt.Errorf("encoding failure candidates: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO failure_cases (host, fingerprint, run_id, metrics, candidates, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		key.Host, key.Fingerprint, fc.RunID, string(metrics), string(cands), formatTime(fc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving failure case: %w", err)
	}
	return nil
}

// FailureCases returns the failure cases stored for key, oldest first.
func (s *SQLiteStore) FailureCases(ctx context.Context, key dom.Key) ([]FailureCase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, metrics, candidates, created_at FROM failure_cases
		WHERE host = ? AND fingerprint = ?
		ORDER BY id`,
		key.Host, key.Fingerprint,
	)
	if err != nil {
		return nil, fmt.Errorf("querying failure cases: %w", err)
	}
	defer rows.Close()

	var out []FailureCase
	for rows.Next() {
		var (
			fc                 = FailureCase{Key: key}
			metrics, cands, ts string
		)
		if err := rows.Scan(&fc.RunID, &metrics, &cands, &ts); err != nil {
			return nil, fmt.Errorf("scanning failure case: %w", err)
		}
		if err := json.Unmarshal([]byte(metrics), &fc.Metrics); err != nil {
			return nil, fmt.Errorf("decoding failure metrics: %w", err)
		}
		if err := json.Unmarshal([]byte(cands), &fc.Candidates); err != nil {
			return nil, fmt.Errorf("decoding failure candidates: %w", err)
		}
		fc.CreatedAt = parseTime(ts)
		out = append(out, fc)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ Store = (*SQLiteStore)(nil)
