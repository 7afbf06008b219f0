package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"webswarm/internal/domain"

	_ "modernc.org/sqlite"
)

var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	target_url TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER NULL,
	total_tests INTEGER NOT NULL DEFAULT 0,
	passed_tests INTEGER NOT NULL DEFAULT 0,
	failed_tests INTEGER NOT NULL DEFAULT 0,
	total_features INTEGER NOT NULL DEFAULT 0,
	tested_features INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_start ON runs(start_time);

CREATE TABLE IF NOT EXISTS outcomes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	agent_id TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	feature TEXT NULL,
	status TEXT NOT NULL,
	details TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id, seq);

CREATE TABLE IF NOT EXISTS features (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	feature_id TEXT NOT NULL,
	type TEXT NOT NULL,
	category TEXT NOT NULL,
	description TEXT NOT NULL,
	selector TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY(run_id, seq),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`

type Store struct {
	db *sql.DB
}

// pragmas go in the DSN so the driver applies them to every pooled connection.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

func dsn(dbPath string) string {
	params := make(url.Values)
	for _, p := range pragmas {
		params.Add("_pragma", p)
	}
	return dbPath + "?" + params.Encode()
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// WriteReport replaces everything stored for r.RunID in one transaction, so
// writing the same run twice leaves a single copy.
func (s *Store) WriteReport(ctx context.Context, r domain.Report) error {
	if r.RunID == "" {
		return errors.New("write report: run id is empty")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx write report: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, r.RunID); err != nil {
		return fmt.Errorf("clear previous run: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO runs(
			id, mode, target_url, start_time, end_time, total_tests, passed_tests,
			failed_tests, total_features, tested_features
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, string(r.Mode), r.TargetURL, r.StartTime.UTC().UnixMilli(), nullableUnixMilli(r.EndTime),
		r.TotalTests, r.PassedTests, r.FailedTests, r.TotalFeatures, r.TestedFeatures,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, o := range r.TestDetails {
		var feature any
		if o.Feature != nil {
			raw, err := json.Marshal(o.Feature)
			if err != nil {
				return fmt.Errorf("encode outcome feature: %w", err)
			}
			feature = string(raw)
		}
		details := o.Details
		if details == nil {
			details = map[string]string{}
		}
		rawDetails, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("encode outcome details: %w", err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO outcomes(run_id, seq, agent_id, type, description, feature, status, details, created_at)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, i, o.AgentID, o.Type, o.Description, feature, string(o.Status), string(rawDetails),
			o.Timestamp.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
	}

	for i, f := range r.DiscoveredFeatures {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO features(run_id, seq, feature_id, type, category, description, selector, text, priority)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, i, f.ID, string(f.Type), string(f.Category), f.Description, f.Selector, f.Text, f.Priority,
		); err != nil {
			return fmt.Errorf("insert feature: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write report: %w", err)
	}
	return nil
}

const runColumns = `id, mode, target_url, start_time, end_time, total_tests, passed_tests,
	failed_tests, total_features, tested_features`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.RunSummary, error) {
	var r domain.RunSummary
	var mode string
	var start int64
	var end sql.NullInt64
	if err := row.Scan(
		&r.RunID, &mode, &r.TargetURL, &start, &end, &r.TotalTests, &r.PassedTests,
		&r.FailedTests, &r.TotalFeatures, &r.TestedFeatures,
	); err != nil {
		return domain.RunSummary{}, err
	}
	r.Mode = domain.RunMode(mode)
	r.StartTime = unixMilliToTime(start)
	r.EndTime = int64ToTimePtr(end)
	return r, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY start_time DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RunSummary, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListOutcomes returns outcomes in the order they were recorded. A limit of
// zero or less returns all of them.
func (s *Store) ListOutcomes(ctx context.Context, runID string, limit int) ([]domain.Outcome, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT agent_id, type, description, feature, status, details, created_at
		FROM outcomes WHERE run_id = ? ORDER BY seq ASC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Outcome, 0)
	for rows.Next() {
		var o domain.Outcome
		var feature sql.NullString
		var status, details string
		var created int64
		if err := rows.Scan(&o.AgentID, &o.Type, &o.Description, &feature, &status, &details, &created); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if feature.Valid {
			var f domain.FeaturePoint
			if err := json.Unmarshal([]byte(feature.String), &f); err != nil {
				return nil, fmt.Errorf("decode outcome feature: %w", err)
			}
			o.Feature = &f
		}
		if err := json.Unmarshal([]byte(details), &o.Details); err != nil {
			return nil, fmt.Errorf("decode outcome details: %w", err)
		}
		o.Status = domain.OutcomeStatus(status)
		o.Timestamp = unixMilliToTime(created)
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return result, nil
}

func (s *Store) ListFeatures(ctx context.Context, runID string) ([]domain.FeaturePoint, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT feature_id, type, category, description, selector, text, priority
		FROM features WHERE run_id = ? ORDER BY seq ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()

	result := make([]domain.FeaturePoint, 0)
	for rows.Next() {
		var f domain.FeaturePoint
		var typ, category string
		if err := rows.Scan(&f.ID, &typ, &category, &f.Description, &f.Selector, &f.Text, &f.Priority); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		f.Type = domain.FeatureType(typ)
		f.Category = domain.Category(category)
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate features: %w", err)
	}
	return result, nil
}

func int64ToTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := unixMilliToTime(v.Int64)
	return &t
}

func unixMilliToTime(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullableUnixMilli(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixMilli()
}
