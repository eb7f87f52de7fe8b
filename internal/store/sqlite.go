package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/gserafini/reentry-map/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS suggestions (
	id                   TEXT PRIMARY KEY,
	data                 TEXT NOT NULL,
	name_key             TEXT NOT NULL,
	address_key          TEXT NOT NULL,
	status               TEXT NOT NULL DEFAULT 'pending',
	resource_id          TEXT,
	next_verification_at DATETIME,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS resources (
	id            TEXT PRIMARY KEY,
	suggestion_id TEXT NOT NULL REFERENCES suggestions(id),
	data          TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS verification_logs (
	id            TEXT PRIMARY KEY,
	suggestion_id TEXT NOT NULL REFERENCES suggestions(id),
	resource_id   TEXT,
	decision      TEXT NOT NULL,
	payload       TEXT NOT NULL,
	override      TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS verification_events (
	id            TEXT PRIMARY KEY,
	suggestion_id TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	event_type    TEXT NOT NULL,
	event_data    TEXT,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS api_costs (
	id            TEXT PRIMARY KEY,
	suggestion_id TEXT,
	provider      TEXT NOT NULL,
	model         TEXT,
	feature       TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL,
	org_name      TEXT,
	url           TEXT,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_suggestions_status ON suggestions(status);
CREATE INDEX IF NOT EXISTS idx_suggestions_dupe ON suggestions(name_key, address_key);
CREATE INDEX IF NOT EXISTS idx_logs_suggestion ON verification_logs(suggestion_id);
CREATE INDEX IF NOT EXISTS idx_events_suggestion ON verification_events(suggestion_id, seq);
CREATE INDEX IF NOT EXISTS idx_costs_suggestion ON api_costs(suggestion_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// dupeKey normalizes a value for duplicate matching.
func dupeKey(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}

func (s *SQLiteStore) CreateSuggestion(ctx context.Context, sug *model.Suggestion) error {
	if sug.ID == "" {
		sug.ID = uuid.New().String()
	}
	if sug.Status == "" {
		sug.Status = model.SuggestionStatusPending
	}
	now := time.Now().UTC()
	sug.CreatedAt = now
	sug.UpdatedAt = now

	data, err := json.Marshal(sug)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal suggestion")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO suggestions (id, data, name_key, address_key, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sug.ID, string(data), dupeKey(sug.Name), dupeKey(sug.FullAddress()), string(sug.Status), now, now,
	)
	return eris.Wrap(err, "sqlite: insert suggestion")
}

func (s *SQLiteStore) GetSuggestion(ctx context.Context, id string) (*model.Suggestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data, status, resource_id, next_verification_at FROM suggestions WHERE id = ?`, id)
	return scanSuggestion(row)
}

func (s *SQLiteStore) ListPendingSuggestions(ctx context.Context, limit int) ([]model.Suggestion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data, status, resource_id, next_verification_at FROM suggestions
		 WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		string(model.SuggestionStatusPending), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending suggestions")
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		sug, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sug)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list pending iterate")
}

func (s *SQLiteStore) ListDueSuggestions(ctx context.Context, before time.Time, limit int) ([]model.Suggestion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data, status, resource_id, next_verification_at FROM suggestions
		 WHERE status = ? AND next_verification_at IS NOT NULL AND next_verification_at <= ?
		 ORDER BY next_verification_at ASC LIMIT ?`,
		string(model.SuggestionStatusApproved), before.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list due suggestions")
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		sug, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sug)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list due iterate")
}

func (s *SQLiteStore) FindDuplicateSuggestion(ctx context.Context, name, address string) (*model.Suggestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data, status, resource_id, next_verification_at FROM suggestions
		 WHERE name_key = ? AND address_key = ? LIMIT 1`,
		dupeKey(name), dupeKey(address),
	)
	sug, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sug, nil
}

func (s *SQLiteStore) UpdateSuggestionStatus(ctx context.Context, id string, status model.SuggestionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE suggestions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update suggestion status %s", id)
	}
	return checkRowsAffected(res, "suggestion", id)
}

func (s *SQLiteStore) SetNextVerification(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE suggestions SET next_verification_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set next verification %s", id)
	}
	return checkRowsAffected(res, "suggestion", id)
}

func (s *SQLiteStore) PromoteSuggestion(ctx context.Context, id string) (string, error) {
	sug, err := s.GetSuggestion(ctx, id)
	if err != nil {
		return "", err
	}

	resourceID := uuid.New().String()
	data, err := json.Marshal(sug)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal resource")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin promote")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO resources (id, suggestion_id, data, created_at) VALUES (?, ?, ?, ?)`,
		resourceID, id, string(data), now,
	); err != nil {
		return "", eris.Wrap(err, "sqlite: insert resource")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE suggestions SET status = ?, resource_id = ?, updated_at = ? WHERE id = ?`,
		string(model.SuggestionStatusApproved), resourceID, now, id,
	); err != nil {
		return "", eris.Wrap(err, "sqlite: link resource")
	}
	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit promote")
	}
	return resourceID, nil
}

func (s *SQLiteStore) CreateLog(ctx context.Context, log *model.VerificationLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(log)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal log")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verification_logs (id, suggestion_id, resource_id, decision, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		log.ID, log.SuggestionID, nullString(log.ResourceID), string(log.Decision), string(payload), log.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert log")
}

func (s *SQLiteStore) GetLog(ctx context.Context, id string) (*model.VerificationLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, override FROM verification_logs WHERE id = ?`, id)
	return scanLog(row)
}

func (s *SQLiteStore) ListLogs(ctx context.Context, filter LogFilter) ([]model.VerificationLog, error) {
	query := `SELECT payload, override FROM verification_logs WHERE 1=1`
	var args []any

	if filter.SuggestionID != "" {
		query += ` AND suggestion_id = ?`
		args = append(args, filter.SuggestionID)
	}
	if filter.Decision != "" {
		query += ` AND decision = ?`
		args = append(args, string(filter.Decision))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list logs")
	}
	defer rows.Close()

	var logs []model.VerificationLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, eris.Wrap(rows.Err(), "sqlite: list logs iterate")
}

func (s *SQLiteStore) AnnotateLogOverride(ctx context.Context, logID string, override model.HumanOverride) error {
	data, err := json.Marshal(override)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal override")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE verification_logs SET override = ? WHERE id = ? AND override IS NULL`,
		string(data), logID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: annotate log %s", logID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		// The guard rejects both a missing log and a repeat override; tell
		// the caller which one happened.
		var one int
		if scanErr := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM verification_logs WHERE id = ?`, logID).Scan(&one); scanErr == nil {
			return eris.Errorf("log already overridden: %s", logID)
		}
		return eris.Errorf("log not found: %s", logID)
	}
	return nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *model.VerificationEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal event data")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verification_events (id, suggestion_id, seq, event_type, event_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SuggestionID, ev.Seq, string(ev.Type), string(data), ev.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: append event")
}

func (s *SQLiteStore) ListEvents(ctx context.Context, suggestionID string) ([]model.VerificationEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, suggestion_id, seq, event_type, event_data, created_at
		 FROM verification_events WHERE suggestion_id = ? ORDER BY seq ASC`,
		suggestionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var events []model.VerificationEvent
	for rows.Next() {
		var ev model.VerificationEvent
		var typ, data string
		if err := rows.Scan(&ev.ID, &ev.SuggestionID, &ev.Seq, &typ, &data, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		ev.Type = model.EventType(typ)
		if data != "" {
			if err := json.Unmarshal([]byte(data), &ev.Data); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal event data")
			}
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

func (s *SQLiteStore) RecordCost(ctx context.Context, entry *model.CostEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_costs (id, suggestion_id, provider, model, feature, input_tokens, output_tokens, cost_usd, org_name, url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, nullString(entry.SuggestionID), entry.Provider, nullString(entry.Model), entry.Feature,
		entry.InputTokens, entry.OutputTokens, entry.CostUSD, nullString(entry.OrgName), nullString(entry.URL), entry.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: record cost")
}

func (s *SQLiteStore) ListCosts(ctx context.Context, suggestionID string) ([]model.CostEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(suggestion_id, ''), provider, COALESCE(model, ''), feature,
		        input_tokens, output_tokens, cost_usd, COALESCE(org_name, ''), COALESCE(url, ''), created_at
		 FROM api_costs WHERE suggestion_id = ? ORDER BY created_at ASC`,
		suggestionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list costs")
	}
	defer rows.Close()

	var entries []model.CostEntry
	for rows.Next() {
		var e model.CostEntry
		if err := rows.Scan(&e.ID, &e.SuggestionID, &e.Provider, &e.Model, &e.Feature,
			&e.InputTokens, &e.OutputTokens, &e.CostUSD, &e.OrgName, &e.URL, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cost")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list costs iterate")
}

// helpers

var errNotFound = eris.New("not found")

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSuggestion(row scannable) (*model.Suggestion, error) {
	var data, status string
	var resourceID sql.NullString
	var nextAt sql.NullTime

	err := row.Scan(&data, &status, &resourceID, &nextAt)
	if err == sql.ErrNoRows {
		return nil, errNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan suggestion")
	}

	var sug model.Suggestion
	if err := json.Unmarshal([]byte(data), &sug); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal suggestion")
	}
	sug.Status = model.SuggestionStatus(status)
	if resourceID.Valid {
		sug.ResourceID = resourceID.String
	}
	if nextAt.Valid {
		t := nextAt.Time
		sug.NextVerificationAt = &t
	}
	return &sug, nil
}

func scanLog(row scannable) (*model.VerificationLog, error) {
	var payload string
	var override sql.NullString

	err := row.Scan(&payload, &override)
	if err == sql.ErrNoRows {
		return nil, eris.New("log not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan log")
	}

	var log model.VerificationLog
	if err := json.Unmarshal([]byte(payload), &log); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal log")
	}
	if override.Valid {
		log.Override = &model.HumanOverride{}
		if err := json.Unmarshal([]byte(override.String), log.Override); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal override")
		}
	}
	return &log, nil
}
