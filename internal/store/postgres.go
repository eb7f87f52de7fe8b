package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/gserafini/reentry-map/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS suggestions (
	id                   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	data                 JSONB NOT NULL,
	name_key             TEXT NOT NULL,
	address_key          TEXT NOT NULL,
	status               TEXT NOT NULL DEFAULT 'pending',
	resource_id          TEXT,
	next_verification_at TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS resources (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	suggestion_id TEXT NOT NULL REFERENCES suggestions(id),
	data          JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS verification_logs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	suggestion_id TEXT NOT NULL REFERENCES suggestions(id),
	resource_id   TEXT,
	decision      TEXT NOT NULL,
	payload       JSONB NOT NULL,
	override      JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS verification_events (
	id            TEXT PRIMARY KEY,
	suggestion_id TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	event_type    TEXT NOT NULL,
	event_data    JSONB,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS api_costs (
	id            TEXT PRIMARY KEY,
	suggestion_id TEXT,
	provider      TEXT NOT NULL,
	model         TEXT,
	feature       TEXT NOT NULL,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cost_usd      DOUBLE PRECISION NOT NULL,
	org_name      TEXT,
	url           TEXT,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_suggestions_status ON suggestions(status);
CREATE INDEX IF NOT EXISTS idx_suggestions_dupe ON suggestions(name_key, address_key);
CREATE INDEX IF NOT EXISTS idx_logs_suggestion ON verification_logs(suggestion_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_suggestion_seq ON verification_events(suggestion_id, seq);
CREATE INDEX IF NOT EXISTS idx_costs_suggestion ON api_costs(suggestion_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSuggestion(ctx context.Context, sug *model.Suggestion) error {
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
		return eris.Wrap(err, "postgres: marshal suggestion")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO suggestions (id, data, name_key, address_key, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sug.ID, data, dupeKey(sug.Name), dupeKey(sug.FullAddress()), string(sug.Status), now, now,
	)
	return eris.Wrap(err, "postgres: insert suggestion")
}

func (s *PostgresStore) GetSuggestion(ctx context.Context, id string) (*model.Suggestion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT data, status, resource_id, next_verification_at FROM suggestions WHERE id = $1`, id)
	return scanSuggestionPG(row)
}

func (s *PostgresStore) ListPendingSuggestions(ctx context.Context, limit int) ([]model.Suggestion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT data, status, resource_id, next_verification_at FROM suggestions
		 WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		string(model.SuggestionStatusPending), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending suggestions")
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		sug, err := scanSuggestionPG(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sug)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list pending iterate")
}

func (s *PostgresStore) ListDueSuggestions(ctx context.Context, before time.Time, limit int) ([]model.Suggestion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT data, status, resource_id, next_verification_at FROM suggestions
		 WHERE status = $1 AND next_verification_at IS NOT NULL AND next_verification_at <= $2
		 ORDER BY next_verification_at ASC LIMIT $3`,
		string(model.SuggestionStatusApproved), before.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list due suggestions")
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		sug, err := scanSuggestionPG(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sug)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list due iterate")
}

func (s *PostgresStore) FindDuplicateSuggestion(ctx context.Context, name, address string) (*model.Suggestion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT data, status, resource_id, next_verification_at FROM suggestions
		 WHERE name_key = $1 AND address_key = $2 LIMIT 1`,
		dupeKey(name), dupeKey(address),
	)
	sug, err := scanSuggestionPG(row)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sug, nil
}

func (s *PostgresStore) UpdateSuggestionStatus(ctx context.Context, id string, status model.SuggestionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE suggestions SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update suggestion status %s", id)
	}
	return checkTag(tag, "suggestion", id)
}

func (s *PostgresStore) SetNextVerification(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE suggestions SET next_verification_at = $1, updated_at = $2 WHERE id = $3`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set next verification %s", id)
	}
	return checkTag(tag, "suggestion", id)
}

func (s *PostgresStore) PromoteSuggestion(ctx context.Context, id string) (string, error) {
	sug, err := s.GetSuggestion(ctx, id)
	if err != nil {
		return "", err
	}

	resourceID := uuid.New().String()
	data, err := json.Marshal(sug)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal resource")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "postgres: begin promote")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`INSERT INTO resources (id, suggestion_id, data, created_at) VALUES ($1, $2, $3, $4)`,
		resourceID, id, data, now,
	); err != nil {
		return "", eris.Wrap(err, "postgres: insert resource")
	}
	if _, err := tx.Exec(ctx,
		`UPDATE suggestions SET status = $1, resource_id = $2, updated_at = $3 WHERE id = $4`,
		string(model.SuggestionStatusApproved), resourceID, now, id,
	); err != nil {
		return "", eris.Wrap(err, "postgres: link resource")
	}
	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "postgres: commit promote")
	}
	return resourceID, nil
}

func (s *PostgresStore) CreateLog(ctx context.Context, log *model.VerificationLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(log)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal log")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO verification_logs (id, suggestion_id, resource_id, decision, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		log.ID, log.SuggestionID, nullString(log.ResourceID), string(log.Decision), payload, log.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert log")
}

func (s *PostgresStore) GetLog(ctx context.Context, id string) (*model.VerificationLog, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT payload, override FROM verification_logs WHERE id = $1`, id)
	return scanLogPG(row)
}

func (s *PostgresStore) ListLogs(ctx context.Context, filter LogFilter) ([]model.VerificationLog, error) {
	query := `SELECT payload, override FROM verification_logs WHERE 1=1`
	var args []any
	n := 0

	next := func() string {
		n++
		return fmt.Sprintf("$%d", n)
	}

	if filter.SuggestionID != "" {
		query += ` AND suggestion_id = ` + next()
		args = append(args, filter.SuggestionID)
	}
	if filter.Decision != "" {
		query += ` AND decision = ` + next()
		args = append(args, string(filter.Decision))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + next()
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ` + next()
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list logs")
	}
	defer rows.Close()

	var logs []model.VerificationLog
	for rows.Next() {
		l, err := scanLogPG(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, eris.Wrap(rows.Err(), "postgres: list logs iterate")
}

func (s *PostgresStore) AnnotateLogOverride(ctx context.Context, logID string, override model.HumanOverride) error {
	data, err := json.Marshal(override)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal override")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE verification_logs SET override = $1 WHERE id = $2 AND override IS NULL`,
		data, logID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: annotate log %s", logID)
	}
	if tag.RowsAffected() == 0 {
		// The guard rejects both a missing log and a repeat override; tell
		// the caller which one happened.
		var one int
		if scanErr := s.pool.QueryRow(ctx,
			`SELECT 1 FROM verification_logs WHERE id = $1`, logID).Scan(&one); scanErr == nil {
			return eris.Errorf("log already overridden: %s", logID)
		}
		return eris.Errorf("log not found: %s", logID)
	}
	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, ev *model.VerificationEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal event data")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO verification_events (id, suggestion_id, seq, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.SuggestionID, ev.Seq, string(ev.Type), data, ev.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append event")
}

func (s *PostgresStore) ListEvents(ctx context.Context, suggestionID string) ([]model.VerificationEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, suggestion_id, seq, event_type, event_data, created_at
		 FROM verification_events WHERE suggestion_id = $1 ORDER BY seq ASC`,
		suggestionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var events []model.VerificationEvent
	for rows.Next() {
		var ev model.VerificationEvent
		var typ string
		var data []byte
		if err := rows.Scan(&ev.ID, &ev.SuggestionID, &ev.Seq, &typ, &data, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		ev.Type = model.EventType(typ)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &ev.Data); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal event data")
			}
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func (s *PostgresStore) RecordCost(ctx context.Context, entry *model.CostEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_costs (id, suggestion_id, provider, model, feature, input_tokens, output_tokens, cost_usd, org_name, url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, nullString(entry.SuggestionID), entry.Provider, nullString(entry.Model), entry.Feature,
		entry.InputTokens, entry.OutputTokens, entry.CostUSD, nullString(entry.OrgName), nullString(entry.URL), entry.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record cost")
}

func (s *PostgresStore) ListCosts(ctx context.Context, suggestionID string) ([]model.CostEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(suggestion_id, ''), provider, COALESCE(model, ''), feature,
		        input_tokens, output_tokens, cost_usd, COALESCE(org_name, ''), COALESCE(url, ''), created_at
		 FROM api_costs WHERE suggestion_id = $1 ORDER BY created_at ASC`,
		suggestionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list costs")
	}
	defer rows.Close()

	var entries []model.CostEntry
	for rows.Next() {
		var e model.CostEntry
		if err := rows.Scan(&e.ID, &e.SuggestionID, &e.Provider, &e.Model, &e.Feature,
			&e.InputTokens, &e.OutputTokens, &e.CostUSD, &e.OrgName, &e.URL, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cost")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list costs iterate")
}

// helpers

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func scanSuggestionPG(row pgx.Row) (*model.Suggestion, error) {
	var data []byte
	var status string
	var resourceID *string
	var nextAt *time.Time

	err := row.Scan(&data, &status, &resourceID, &nextAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan suggestion")
	}

	var sug model.Suggestion
	if err := json.Unmarshal(data, &sug); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal suggestion")
	}
	sug.Status = model.SuggestionStatus(status)
	if resourceID != nil {
		sug.ResourceID = *resourceID
	}
	sug.NextVerificationAt = nextAt
	return &sug, nil
}

func scanLogPG(row pgx.Row) (*model.VerificationLog, error) {
	var payload []byte
	var override []byte

	err := row.Scan(&payload, &override)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("log not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan log")
	}

	var log model.VerificationLog
	if err := json.Unmarshal(payload, &log); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal log")
	}
	if len(override) > 0 {
		log.Override = &model.HumanOverride{}
		if err := json.Unmarshal(override, log.Override); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal override")
		}
	}
	return &log, nil
}
