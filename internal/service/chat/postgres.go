package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhouzirui/astro-tavern/backend/internal/model/chat"
)

// PostgresStore persists sessions in PostgreSQL so several processes can share them.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			birth_details JSONB NOT NULL,
			chart_data JSONB NOT NULL,
			history JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_created ON chat_sessions (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Create() string {
	return uuid.NewString()
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (chat.Session, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, birth_details, chart_data, history, created_at FROM chat_sessions WHERE id=$1`,
		sessionID,
	)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Session{}, false, nil
	}
	if err != nil {
		return chat.Session{}, false, fmt.Errorf("get session: %w", err)
	}
	return session, true, nil
}

// Put upserts the session; created_at keeps its first value.
func (s *PostgresStore) Put(ctx context.Context, sessionID string, session chat.Session) error {
	details, err := json.Marshal(session.BirthDetails)
	if err != nil {
		return fmt.Errorf("encode birth details: %w", err)
	}
	history, err := json.Marshal(session.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	chart := []byte(session.ChartData)
	if len(chart) == 0 {
		chart = []byte("null")
	}
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id, birth_details, chart_data, history, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
			birth_details = EXCLUDED.birth_details,
			chart_data = EXCLUDED.chart_data,
			history = EXCLUDED.history`,
		sessionID,
		details,
		chart,
		history,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id=$1`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) All(ctx context.Context) ([]chat.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, birth_details, chart_data, history, created_at FROM chat_sessions ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []chat.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return sessions, nil
}

// Count reports the number of stored sessions without reading their payloads.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chat_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// DeleteCreatedBefore removes every session created before cutoff in one statement.
func (s *PostgresStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanSession(row pgx.Row) (chat.Session, error) {
	var (
		session                 chat.Session
		details, chart, history []byte
	)
	if err := row.Scan(&session.ID, &details, &chart, &history, &session.CreatedAt); err != nil {
		return chat.Session{}, err
	}
	if err := json.Unmarshal(details, &session.BirthDetails); err != nil {
		return chat.Session{}, fmt.Errorf("decode birth details: %w", err)
	}
	if err := json.Unmarshal(history, &session.History); err != nil {
		return chat.Session{}, fmt.Errorf("decode history: %w", err)
	}
	session.ChartData = json.RawMessage(chart)
	session.CreatedAt = session.CreatedAt.UTC()
	return session, nil
}
