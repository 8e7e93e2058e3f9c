// Package store persists customer profiles and conversation history in
// SQLite. One database, one writer connection.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"personabot/internal/domain"
)

// SQLiteStore implements domain.Store.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id               TEXT PRIMARY KEY,
		display_name     TEXT,
		persona          TEXT NOT NULL,
		confidence       REAL NOT NULL DEFAULT 0,
		attributes       TEXT NOT NULL DEFAULT '{}',
		handoff_flag     INTEGER NOT NULL DEFAULT 0,
		unanswered_count INTEGER NOT NULL DEFAULT 0,
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		customer_id TEXT NOT NULL REFERENCES customers(id),
		seq         INTEGER NOT NULL,
		speaker     TEXT NOT NULL,
		content     TEXT NOT NULL,
		ts          DATETIME NOT NULL,
		PRIMARY KEY (customer_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_turns_customer ON turns(customer_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var (
		c     domain.Customer
		attrs string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, persona, confidence, attributes, handoff_flag,
		        unanswered_count, created_at, updated_at
		 FROM customers WHERE id = ?`, id,
	).Scan(&c.ID, &c.DisplayName, &c.Persona, &c.Confidence, &attrs,
		&c.HandoffFlag, &c.UnansweredCount, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(attrs), &c.Attributes); err != nil {
		return nil, fmt.Errorf("get customer %s: attributes: %w", id, err)
	}
	if c.Attributes == nil {
		c.Attributes = make(map[string]string)
	}
	return &c, nil
}

func (s *SQLiteStore) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	c.UpdatedAt = time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return fmt.Errorf("save customer %s: attributes: %w", c.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO customers (id, display_name, persona, confidence, attributes,
		                        handoff_flag, unanswered_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			display_name=excluded.display_name,
			persona=excluded.persona,
			confidence=excluded.confidence,
			attributes=excluded.attributes,
			handoff_flag=excluded.handoff_flag,
			unanswered_count=excluded.unanswered_count,
			updated_at=excluded.updated_at`,
		c.ID, c.DisplayName, string(c.Persona), c.Confidence, string(attrs),
		c.HandoffFlag, c.UnansweredCount, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save customer %s: %w", c.ID, err)
	}
	return nil
}

// AppendTurn assigns the next sequence number atomically and returns the
// stored turn.
func (s *SQLiteStore) AppendTurn(ctx context.Context, customerID string, turn domain.Turn) (domain.Turn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("append turn: %w", err)
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE customer_id = ?`,
		customerID,
	).Scan(&next); err != nil {
		return domain.Turn{}, fmt.Errorf("append turn: next seq: %w", err)
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (customer_id, seq, speaker, content, ts) VALUES (?, ?, ?, ?, ?)`,
		customerID, next, string(turn.Speaker), turn.Text, turn.Timestamp,
	); err != nil {
		return domain.Turn{}, fmt.Errorf("append turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Turn{}, fmt.Errorf("append turn: %w", err)
	}

	turn.Seq = next
	return turn, nil
}

// GetHistory returns the most recent turns in arrival order (oldest first).
func (s *SQLiteStore) GetHistory(ctx context.Context, customerID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, speaker, content, ts FROM turns
		 WHERE customer_id = ? ORDER BY seq DESC LIMIT ?`,
		customerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get history %s: %w", customerID, err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		if err := rows.Scan(&t.Seq, &t.Speaker, &t.Text, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("get history %s: %w", customerID, err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get history %s: %w", customerID, err)
	}

	// Flip newest-first into arrival order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *SQLiteStore) LastTurn(ctx context.Context, customerID string) (*domain.Turn, error) {
	var t domain.Turn
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, speaker, content, ts FROM turns
		 WHERE customer_id = ? ORDER BY seq DESC LIMIT 1`,
		customerID,
	).Scan(&t.Seq, &t.Speaker, &t.Text, &t.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last turn %s: %w", customerID, err)
	}
	return &t, nil
}

// CountTurns returns how many turns a customer's log holds.
func (s *SQLiteStore) CountTurns(ctx context.Context, customerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns WHERE customer_id = ?`, customerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count turns %s: %w", customerID, err)
	}
	return n, nil
}

// ConsumeIntents subscribes the store to history-append intents so the
// conversation log fills in as a side effect of orchestration.
func (s *SQLiteStore) ConsumeIntents(bus domain.IntentBus) {
	bus.Subscribe(domain.IntentHistoryAppend, func(in domain.Intent) {
		hi, ok := in.(domain.HistoryAppendIntent)
		if !ok {
			return
		}
		if _, err := s.AppendTurn(context.Background(), hi.CustomerID, hi.Turn); err != nil {
			s.logger.Error("history append failed",
				"customer", hi.CustomerID, "intent", hi.ID, "error", err)
		}
	})
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
