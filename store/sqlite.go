package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/talkerbot/talker/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS user_configs (
			user_id TEXT PRIMARY KEY,
			token TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			temperature REAL,
			prompt TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS history_messages (
			message_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			author TEXT NOT NULL,
			content TEXT NOT NULL,
			tokens INTEGER,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_user ON history_messages(user_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConfig resets the user's configuration record to an empty overrides
// row.
func (s *SQLiteStore) CreateConfig(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO user_configs (user_id, token, model, temperature, prompt) VALUES (?, '', '', NULL, '')`,
		userID)
	return err
}

// GetConfig retrieves the stored overrides for a user, or nil when absent.
func (s *SQLiteStore) GetConfig(ctx context.Context, userID string) (*domain.ConfigOverrides, error) {
	var o domain.ConfigOverrides
	var temperature sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT token, model, temperature, prompt FROM user_configs WHERE user_id = ?`,
		userID).Scan(&o.Token, &o.Model, &temperature, &o.Prompt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if temperature.Valid {
		o.Temperature = &temperature.Float64
	}
	return &o, nil
}

// UpdateConfig applies the non-empty fields of the patch to the user's
// record.
func (s *SQLiteStore) UpdateConfig(ctx context.Context, userID string, patch domain.ConfigOverrides) error {
	query := `UPDATE user_configs SET user_id = user_id`
	args := []interface{}{}

	if patch.Token != "" {
		query += `, token = ?`
		args = append(args, patch.Token)
	}
	if patch.Model != "" {
		query += `, model = ?`
		args = append(args, patch.Model)
	}
	if patch.Temperature != nil {
		query += `, temperature = ?`
		args = append(args, *patch.Temperature)
	}
	if patch.Prompt != "" {
		query += `, prompt = ?`
		args = append(args, patch.Prompt)
	}

	query += ` WHERE user_id = ?`
	args = append(args, userID)

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// DeleteConfig removes the user's configuration record.
func (s *SQLiteStore) DeleteConfig(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_configs WHERE user_id = ?`, userID)
	return err
}

// GetHistory returns the user's conversation log in stored order.
func (s *SQLiteStore) GetHistory(ctx context.Context, userID string) ([]domain.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT author, content, tokens FROM history_messages WHERE user_id = ? ORDER BY seq ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.StoredMessage
	for rows.Next() {
		var msg domain.StoredMessage
		var tokens sql.NullInt64
		if err := rows.Scan(&msg.Author, &msg.Content, &tokens); err != nil {
			return nil, err
		}
		if tokens.Valid {
			msg.Tokens = int(tokens.Int64)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// PutHistory appends messages to the log, or replaces it entirely when
// replace is true. The whole write happens in one transaction so concurrent
// writers for the same user never leave a partial log.
func (s *SQLiteStore) PutHistory(ctx context.Context, userID string, messages []domain.StoredMessage, replace bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seq := 0
	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM history_messages WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
	} else {
		var maxSeq sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT MAX(seq) FROM history_messages WHERE user_id = ?`, userID).Scan(&maxSeq); err != nil {
			return fmt.Errorf("failed to read history cursor: %w", err)
		}
		if maxSeq.Valid {
			seq = int(maxSeq.Int64) + 1
		}
	}

	for _, msg := range messages {
		var tokens sql.NullInt64
		if msg.Tokens > 0 {
			tokens = sql.NullInt64{Int64: int64(msg.Tokens), Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO history_messages (message_id, user_id, seq, author, content, tokens) VALUES (?, ?, ?, ?, ?, ?)`,
			"msg_"+uuid.New().String()[:8], userID, seq, msg.Author, msg.Content, tokens)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		seq++
	}

	return tx.Commit()
}

// DeleteHistory removes the user's conversation log.
func (s *SQLiteStore) DeleteHistory(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM history_messages WHERE user_id = ?`, userID)
	return err
}

// DeleteAll removes everything stored for the user.
func (s *SQLiteStore) DeleteAll(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_configs WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM history_messages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}

	return tx.Commit()
}
