package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/tailstream/internal/domain"
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
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			chat_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			active_stream_id TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			reasoning TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (chat_id) REFERENCES chats(chat_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at)`,
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

// CreateChat creates a new chat.
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *domain.Chat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (chat_id, user_id, active_stream_id, created_at) VALUES (?, ?, ?, ?)`,
		chat.ChatID, chat.UserID, nullString(chat.ActiveStreamID), chat.CreatedAt)
	return err
}

// GetChat retrieves a chat by ID.
func (s *SQLiteStore) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	var chat domain.Chat
	var activeStreamID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, user_id, active_stream_id, created_at FROM chats WHERE chat_id = ?`,
		chatID).Scan(&chat.ChatID, &chat.UserID, &activeStreamID, &chat.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if activeStreamID.Valid {
		chat.ActiveStreamID = activeStreamID.String
	}
	return &chat, nil
}

// GetOrCreateChat gets an existing chat or creates a new one.
func (s *SQLiteStore) GetOrCreateChat(ctx context.Context, chatID, userID string) (*domain.Chat, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat != nil {
		return chat, nil
	}

	chat = &domain.Chat{
		ChatID:    chatID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	if err := s.CreateChat(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// SetActiveStream sets or clears the chat's active stream pointer.
func (s *SQLiteStore) SetActiveStream(ctx context.Context, chatID, streamID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET active_stream_id = ? WHERE chat_id = ?`,
		nullString(streamID), chatID)
	return err
}

// UpsertMessage writes a message, replacing any existing row with the same id.
func (s *SQLiteStore) UpsertMessage(ctx context.Context, message *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages (message_id, chat_id, role, content, reasoning, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.ChatID, message.Role, message.Content, nullString(message.Reasoning), message.CreatedAt)
	return err
}

// GetMessages retrieves messages for a chat in creation order.
func (s *SQLiteStore) GetMessages(ctx context.Context, chatID string, limit int, before string) ([]domain.Message, error) {
	query := `SELECT message_id, chat_id, role, content, reasoning, created_at FROM messages WHERE chat_id = ?`
	args := []interface{}{chatID}

	if before != "" {
		query += ` AND message_id < ?`
		args = append(args, before)
	}

	query += ` ORDER BY created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var reasoning sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.ChatID, &msg.Role, &msg.Content, &reasoning, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if reasoning.Valid {
			msg.Reasoning = reasoning.String
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
