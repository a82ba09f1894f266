// Package store persists chats and their messages in SQLite.
//
// Messages are immutable once created: an assistant turn is written as one
// finished row after its stream completes, never appended to. Chats carry an
// activity timestamp that is bumped only when a message is actually committed.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var (
	// ErrNotFound is returned when a chat or message does not exist.
	ErrNotFound = errors.New("not found")
)

// Chat owns an ordered sequence of messages. UpdatedAt is the last-activity
// timestamp.
type Chat struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Visibility string    `json:"visibility"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Message is one conversational turn belonging to exactly one chat. Parts
// maps chunk kind to the accumulated payload for that kind (e.g. "text",
// "image"). Attachments is a raw JSON array, empty in the core flows.
type Message struct {
	ID          string            `json:"id"`
	ChatID      string            `json:"chat_id"`
	Role        string            `json:"role"`
	Parts       map[string]string `json:"parts"`
	Attachments string            `json:"attachments"`
	CreatedAt   time.Time         `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	visibility  TEXT NOT NULL DEFAULT 'private',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	chat_id     TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	role        TEXT NOT NULL,
	parts       TEXT NOT NULL,
	attachments TEXT NOT NULL DEFAULT '[]',
	created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at);
`

// Store is a SQLite-backed chat/message store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and applies
// the schema. SQLite only supports one writer at a time, so the connection
// pool is limited to a single connection.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (store *Store) Close() error {
	return store.db.Close()
}

// CreateChat inserts a new chat and returns it.
func (store *Store) CreateChat(ctx context.Context, title, visibility string) (Chat, error) {
	if visibility == "" {
		visibility = "private"
	}
	chat := Chat{
		ID:         uuid.NewString(),
		Title:      title,
		Visibility: visibility,
		CreatedAt:  time.Now().UTC(),
	}
	chat.UpdatedAt = chat.CreatedAt

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO chats (id, title, visibility, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		chat.ID, chat.Title, chat.Visibility, formatTime(chat.CreatedAt), formatTime(chat.UpdatedAt),
	)
	if err != nil {
		return Chat{}, fmt.Errorf("failed to insert chat: %w", err)
	}
	return chat, nil
}

// GetChat returns the chat with the given id, or ErrNotFound.
func (store *Store) GetChat(ctx context.Context, id string) (Chat, error) {
	row := store.db.QueryRowContext(ctx,
		`SELECT id, title, visibility, created_at, updated_at FROM chats WHERE id = ?`, id)

	var chat Chat
	var createdAt, updatedAt int64
	err := row.Scan(&chat.ID, &chat.Title, &chat.Visibility, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, fmt.Errorf("%w: chat %s", ErrNotFound, id)
	}
	if err != nil {
		return Chat{}, fmt.Errorf("failed to query chat: %w", err)
	}
	chat.CreatedAt = parseTime(createdAt)
	chat.UpdatedAt = parseTime(updatedAt)
	return chat, nil
}

// ListChats returns all chats ordered by last activity, most recent first.
func (store *Store) ListChats(ctx context.Context) ([]Chat, error) {
	rows, err := store.db.QueryContext(ctx,
		`SELECT id, title, visibility, created_at, updated_at FROM chats ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var chat Chat
		var createdAt, updatedAt int64
		if err := rows.Scan(&chat.ID, &chat.Title, &chat.Visibility, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chat.CreatedAt = parseTime(createdAt)
		chat.UpdatedAt = parseTime(updatedAt)
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// TouchChat bumps the chat's last-activity timestamp.
func (store *Store) TouchChat(ctx context.Context, id string) error {
	result, err := store.db.ExecContext(ctx,
		`UPDATE chats SET updated_at = ? WHERE id = ?`, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: chat %s", ErrNotFound, id)
	}
	return nil
}

// CreateMessage appends a message to a chat. Parts is persisted as a JSON
// object; attachments must be a raw JSON array (empty string means "[]").
func (store *Store) CreateMessage(ctx context.Context, chatID, role string, parts map[string]string, attachments string) (Message, error) {
	if parts == nil {
		parts = map[string]string{}
	}
	if attachments == "" {
		attachments = "[]"
	}

	partsJSON, err := json.Marshal(parts)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal parts: %w", err)
	}

	message := Message{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		Role:        role,
		Parts:       parts,
		Attachments: attachments,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = store.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, role, parts, attachments, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		message.ID, message.ChatID, message.Role, string(partsJSON), message.Attachments, formatTime(message.CreatedAt),
	)
	if err != nil {
		return Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return message, nil
}

// ListMessages returns every message of a chat ordered by creation time
// ascending, with insertion order as the tiebreak for equal timestamps.
func (store *Store) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := store.db.QueryContext(ctx,
		`SELECT id, chat_id, role, parts, attachments, created_at
		 FROM messages WHERE chat_id = ? ORDER BY created_at ASC, rowid ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var message Message
		var partsJSON string
		var createdAt int64
		if err := rows.Scan(&message.ID, &message.ChatID, &message.Role, &partsJSON, &message.Attachments, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(partsJSON), &message.Parts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal parts for message %s: %w", message.ID, err)
		}
		message.CreatedAt = parseTime(createdAt)
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

// Timestamps are stored as integer unix nanoseconds so that ORDER BY on the
// column matches chronological order exactly.
func formatTime(t time.Time) int64 {
	return t.UnixNano()
}

func parseTime(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
