package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/models"
)

var (
	ErrThreadNotFound  = errors.New("thread not found")
	ErrMessageNotFound = errors.New("message not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS threads (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    thread_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    metadata TEXT,
    FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS images (
    id TEXT PRIMARY KEY,
    message_id TEXT NOT NULL,
    data TEXT NOT NULL,
    mime_type TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
CREATE INDEX IF NOT EXISTS idx_images_message ON images(message_id);`

// DefaultImageMimeType is stored for images that arrive without a type.
const DefaultImageMimeType = "image/png"

// Database is the SQLite backed conversation store. A single connection is
// used and every read or write holds mu for its duration only.
type Database struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

func New(dbPath string) (*Database, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL"
	if dbPath == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Database{db: db, now: time.Now}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

func (db *Database) CreateThread(name string) (*models.Thread, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.now().UnixMilli()
	thread := &models.Thread{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.UnixMilli(now),
		UpdatedAt: time.UnixMilli(now),
	}

	_, err := db.db.Exec(
		`INSERT INTO threads (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		thread.ID, thread.Name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return thread, nil
}

const threadColumns = `
        SELECT t.id, t.name, t.created_at, t.updated_at,
               (SELECT COUNT(*) FROM messages WHERE thread_id = t.id),
               (SELECT content FROM messages WHERE thread_id = t.id
                ORDER BY created_at DESC, rowid DESC LIMIT 1)
        FROM threads t`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*models.Thread, error) {
	var (
		t                models.Thread
		created, updated int64
		lastMessage      sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &created, &updated, &t.MessageCount, &lastMessage); err != nil {
		return nil, err
	}
	t.CreatedAt = time.UnixMilli(created)
	t.UpdatedAt = time.UnixMilli(updated)
	t.LastMessage = lastMessage.String
	return &t, nil
}

func (db *Database) GetThread(id string) (*models.Thread, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := scanThread(db.db.QueryRow(threadColumns+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrThreadNotFound
	}
	return t, err
}

// ListThreads returns every thread, most recently updated first.
func (db *Database) ListThreads() ([]models.Thread, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.db.Query(threadColumns + ` ORDER BY t.updated_at DESC, t.rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	threads := make([]models.Thread, 0)
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, *t)
	}
	return threads, rows.Err()
}

func (db *Database) UpdateThreadName(id, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.db.Exec(
		`UPDATE threads SET name = ?, updated_at = MAX(?, updated_at + 1) WHERE id = ?`,
		name, db.now().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrThreadNotFound)
}

// DeleteThread removes a thread; its messages and their images go with it
// through the foreign key cascades.
func (db *Database) DeleteThread(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.db.Exec(`DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrThreadNotFound)
}

// CreateMessage stores msg with its images and bumps the parent thread's
// updated_at in the same transaction. ID and CreatedAt are assigned here.
func (db *Database) CreateMessage(msg *models.Message) error {
	var metadata sql.NullString
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var updatedAt int64
	err = tx.QueryRow(`SELECT updated_at FROM threads WHERE id = ?`, msg.ThreadID).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrThreadNotFound
	}
	if err != nil {
		return err
	}

	now := db.now().UnixMilli()
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.UnixMilli(now)

	if _, err := tx.Exec(
		`INSERT INTO messages (id, thread_id, role, content, created_at, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ThreadID, string(msg.Role), msg.Content, now, metadata,
	); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	for i := range msg.Images {
		if msg.Images[i].MimeType == "" {
			msg.Images[i].MimeType = DefaultImageMimeType
		}
		if _, err := tx.Exec(
			`INSERT INTO images (id, message_id, data, mime_type, created_at) VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), msg.ID, msg.Images[i].Data, msg.Images[i].MimeType, now,
		); err != nil {
			return fmt.Errorf("failed to insert image: %w", err)
		}
	}

	// updated_at must move forward even when two writes share a millisecond.
	bumped := max(now, updatedAt+1)
	if _, err := tx.Exec(`UPDATE threads SET updated_at = ? WHERE id = ?`, bumped, msg.ThreadID); err != nil {
		return err
	}

	return tx.Commit()
}

// GetMessages returns a thread's messages oldest first. Messages created in
// the same millisecond keep their insertion order.
func (db *Database) GetMessages(threadID string) ([]models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.db.Query(`
        SELECT id, thread_id, role, content, created_at, metadata
        FROM messages
        WHERE thread_id = ?
        ORDER BY created_at ASC, rowid ASC`, threadID)
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			msg      models.Message
			role     string
			created  int64
			metadata sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &role, &msg.Content, &created, &metadata); err != nil {
			rows.Close()
			return nil, err
		}
		if msg.Role, err = models.ParseRole(role); err != nil {
			rows.Close()
			return nil, err
		}
		msg.CreatedAt = time.UnixMilli(created)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to decode metadata of message %s: %w", msg.ID, err)
			}
		}
		index[msg.ID] = len(messages)
		messages = append(messages, msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The single connection is free again once the message rows are closed.
	imgRows, err := db.db.Query(`
        SELECT i.message_id, i.data, i.mime_type
        FROM images i
        JOIN messages m ON m.id = i.message_id
        WHERE m.thread_id = ?
        ORDER BY i.rowid ASC`, threadID)
	if err != nil {
		return nil, err
	}
	defer imgRows.Close()

	for imgRows.Next() {
		var messageID string
		var img models.Image
		if err := imgRows.Scan(&messageID, &img.Data, &img.MimeType); err != nil {
			return nil, err
		}
		if i, ok := index[messageID]; ok {
			messages[i].Images = append(messages[i].Images, img)
		}
	}
	return messages, imgRows.Err()
}

func (db *Database) DeleteMessage(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrMessageNotFound)
}

func expectAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
