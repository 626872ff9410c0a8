package unread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"hr-portal/internal/events"
)

// BookmarkStore - локальные закладки "прочитано до" по перепискам.
// Единственное состояние ядра, переживающее перезапуск; чистится при logout.
type BookmarkStore interface {
	Get(ctx context.Context, conversationKey string) (uint64, error)
	Set(ctx context.Context, conversationKey string, lastAckedID uint64) error
	Clear(ctx context.Context) error
	Close() error
}

const bookmarkSchema = `
CREATE TABLE IF NOT EXISTS unread_bookmarks (
	conversation_key     TEXT PRIMARY KEY,
	last_acknowledged_id INTEGER NOT NULL DEFAULT 0,
	updated_at           TIMESTAMP NOT NULL
);`

// SQLiteBookmarkStore - реализация на локальном SQLite-файле.
type SQLiteBookmarkStore struct {
	db *sqlx.DB
}

func NewSQLiteBookmarkStore(dbPath string) (*SQLiteBookmarkStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("открытие базы закладок: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("включение WAL: %w", err)
	}

	if _, err := db.Exec(bookmarkSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("схема базы закладок: %w", err)
	}

	return &SQLiteBookmarkStore{db: db}, nil
}

func (s *SQLiteBookmarkStore) Get(ctx context.Context, conversationKey string) (uint64, error) {
	var id uint64
	err := s.db.GetContext(ctx, &id,
		`SELECT last_acknowledged_id FROM unread_bookmarks WHERE conversation_key = ?`,
		conversationKey,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Set двигает закладку вперёд. Закладка монотонна: попытка отката
// на меньший id молча игнорируется.
func (s *SQLiteBookmarkStore) Set(ctx context.Context, conversationKey string, lastAckedID uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unread_bookmarks (conversation_key, last_acknowledged_id, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(conversation_key) DO UPDATE SET
			last_acknowledged_id = MAX(unread_bookmarks.last_acknowledged_id, excluded.last_acknowledged_id),
			updated_at = excluded.updated_at`,
		conversationKey, lastAckedID, time.Now().UTC(),
	)
	return err
}

func (s *SQLiteBookmarkStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM unread_bookmarks`)
	return err
}

func (s *SQLiteBookmarkStore) Close() error {
	return s.db.Close()
}

// ComputeUnread - непрочитанное в переписке: сообщения с id выше закладки
// и не от самого зрителя.
func ComputeUnread(messages []events.ChatMessage, viewerID, bookmark uint64) int {
	count := 0
	for _, m := range messages {
		if m.ID > bookmark && m.FromID != viewerID {
			count++
		}
	}
	return count
}
