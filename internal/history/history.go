package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS summaries (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id     INTEGER NOT NULL,
	url         TEXT    NOT NULL,
	title       TEXT    NOT NULL DEFAULT '',
	model       TEXT    NOT NULL DEFAULT '',
	variant     TEXT    NOT NULL DEFAULT '',
	summary     TEXT    NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	UNIQUE (chat_id, url)
);
CREATE INDEX IF NOT EXISTS idx_summaries_chat ON summaries (chat_id, created_at);
`

// Entry is one delivered summary.
type Entry struct {
	ID        int64
	ChatID    int64
	URL       string
	Title     string
	Model     string
	Variant   string
	Summary   string
	CreatedAt time.Time
}

// Store persists delivered summaries per chat. Re-summarizing the same URL
// in a chat replaces the earlier entry.
type Store struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

// New wraps an existing database handle. Schema setup is the caller's
// responsibility; Open handles both.
func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Open opens or creates the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return New(db), nil
}

func (s *Store) Close() error { return s.db.Close() }

// Add inserts an entry, replacing any earlier summary of the same URL in
// the same chat.
func (s *Store) Add(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query, args, err := s.builder.
		Insert("summaries").
		Columns("chat_id", "url", "title", "model", "variant", "summary", "created_at").
		Values(e.ChatID, e.URL, e.Title, e.Model, e.Variant, e.Summary, e.CreatedAt).
		Suffix("ON CONFLICT (chat_id, url) DO UPDATE SET title = excluded.title, model = excluded.model, variant = excluded.variant, summary = excluded.summary, created_at = excluded.created_at").
		ToSql()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// List returns the most recent entries for a chat, newest first.
func (s *Store) List(ctx context.Context, chatID int64, limit uint64) ([]Entry, error) {
	query, args, err := s.builder.
		Select("id", "chat_id", "url", "title", "model", "variant", "summary", "created_at").
		From("summaries").
		Where(sq.Eq{"chat_id": chatID}).
		OrderBy("created_at DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ChatID, &e.URL, &e.Title, &e.Model, &e.Variant, &e.Summary, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns how many summaries a chat has on record.
func (s *Store) Count(ctx context.Context, chatID int64) (int, error) {
	query, args, err := s.builder.
		Select("COUNT(*)").
		From("summaries").
		Where(sq.Eq{"chat_id": chatID}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
