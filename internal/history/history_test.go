package history

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestAdd_UpsertsOnChatAndURL(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO summaries (chat_id,url,title,model,variant,summary,created_at) VALUES (?,?,?,?,?,?,?) ON CONFLICT (chat_id, url) DO UPDATE SET")).
		WithArgs(int64(42), "https://example.com/a", "Title", "gemini-2.5-flash", "one_paragraph_summary", "the summary", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := New(db)
	err = store.Add(context.Background(), Entry{
		ChatID:  42,
		URL:     "https://example.com/a",
		Title:   "Title",
		Model:   "gemini-2.5-flash",
		Variant: "one_paragraph_summary",
		Summary: "the summary",
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestList_ReturnsNewestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "chat_id", "url", "title", "model", "variant", "summary", "created_at"}).
		AddRow(2, 42, "https://example.com/b", "B", "m", "v", "sb", now).
		AddRow(1, 42, "https://example.com/a", "A", "m", "v", "sa", now.Add(-time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, chat_id, url, title, model, variant, summary, created_at FROM summaries WHERE chat_id = ? ORDER BY created_at DESC LIMIT 10")).
		WithArgs(int64(42)).
		WillReturnRows(rows)

	entries, err := New(db).List(context.Background(), 42, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].URL != "https://example.com/b" || entries[1].URL != "https://example.com/a" {
		t.Errorf("entries out of order: %+v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*) FROM summaries WHERE chat_id = ?")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	n, err := New(db).Count(context.Background(), 7)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 5 {
		t.Errorf("Count() = %d, want 5", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
