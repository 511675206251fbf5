package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrBookmarkNotFound is returned by DeleteBookmark for an unknown id.
var ErrBookmarkNotFound = errors.New("store: bookmark not found")

// Bookmark marks a unit of a book.
type Bookmark struct {
	ID        string
	BookID    string
	Unit      int
	Note      string
	CreatedAt time.Time
}

// AddBookmark stores a bookmark for unit of bookID and returns it with its
// generated id.
func (s *Store) AddBookmark(ctx context.Context, bookID string, unit int, note string) (Bookmark, error) {
	b := Bookmark{
		ID:        uuid.NewString(),
		BookID:    bookID,
		Unit:      unit,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (id, book_id, page_number, note, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, b.ID, b.BookID, b.Unit, b.Note, b.CreatedAt)
	if err != nil {
		return Bookmark{}, persistenceError("insert bookmark", err)
	}
	return b, nil
}

// Bookmarks lists the bookmarks of bookID in unit order.
func (s *Store) Bookmarks(ctx context.Context, bookID string) ([]Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_id, page_number, note, created_at
		FROM bookmarks
		WHERE book_id = ?
		ORDER BY page_number ASC, created_at ASC
	`, bookID)
	if err != nil {
		return nil, persistenceError("list bookmarks", err)
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.ID, &b.BookID, &b.Unit, &b.Note, &b.CreatedAt); err != nil {
			return nil, persistenceError("scan bookmark", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("rows bookmarks", err)
	}
	return out, nil
}

// DeleteBookmark removes the bookmark with id.
func (s *Store) DeleteBookmark(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id)
	if err != nil {
		return persistenceError("delete bookmark", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistenceError("delete bookmark", err)
	}
	if n == 0 {
		return ErrBookmarkNotFound
	}
	return nil
}
