package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Position is the saved reading state of one book.
type Position struct {
	BookID    string
	Unit      int
	Fraction  float64
	Percent   float64
	UpdatedAt time.Time
}

// LoadPosition returns the saved position of bookID. ok is false if the book
// has never been saved.
func (s *Store) LoadPosition(ctx context.Context, bookID string) (pos Position, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT book_id, current_page, scroll_position, progress_percentage, last_updated
		FROM reading_progress
		WHERE book_id = ?
	`, bookID).Scan(&pos.BookID, &pos.Unit, &pos.Fraction, &pos.Percent, &pos.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, persistenceError("load position", err)
	}
	return pos, true, nil
}

// SavePosition records the current unit, scroll fraction and progress of
// bookID, replacing any earlier value.
func (s *Store) SavePosition(ctx context.Context, bookID string, unit int, fraction, percent float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_progress (book_id, current_page, scroll_position, progress_percentage, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(book_id) DO UPDATE SET
			current_page = excluded.current_page,
			scroll_position = excluded.scroll_position,
			progress_percentage = excluded.progress_percentage,
			last_updated = excluded.last_updated
	`, bookID, unit, fraction, percent, time.Now().UTC())
	if err != nil {
		return persistenceError("save position", err)
	}
	return nil
}
