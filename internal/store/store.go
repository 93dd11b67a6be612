// Package store persists logged health entries and learned phrases.
// The SQLite implementation backs both the assistant's LogStore and the
// memory package's PhraseStore.
package store

import (
	"context"
	"errors"
	"time"

	"gutcheck/internal/types"
)

// ErrNotFound is returned when a row does not exist or was already undone.
var ErrNotFound = errors.New("row not found")

// RowRef identifies a stored row.
type RowRef string

// Row is one logged entry.
type Row struct {
	Ref        RowRef
	UserID     string
	Intent     types.Intent
	Slots      types.Slots
	Text       string
	Confidence float64
	Source     string
	LoggedAt   time.Time
}

// RowFromParse builds the row for a complete, loggable parse.
func RowFromParse(userID string, p types.ParseResult, at time.Time) Row {
	return Row{
		UserID:     userID,
		Intent:     p.Intent,
		Slots:      p.Slots.Clone(),
		Text:       p.Text,
		Confidence: p.Confidence,
		Source:     p.Source,
		LoggedAt:   at,
	}
}

// Filter narrows Query. Zero values mean no constraint.
type Filter struct {
	Intents []types.Intent
	Since   time.Time
	Until   time.Time
	Limit   int
}

// LogStore is the persistence the assistant depends on.
type LogStore interface {
	Append(ctx context.Context, row Row) (RowRef, error)
	// Query returns rows newest first, excluding undone rows.
	Query(ctx context.Context, userID string, f Filter) ([]Row, error)
	Undo(ctx context.Context, ref RowRef) error
}
