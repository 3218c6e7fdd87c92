package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Turn is one stored exchange of the local provider. Turns chain through
// PreviousID so a response id is enough to rebuild the conversation.
type Turn struct {
	ID         string    `json:"id"`
	PreviousID string    `json:"previous_id,omitempty"`
	Input      string    `json:"input"`
	Output     string    `json:"output"`
	CreatedAt  time.Time `json:"created_at"`
}

func (db *Database) SaveTurn(ctx context.Context, turn *Turn) error {
	var prev sql.NullString
	if turn.PreviousID != "" {
		prev = sql.NullString{String: turn.PreviousID, Valid: true}
	}
	turn.CreatedAt = time.Now().UTC()
	_, err := db.db.ExecContext(ctx, `
        INSERT INTO responses (id, previous_id, input, output, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		turn.ID, prev, turn.Input, turn.Output, turn.CreatedAt)
	return err
}

func (db *Database) GetTurn(ctx context.Context, id string) (*Turn, error) {
	var (
		turn Turn
		prev sql.NullString
	)
	err := db.db.QueryRowContext(ctx, `
        SELECT id, previous_id, input, output, created_at
        FROM responses WHERE id = ?`, id).
		Scan(&turn.ID, &prev, &turn.Input, &turn.Output, &turn.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	turn.PreviousID = prev.String
	return &turn, nil
}

// ThreadHistory walks back from id and returns at most limit turns, oldest
// first. An unknown id yields ErrNotFound.
func (db *Database) ThreadHistory(ctx context.Context, id string, limit int) ([]Turn, error) {
	history := make([]Turn, 0, limit)
	next := id
	for next != "" && len(history) < limit {
		turn, err := db.GetTurn(ctx, next)
		if err != nil {
			if errors.Is(err, ErrNotFound) && len(history) > 0 {
				break
			}
			return nil, err
		}
		history = append(history, *turn)
		next = turn.PreviousID
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}
