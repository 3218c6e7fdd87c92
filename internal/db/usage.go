package db

import (
	"context"
	"time"

	"github.com/RichardoC/portfolio-chat/internal/models"
)

// ConsumeDaily increments the counter for day when it is below limit. The
// conditional update runs as one statement, so concurrent callers cannot
// both take the last unit of budget.
func (db *Database) ConsumeDaily(ctx context.Context, day string, limit int) (bool, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO daily_usage (day, count) VALUES (?, 0)", day); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, "UPDATE daily_usage SET count = count + 1 WHERE day = ? AND count < ?", day, limit)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, tx.Commit()
}

func (db *Database) DailyUsage(ctx context.Context, day string) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(count), 0) FROM daily_usage WHERE day = ?", day).Scan(&n)
	return n, err
}

type FeedbackEntry struct {
	ID        int64           `json:"id"`
	Kind      models.Feedback `json:"kind"`
	Message   string          `json:"message"`
	Client    string          `json:"client"`
	CreatedAt time.Time       `json:"created_at"`
}

func (db *Database) SaveFeedback(ctx context.Context, entry *FeedbackEntry) error {
	entry.CreatedAt = time.Now().UTC()
	res, err := db.db.ExecContext(ctx, `
        INSERT INTO feedback (kind, message, client, created_at)
        VALUES (?, ?, ?, ?)`,
		string(entry.Kind), entry.Message, entry.Client, entry.CreatedAt)
	if err != nil {
		return err
	}
	entry.ID, err = res.LastInsertId()
	return err
}

func (db *Database) ListFeedback(ctx context.Context, limit int) ([]FeedbackEntry, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, kind, message, client, created_at
        FROM feedback ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]FeedbackEntry, 0)
	for rows.Next() {
		var e FeedbackEntry
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Message, &e.Client, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = models.Feedback(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
