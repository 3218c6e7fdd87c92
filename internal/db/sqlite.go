package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS knowledge (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    store_id TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS knowledge_store ON knowledge(store_id);

CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts4(
    content,
    tokenize=porter
);

CREATE TRIGGER IF NOT EXISTS knowledge_ai AFTER INSERT ON knowledge BEGIN
    INSERT INTO knowledge_fts(docid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS knowledge_ad AFTER DELETE ON knowledge BEGIN
    DELETE FROM knowledge_fts WHERE docid = old.id;
END;

CREATE TABLE IF NOT EXISTS responses (
    id TEXT PRIMARY KEY,
    previous_id TEXT,
    input TEXT NOT NULL,
    output TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS daily_usage (
    day TEXT PRIMARY KEY,
    count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS feedback (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    message TEXT NOT NULL,
    client TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

var ErrNotFound = errors.New("not found")

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Database{db: db}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

// Document is one retrievable knowledge entry.
type Document struct {
	ID        int64     `json:"id"`
	StoreID   string    `json:"store_id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (db *Database) SaveDocument(ctx context.Context, doc *Document) error {
	doc.CreatedAt = time.Now().UTC()
	res, err := db.db.ExecContext(ctx, `
        INSERT INTO knowledge (store_id, source, content, created_at)
        VALUES (?, ?, ?, ?)`, doc.StoreID, doc.Source, doc.Content, doc.CreatedAt)
	if err != nil {
		return err
	}
	doc.ID, err = res.LastInsertId()
	return err
}

// DeleteStore removes every document of a store, returning how many went.
func (db *Database) DeleteStore(ctx context.Context, storeID string) (int64, error) {
	res, err := db.db.ExecContext(ctx, "DELETE FROM knowledge WHERE store_id = ?", storeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *Database) CountDocuments(ctx context.Context, storeID string) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge WHERE store_id = ?", storeID).Scan(&n)
	return n, err
}

// SearchKnowledge runs a full-text search restricted to one store. Free text
// is reduced to OR-ed terms so punctuation in user questions never reaches
// the MATCH parser.
func (db *Database) SearchKnowledge(ctx context.Context, storeID, query string, limit int) ([]Document, error) {
	match := matchExpression(query)
	if match == "" {
		return []Document{}, nil
	}

	rows, err := db.db.QueryContext(ctx, `
		SELECT k.id, k.store_id, k.source, k.content, k.created_at
		FROM knowledge k
		JOIN knowledge_fts fts ON k.id = fts.docid
		WHERE fts.content MATCH ? AND k.store_id = ?
		ORDER BY k.created_at DESC
		LIMIT ?;
	`, match, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge: %w", err)
	}
	defer rows.Close()

	results := make([]Document, 0)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.StoreID, &doc.Source, &doc.Content, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, doc)
	}
	return results, rows.Err()
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "can": {}, "do": {}, "does": {}, "for": {},
	"how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "me": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "what": {}, "whats": {}, "who": {}, "with": {}, "you": {},
}

func matchExpression(query string) string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; stop || len(w) < 2 {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return strings.Join(terms, " OR ")
}
