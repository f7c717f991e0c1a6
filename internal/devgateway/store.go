package devgateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentdeck/agentdeck/internal/models"
)

// Store persists collection rows in a local sqlite database. Rows are
// stored as JSON documents so the dev gateway stays schema-agnostic;
// ordering and filtering go through json_extract.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the dev database at path.
// Use ":memory:" for an ephemeral store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening dev database: %w", err)
	}

	// The dev gateway serves one process; a single connection avoids
	// sqlite write contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		);
		CREATE INDEX IF NOT EXISTS idx_records_collection ON records (collection);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating dev schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// listQuery describes a filtered, ordered collection read.
type listQuery struct {
	OrderBy    string
	Descending bool
	Limit      int
	Filters    map[string]string
}

// List returns the rows of a collection matching q.
func (s *Store) List(ctx context.Context, collection string, q listQuery) ([]json.RawMessage, error) {
	query := `SELECT data FROM records WHERE collection = ?`
	args := []any{collection}

	for col, val := range q.Filters {
		query += ` AND json_extract(data, ?) = ?`
		args = append(args, "$."+col, val)
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		query += ` ORDER BY json_extract(data, ?) ` + dir
		args = append(args, "$."+q.OrderBy)
	}

	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}
	defer rows.Close()

	out := []json.RawMessage{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", collection, err)
		}
		out = append(out, json.RawMessage(data))
	}
	return out, rows.Err()
}

// Get returns a single row by id, or sql.ErrNoRows.
func (s *Store) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE collection = ? AND id = ?`,
		collection, id).Scan(&data)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Insert stores a new row, assigning id and timestamps the way the
// hosted store would. The stored row is returned.
func (s *Store) Insert(ctx context.Context, collection string, row json.RawMessage) (json.RawMessage, error) {
	doc := map[string]any{}
	if len(row) > 0 {
		if err := json.Unmarshal(row, &doc); err != nil {
			return nil, fmt.Errorf("decoding %s row: %w", collection, err)
		}
	}

	id, _ := doc["id"].(string)
	if id == "" {
		id = models.GenerateID()
		doc["id"] = id
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if collection == "system_logs" {
		if _, ok := doc["timestamp"]; !ok {
			doc["timestamp"] = now
		}
	} else {
		doc["created_at"] = now
		doc["updated_at"] = now
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding %s row: %w", collection, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO records (collection, id, data) VALUES (?, ?, ?)`,
		collection, id, string(data)); err != nil {
		return nil, fmt.Errorf("inserting %s row: %w", collection, err)
	}

	return data, nil
}

// Update merges patch fields into an existing row and bumps updated_at.
func (s *Store) Update(ctx context.Context, collection, id string, patch json.RawMessage) (json.RawMessage, error) {
	existing, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	doc := map[string]any{}
	if err := json.Unmarshal(existing, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s row: %w", collection, err)
	}

	fields := map[string]any{}
	if len(patch) > 0 {
		if err := json.Unmarshal(patch, &fields); err != nil {
			return nil, fmt.Errorf("decoding %s patch: %w", collection, err)
		}
	}
	for k, v := range fields {
		if v == nil {
			continue
		}
		doc[k] = v
	}
	doc["id"] = id
	if collection != "system_logs" {
		doc["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding %s row: %w", collection, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE records SET data = ? WHERE collection = ? AND id = ?`,
		string(data), collection, id); err != nil {
		return nil, fmt.Errorf("updating %s row: %w", collection, err)
	}

	return data, nil
}

// Delete removes a row by id. Deleting a missing row is not an error,
// matching the hosted store's behavior.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`,
		collection, id)
	if err != nil {
		return fmt.Errorf("deleting %s row: %w", collection, err)
	}
	return nil
}

// Count returns the number of rows in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&n)
	return n, err
}

// SweepLogs deletes log rows with a timestamp strictly before cutoff and
// returns their ids so change events can be emitted for each.
func (s *Store) SweepLogs(ctx context.Context, cutoff time.Time) ([]string, error) {
	boundary := cutoff.UTC().Format(time.RFC3339Nano)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM records WHERE collection = 'system_logs' AND json_extract(data, '$.timestamp') < ?`,
		boundary)
	if err != nil {
		return nil, fmt.Errorf("selecting expired logs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = 'system_logs' AND json_extract(data, '$.timestamp') < ?`,
		boundary); err != nil {
		return nil, fmt.Errorf("deleting expired logs: %w", err)
	}

	return ids, nil
}
