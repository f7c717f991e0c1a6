package repo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/agentdeck/agentdeck/internal/gateway"
	"github.com/agentdeck/agentdeck/internal/models"
)

// DefaultLogLimit is how many entries recent-log queries return by default.
const DefaultLogLimit = 50

// RetentionWindow is how long log entries are kept before the sweep may
// purge them.
const RetentionWindow = 30 * 24 * time.Hour

// Logs is the typed repository for the append-only system_logs collection.
// There is no update operation: entries are immutable once created.
type Logs struct {
	gw gateway.Gateway
}

// NewLogs creates a log repository over the given gateway.
func NewLogs(gw gateway.Gateway) *Logs {
	return &Logs{gw: gw}
}

// Recent returns the newest entries, timestamp descending, capped at limit
// (DefaultLogLimit when limit <= 0).
func (r *Logs) Recent(ctx context.Context, limit int) ([]models.LogEntry, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	rows, err := r.gw.List(ctx, gateway.CollectionLogs, gateway.ListOptions{
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	return sortEntries(decodeRows[models.LogEntry](rows)), nil
}

// RecentByLevel returns the newest entries of one level.
func (r *Logs) RecentByLevel(ctx context.Context, level models.LogLevel, limit int) ([]models.LogEntry, error) {
	if !level.Valid() {
		return nil, &ValidationError{Fields: map[string]string{
			"level": fmt.Sprintf("unknown log level %q", level),
		}}
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	rows, err := r.gw.List(ctx, gateway.CollectionLogs, gateway.ListOptions{
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      limit,
		Filters:    map[string]string{"level": string(level)},
	})
	if err != nil {
		return nil, err
	}
	return sortEntries(decodeRows[models.LogEntry](rows)), nil
}

// Append validates and inserts a new entry. The server assigns id and
// timestamp.
func (r *Logs) Append(ctx context.Context, draft models.NewLogEntry) (models.LogEntry, error) {
	if err := checkDraft(draft); err != nil {
		return models.LogEntry{}, err
	}

	raw, err := r.gw.Insert(ctx, gateway.CollectionLogs, draft)
	if err != nil {
		return models.LogEntry{}, err
	}
	return decodeRow[models.LogEntry]("insert", gateway.CollectionLogs, raw)
}

// Sweep deletes entries older than the retention window relative to now and
// returns how many were removed. Entries exactly at the boundary are kept.
func (r *Logs) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-RetentionWindow)

	rows, err := r.gw.List(ctx, gateway.CollectionLogs, gateway.ListOptions{
		OrderBy: "timestamp",
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, entry := range decodeRows[models.LogEntry](rows) {
		if !entry.Timestamp.Before(cutoff) {
			continue
		}
		if err := r.gw.Delete(ctx, gateway.CollectionLogs, entry.ID); err != nil {
			return deleted, fmt.Errorf("sweep log %s: %w", entry.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// CountExpired reports how many entries a sweep at now would remove,
// without deleting anything.
func (r *Logs) CountExpired(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-RetentionWindow)

	rows, err := r.gw.List(ctx, gateway.CollectionLogs, gateway.ListOptions{
		OrderBy: "timestamp",
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, entry := range decodeRows[models.LogEntry](rows) {
		if entry.Timestamp.Before(cutoff) {
			expired++
		}
	}
	return expired, nil
}

func sortEntries(entries []models.LogEntry) []models.LogEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries
}
