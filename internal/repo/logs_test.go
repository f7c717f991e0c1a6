package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/gateway"
	"github.com/agentdeck/agentdeck/internal/models"
)

func logRow(id, level, ts string) map[string]any {
	return map[string]any{
		"id":        id,
		"level":     level,
		"source":    "test",
		"message":   "entry " + id,
		"timestamp": ts,
	}
}

func TestLogsRecentNewestFirst(t *testing.T) {
	gw := newMemGateway()
	gw.seed(gateway.CollectionLogs,
		logRow("l1", "info", "2026-08-29T10:00:00Z"),
		logRow("l2", "error", "2026-08-29T12:00:00Z"),
		logRow("l3", "info", "2026-08-29T11:00:00Z"),
	)

	entries, err := NewLogs(gw).Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "l2", entries[0].ID)
	assert.Equal(t, "l3", entries[1].ID)
	assert.Equal(t, "l1", entries[2].ID)
}

func TestLogsRecentAppliesLimit(t *testing.T) {
	gw := newMemGateway()
	for i := 0; i < DefaultLogLimit+10; i++ {
		gw.seed(gateway.CollectionLogs, logRow(
			string(rune('a'+i%26))+string(rune('a'+i/26)),
			"info",
			time.Date(2026, 8, 1, 0, i, 0, 0, time.UTC).Format(time.RFC3339),
		))
	}

	entries, err := NewLogs(gw).Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultLogLimit, "limit <= 0 falls back to the default")

	entries, err = NewLogs(gw).Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestLogsRecentByLevelRejectsUnknownLevel(t *testing.T) {
	gw := newMemGateway()

	_, err := NewLogs(gw).RecentByLevel(context.Background(), models.LogLevel("fatal"), 0)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "level")
	assert.Zero(t, gw.callCount())
}

func TestLogsRecentByLevelFilters(t *testing.T) {
	gw := newMemGateway()
	gw.seed(gateway.CollectionLogs,
		logRow("l1", "info", "2026-08-29T10:00:00Z"),
		logRow("l2", "error", "2026-08-29T12:00:00Z"),
		logRow("l3", "error", "2026-08-29T11:00:00Z"),
	)

	entries, err := NewLogs(gw).RecentByLevel(context.Background(), models.LevelError, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "l2", entries[0].ID)
	assert.Equal(t, "l3", entries[1].ID)
}

func TestLogsAppendValidatesWithoutNetworkCall(t *testing.T) {
	gw := newMemGateway()

	_, err := NewLogs(gw).Append(context.Background(), models.NewLogEntry{
		Level: models.LevelInfo,
		// Source and Message missing
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "Source")
	assert.Contains(t, verr.Fields, "Message")
	assert.Zero(t, gw.callCount())
}

func TestLogsAppend(t *testing.T) {
	gw := newMemGateway()

	entry, err := NewLogs(gw).Append(context.Background(), models.NewLogEntry{
		Level:   models.LevelSuccess,
		Source:  "workflow-engine",
		Message: "run finished",
		AgentID: "a1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID, "the store assigns the id")
	assert.Equal(t, models.LevelSuccess, entry.Level)
	assert.Equal(t, "a1", entry.AgentID)
}

func TestLogsSweepKeepsBoundaryEntries(t *testing.T) {
	now := mustParse(t, "2026-08-29T12:00:00Z")
	cutoff := now.Add(-RetentionWindow)

	gw := newMemGateway()
	gw.seed(gateway.CollectionLogs,
		logRow("expired", "info", cutoff.Add(-time.Second).Format(time.RFC3339)),
		logRow("boundary", "info", cutoff.Format(time.RFC3339)),
		logRow("fresh", "info", now.Format(time.RFC3339)),
	)

	logs := NewLogs(gw)

	expired, err := logs.CountExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	removed, err := logs.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	remaining, err := logs.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "fresh", remaining[0].ID)
	assert.Equal(t, "boundary", remaining[1].ID, "entries exactly at the cutoff are kept")
}

func TestLogsSweepEmptyCollection(t *testing.T) {
	gw := newMemGateway()

	removed, err := NewLogs(gw).Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
