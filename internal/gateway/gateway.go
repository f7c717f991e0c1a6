// Package gateway is the client boundary to the remote data store. It
// exposes query, mutation, and subscription operations over named entity
// collections and hides the wire protocol from the rest of the system.
//
// The store is treated as opaque: rows travel as raw JSON and are decoded
// by the repositories. Change notifications are at-least-once and may
// arrive out of order or duplicated; consumers must refetch rather than
// merge notification payloads.
package gateway

import (
	"context"
	"encoding/json"
)

// Collections served by the gateway.
const (
	CollectionAgents    = "agents"
	CollectionWorkflows = "workflows"
	CollectionLogs      = "system_logs"
)

// EventKind is the kind of row-level change announced on the push channel.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// ChangeEvent is one push notification. Record holds the row's new state
// (for DELETE, the last known state, possibly only the id). The embedded
// payload may be stale relative to the store; it only identifies what
// changed, never substitutes for a fetch.
type ChangeEvent struct {
	Kind       EventKind       `json:"event"`
	Collection string          `json:"table"`
	Record     json.RawMessage `json:"record"`
}

// RecordID extracts the id field from the event payload, if present.
func (e ChangeEvent) RecordID() string {
	var row struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(e.Record, &row); err != nil {
		return ""
	}
	return row.ID
}

// ListOptions controls ordering and filtering for List.
type ListOptions struct {
	// OrderBy is the column to sort on; empty means store default order.
	OrderBy string

	// Descending sorts high-to-low when set.
	Descending bool

	// Limit caps the number of rows returned; zero means no limit.
	Limit int

	// Filters are column = value equality filters.
	Filters map[string]string
}

// Subscription is an open push channel for one (collection, filter) pair.
type Subscription interface {
	// Events delivers change notifications. The channel is closed when the
	// subscription ends, whether by Close or by a transport failure.
	Events() <-chan ChangeEvent

	// Err returns the terminal error after Events is closed, nil on clean
	// shutdown.
	Err() error

	// Close tears the channel down. Safe to call more than once.
	Close() error
}

// Gateway is the remote service boundary: query, mutate, subscribe.
type Gateway interface {
	List(ctx context.Context, collection string, opts ListOptions) ([]json.RawMessage, error)
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)
	Insert(ctx context.Context, collection string, row any) (json.RawMessage, error)
	Update(ctx context.Context, collection, id string, fields any) (json.RawMessage, error)
	Delete(ctx context.Context, collection, id string) error

	// Subscribe opens a push channel for row-level changes in collection.
	// filter is an optional "column=eq.value" expression; empty subscribes
	// to every row.
	Subscribe(ctx context.Context, collection, filter string) (Subscription, error)
}
