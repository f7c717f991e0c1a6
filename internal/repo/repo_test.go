package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/internal/gateway"
)

// memGateway is an in-memory Gateway that records every call, so tests can
// assert both behavior and that validation failures never reach the wire.
type memGateway struct {
	mu    sync.Mutex
	rows  map[string][]json.RawMessage
	calls []string

	failWith error
}

func newMemGateway() *memGateway {
	return &memGateway{rows: map[string][]json.RawMessage{}}
}

func (g *memGateway) record(call string) {
	g.mu.Lock()
	g.calls = append(g.calls, call)
	g.mu.Unlock()
}

func (g *memGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *memGateway) seed(collection string, docs ...map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, doc := range docs {
		data, _ := json.Marshal(doc)
		g.rows[collection] = append(g.rows[collection], data)
	}
}

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad timestamp %q: %v", value, err)
	}
	return ts
}

func (g *memGateway) List(ctx context.Context, collection string, opts gateway.ListOptions) ([]json.RawMessage, error) {
	g.record("list " + collection)
	if g.failWith != nil {
		return nil, g.failWith
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	out := []json.RawMessage{}
	for _, row := range g.rows[collection] {
		if matchesFilters(row, opts.Filters) {
			out = append(out, row)
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func matchesFilters(row json.RawMessage, filters map[string]string) bool {
	if len(filters) == 0 {
		return true
	}
	var doc map[string]any
	if err := json.Unmarshal(row, &doc); err != nil {
		return false
	}
	for col, want := range filters {
		if got, _ := doc[col].(string); got != want {
			return false
		}
	}
	return true
}

func (g *memGateway) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	g.record("get " + collection + "/" + id)
	if g.failWith != nil {
		return nil, g.failWith
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, row := range g.rows[collection] {
		if rowID(row) == id {
			return row, nil
		}
	}
	return nil, &gateway.NotFoundError{Collection: collection, ID: id}
}

func (g *memGateway) Insert(ctx context.Context, collection string, payload any) (json.RawMessage, error) {
	g.record("insert " + collection)
	if g.failWith != nil {
		return nil, g.failWith
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if _, ok := doc["id"]; !ok {
		g.mu.Lock()
		doc["id"] = fmt.Sprintf("row-%d", len(g.rows[collection])+1)
		g.mu.Unlock()
	}
	stored, _ := json.Marshal(doc)

	g.mu.Lock()
	g.rows[collection] = append(g.rows[collection], stored)
	g.mu.Unlock()
	return stored, nil
}

func (g *memGateway) Update(ctx context.Context, collection, id string, fields any) (json.RawMessage, error) {
	g.record("update " + collection + "/" + id)
	if g.failWith != nil {
		return nil, g.failWith
	}

	patch, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var patchDoc map[string]any
	if err := json.Unmarshal(patch, &patchDoc); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for i, row := range g.rows[collection] {
		if rowID(row) != id {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(row, &doc); err != nil {
			return nil, err
		}
		for k, v := range patchDoc {
			if v != nil {
				doc[k] = v
			}
		}
		stored, _ := json.Marshal(doc)
		g.rows[collection][i] = stored
		return stored, nil
	}
	return nil, &gateway.NotFoundError{Collection: collection, ID: id}
}

func (g *memGateway) Delete(ctx context.Context, collection, id string) error {
	g.record("delete " + collection + "/" + id)
	if g.failWith != nil {
		return g.failWith
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	rows := g.rows[collection]
	for i, row := range rows {
		if rowID(row) == id {
			g.rows[collection] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (g *memGateway) Subscribe(ctx context.Context, collection, filter string) (gateway.Subscription, error) {
	g.record("subscribe " + collection)
	return nil, &gateway.SubscriptionError{Collection: collection, Err: fmt.Errorf("not supported")}
}

func rowID(row json.RawMessage) string {
	var doc struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(row, &doc)
	return doc.ID
}
