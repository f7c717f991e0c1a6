package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/cache"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/gateway"
	"github.com/agentdeck/agentdeck/internal/integrations"
	"github.com/agentdeck/agentdeck/internal/realtime"
	"github.com/agentdeck/agentdeck/internal/repo"
)

// stubGateway is an in-memory gateway.Gateway so handler tests run the
// full stack (routing, middleware, cache, repositories) without a store.
type stubGateway struct {
	mu       sync.Mutex
	rows     map[string][]json.RawMessage
	nextID   int
	failWith error
}

func newStubGateway() *stubGateway {
	return &stubGateway{rows: map[string][]json.RawMessage{}}
}

func (g *stubGateway) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith = err
}

func (g *stubGateway) seed(collection string, docs ...map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, doc := range docs {
		data, _ := json.Marshal(doc)
		g.rows[collection] = append(g.rows[collection], data)
	}
}

func (g *stubGateway) List(ctx context.Context, collection string, opts gateway.ListOptions) ([]json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	out := []json.RawMessage{}
	for _, row := range g.rows[collection] {
		if rowMatches(row, opts.Filters) {
			out = append(out, row)
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (g *stubGateway) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	for _, row := range g.rows[collection] {
		if docID(row) == id {
			return row, nil
		}
	}
	return nil, &gateway.NotFoundError{Collection: collection, ID: id}
}

func (g *stubGateway) Insert(ctx context.Context, collection string, row any) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}

	data, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	g.nextID++
	doc["id"] = fmt.Sprintf("row-%d", g.nextID)
	doc["created_at"] = time.Now().UTC().Format(time.RFC3339)
	doc["updated_at"] = doc["created_at"]
	if collection == gateway.CollectionLogs {
		doc["timestamp"] = doc["created_at"]
	}
	stored, _ := json.Marshal(doc)
	g.rows[collection] = append(g.rows[collection], stored)
	return stored, nil
}

func (g *stubGateway) Update(ctx context.Context, collection, id string, fields any) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}

	patchData, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	patch := map[string]any{}
	if err := json.Unmarshal(patchData, &patch); err != nil {
		return nil, err
	}

	for i, row := range g.rows[collection] {
		if docID(row) != id {
			continue
		}
		doc := map[string]any{}
		if err := json.Unmarshal(row, &doc); err != nil {
			return nil, err
		}
		for k, v := range patch {
			if v == nil {
				continue
			}
			doc[k] = v
		}
		doc["updated_at"] = time.Now().UTC().Format(time.RFC3339)
		stored, _ := json.Marshal(doc)
		g.rows[collection][i] = stored
		return stored, nil
	}
	return nil, &gateway.NotFoundError{Collection: collection, ID: id}
}

func (g *stubGateway) Delete(ctx context.Context, collection, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return g.failWith
	}
	rows := g.rows[collection]
	for i, row := range rows {
		if docID(row) == id {
			g.rows[collection] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (g *stubGateway) Subscribe(ctx context.Context, collection, filter string) (gateway.Subscription, error) {
	return nil, &gateway.SubscriptionError{Collection: collection, Err: fmt.Errorf("not supported in tests")}
}

func rowMatches(row json.RawMessage, filters map[string]string) bool {
	if len(filters) == 0 {
		return true
	}
	doc := map[string]any{}
	if err := json.Unmarshal(row, &doc); err != nil {
		return false
	}
	for col, want := range filters {
		got, ok := doc[col].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func docID(row json.RawMessage) string {
	var doc struct {
		ID string `json:"id"`
	}
	json.Unmarshal(row, &doc)
	return doc.ID
}

// newTestServer assembles a full server over the stub gateway. Rate
// limiting is disabled so sequential test requests never throttle.
func newTestServer(t *testing.T, gw *stubGateway, catalog *integrations.Catalog) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Debug = true
	cfg.Security.AllowedOrigins = []string{"*"}

	store := cache.New(
		cache.WithStaleAfter(time.Minute),
		cache.WithRefreshInterval(time.Hour),
	)
	t.Cleanup(store.Stop)

	router := realtime.New(gw, store)
	t.Cleanup(router.Close)

	srv := New(cfg, Deps{
		Store:     store,
		Router:    router,
		Agents:    repo.NewAgents(gw),
		Workflows: repo.NewWorkflows(gw),
		Logs:      repo.NewLogs(gw),
		Catalog:   catalog,
	})
	return srv
}

// doJSON performs a request against the server and decodes the response.
func doJSON(t *testing.T, srv *Server, method, target string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded),
			"response was not JSON: %s", rec.Body.String())
	}
	return rec, decoded
}

func seedAgents(gw *stubGateway) {
	gw.seed(gateway.CollectionAgents,
		map[string]any{
			"id": "agent-1", "name": "Atlas", "model": "gpt-4o", "type": "code",
			"status": "online", "capabilities": []string{"review"},
			"updated_at": "2026-08-29T10:00:00Z",
		},
		map[string]any{
			"id": "agent-2", "name": "Forge", "model": "claude-sonnet", "type": "content",
			"status": "offline", "capabilities": []string{"drafting"},
			"updated_at": "2026-08-29T11:00:00Z",
		},
	)
}

func seedWorkflows(gw *stubGateway) {
	gw.seed(gateway.CollectionWorkflows,
		map[string]any{
			"id": "wf-1", "name": "Nightly digest", "trigger_type": "scheduled",
			"cron_schedule": "0 6 * * *", "status": "active", "category": "reporting",
			"updated_at": "2026-08-29T08:00:00Z",
		},
		map[string]any{
			"id": "wf-2", "name": "PR triage", "trigger_type": "event",
			"event_trigger": "github.pull_request", "status": "idle", "category": "engineering",
			"updated_at": "2026-08-29T09:00:00Z",
		},
	)
}
