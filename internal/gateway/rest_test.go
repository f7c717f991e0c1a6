package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedKey(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "anon",
		"exp":  exp.Unix(),
	})
	key, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return key
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "dev-key")
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresURLAndKey(t *testing.T) {
	_, err := NewClient("", "key")
	assert.Error(t, err)

	_, err = NewClient("http://localhost:9910", "")
	assert.Error(t, err)
}

func TestNewClientAcceptsNonJWTKey(t *testing.T) {
	// Dev gateways accept arbitrary keys; a non-JWT credential only warns.
	_, err := NewClient("http://localhost:9910", "dev-key")
	assert.NoError(t, err)
}

func TestNewClientRejectsExpiredKey(t *testing.T) {
	key := signedKey(t, time.Now().Add(-time.Hour))

	_, err := NewClient("http://localhost:9910", key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestNewClientAcceptsValidKey(t *testing.T) {
	key := signedKey(t, time.Now().Add(365*24*time.Hour))

	_, err := NewClient("http://localhost:9910", key)
	assert.NoError(t, err)
}

func TestListSendsAuthHeadersAndQuery(t *testing.T) {
	var got *http.Request
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"a1"},{"id":"a2"}]`))
	})

	rows, err := c.List(context.Background(), CollectionAgents, ListOptions{
		OrderBy:    "updated_at",
		Descending: true,
		Limit:      25,
		Filters:    map[string]string{"status": "online"},
	})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	require.NotNil(t, got)
	assert.Equal(t, "/rest/v1/agents", got.URL.Path)
	assert.Equal(t, "dev-key", got.Header.Get("apikey"))
	assert.Equal(t, "Bearer dev-key", got.Header.Get("Authorization"))
	assert.Equal(t, "updated_at.desc", got.URL.Query().Get("order"))
	assert.Equal(t, "25", got.URL.Query().Get("limit"))
	assert.Equal(t, "eq.online", got.URL.Query().Get("status"))
}

func TestGetUnwrapsSingleElementArray(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.a1", r.URL.Query().Get("id"))
		w.Write([]byte(`[{"id":"a1","name":"Atlas"}]`))
	})

	raw, err := c.Get(context.Background(), CollectionAgents, "a1")
	require.NoError(t, err)

	var row map[string]any
	require.NoError(t, json.Unmarshal(raw, &row))
	assert.Equal(t, "Atlas", row["name"])
}

func TestGetEmptyResultIsNotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, err := c.Get(context.Background(), CollectionAgents, "missing")
	assert.True(t, IsNotFound(err))
}

func TestInsertRequestsRepresentation(t *testing.T) {
	var got *http.Request
	var body map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"a9","name":"Scout"}`))
	})

	raw, err := c.Insert(context.Background(), CollectionAgents, map[string]string{"name": "Scout"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"a9"`)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "return=representation", got.Header.Get("Prefer"))
	assert.Equal(t, "Scout", body["name"])
}

func TestInsertUnwrapsArrayRepresentation(t *testing.T) {
	// Some stores return the representation as a one-element array.
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"a9"}]`))
	})

	raw, err := c.Insert(context.Background(), CollectionAgents, map[string]string{"name": "Scout"})
	require.NoError(t, err)

	var row map[string]any
	require.NoError(t, json.Unmarshal(raw, &row))
	assert.Equal(t, "a9", row["id"])
}

func TestUpdateMissingRowIsNotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		w.Write([]byte(`[]`))
	})

	_, err := c.Update(context.Background(), CollectionWorkflows, "w-missing", map[string]string{"status": "active"})
	assert.True(t, IsNotFound(err))
}

func TestDeleteTargetsRowByID(t *testing.T) {
	var got *http.Request
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.Delete(context.Background(), CollectionLogs, "l1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, got.Method)
	assert.Equal(t, "eq.l1", got.URL.Query().Get("id"))
}

func TestServerErrorCarriesStatusAndBody(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"message":"store is resting"}`))
	})

	_, err := c.List(context.Background(), CollectionAgents, ListOptions{})
	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusServiceUnavailable, gerr.StatusCode)
	assert.Contains(t, gerr.Message, "store is resting")
}

func TestNotFoundStatusMapsToNotFoundError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Get(context.Background(), CollectionAgents, "a1")
	assert.True(t, IsNotFound(err))
}

func TestCancelledContextAbortsRequest(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.List(ctx, CollectionAgents, ListOptions{})
	require.Error(t, err)

	var gerr *GatewayError
	assert.ErrorAs(t, err, &gerr)
}
