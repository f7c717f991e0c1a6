// Package devgateway runs a local stand-in for the hosted data store.
// It serves the same REST and websocket surface the dashboard's gateway
// client speaks, backed by sqlite, so the whole stack runs offline. An
// optional simulator generates agent and workflow activity.
package devgateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/agentdeck/agentdeck/internal/gateway"
)

var knownCollections = map[string]bool{
	gateway.CollectionAgents:    true,
	gateway.CollectionWorkflows: true,
	gateway.CollectionLogs:      true,
}

// Server is the dev gateway HTTP server.
type Server struct {
	store  *Store
	broker *broker
	http   *http.Server
	sim    *Simulator
}

// Options configures the dev gateway.
type Options struct {
	// Addr is the listen address, e.g. "localhost:9910".
	Addr string

	// DatabasePath is the sqlite file, ":memory:" for ephemeral.
	DatabasePath string

	// Simulate enables the background activity simulator.
	Simulate bool

	// SimulateInterval is the tick between simulated activity bursts.
	SimulateInterval time.Duration
}

// New creates a dev gateway server.
func New(opts Options) (*Server, error) {
	store, err := OpenStore(opts.DatabasePath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		store:  store,
		broker: newBroker(),
	}

	if opts.Simulate {
		interval := opts.SimulateInterval
		if interval <= 0 {
			interval = 5 * time.Second
		}
		s.sim = NewSimulator(store, s.broker, interval)
	}

	r := mux.NewRouter()
	r.HandleFunc("/rest/v1/{collection}", s.handleCollection).
		Methods(http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete)
	r.HandleFunc("/realtime/v1", s.broker.handleWS)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, nil
}

// Run serves until ctx is cancelled, then shuts down cleanly. A daily
// ticker applies log retention; retention <= 0 disables it.
func (s *Server) Run(ctx context.Context, retention time.Duration) error {
	if err := s.seed(ctx); err != nil {
		return err
	}

	if s.sim != nil {
		go s.sim.Run(ctx)
	}

	if retention > 0 {
		go s.retentionLoop(ctx, retention)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("dev gateway listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.store.Close()
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.http.Shutdown(shutCtx)
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Server) retentionLoop(ctx context.Context, retention time.Duration) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ids, err := s.store.SweepLogs(ctx, now.Add(-retention))
			if err != nil {
				log.Printf("dev gateway: retention sweep failed: %v", err)
				continue
			}
			for _, id := range ids {
				record, _ := json.Marshal(map[string]string{"id": id})
				s.broker.publish(gateway.ChangeEvent{
					Kind:       gateway.EventDelete,
					Collection: gateway.CollectionLogs,
					Record:     record,
				})
			}
			if len(ids) > 0 {
				log.Printf("dev gateway: retention sweep removed %d log entries", len(ids))
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "agentdeck-dev-gateway"})
}

// handleCollection dispatches the PostgREST-style collection surface.
func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	if !knownCollections[collection] {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown collection %q", collection))
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleList(w, r, collection)
	case http.MethodPost:
		s.handleInsert(w, r, collection)
	case http.MethodPatch:
		s.handleUpdate(w, r, collection)
	case http.MethodDelete:
		s.handleDelete(w, r, collection)
	}
}

// parseQuery decodes order/limit/filter query parameters in the same
// dialect the gateway client emits.
func parseQuery(r *http.Request) (listQuery, string) {
	q := listQuery{Filters: map[string]string{}}
	var id string

	for col, vals := range r.URL.Query() {
		if len(vals) == 0 {
			continue
		}
		val := vals[0]

		switch col {
		case "order":
			name, dir, _ := strings.Cut(val, ".")
			q.OrderBy = name
			q.Descending = dir == "desc"
		case "limit":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				q.Limit = n
			}
		default:
			if !strings.HasPrefix(val, "eq.") {
				continue
			}
			want := strings.TrimPrefix(val, "eq.")
			if col == "id" {
				id = want
			} else {
				q.Filters[col] = want
			}
		}
	}

	return q, id
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, collection string) {
	q, id := parseQuery(r)
	if id != "" {
		row, err := s.store.Get(r.Context(), collection, id)
		if errors.Is(err, sql.ErrNoRows) {
			writeRaw(w, http.StatusOK, []byte("[]"))
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeRaw(w, http.StatusOK, []byte("["+string(row)+"]"))
		return
	}

	rows, err := s.store.List(r.Context(), collection, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request, collection string) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	row, err := s.store.Insert(r.Context(), collection, body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.broker.publish(gateway.ChangeEvent{
		Kind:       gateway.EventInsert,
		Collection: collection,
		Record:     row,
	})

	writeRaw(w, http.StatusCreated, row)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, collection string) {
	_, id := parseQuery(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "update requires an id=eq. filter")
		return
	}

	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	row, err := s.store.Update(r.Context(), collection, id, body)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s %s not found", collection, id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.broker.publish(gateway.ChangeEvent{
		Kind:       gateway.EventUpdate,
		Collection: collection,
		Record:     row,
	})

	writeRaw(w, http.StatusOK, row)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, collection string) {
	_, id := parseQuery(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "delete requires an id=eq. filter")
		return
	}

	// Read the row first so the delete event can carry it.
	row, err := s.store.Get(r.Context(), collection, id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.store.Delete(r.Context(), collection, id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if row != nil {
		s.broker.publish(gateway.ChangeEvent{
			Kind:       gateway.EventDelete,
			Collection: collection,
			Record:     row,
		})
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("dev gateway: writing response: %v", err)
	}
}

func writeRaw(w http.ResponseWriter, code int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		log.Printf("dev gateway: writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}
