// Package remotetest provides an in-memory stand-in for the remote
// store, speaking the same collection-style HTTP API the real one does.
// Tests point a remote.Client at Server.URL() and manipulate table
// contents directly.
package remotetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Row mirrors remote.Row without importing it.
type Row = map[string]any

// Server is a fake remote store backed by in-memory tables.
type Server struct {
	mu      sync.Mutex
	tables  map[string][]Row
	nextID  int
	httpSrv *httptest.Server

	// FailNext makes the next n requests to the given "METHOD table"
	// answer 503, for testing retry and failure isolation.
	failNext map[string]int

	// hook, when set, runs at the start of every request, for tests that
	// need a concurrent local write to land mid round trip.
	hook func(method, table string)
}

// NewServer starts a fake remote with the given tables. A table absent
// from the map answers every request with code 42P01 (relation does not
// exist).
func NewServer(tables map[string][]Row) *Server {
	s := &Server{
		tables:   make(map[string][]Row),
		failNext: make(map[string]int),
	}
	for name, rows := range tables {
		s.tables[name] = append([]Row{}, rows...)
	}
	s.httpSrv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL is the base URL to hand to remote.NewClient.
func (s *Server) URL() string {
	return s.httpSrv.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.httpSrv.Close()
}

// Rows returns a copy of a table's current contents.
func (s *Server) Rows(table string) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row{}, s.tables[table]...)
}

// SetRows replaces a table's contents.
func (s *Server) SetRows(table string, rows []Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append([]Row{}, rows...)
}

// FailNext makes the next n calls of method against table fail with 503.
func (s *Server) FailNext(method, table string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[method+" "+table] = n
}

// SetHook registers fn to run at the start of every request. Pass nil to
// clear it.
func (s *Server) SetHook(fn func(method, table string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	if table == r.URL.Path || table == "" || strings.Contains(table, "/") {
		writeError(w, http.StatusNotFound, "PGRST100", "bad path")
		return
	}

	s.mu.Lock()
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(r.Method, table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Method + " " + table
	if s.failNext[key] > 0 {
		s.failNext[key]--
		writeError(w, http.StatusServiceUnavailable, "08006", "injected failure")
		return
	}

	rows, ok := s.tables[table]
	if !ok {
		writeError(w, http.StatusNotFound, "42P01", fmt.Sprintf("relation %q does not exist", table))
		return
	}

	filters := parseFilters(r)

	switch r.Method {
	case http.MethodGet:
		matched := filterRows(rows, filters)
		if limit := r.URL.Query().Get("limit"); limit != "" {
			if n, err := strconv.Atoi(limit); err == nil && n < len(matched) {
				matched = matched[:n]
			}
		}
		writeJSON(w, http.StatusOK, matched)

	case http.MethodPost:
		var row Row
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			writeError(w, http.StatusBadRequest, "22P02", "bad body")
			return
		}
		prefer := r.Header.Get("Prefer")
		if strings.Contains(prefer, "merge-duplicates") {
			if merged := s.merge(table, row); merged != nil {
				writeJSON(w, http.StatusOK, []Row{merged})
				return
			}
		}
		if _, ok := row["id"]; !ok {
			s.nextID++
			row["id"] = fmt.Sprintf("srv-%d", s.nextID)
		}
		s.tables[table] = append(s.tables[table], row)
		writeJSON(w, http.StatusCreated, []Row{row})

	case http.MethodPatch:
		var patch Row
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "22P02", "bad body")
			return
		}
		var updated []Row
		for _, row := range rows {
			if matches(row, filters) {
				for k, v := range patch {
					row[k] = v
				}
				updated = append(updated, row)
			}
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		var kept, removed []Row
		for _, row := range rows {
			if matches(row, filters) {
				removed = append(removed, row)
			} else {
				kept = append(kept, row)
			}
		}
		s.tables[table] = kept
		writeJSON(w, http.StatusOK, removed)

	default:
		writeError(w, http.StatusMethodNotAllowed, "PGRST105", "method not allowed")
	}
}

// merge implements upsert resolution: rows are matched on id, falling
// back to event_key for event records.
func (s *Server) merge(table string, row Row) Row {
	for _, keyCol := range []string{"id", "event_key"} {
		want, ok := row[keyCol].(string)
		if !ok || want == "" {
			continue
		}
		for _, existing := range s.tables[table] {
			if have, _ := existing[keyCol].(string); have == want {
				for k, v := range row {
					existing[k] = v
				}
				return existing
			}
		}
	}
	return nil
}

type filter struct {
	column string
	op     string
	value  string
}

func parseFilters(r *http.Request) []filter {
	var filters []filter
	for column, values := range r.URL.Query() {
		if column == "order" || column == "limit" {
			continue
		}
		for _, v := range values {
			op, value, ok := strings.Cut(v, ".")
			if !ok {
				continue
			}
			filters = append(filters, filter{column: column, op: op, value: value})
		}
	}
	return filters
}

func filterRows(rows []Row, filters []filter) []Row {
	matched := []Row{}
	for _, row := range rows {
		if matches(row, filters) {
			matched = append(matched, row)
		}
	}
	return matched
}

func matches(row Row, filters []filter) bool {
	for _, f := range filters {
		have := fmt.Sprintf("%v", row[f.column])
		switch f.op {
		case "eq":
			if have != f.value {
				return false
			}
		case "neq":
			if have == f.value {
				return false
			}
		case "ilike":
			if !strings.EqualFold(have, f.value) {
				return false
			}
		case "lt":
			if !(have < f.value) {
				return false
			}
		case "lte":
			if !(have <= f.value) {
				return false
			}
		case "gt":
			if !(have > f.value) {
				return false
			}
		case "gte":
			if !(have >= f.value) {
				return false
			}
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}
