package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jobdeck/jobdeck/internal/connector"
	"github.com/jobdeck/jobdeck/internal/fetch"
	"github.com/jobdeck/jobdeck/internal/normalize"
	"github.com/jobdeck/jobdeck/internal/quota"
	"github.com/jobdeck/jobdeck/internal/storage"
)

const maxRefreshBodySize = 1 << 20 // 1MB

// Resolver abstracts the fetch orchestrator for the API layer.
type Resolver interface {
	Resolve(ctx context.Context, q connector.Query, opts fetch.Options) (*fetch.ResultSet, error)
	Usage() (quota.Decision, error)
}

type Deps struct {
	Store    *storage.Store
	Resolver Resolver
	Token    string // empty disables bearer auth on /api routes
}

// RefreshRequest asks for an immediate fetch of the named sources,
// bypassing the staleness policy. The quota still applies.
type RefreshRequest struct {
	Query    string   `json:"query"`
	Location string   `json:"location"`
	Sources  []string `json:"sources"`
	Depth    string   `json:"depth"` // "", "shallow", or "deep"
}

// StatsResponse is the store and quota view served by /api/stats.
type StatsResponse struct {
	Sources []storage.SourceCount `json:"sources"`
	States  []storage.SourceState `json:"states"`
	Quota   quota.Decision        `json:"quota"`
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/api/jobs", handleListJobs(deps))
		r.Get("/api/jobs/{id}", handleGetJob(deps))
		r.Get("/api/stats", handleStats(deps))
		r.Post("/api/refresh", handleRefresh(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleListJobs answers from the cache only; it never triggers a fetch.
func handleListJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filters := storage.Filters{
			Query:           q.Get("q"),
			Sources:         splitParam(q.Get("source")),
			Location:        normalize.NormalizeLocation(q.Get("location")),
			MinSalaryK:      parseIntParam(r, "min_salary", 0, 0),
			Tags:            splitParam(q.Get("tags")),
			Experience:      q.Get("experience"),
			IncludeInactive: q.Get("include_inactive") == "true",
			Limit:           parseIntParam(r, "limit", 0, 200),
		}

		postings, err := deps.Store.FindPostings(filters)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list jobs: %v", err)
			return
		}
		if postings == nil {
			postings = []storage.Posting{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(postings)
	}
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		posting, err := deps.Store.GetPosting(id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "job %s not found", id)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(posting)
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := deps.Store.CountPostingsBySource()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count postings: %v", err)
			return
		}
		states, err := deps.Store.ListSourceStates()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list source states: %v", err)
			return
		}
		usage, err := deps.Resolver.Usage()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read quota: %v", err)
			return
		}

		if counts == nil {
			counts = []storage.SourceCount{}
		}
		if states == nil {
			states = []storage.SourceState{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(StatsResponse{Sources: counts, States: states, Quota: usage})
	}
}

func handleRefresh(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRefreshBodySize)
		defer r.Body.Close()

		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		result, err := deps.Resolver.Resolve(r.Context(),
			connector.Query{Text: req.Query, Location: req.Location},
			fetch.Options{
				Sources:       req.Sources,
				Depth:         storage.Depth(req.Depth),
				ManualRefresh: true,
			})
		if err != nil {
			if errors.Is(err, fetch.ErrInvalidQuery) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to refresh: %v", err)
			return
		}
		if result.Postings == nil {
			result.Postings = []storage.Posting{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// splitParam splits a comma-separated query parameter, dropping blanks.
func splitParam(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
