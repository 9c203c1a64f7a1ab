package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/graph"
	"github.com/lazypower/constellation/internal/importance"
	"github.com/lazypower/constellation/internal/query"
)

const (
	maxLimit      = 1000
	defaultWindow = 24 * time.Hour
	maxBodyBytes  = 8 << 20
)

// intParam reads a positive integer query parameter, capped at maxLimit.
func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxLimit)
}

// timeParam reads an RFC 3339 timestamp. A missing parameter is the zero
// time.
func timeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 time", name)
	}
	return t, nil
}

// window reads from/to, defaulting to the day before now.
func (s *Server) window(r *http.Request) (time.Time, time.Time, error) {
	from, err := timeParam(r, "from")
	if err != nil {
		return from, time.Time{}, err
	}
	to, err := timeParam(r, "to")
	if err != nil {
		return from, to, err
	}
	if from.IsZero() {
		end := to
		if end.IsZero() {
			end = s.engine.Now()
		}
		from = end.Add(-defaultWindow)
	}
	return from, to, nil
}

// pathParam returns a URL parameter with any percent-encoding removed.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config().Graph
	view := query.GraphView(s.engine.Store(), query.ViewOptions{
		Limit:         intParam(r, "limit", cfg.ViewLimit),
		MinEdgeWeight: intParam(r, "min_edge_weight", cfg.MinEdgeWeight),
	})
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	d, err := query.DescribeNode(s.engine.Store(), s.engine.Feed(), pathParam(r, "id"))
	if errors.Is(err, graph.ErrNotFound) {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleEdge(w http.ResponseWriter, r *http.Request) {
	d, err := query.DescribeEdge(s.engine.Store(), s.engine.Feed(), pathParam(r, "key"))
	if errors.Is(err, graph.ErrNotFound) {
		writeError(w, http.StatusNotFound, "edge not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}
	results := query.Search(s.engine.Store(), q, query.SearchOpts{
		Limit: intParam(r, "limit", 20),
		Type:  graph.EntityType(r.URL.Query().Get("type")),
	})
	if results == nil {
		results = []query.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "results": results})
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	ref := pathParam(r, "id")
	related, err := query.Related(s.engine.Store(), ref, intParam(r, "limit", 20))
	if errors.Is(err, graph.ErrNotFound) {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	if related == nil {
		related = []graph.Neighbor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": ref, "related": related})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Metadata())
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.UserModel().Build())
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.UserModel().CurrentContext())
}

func (s *Server) handlePeople(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.UserModel().People(intParam(r, "limit", 20)))
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.UserModel().Projects(intParam(r, "limit", 20)))
}

func (s *Server) handleExpertise(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.UserModel().Expertise(intParam(r, "limit", 20)))
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.UserModel().TaskBlocks(from, to))
}

func (s *Server) handleImportance(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tasks := importance.TasksFromBlocks(s.engine.UserModel().TaskBlocks(from, to))
	writeJSON(w, http.StatusOK, importance.DefaultScorer().Score(tasks, s.engine.Now()))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events := query.Timeline(s.engine.Feed(), from, to, intParam(r, "limit", 200))
	if events == nil {
		events = []query.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	day := s.engine.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.ParseInLocation(time.DateOnly, v, day.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}
	writeJSON(w, http.StatusOK, query.SummarizeDay(s.engine.Store(), s.engine.Feed(), s.engine.Classifier(), day))
}

// activityBatch is the body of POST /api/activity.
type activityBatch struct {
	Activities []activity.Entry    `json:"activities"`
	Snapshots  []activity.Snapshot `json:"snapshots"`
	Clipboard  []activity.Clip     `json:"clipboard"`
	Music      []activity.Track    `json:"music"`
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req activityBatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	d := activity.Delta{
		Activities: req.Activities,
		Snapshots:  req.Snapshots,
		Clips:      req.Clipboard,
		Tracks:     req.Music,
	}
	if d.Empty() {
		writeError(w, http.StatusBadRequest, "nothing to ingest")
		return
	}
	added := s.engine.Accept(d)
	writeJSON(w, http.StatusAccepted, map[string]int{
		"activities":  len(d.Activities),
		"snapshots":   len(d.Snapshots),
		"clipboard":   len(d.Clips),
		"music":       len(d.Tracks),
		"occurrences": added,
	})
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	s.engine.RunEnrichment(true)
	report := s.engine.RunMaintenance(r.Context())
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(r.Context()); err != nil {
		s.log.Error("reset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reset incomplete")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
