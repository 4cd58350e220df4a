package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/fangraph/fangraph/internal/bandcamp"
	"github.com/fangraph/fangraph/internal/crawl"
	"github.com/fangraph/fangraph/internal/recommend"
	"github.com/fangraph/fangraph/internal/storage"
	"github.com/fangraph/fangraph/internal/types"
)

const (
	defaultBoost = 2.0
	minBoost     = 1.0
	maxBoost     = 5.0
)

// minCollection is the smallest collection get_user reports as usable;
// anything at or below it cannot overlap a neighbor by two items.
const minCollection = 2

// handleStatus registers the fan as a crawl target and reports where the
// crawl stands. Polling this endpoint is what keeps a target alive.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name, ok := username(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	fanID, err := s.store.FanIDForUsername(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	target, err := s.progress.AddTarget(ctx, fanID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, target)
}

// handleUser force-refreshes one fan's collection inside the request and
// reports whether it is big enough to recommend from.
func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name, ok := username(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	err := crawl.FetchCollection(ctx, s.store, s.fetcher, name, true)
	if errors.Is(err, bandcamp.ErrNotFound) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	size, err := s.store.CollectionSize(ctx, name)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if size <= minCollection {
		http.Error(w, "User does not contain enough items (at least 2 required)", http.StatusNotFound)
		return
	}
	fmt.Fprintln(w, "User fetched successfully")
}

// handleRecommendations scores items for the fan. The boost exponent is
// clamped rather than rejected so sliders can run past the useful range.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name, ok := username(w, r)
	if !ok {
		return
	}
	boost := defaultBoost
	if v := r.URL.Query().Get("similar_boost"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid similar_boost", http.StatusBadRequest)
			return
		}
		boost = f
	}
	boost = math.Min(maxBoost, math.Max(minBoost, boost))

	items, err := recommend.Recommendations(r.Context(), s.store, name, boost)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if items == nil {
		items = []types.ScoredItem{}
	}
	writeJSON(w, items)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

// username extracts the mandatory username parameter, answering 400 when
// it is absent.
func username(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.URL.Query().Get("username")
	if name == "" {
		http.Error(w, "missing username", http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// internalError hides the cause from the client and logs it with the
// request that hit it.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	log.WithFields(log.Fields{
		"path":  r.URL.Path,
		"query": r.URL.RawQuery,
	}).WithError(err).Error("request failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
