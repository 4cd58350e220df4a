// Package recommend scores catalogue items for a fan from the collections
// of fans whose taste overlaps theirs.
//
// The scorer is plain user-based collaborative filtering: every fan sharing
// at least two items with the subject votes for the rest of their collection,
// and each vote is weighted by the overlap size raised to a configurable
// boost exponent. Items the subject already owns are never recommended.
package recommend

import (
	"context"
	"math"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fangraph/fangraph/internal/storage"
	"github.com/fangraph/fangraph/internal/telemetry"
	"github.com/fangraph/fangraph/internal/types"
)

// maxResults caps how many scored items a single request returns.
const maxResults = 50

type scored struct {
	id    int64
	score float64
}

// Recommendations ranks items for username and returns up to maxResults of
// them, best first. Each fan overlapping the subject's collection contributes
// overlap^boost to every item they own that the subject does not, so larger
// boosts let close taste matches dominate the ranking. Callers clamp boost
// to the useful [1, 5] range; the scorer itself accepts any value.
//
// Returns storage.ErrNotFound when the username is not in the graph. A known
// fan whose collection is too small to overlap anyone yields an empty slice.
func Recommendations(ctx context.Context, store storage.Store, username string, boost float64) ([]types.ScoredItem, error) {
	tracer := telemetry.Tracer("github.com/fangraph/fangraph/recommend")
	ctx, span := tracer.Start(ctx, "recommend.score")
	defer span.End()
	span.SetAttributes(
		attribute.String("fangraph.username", username),
		attribute.Float64("fangraph.boost", boost),
	)

	fanID, err := store.FanIDForUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	users, err := store.RelevantUsersWithItems(ctx, username)
	if err != nil {
		return nil, err
	}

	// The subject's own row doubles as the exclusion set. When it is absent
	// they own fewer than two items and nobody can overlap them.
	owned, ok := users[fanID]
	if !ok {
		return nil, nil
	}
	forbidden := make(map[int64]struct{}, len(owned))
	for _, id := range owned {
		forbidden[id] = struct{}{}
	}

	// The subject's own row shares everything and adds nothing, so it needs
	// no special-casing in this loop.
	scores := make(map[int64]float64)
	for _, items := range users {
		shared := 0
		for _, id := range items {
			if _, ok := forbidden[id]; ok {
				shared++
			}
		}
		mult := math.Pow(float64(shared), boost)
		if mult <= 1.0 {
			continue
		}
		for _, id := range items {
			if _, ok := forbidden[id]; !ok {
				scores[id] += mult
			}
		}
	}

	ranked := make([]scored, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, scored{id: id, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		// Ties go to the newer release so the order is stable across runs.
		return ranked[i].id > ranked[j].id
	})
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}

	result := make([]types.ScoredItem, 0, len(ranked))
	for _, sc := range ranked {
		it, err := store.GetItem(ctx, sc.id)
		if err != nil {
			return nil, err
		}
		result = append(result, types.ScoredItem{Item: it, Score: sc.score})
	}
	span.SetAttributes(attribute.Int("fangraph.results", len(result)))
	return result, nil
}
