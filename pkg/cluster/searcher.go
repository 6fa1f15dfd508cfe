package cluster

import (
	"context"
	"math"
	"time"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/models"
	"github.com/osintlab/trendwatch/pkg/services"
)

// NearestNeighbor finds the best merge candidate for an embedding.
type NearestNeighbor interface {
	Nearest(ctx context.Context, embedding models.Vector, model string, since time.Time) (*services.EventMatch, error)
}

// ExactSearcher scans the full candidate set with the exact cosine operator.
// Correct at any corpus size, linear in it.
type ExactSearcher struct {
	store Store
}

func (s ExactSearcher) Nearest(ctx context.Context, embedding models.Vector, model string, since time.Time) (*services.EventMatch, error) {
	return s.store.Nearest(ctx, embedding, model, since)
}

// IVFFlatSearcher goes through the IVFFlat index instead, trading a little
// recall for sublinear search on large corpora.
type IVFFlatSearcher struct {
	store  Store
	probes int
}

func (s IVFFlatSearcher) Nearest(ctx context.Context, embedding models.Vector, model string, since time.Time) (*services.EventMatch, error) {
	return s.store.NearestApproximate(ctx, embedding, model, since, s.probes)
}

func newSearcher(cfg *config.ClusterConfig, store Store) NearestNeighbor {
	if cfg.Searcher == config.SearcherIVFFlat {
		return IVFFlatSearcher{store: store, probes: probesForLists(cfg.IVFFlatLists)}
	}
	return ExactSearcher{store: store}
}

// probesForLists follows the pgvector guidance of sqrt(lists), floored at 1.
func probesForLists(lists int) int {
	probes := int(math.Sqrt(float64(lists)))
	if probes < 1 {
		return 1
	}
	return probes
}
