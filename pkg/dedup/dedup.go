// Package dedup rejects re-ingestion of already-seen content by normalized
// URL, (source, external_id), content hash, or embedding similarity.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/metrics"
	"github.com/osintlab/trendwatch/pkg/models"
)

// Match kinds reported in Result.Kind and the dedup-hit counter.
const (
	MatchURL        = "url"
	MatchExternalID = "external_id"
	MatchHash       = "content_hash"
	MatchEmbedding  = "embedding"
)

// Candidate is an item about to be ingested.
type Candidate struct {
	// ItemID is set when the candidate row is already persisted, so the
	// similarity search never matches the item against itself.
	ItemID string

	SourceID    string
	ExternalID  string
	URL         string
	ContentHash string

	// Embedding and its model are optional; similarity dedup only runs when
	// both the candidate and a corpus row carry same-model vectors.
	Embedding      models.Vector
	EmbeddingModel string
}

// Result is the dedup verdict.
type Result struct {
	Duplicate     bool
	MatchedItemID string
	Kind          string
	Similarity    float64 // set for embedding matches
}

// EmbeddingMatch is one corpus hit from the nearest-neighbor lookup.
type EmbeddingMatch struct {
	ItemID     string
	Similarity float64
}

// Store is the storage surface the deduplicator needs.
type Store interface {
	// FindItemID returns the id of a recent item matching the predicate, or
	// "" when none exists. since bounds the recency window for url/hash.
	FindItemIDByNormalizedURL(ctx context.Context, normalizedURL string, since time.Time) (string, error)
	FindItemIDByExternalID(ctx context.Context, sourceID, externalID string) (string, error)
	FindItemIDByContentHash(ctx context.Context, hash string, since time.Time) (string, error)

	// NearestItemByEmbedding returns the most similar same-model item within
	// the window, or nil when none exists. excludeItemID keeps an already
	// persisted candidate out of its own result; "" excludes nothing.
	NearestItemByEmbedding(ctx context.Context, embedding models.Vector, model string, since time.Time, excludeItemID string) (*EmbeddingMatch, error)
}

// Deduplicator applies the configured duplicate filters in cost order.
type Deduplicator struct {
	cfg   *config.DedupConfig
	store Store

	trackingParams map[string]bool
}

// New creates a deduplicator.
func New(cfg *config.DedupConfig, store Store) *Deduplicator {
	tracking := make(map[string]bool, len(cfg.TrackingParams))
	for _, p := range cfg.TrackingParams {
		tracking[strings.ToLower(p)] = true
	}
	return &Deduplicator{cfg: cfg, store: store, trackingParams: tracking}
}

// Check runs the filters: normalized URL, (source, external_id), content
// hash, then embedding similarity. Cross-model embedding comparisons are
// skipped fail-safe (never deduplicated).
func (d *Deduplicator) Check(ctx context.Context, c Candidate) (Result, error) {
	since := time.Now().AddDate(0, 0, -d.cfg.RecencyWindowDays)

	if c.URL != "" {
		normalized := d.NormalizeURL(c.URL)
		id, err := d.store.FindItemIDByNormalizedURL(ctx, normalized, since)
		if err != nil {
			return Result{}, fmt.Errorf("url lookup: %w", err)
		}
		if id != "" {
			return d.hit(MatchURL, id, 0), nil
		}
	}

	if c.SourceID != "" && c.ExternalID != "" {
		id, err := d.store.FindItemIDByExternalID(ctx, c.SourceID, c.ExternalID)
		if err != nil {
			return Result{}, fmt.Errorf("external id lookup: %w", err)
		}
		if id != "" {
			return d.hit(MatchExternalID, id, 0), nil
		}
	}

	if c.ContentHash != "" {
		id, err := d.store.FindItemIDByContentHash(ctx, c.ContentHash, since)
		if err != nil {
			return Result{}, fmt.Errorf("content hash lookup: %w", err)
		}
		if id != "" {
			return d.hit(MatchHash, id, 0), nil
		}
	}

	if len(c.Embedding) > 0 && c.EmbeddingModel != "" {
		match, err := d.store.NearestItemByEmbedding(ctx, c.Embedding, c.EmbeddingModel, since, c.ItemID)
		if err != nil {
			return Result{}, fmt.Errorf("embedding lookup: %w", err)
		}
		if match != nil && match.Similarity >= d.cfg.SimilarityThreshold {
			return d.hit(MatchEmbedding, match.ItemID, match.Similarity), nil
		}
	}

	return Result{}, nil
}

func (d *Deduplicator) hit(kind, itemID string, similarity float64) Result {
	metrics.DedupHits.WithLabelValues(kind).Inc()
	slog.Debug("Duplicate item rejected", "kind", kind, "matched_item_id", itemID)
	return Result{Duplicate: true, MatchedItemID: itemID, Kind: kind, Similarity: similarity}
}

// NormalizeURL canonicalizes a URL for duplicate matching: lowercase host,
// drop www., strip tracking params, sort the remaining query
// deterministically. Unparseable URLs are returned trimmed as-is.
func (d *Deduplicator) NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	u.Host = host
	u.Scheme = strings.ToLower(u.Scheme)
	u.Fragment = ""

	if !d.cfg.PreserveQuery {
		u.RawQuery = ""
		return strings.TrimSuffix(u.String(), "/")
	}

	q := u.Query()
	kept := url.Values{}
	for key, vals := range q {
		if d.trackingParams[strings.ToLower(key)] {
			continue
		}
		kept[key] = vals
	}

	keys := make([]string, 0, len(kept))
	for key := range kept {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		vals := kept[key]
		sort.Strings(vals)
		for _, v := range vals {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(key))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	u.RawQuery = sb.String()

	return strings.TrimSuffix(u.String(), "/")
}
