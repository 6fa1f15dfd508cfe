package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/models"
)

type fakeStore struct {
	byURL          map[string]string
	byExternalID   map[string]string // "source/external" → id
	byHash         map[string]string
	nearest        *EmbeddingMatch
	nearestModel   string
	nearestExclude string
}

func (f *fakeStore) FindItemIDByNormalizedURL(_ context.Context, u string, _ time.Time) (string, error) {
	return f.byURL[u], nil
}

func (f *fakeStore) FindItemIDByExternalID(_ context.Context, sourceID, externalID string) (string, error) {
	return f.byExternalID[sourceID+"/"+externalID], nil
}

func (f *fakeStore) FindItemIDByContentHash(_ context.Context, h string, _ time.Time) (string, error) {
	return f.byHash[h], nil
}

func (f *fakeStore) NearestItemByEmbedding(_ context.Context, _ models.Vector, model string, _ time.Time, excludeItemID string) (*EmbeddingMatch, error) {
	f.nearestExclude = excludeItemID
	if model != f.nearestModel {
		return nil, nil
	}
	if f.nearest != nil && f.nearest.ItemID == excludeItemID {
		return nil, nil
	}
	return f.nearest, nil
}

func newTestDedup(store *fakeStore) *Deduplicator {
	return New(config.DefaultDedupConfig(), store)
}

func TestNormalizeURL(t *testing.T) {
	d := newTestDedup(&fakeStore{})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"lowercases host and drops www",
			"https://WWW.Example.COM/News/story",
			"https://example.com/News/story",
		},
		{
			"strips tracking params and sorts the rest",
			"https://example.com/a?utm_source=x&b=2&a=1&fbclid=zzz",
			"https://example.com/a?a=1&b=2",
		},
		{
			"drops fragment and trailing slash",
			"https://example.com/a/#section",
			"https://example.com/a",
		},
		{
			"unparseable passes through trimmed",
			"  not a url  ",
			"not a url",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.NormalizeURL(tt.in))
		})
	}
}

func TestNormalizeURLDropQueryMode(t *testing.T) {
	cfg := config.DefaultDedupConfig()
	cfg.PreserveQuery = false
	d := New(cfg, &fakeStore{})

	assert.Equal(t, "https://example.com/a", d.NormalizeURL("https://example.com/a?id=7"))
}

func TestCheckURLDuplicate(t *testing.T) {
	store := &fakeStore{byURL: map[string]string{"https://example.com/a": "item-1"}}
	d := newTestDedup(store)

	res, err := d.Check(context.Background(), Candidate{URL: "https://www.example.com/a?utm_source=x"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "item-1", res.MatchedItemID)
	assert.Equal(t, MatchURL, res.Kind)
}

func TestCheckExternalIDDuplicate(t *testing.T) {
	store := &fakeStore{byExternalID: map[string]string{"src-1/ext-9": "item-2"}}
	d := newTestDedup(store)

	res, err := d.Check(context.Background(), Candidate{SourceID: "src-1", ExternalID: "ext-9"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, MatchExternalID, res.Kind)
}

func TestCheckContentHashDuplicate(t *testing.T) {
	// Byte-identical article against itself always dedups.
	text := "Breaking: troops massing at the border."
	hash := models.ContentHash(text)

	store := &fakeStore{byHash: map[string]string{hash: "item-3"}}
	d := newTestDedup(store)

	res, err := d.Check(context.Background(), Candidate{ContentHash: models.ContentHash(text)})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, MatchHash, res.Kind)
}

func TestCheckEmbeddingDuplicate(t *testing.T) {
	store := &fakeStore{
		nearest:      &EmbeddingMatch{ItemID: "item-4", Similarity: 0.97},
		nearestModel: "text-embedding-3-small",
	}
	d := newTestDedup(store)

	res, err := d.Check(context.Background(), Candidate{
		Embedding:      models.Vector{1, 0, 0},
		EmbeddingModel: "text-embedding-3-small",
	})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, MatchEmbedding, res.Kind)
	assert.Equal(t, 0.97, res.Similarity)
}

func TestCheckEmbeddingBelowThresholdNotDuplicate(t *testing.T) {
	store := &fakeStore{
		nearest:      &EmbeddingMatch{ItemID: "item-4", Similarity: 0.90},
		nearestModel: "text-embedding-3-small",
	}
	d := newTestDedup(store)

	res, err := d.Check(context.Background(), Candidate{
		Embedding:      models.Vector{1, 0, 0},
		EmbeddingModel: "text-embedding-3-small",
	})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
}

func TestCheckEmbeddingExcludesOwnRow(t *testing.T) {
	// The candidate is already persisted with its vector: the closest row in
	// the corpus is the candidate itself at similarity 1.0. It must never
	// count as its own duplicate.
	store := &fakeStore{
		nearest:      &EmbeddingMatch{ItemID: "item-self", Similarity: 1.0},
		nearestModel: "text-embedding-3-small",
	}
	d := newTestDedup(store)

	res, err := d.Check(context.Background(), Candidate{
		ItemID:         "item-self",
		Embedding:      models.Vector{1, 0, 0},
		EmbeddingModel: "text-embedding-3-small",
	})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "item-self", store.nearestExclude)
}

func TestCheckCrossModelEmbeddingSkipped(t *testing.T) {
	// A near-identical vector under a different model must not dedup.
	store := &fakeStore{
		nearest:      &EmbeddingMatch{ItemID: "item-4", Similarity: 0.99},
		nearestModel: "text-embedding-3-small",
	}
	d := newTestDedup(store)

	res, err := d.Check(context.Background(), Candidate{
		Embedding:      models.Vector{1, 0, 0},
		EmbeddingModel: "other-model",
	})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
}

func TestCheckCleanCandidate(t *testing.T) {
	d := newTestDedup(&fakeStore{})

	res, err := d.Check(context.Background(), Candidate{
		SourceID:    "src",
		ExternalID:  "ext",
		URL:         "https://example.com/new",
		ContentHash: models.ContentHash("fresh"),
	})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Empty(t, res.MatchedItemID)
}
