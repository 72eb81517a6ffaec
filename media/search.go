package media

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Record types in search results.
const (
	RecordTranscription = "transcription"
	RecordVideo         = "video"
)

// DefaultTopK is used when a query asks for no limit.
const DefaultTopK = 3

// SearchQuery selects what stored records are ranked against. A non-empty
// Text is embedded. Otherwise the stored embedding of the record named by
// RefType and RefID is used, and that record is left out of the results.
type SearchQuery struct {
	Text    string
	TopK    int
	RefType string
	RefID   int64
}

// SearchResult is one ranked record. Text is set for transcriptions and
// Summary for videos.
type SearchResult struct {
	Type     string  `json:"type"`
	ID       int64   `json:"id"`
	Filename string  `json:"filename"`
	Text     string  `json:"text,omitempty"`
	Summary  string  `json:"summary,omitempty"`
	Score    float64 `json:"score"`
}

// Searcher ranks transcriptions and videos together by cosine similarity
// of their stored embeddings. Records without an embedding are skipped.
type Searcher struct {
	embedder Embedder
	repo     Repository
}

// NewSearcher creates a Searcher. e must produce vectors of the same size
// as the ones the processors stored.
func NewSearcher(e Embedder, repo Repository) *Searcher {
	return &Searcher{embedder: e, repo: repo}
}

// Search returns up to q.TopK records, best match first. A query with
// neither text nor a known reference yields no results.
func (s *Searcher) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	text := strings.TrimSpace(q.Text)
	if text == "" && q.RefType == "" {
		return nil, nil
	}

	trs, err := s.repo.ListTranscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transcriptions: %w", err)
	}
	vids, err := s.repo.ListVideos(ctx)
	if err != nil {
		return nil, fmt.Errorf("load videos: %w", err)
	}

	var query []float32
	switch {
	case text != "":
		if s.embedder == nil {
			return nil, fmt.Errorf("%w: no embedder configured", ErrMissingModel)
		}
		query, err = s.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
	case q.RefType == RecordTranscription:
		if i := slices.IndexFunc(trs, func(t *Transcription) bool { return t.ID == q.RefID }); i >= 0 {
			query = trs[i].Embedding
		}
	case q.RefType == RecordVideo:
		if i := slices.IndexFunc(vids, func(v *Video) bool { return v.ID == q.RefID }); i >= 0 {
			query = vids[i].Embedding
		}
	}
	if len(query) == 0 {
		return nil, nil
	}

	self := func(typ string, id int64) bool {
		return text == "" && q.RefType == typ && q.RefID == id
	}

	var results []SearchResult
	for _, t := range trs {
		score, ok := cosine(query, t.Embedding)
		if !ok || self(RecordTranscription, t.ID) {
			continue
		}
		results = append(results, SearchResult{
			Type: RecordTranscription, ID: t.ID, Filename: t.Filename, Text: t.Text, Score: score,
		})
	}
	for _, v := range vids {
		score, ok := cosine(query, v.Embedding)
		if !ok || self(RecordVideo, v.ID) {
			continue
		}
		results = append(results, SearchResult{
			Type: RecordVideo, ID: v.ID, Filename: v.Filename, Summary: v.Summary, Score: score,
		})
	}

	slices.SortStableFunc(results, func(a, b SearchResult) int { return cmp.Compare(b.Score, a.Score) })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// cosine reports false when the vectors cannot be compared.
func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + 1e-12), true
}
