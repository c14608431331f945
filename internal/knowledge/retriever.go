// Package knowledge retrieves hospital FAQ sections by embedding
// similarity, filtered by the caller's access level.
package knowledge

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"hospital-assistant/pkg"
)

// DefaultTopK is the number of snippets returned per query.
const DefaultTopK = 4

//go:embed faqs/*.md
var defaultFAQs embed.FS

// DefaultFAQs is the bundled FAQ set.
func DefaultFAQs() fs.FS {
	sub, err := fs.Sub(defaultFAQs, "faqs")
	if err != nil {
		panic(err)
	}
	return sub
}

// FAQSource returns dir as a filesystem, or the bundled set when dir is empty.
func FAQSource(dir string) fs.FS {
	if dir == "" {
		return DefaultFAQs()
	}
	return os.DirFS(dir)
}

// Snippet is one retrieval result.
type Snippet struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	File    string  `json:"file"`
	Score   float64 `json:"score"`
}

type entry struct {
	chunk  Chunk
	vector Vector
}

// Retriever is an in-memory vector index over FAQ chunks.
type Retriever struct {
	embedder Embedder
	log      logrus.FieldLogger

	mu      sync.RWMutex
	entries []entry
}

// NewRetriever returns an empty index.
func NewRetriever(e Embedder, log logrus.FieldLogger) *Retriever {
	return &Retriever{embedder: e, log: log.WithField("component", "knowledge")}
}

// Index embeds chunks and replaces the index contents.
func (r *Retriever) Index(ctx context.Context, chunks []Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	entries := make([]entry, len(chunks))
	for i, c := range chunks {
		entries[i] = entry{chunk: c, vector: vectors[i]}
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	r.log.WithField("chunks", len(entries)).Info("knowledge index built")
	return nil
}

// IndexFS loads and indexes every FAQ file in fsys.
func (r *Retriever) IndexFS(ctx context.Context, fsys fs.FS) error {
	chunks, err := LoadFS(fsys)
	if err != nil {
		return err
	}
	return r.Index(ctx, chunks)
}

// Len returns the number of indexed chunks.
func (r *Retriever) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Query returns up to topK snippets ordered by descending relevance. Guests
// (AccessPublic) only see public chunks.
func (r *Retriever) Query(ctx context.Context, text string, topK int, access pkg.AccessLevel) ([]Snippet, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	r.mu.RLock()
	entries := r.entries
	r.mu.RUnlock()
	if len(entries) == 0 {
		return nil, nil
	}

	vs, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	q := vs[0]

	out := make([]Snippet, 0, len(entries))
	for _, e := range entries {
		if access != pkg.AccessAll && !e.chunk.Public() {
			continue
		}
		score := math.Max(0, CosineSimilarity(q, e.vector))
		out = append(out, Snippet{
			Content: e.chunk.Content,
			Source:  e.chunk.Source,
			File:    e.chunk.File,
			Score:   math.Round(score*1000) / 1000,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
