// Package memory is the semantic memory store: vector embeddings tagged
// with provenance, queried by cosine similarity, scoped per user.
// When the embedding provider is down, inserts degrade to observable
// no-ops and searches return nothing rather than failing the caller.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/mudler/xlog"
	"github.com/philippgille/chromem-go"

	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"
)

// InsertStatus makes the degrade-gracefully policy observable: callers
// and tests can assert that memory was unavailable instead of guessing
// from a silently missing row.
type InsertStatus string

const (
	StatusStored  InsertStatus = "stored"
	StatusSkipped InsertStatus = "skipped"
)

type Hit struct {
	Content    string
	Source     models.MemorySource
	Metadata   map[string]string
	Similarity float32
}

type Store struct {
	mu          sync.Mutex
	db          *chromem.DB
	collections map[uuid.UUID]*chromem.Collection
	embedder    Embedder
	persistence types.Store
}

func NewStore(embedder Embedder, persistence types.Store) *Store {
	return &Store{
		db:          chromem.NewDB(),
		collections: map[uuid.UUID]*chromem.Collection{},
		embedder:    embedder,
		persistence: persistence,
	}
}

func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return chromem.EmbeddingFunc(
		func(ctx context.Context, text string) ([]float32, error) {
			return s.embedder.Embed(ctx, text)
		},
	)
}

func (s *Store) collectionFor(userID uuid.UUID) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[userID]; ok {
		return c, nil
	}
	c, err := s.db.GetOrCreateCollection("user-"+userID.String(), nil, s.embeddingFunc())
	if err != nil {
		return nil, err
	}
	s.collections[userID] = c
	return c, nil
}

// Insert embeds text and persists it. An unavailable embedding provider
// yields StatusSkipped with a nil error: the row is simply not stored.
func (s *Store) Insert(ctx context.Context, userID uuid.UUID, text string, source models.MemorySource, metadata map[string]string) (InsertStatus, error) {
	if text == "" {
		return StatusSkipped, fmt.Errorf("empty text")
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		xlog.Warn("Memory insert skipped, embedding provider unavailable",
			"user", userID, "source", source, "error", err)
		return StatusSkipped, nil
	}

	collection, err := s.collectionFor(userID)
	if err != nil {
		return StatusSkipped, err
	}

	id := uuid.New().String()
	if err := collection.AddDocuments(ctx, []chromem.Document{
		{
			ID:        id,
			Content:   text,
			Embedding: vector,
			Metadata:  documentMetadata(source, metadata),
		},
	}, runtime.NumCPU()); err != nil {
		return StatusSkipped, err
	}

	// The durable row is secondary to the index: failure to persist is
	// logged, not surfaced.
	row := &models.VectorEmbedding{
		UserID:   userID,
		Content:  text,
		Source:   source,
		Metadata: encodeMetadata(metadata),
	}
	if err := row.SetVector(vector); err == nil {
		if err := s.persistence.CreateEmbedding(ctx, row); err != nil {
			xlog.Error("Failed to persist embedding row", "user", userID, "error", err)
		}
	}

	return StatusStored, nil
}

// Search embeds the query and returns the k nearest rows for the user.
// Any failure degrades to an empty result.
func (s *Store) Search(ctx context.Context, userID uuid.UUID, query string, k int) []Hit {
	if query == "" || k <= 0 {
		return nil
	}

	collection, err := s.collectionFor(userID)
	if err != nil {
		xlog.Warn("Memory search unavailable", "user", userID, "error", err)
		return nil
	}

	// chromem rejects k greater than the collection size
	if count := collection.Count(); count < k {
		k = count
	}
	if k == 0 {
		return nil
	}

	results, err := collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		xlog.Warn("Memory search failed", "user", userID, "error", err)
		return nil
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			Content:    r.Content,
			Source:     models.MemorySource(r.Metadata["source"]),
			Metadata:   r.Metadata,
			Similarity: r.Similarity,
		})
	}
	return hits
}

func documentMetadata(source models.MemorySource, metadata map[string]string) map[string]string {
	out := map[string]string{"source": string(source)}
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

func encodeMetadata(metadata map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}
	b, _ := json.Marshal(metadata)
	return string(b)
}
