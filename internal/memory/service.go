// Package memory implements the semantic memory core: storing user-generated
// text as embedded vectors plus relational records, hybrid
// semantic-or-keyword retrieval, and per-domain context assembly for AI
// prompts.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pathlight/pathlight/internal/embedding"
	"github.com/pathlight/pathlight/internal/store"
	"github.com/pathlight/pathlight/internal/vecindex"
	"go.uber.org/zap"
)

// Options tunes the service.
type Options struct {
	// SimilarityThreshold drops semantic hits below this inner-product
	// score. Zero means the 0.5 default.
	SimilarityThreshold float32
	// EmbedTimeout bounds embedding calls on interactive paths; on expiry
	// the work is abandoned (not interrupted) and the keyword path takes
	// over. Zero means 5s.
	EmbedTimeout time.Duration
}

// Service is the memory subsystem facade. All dependencies are passed in
// explicitly; any of embedder, index, domain or notifier may be nil, in
// which case the affected path degrades instead of failing the request.
type Service struct {
	embedder  embedding.Provider
	index     *vecindex.Index
	records   RecordStore
	domain    DomainReader
	notifier  *Notifier
	logger    *zap.Logger
	threshold float32
	embedWait time.Duration
}

// NewService wires the memory service from its collaborators.
func NewService(embedder embedding.Provider, index *vecindex.Index, records RecordStore, domain DomainReader, notifier *Notifier, opts Options, logger *zap.Logger) *Service {
	threshold := opts.SimilarityThreshold
	if threshold == 0 {
		threshold = 0.5
	}
	wait := opts.EmbedTimeout
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Service{
		embedder:  embedder,
		index:     index,
		records:   records,
		domain:    domain,
		notifier:  notifier,
		logger:    logger,
		threshold: threshold,
		embedWait: wait,
	}
}

// StoreMemory embeds content, appends the vector to the index, snapshots the
// index, and writes the relational record carrying the returned position.
//
// The vector is added before the record on purpose: if the record write
// fails afterwards, the orphan vector is harmless and is logged and
// accepted. When embedding is unavailable or times out the record is still
// written with a NULL position, making it reachable through the keyword path
// only.
func (s *Service) StoreMemory(ctx context.Context, ownerID int64, content, memoryType string, metadata map[string]any) StoreResult {
	if strings.TrimSpace(content) == "" {
		return StoreResult{Reason: ReasonEmptyContent}
	}
	if memoryType == "" {
		memoryType = "general"
	}
	if s.records == nil {
		return StoreResult{Reason: ReasonRecordStoreError}
	}

	rec := &store.MemoryRecord{
		OwnerID:         ownerID,
		Content:         content,
		MemoryType:      memoryType,
		Metadata:        metadata,
		ImportanceScore: 0.5,
		ConfidenceScore: 1.0,
	}
	if src, ok := metadata["source"].(string); ok {
		rec.Source = src
	}

	indexed := false
	reason := ""

	vec, err := s.embedWithTimeout(ctx, content)
	switch {
	case err != nil:
		s.logger.Warn("embedding unavailable, storing keyword-only memory",
			zap.Int64("owner_id", ownerID), zap.Error(err))
		reason = ReasonEmbeddingUnavailable
	case s.index == nil || !s.index.Ready():
		s.logger.Warn("vector index unavailable, storing keyword-only memory",
			zap.Int64("owner_id", ownerID))
		reason = ReasonIndexUnavailable
	default:
		pos, addErr := s.index.Add(vec)
		if addErr != nil {
			// A structural index failure must be loud, not a silent
			// drop into keyword-only storage.
			s.logger.Error("vector index add failed", zap.Error(addErr))
			return StoreResult{Reason: ReasonIndexUnavailable}
		}
		if perr := s.index.Persist(); perr != nil {
			// The durable snapshot is missing this vector: a restarted
			// writer would hand the same position to a different record.
			// Keep the memory keyword-only instead of linking it.
			s.logger.Error("vector index persist failed, storing keyword-only memory",
				zap.Int("vector_position", pos), zap.Error(perr))
			reason = ReasonPersistError
			break
		}
		gen := s.index.Generation()
		rec.VectorPosition = &pos
		rec.IndexGeneration = &gen
		indexed = true
	}

	id, err := s.records.InsertMemory(ctx, rec)
	if err != nil {
		if rec.VectorPosition != nil {
			// Known cost of the add-vector-first strategy.
			s.logger.Error("memory record write failed, accepting orphan vector",
				zap.Int("vector_position", *rec.VectorPosition), zap.Error(err))
		} else {
			s.logger.Error("memory record write failed", zap.Error(err))
		}
		return StoreResult{Reason: ReasonRecordStoreError}
	}

	if indexed && s.notifier != nil {
		s.notifier.Publish(ctx, s.index.Generation(), s.index.Size())
	}

	s.logger.Info("memory stored",
		zap.Int64("owner_id", ownerID),
		zap.String("memory_type", memoryType),
		zap.Bool("indexed", indexed))
	return StoreResult{MemoryID: id, Stored: true, Indexed: indexed, Reason: reason}
}

// UpdateUserPreferences stores the preference set as a specially-tagged
// memory so later searches and context bundles can surface it.
func (s *Service) UpdateUserPreferences(ctx context.Context, ownerID int64, preferences map[string]any) StoreResult {
	content, err := json.Marshal(preferences)
	if err != nil {
		s.logger.Error("marshal preferences", zap.Error(err))
		return StoreResult{Reason: ReasonEmptyContent}
	}
	return s.StoreMemory(ctx, ownerID, string(content), "preferences", map[string]any{
		"source":      "preferences_update",
		"preferences": preferences,
	})
}

// ListMemories returns a user's raw memory records, newest first.
func (s *Service) ListMemories(ctx context.Context, ownerID int64, memoryType string, limit int) ([]store.MemoryRecord, error) {
	if s.records == nil {
		return nil, fmt.Errorf("memory: record store unavailable")
	}
	return s.records.ListMemories(ctx, ownerID, memoryType, limit)
}

// DeleteMemory removes one of the owner's memory records. The linked vector,
// if any, stays in the index as an orphan because the index has no delete
// primitive; it can no longer resolve to a record, so it never surfaces.
func (s *Service) DeleteMemory(ctx context.Context, ownerID, id int64) (bool, error) {
	if s.records == nil {
		return false, fmt.Errorf("memory: record store unavailable")
	}
	return s.records.DeleteMemory(ctx, ownerID, id)
}

// Status reports subsystem readiness.
func (s *Service) Status() Status {
	st := Status{
		EmbeddingReady: s.embedder != nil,
	}
	if s.embedder != nil {
		st.EmbeddingModel = s.embedder.Model()
	}
	if s.index != nil {
		st.IndexReady = s.index.Ready()
		st.IndexPath = s.index.Path()
		st.IndexSize = s.index.Size()
		st.Generation = s.index.Generation()
	}
	return st
}

// embedWithTimeout races the embedding call against the configured timeout.
// On expiry the underlying work is discarded, not interrupted, so the caller
// can fall back to keyword search without blocking indefinitely.
func (s *Service) embedWithTimeout(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, embedding.ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, s.embedWait)
	defer cancel()

	type embedOut struct {
		vec []float32
		err error
	}
	done := make(chan embedOut, 1)
	go func() {
		vec, err := embedding.EmbedOne(ctx, s.embedder, text)
		done <- embedOut{vec, err}
	}()

	select {
	case out := <-done:
		return out.vec, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("memory: embed timed out: %w", ctx.Err())
	}
}
