package memory

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Fixed relevance tiers for the keyword fallback. Generic memories rank
// above domain-table hits, which rank above secondary domain hits, so
// fallback results are deterministic for a fixed database state. Within a
// tier the store's recency ordering is preserved by the stable sort.
const (
	tierMemory          float32 = 0.30
	tierDomainPrimary   float32 = 0.25
	tierDomainSecondary float32 = 0.20
)

// SearchMemories runs hybrid retrieval: the semantic path when the embedder
// and index are available, topped up by the keyword fallback across the
// memory table and the domain tables selected by memoryType. Results are
// merged, deduplicated, sorted by descending score and truncated to topK.
func (s *Service) SearchMemories(ctx context.Context, ownerID int64, query, memoryType string, topK int) SearchOutcome {
	outcome := SearchOutcome{Results: []SearchResult{}}

	query = strings.TrimSpace(query)
	if query == "" {
		return outcome
	}
	if topK <= 0 {
		topK = 5
	}

	semantic, reason := s.semanticSearch(ctx, ownerID, query, memoryType, topK)
	if reason != "" {
		outcome.Degraded = append(outcome.Degraded, "semantic:"+reason)
	} else {
		outcome.SemanticUsed = true
	}
	outcome.Results = append(outcome.Results, semantic...)

	// The semantic path depends on an optional model; top up from plain
	// substring search whenever it is unavailable or comes up short.
	if len(semantic) < topK {
		keyword, reasons := s.keywordSearch(ctx, ownerID, query, memoryType, topK, semantic)
		outcome.Degraded = append(outcome.Degraded, reasons...)
		if len(keyword) > 0 {
			outcome.KeywordUsed = true
		}
		outcome.Results = append(outcome.Results, keyword...)
	}

	sort.SliceStable(outcome.Results, func(i, j int) bool {
		return outcome.Results[i].Score > outcome.Results[j].Score
	})
	if len(outcome.Results) > topK {
		outcome.Results = outcome.Results[:topK]
	}

	s.touchAccess(ctx, outcome.Results)
	return outcome
}

// semanticSearch embeds the query and resolves index hits back to owned
// records. It over-fetches 2x topK because the index is shared across users
// and hits belonging to other owners are discarded here.
func (s *Service) semanticSearch(ctx context.Context, ownerID int64, query, memoryType string, topK int) ([]SearchResult, string) {
	if s.index == nil || !s.index.Ready() {
		return nil, ReasonIndexUnavailable
	}
	if s.records == nil {
		return nil, ReasonRecordStoreError
	}

	vec, err := s.embedWithTimeout(ctx, query)
	if err != nil {
		s.logger.Debug("semantic search degraded", zap.Error(err))
		return nil, ReasonEmbeddingUnavailable
	}

	hits, err := s.index.Search(vec, topK*2)
	if err != nil {
		s.logger.Warn("vector index search failed", zap.Error(err))
		return nil, ReasonIndexUnavailable
	}
	if len(hits) == 0 {
		return nil, ""
	}

	positions := make([]int, 0, len(hits))
	scores := make(map[int]float32, len(hits))
	for _, h := range hits {
		if h.Score < s.threshold {
			continue
		}
		positions = append(positions, h.Position)
		scores[h.Position] = h.Score
	}
	if len(positions) == 0 {
		return nil, ""
	}

	records, err := s.records.MemoriesByVectorPositions(ctx, s.index.Generation(), positions)
	if err != nil {
		s.logger.Warn("resolve vector positions failed", zap.Error(err))
		return nil, ReasonRecordStoreError
	}

	results := make([]SearchResult, 0, len(records))
	for _, rec := range records {
		if rec.OwnerID != ownerID {
			continue
		}
		if memoryType != "" && rec.MemoryType != memoryType {
			continue
		}
		results = append(results, SearchResult{
			MemoryID:   rec.ID,
			Content:    rec.Content,
			Score:      scores[*rec.VectorPosition],
			MemoryType: rec.MemoryType,
			Source:     "semantic",
			Metadata:   rec.Metadata,
			Timestamp:  rec.CreatedAt,
		})
		if len(results) == topK {
			break
		}
	}
	return results, ""
}

// keywordSearch is the deterministic fallback: the generic memory table
// first, then the domain tables narrowed by memoryType, each at its fixed
// relevance tier. seen entries from the semantic path are not repeated.
func (s *Service) keywordSearch(ctx context.Context, ownerID int64, query, memoryType string, topK int, seen []SearchResult) ([]SearchResult, []string) {
	var results []SearchResult
	var degraded []string

	seenIDs := make(map[int64]bool, len(seen))
	for _, r := range seen {
		if r.MemoryID != 0 {
			seenIDs[r.MemoryID] = true
		}
	}

	if s.records != nil {
		records, err := s.records.SearchMemoriesKeyword(ctx, ownerID, query, memoryType, topK)
		if err != nil {
			s.logger.Warn("keyword memory search failed", zap.Error(err))
			degraded = append(degraded, "keyword:"+ReasonRecordStoreError)
		}
		for _, rec := range records {
			if seenIDs[rec.ID] {
				continue
			}
			results = append(results, SearchResult{
				MemoryID:   rec.ID,
				Content:    rec.Content,
				Score:      tierMemory,
				MemoryType: rec.MemoryType,
				Source:     "keyword:memory",
				Metadata:   rec.Metadata,
				Timestamp:  rec.CreatedAt,
			})
		}
	} else {
		degraded = append(degraded, "keyword:"+ReasonRecordStoreError)
	}

	domainResults, domainDegraded := s.domainKeywordSearch(ctx, ownerID, query, memoryType, topK)
	results = append(results, domainResults...)
	degraded = append(degraded, domainDegraded...)

	return results, degraded
}

func (s *Service) domainKeywordSearch(ctx context.Context, ownerID int64, query, memoryType string, topK int) ([]SearchResult, []string) {
	// Only a narrowed memory type pulls in domain tables; a generic search
	// stays on the memory table.
	switch memoryType {
	case "career", "habits", "finance":
	default:
		return nil, nil
	}
	if s.domain == nil {
		return nil, []string{"keyword:" + ReasonDomainReadError}
	}

	var results []SearchResult
	var degraded []string

	switch memoryType {
	case "career":
		goals, err := s.domain.SearchGoals(ctx, ownerID, query, topK)
		if err != nil {
			s.logger.Warn("goal keyword search failed", zap.Error(err))
			degraded = append(degraded, "keyword:"+ReasonDomainReadError)
		}
		for _, g := range goals {
			content := g.Title
			if g.Description != "" {
				content += ": " + g.Description
			}
			results = append(results, SearchResult{
				Content:    content,
				Score:      tierDomainPrimary,
				MemoryType: "career",
				Source:     "keyword:goal",
				Metadata:   map[string]any{"goal_id": g.ID, "status": g.Status},
				Timestamp:  g.CreatedAt,
			})
		}
		skills, err := s.domain.SearchSkills(ctx, ownerID, query, topK)
		if err != nil {
			s.logger.Warn("skill keyword search failed", zap.Error(err))
			degraded = append(degraded, "keyword:"+ReasonDomainReadError)
		}
		for _, sk := range skills {
			results = append(results, SearchResult{
				Content:    sk.Name + " (" + sk.CurrentLevel + " → " + sk.TargetLevel + ")",
				Score:      tierDomainSecondary,
				MemoryType: "career",
				Source:     "keyword:skill",
				Metadata:   map[string]any{"skill_id": sk.ID},
				Timestamp:  sk.CreatedAt,
			})
		}
	case "habits":
		habits, err := s.domain.SearchHabits(ctx, ownerID, query, topK)
		if err != nil {
			s.logger.Warn("habit keyword search failed", zap.Error(err))
			degraded = append(degraded, "keyword:"+ReasonDomainReadError)
		}
		for _, h := range habits {
			content := h.Name
			if h.Description != "" {
				content += ": " + h.Description
			}
			results = append(results, SearchResult{
				Content:    content,
				Score:      tierDomainPrimary,
				MemoryType: "habits",
				Source:     "keyword:habit",
				Metadata:   map[string]any{"habit_id": h.ID, "streak": h.CurrentStreak},
				Timestamp:  h.CreatedAt,
			})
		}
	case "finance":
		expenses, err := s.domain.SearchExpenses(ctx, ownerID, query, topK)
		if err != nil {
			s.logger.Warn("expense keyword search failed", zap.Error(err))
			degraded = append(degraded, "keyword:"+ReasonDomainReadError)
		}
		for _, e := range expenses {
			results = append(results, SearchResult{
				Content:    e.Description + " (" + e.Category + ")",
				Score:      tierDomainPrimary,
				MemoryType: "finance",
				Source:     "keyword:expense",
				Metadata:   map[string]any{"expense_id": e.ID, "amount": e.Amount},
				Timestamp:  e.SpentAt,
			})
		}
	}
	return results, degraded
}

// touchAccess bumps access tracking for returned memory records. Best
// effort: a failure here never affects the search result.
func (s *Service) touchAccess(ctx context.Context, results []SearchResult) {
	if s.records == nil {
		return
	}
	var ids []int64
	for _, r := range results {
		if r.MemoryID != 0 {
			ids = append(ids, r.MemoryID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if err := s.records.TouchMemoryAccess(ctx, ids); err != nil {
		s.logger.Debug("touch memory access failed", zap.Error(err))
	}
}
