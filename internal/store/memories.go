package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// MemoryRecord is one row of the usermemory table.
//
// VectorPosition links the record to its append slot in the vector index and
// is only meaningful for the generation recorded alongside it. A record with
// a NULL position (or a stale generation) is invisible to the semantic path
// but stays reachable through keyword search.
type MemoryRecord struct {
	ID              int64          `json:"id"`
	OwnerID         int64          `json:"owner_id"`
	Content         string         `json:"content"`
	MemoryType      string         `json:"memory_type"`
	Category        string         `json:"category,omitempty"`
	Source          string         `json:"source,omitempty"`
	ImportanceScore float64        `json:"importance_score"`
	ConfidenceScore float64        `json:"confidence_score"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	VectorPosition  *int           `json:"vector_position,omitempty"`
	IndexGeneration *string        `json:"index_generation,omitempty"`
	AccessCount     int            `json:"access_count"`
	LastAccessedAt  *time.Time     `json:"last_accessed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

const memoryColumns = `id, owner_id, content, memory_type, category, source,
	importance_score, confidence_score, metadata, vector_position,
	index_generation, access_count, last_accessed_at, created_at, updated_at`

// InsertMemory writes a memory record and returns its id. When the record
// carries a vector position, the index add has already happened: a failure
// here leaves an orphan vector behind, which the caller logs and accepts.
func (s *Store) InsertMemory(ctx context.Context, rec *MemoryRecord) (int64, error) {
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal memory metadata: %w", err)
	}

	var id int64
	err = s.db.QueryRow(ctx, `
		INSERT INTO usermemory
			(owner_id, content, memory_type, category, source,
			 importance_score, confidence_score, metadata,
			 vector_position, index_generation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		rec.OwnerID, rec.Content, rec.MemoryType, rec.Category, rec.Source,
		rec.ImportanceScore, rec.ConfidenceScore, metadataJSON,
		rec.VectorPosition, rec.IndexGeneration,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert memory: %w", err)
	}
	rec.ID = id
	return id, nil
}

// MemoriesByVectorPositions resolves index hits back to records. Only
// records linked to the given index generation are returned; the result
// preserves the caller's position ordering.
func (s *Store) MemoriesByVectorPositions(ctx context.Context, generation string, positions []int) ([]MemoryRecord, error) {
	if len(positions) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+memoryColumns+`
		FROM usermemory
		WHERE index_generation = $1 AND vector_position = ANY($2)`,
		generation, positions)
	if err != nil {
		return nil, fmt.Errorf("memories by positions: %w", err)
	}
	defer rows.Close()

	byPos := make(map[int]MemoryRecord, len(positions))
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		if rec.VectorPosition != nil {
			byPos[*rec.VectorPosition] = rec
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memories by positions: %w", err)
	}

	out := make([]MemoryRecord, 0, len(positions))
	for _, pos := range positions {
		if rec, ok := byPos[pos]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SearchMemoriesKeyword performs a case-insensitive substring match over
// memory content, newest first as the deterministic tiebreak.
func (s *Store) SearchMemoriesKeyword(ctx context.Context, ownerID int64, query, memoryType string, limit int) ([]MemoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	sql := `
		SELECT ` + memoryColumns + `
		FROM usermemory
		WHERE owner_id = $1 AND content ILIKE '%' || $2 || '%'`
	args := []any{ownerID, query}
	if memoryType != "" {
		sql += ` AND memory_type = $3`
		args = append(args, memoryType)
	}
	sql += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search memories: %w", err)
	}
	defer rows.Close()

	var out []MemoryRecord
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListMemories returns a user's memories, newest first.
func (s *Store) ListMemories(ctx context.Context, ownerID int64, memoryType string, limit int) ([]MemoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	sql := `SELECT ` + memoryColumns + ` FROM usermemory WHERE owner_id = $1`
	args := []any{ownerID}
	if memoryType != "" {
		sql += ` AND memory_type = $2`
		args = append(args, memoryType)
	}
	sql += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []MemoryRecord
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestPreferences returns the content of the newest preferences memory, or
// "" when none exists.
func (s *Store) LatestPreferences(ctx context.Context, ownerID int64) (string, error) {
	var content string
	err := s.db.QueryRow(ctx, `
		SELECT content FROM usermemory
		WHERE owner_id = $1 AND memory_type = 'preferences'
		ORDER BY created_at DESC LIMIT 1`,
		ownerID,
	).Scan(&content)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("latest preferences: %w", err)
	}
	return content, nil
}

// TouchMemoryAccess bumps access tracking for the given records.
func (s *Store) TouchMemoryAccess(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		UPDATE usermemory
		SET access_count = access_count + 1, last_accessed_at = now(), updated_at = now()
		WHERE id = ANY($1)`,
		ids)
	if err != nil {
		return fmt.Errorf("touch memory access: %w", err)
	}
	return nil
}

// DeleteMemory removes a record. This is an administrative operation, not
// part of the search/store contract: the linked vector stays in the index as
// an orphan because the index has no delete primitive.
func (s *Store) DeleteMemory(ctx context.Context, ownerID, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM usermemory WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (MemoryRecord, error) {
	var rec MemoryRecord
	var metadataJSON []byte
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.Content, &rec.MemoryType, &rec.Category,
		&rec.Source, &rec.ImportanceScore, &rec.ConfidenceScore, &metadataJSON,
		&rec.VectorPosition, &rec.IndexGeneration, &rec.AccessCount,
		&rec.LastAccessedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return rec, fmt.Errorf("scan memory: %w", err)
	}
	if len(metadataJSON) > 0 {
		json.Unmarshal(metadataJSON, &rec.Metadata)
	}
	return rec, nil
}
