package memory

import (
	"context"
	"time"

	"github.com/pathlight/pathlight/internal/store"
)

// Degradation reasons reported by typed results. The policy is that nothing
// in this subsystem aborts a caller's request: internal failures surface as
// a named reason next to a still-usable (possibly empty) result.
const (
	ReasonEmptyContent         = "empty_content"
	ReasonEmbeddingUnavailable = "embedding_unavailable"
	ReasonIndexUnavailable     = "index_unavailable"
	ReasonRecordStoreError     = "record_store_error"
	ReasonDomainReadError      = "domain_read_error"
	ReasonPersistError         = "persist_error"
)

// RecordStore is the relational side of the memory system, implemented by
// *store.Store.
type RecordStore interface {
	InsertMemory(ctx context.Context, rec *store.MemoryRecord) (int64, error)
	MemoriesByVectorPositions(ctx context.Context, generation string, positions []int) ([]store.MemoryRecord, error)
	SearchMemoriesKeyword(ctx context.Context, ownerID int64, query, memoryType string, limit int) ([]store.MemoryRecord, error)
	ListMemories(ctx context.Context, ownerID int64, memoryType string, limit int) ([]store.MemoryRecord, error)
	LatestPreferences(ctx context.Context, ownerID int64) (string, error)
	TouchMemoryAccess(ctx context.Context, ids []int64) error
	DeleteMemory(ctx context.Context, ownerID, id int64) (bool, error)
}

// DomainReader exposes the narrow domain-table reads used by keyword
// fallback and context assembly, implemented by *store.Store.
type DomainReader interface {
	SearchGoals(ctx context.Context, ownerID int64, query string, limit int) ([]store.Goal, error)
	SearchSkills(ctx context.Context, ownerID int64, query string, limit int) ([]store.Skill, error)
	SearchHabits(ctx context.Context, ownerID int64, query string, limit int) ([]store.Habit, error)
	SearchExpenses(ctx context.Context, ownerID int64, query string, limit int) ([]store.Expense, error)
	ActiveGoals(ctx context.Context, ownerID int64, limit int) ([]store.Goal, error)
	ActiveHabits(ctx context.Context, ownerID int64, limit int) ([]store.Habit, error)
	MonthSpendByCategory(ctx context.Context, ownerID int64) ([]store.CategorySpend, error)
}

// StoreResult is the typed outcome of a memory write.
type StoreResult struct {
	MemoryID int64  `json:"memory_id,omitempty"`
	Stored   bool   `json:"stored"`
	Indexed  bool   `json:"indexed"`
	Reason   string `json:"reason,omitempty"`
}

// SearchResult is one ranked hit from hybrid search.
type SearchResult struct {
	MemoryID   int64          `json:"memory_id,omitempty"`
	Content    string         `json:"content"`
	Score      float32        `json:"score"`
	MemoryType string         `json:"memory_type"`
	Source     string         `json:"source"` // semantic, keyword:memory, keyword:goal, ...
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// SearchOutcome is the typed result of SearchMemories: the ranked hits plus
// which retrieval paths contributed and why any path degraded.
type SearchOutcome struct {
	Results      []SearchResult `json:"results"`
	SemanticUsed bool           `json:"semantic_used"`
	KeywordUsed  bool           `json:"keyword_used"`
	Degraded     []string       `json:"degraded,omitempty"`
}

// CareerContext is the career section of a context bundle.
type CareerContext struct {
	ActiveGoals []string `json:"active_goals"`
	Skills      []string `json:"skills"`
}

// FinanceContext is the finance section of a context bundle.
type FinanceContext struct {
	MonthSpend map[string]float64 `json:"month_spend_by_category"`
}

// ContextBundle is the per-domain context handed to prompt construction.
// Every section degrades independently: a failed sub-fetch leaves its
// section empty and adds a reason to Degraded, it never aborts the bundle.
type ContextBundle struct {
	OwnerID        int64           `json:"owner_id"`
	ContextType    string          `json:"context_type"`
	GeneratedAt    time.Time       `json:"generated_at"`
	Preferences    map[string]any  `json:"preferences,omitempty"`
	Career         *CareerContext  `json:"career,omitempty"`
	Habits         []string        `json:"habits,omitempty"`
	Finance        *FinanceContext `json:"finance,omitempty"`
	RecentMemories []SearchResult  `json:"recent_memories"`
	Degraded       []string        `json:"degraded,omitempty"`
}

// Status reports readiness of the memory subsystem.
type Status struct {
	EmbeddingReady bool   `json:"embedding_ready"`
	IndexReady     bool   `json:"index_ready"`
	IndexPath      string `json:"index_path"`
	IndexSize      int    `json:"index_size"`
	Generation     string `json:"generation,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
}
