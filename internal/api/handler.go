// Package api exposes the REST surface: memory operations, context bundles,
// assistant advice and the domain CRUD endpoints that seed memories.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pathlight/pathlight/internal/assistant"
	"github.com/pathlight/pathlight/internal/memory"
	"github.com/pathlight/pathlight/internal/store"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	mem    *memory.Service
	asst   *assistant.Assistant
	db     *store.Store
	logger *zap.Logger
}

// NewHandler creates a new API handler. db may be nil, in which case the
// domain endpoints answer 503 while memory endpoints keep degrading softly.
func NewHandler(mem *memory.Service, asst *assistant.Assistant, db *store.Store, logger *zap.Logger) *Handler {
	return &Handler{mem: mem, asst: asst, db: db, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Route("/memory", func(r chi.Router) {
			r.Post("/store", h.storeMemory)
			r.Post("/search", h.searchMemories)
			r.Get("/context/{contextType}", h.getUserContext)
			r.Put("/preferences", h.updatePreferences)
			r.Get("/list", h.listMemories)
			r.Get("/status", h.memoryStatus)
			r.Delete("/{id}", h.deleteMemory)
		})

		r.Route("/assistant", func(r chi.Router) {
			r.Post("/career-advice", h.careerAdvice)
			r.Post("/finance-tips", h.financeTips)
			r.Post("/motivation", h.motivation)
		})

		r.Post("/goals", h.createGoal)
		r.Get("/goals", h.listGoals)
		r.Post("/skills", h.createSkill)
		r.Get("/skills", h.listSkills)
		r.Post("/habits", h.createHabit)
		r.Get("/habits", h.listHabits)
		r.Post("/expenses", h.createExpense)
		r.Get("/expenses/summary", h.expenseSummary)
		r.Post("/journal", h.createJournalEntry)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "pathlight"})
}

type storeMemoryRequest struct {
	UserID     int64          `json:"user_id"`
	Content    string         `json:"content"`
	MemoryType string         `json:"memory_type"`
	Metadata   map[string]any `json:"metadata"`
}

func (h *Handler) storeMemory(w http.ResponseWriter, r *http.Request) {
	var req storeMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.UserID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	result := h.mem.StoreMemory(r.Context(), req.UserID, req.Content, req.MemoryType, req.Metadata)
	if !result.Stored {
		switch result.Reason {
		case memory.ReasonEmptyContent:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		default:
			writeJSON(w, http.StatusServiceUnavailable, result)
		}
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type searchRequest struct {
	UserID     int64  `json:"user_id"`
	Query      string `json:"query"`
	MemoryType string `json:"memory_type"`
	TopK       int    `json:"top_k"`
}

func (h *Handler) searchMemories(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.UserID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	outcome := h.mem.SearchMemories(r.Context(), req.UserID, req.Query, req.MemoryType, req.TopK)
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) getUserContext(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUserID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	contextType := chi.URLParam(r, "contextType")
	maxMemories, _ := strconv.Atoi(r.URL.Query().Get("max_memories"))

	bundle := h.mem.GetUserContext(r.Context(), userID, contextType, maxMemories)
	writeJSON(w, http.StatusOK, bundle)
}

type preferencesRequest struct {
	UserID      int64          `json:"user_id"`
	Preferences map[string]any `json:"preferences"`
}

func (h *Handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.UserID == 0 || len(req.Preferences) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and preferences are required"})
		return
	}

	result := h.mem.UpdateUserPreferences(r.Context(), req.UserID, req.Preferences)
	if !result.Stored {
		writeJSON(w, http.StatusServiceUnavailable, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listMemories(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUserID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	memories, err := h.mem.ListMemories(r.Context(), userID, r.URL.Query().Get("memory_type"), limit)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	if memories == nil {
		memories = []store.MemoryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": memories, "count": len(memories)})
}

func (h *Handler) memoryStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mem.Status())
}

// deleteMemory removes one record. Any linked vector stays in the index as
// an orphan; it can no longer resolve to a record, so it never surfaces.
func (h *Handler) deleteMemory(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUserID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "memory id is required"})
		return
	}

	deleted, err := h.mem.DeleteMemory(r.Context(), userID, id)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "memory not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type assistantRequest struct {
	UserID    int64  `json:"user_id"`
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

func (h *Handler) careerAdvice(w http.ResponseWriter, r *http.Request) {
	h.assistantReply(w, r, h.asst.CareerAdvice)
}

func (h *Handler) financeTips(w http.ResponseWriter, r *http.Request) {
	h.assistantReply(w, r, h.asst.FinanceTips)
}

func (h *Handler) motivation(w http.ResponseWriter, r *http.Request) {
	h.assistantReply(w, r, h.asst.MotivationNudge)
}

func (h *Handler) assistantReply(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, ownerID int64, sessionID, question string) assistant.Reply) {
	var req assistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.UserID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	writeJSON(w, http.StatusOK, fn(r.Context(), req.UserID, req.SessionID, req.Question))
}

func (h *Handler) createGoal(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
		return
	}
	var g store.Goal
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if g.OwnerID == 0 || g.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "owner_id and title are required"})
		return
	}
	if _, err := h.db.CreateGoal(r.Context(), &g); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.seedMemory(r, g.OwnerID, "Set career goal: "+g.Title, "career", "goal_created")
	writeJSON(w, http.StatusCreated, g)
}

func (h *Handler) listGoals(w http.ResponseWriter, r *http.Request) {
	h.listDomain(w, r, func(ctx context.Context, userID int64, limit int) (any, error) {
		return h.db.ActiveGoals(ctx, userID, limit)
	})
}

func (h *Handler) createSkill(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
		return
	}
	var sk store.Skill
	if err := json.NewDecoder(r.Body).Decode(&sk); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if sk.OwnerID == 0 || sk.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "owner_id and name are required"})
		return
	}
	if _, err := h.db.CreateSkill(r.Context(), &sk); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.seedMemory(r, sk.OwnerID, "Started tracking skill: "+sk.Name, "career", "skill_created")
	writeJSON(w, http.StatusCreated, sk)
}

func (h *Handler) listSkills(w http.ResponseWriter, r *http.Request) {
	h.listDomain(w, r, func(ctx context.Context, userID int64, limit int) (any, error) {
		return h.db.Skills(ctx, userID, limit)
	})
}

func (h *Handler) createHabit(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
		return
	}
	var hb store.Habit
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if hb.OwnerID == 0 || hb.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "owner_id and name are required"})
		return
	}
	if _, err := h.db.CreateHabit(r.Context(), &hb); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.seedMemory(r, hb.OwnerID, "Started habit: "+hb.Name, "habits", "habit_created")
	writeJSON(w, http.StatusCreated, hb)
}

func (h *Handler) listHabits(w http.ResponseWriter, r *http.Request) {
	h.listDomain(w, r, func(ctx context.Context, userID int64, limit int) (any, error) {
		return h.db.ActiveHabits(ctx, userID, limit)
	})
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
		return
	}
	var e store.Expense
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if e.OwnerID == 0 || e.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "owner_id and a positive amount are required"})
		return
	}
	if _, err := h.db.CreateExpense(r.Context(), &e); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.seedMemory(r, e.OwnerID,
		fmt.Sprintf("Spent %.2f on %s: %s", e.Amount, e.Category, e.Description),
		"finance", "expense_logged")
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) expenseSummary(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
		return
	}
	userID, err := queryUserID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	spend, err := h.db.MonthSpendByCategory(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": spend})
}

type journalRequest struct {
	UserID  int64  `json:"user_id"`
	Content string `json:"content"`
}

// createJournalEntry is a thin alias for storing a general memory; journal
// text is the primary organic feed for the semantic index.
func (h *Handler) createJournalEntry(w http.ResponseWriter, r *http.Request) {
	var req journalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.UserID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	result := h.mem.StoreMemory(r.Context(), req.UserID, req.Content, "journal",
		map[string]any{"source": "journal"})
	if !result.Stored {
		if result.Reason == memory.ReasonEmptyContent {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		} else {
			writeJSON(w, http.StatusServiceUnavailable, result)
		}
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) listDomain(w http.ResponseWriter, r *http.Request,
	fetch func(ctx context.Context, userID int64, limit int) (any, error)) {
	if h.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
		return
	}
	userID, err := queryUserID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := fetch(r.Context(), userID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// seedMemory opportunistically records a domain event as a searchable
// memory. Failures are logged only; the domain write already succeeded.
func (h *Handler) seedMemory(r *http.Request, ownerID int64, content, memoryType, source string) {
	result := h.mem.StoreMemory(r.Context(), ownerID, content, memoryType,
		map[string]any{"source": source})
	if !result.Stored {
		h.logger.Warn("memory seed skipped",
			zap.String("source", source), zap.String("reason", result.Reason))
	}
}

func queryUserID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("user_id query parameter is required")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
