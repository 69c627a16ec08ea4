package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// contextQueries seed the recent-memories search for each bundle type.
var contextQueries = map[string]string{
	"career":  "career goals skills learning progress",
	"habits":  "habits routine streak consistency",
	"finance": "budget spending savings expenses",
	"general": "preferences goals habits recent activity",
}

// GetUserContext assembles the per-domain bundle handed to prompt
// construction. Sections are fetched independently: a failing sub-fetch
// leaves its section empty and records a reason, so one bad table never
// costs the caller the whole bundle.
func (s *Service) GetUserContext(ctx context.Context, ownerID int64, contextType string, maxMemories int) ContextBundle {
	if contextType == "" {
		contextType = "general"
	}
	if maxMemories <= 0 {
		maxMemories = 5
	}

	bundle := ContextBundle{
		OwnerID:     ownerID,
		ContextType: contextType,
		GeneratedAt: time.Now().UTC(),
	}

	s.fillPreferences(ctx, ownerID, &bundle)

	switch contextType {
	case "career":
		s.fillCareer(ctx, ownerID, &bundle, 10)
	case "habits":
		s.fillHabits(ctx, ownerID, &bundle, 10)
	case "finance":
		s.fillFinance(ctx, ownerID, &bundle)
	default:
		s.fillCareer(ctx, ownerID, &bundle, 3)
		s.fillHabits(ctx, ownerID, &bundle, 3)
	}

	query, ok := contextQueries[contextType]
	if !ok {
		query = contextType
	}
	outcome := s.SearchMemories(ctx, ownerID, query, "", maxMemories)
	bundle.RecentMemories = outcome.Results
	for _, reason := range outcome.Degraded {
		bundle.Degraded = append(bundle.Degraded, "memories:"+reason)
	}

	return bundle
}

func (s *Service) fillPreferences(ctx context.Context, ownerID int64, bundle *ContextBundle) {
	if s.records == nil {
		bundle.Degraded = append(bundle.Degraded, "preferences:"+ReasonRecordStoreError)
		return
	}
	raw, err := s.records.LatestPreferences(ctx, ownerID)
	if err != nil {
		s.logger.Warn("load preferences failed", zap.Error(err))
		bundle.Degraded = append(bundle.Degraded, "preferences:"+ReasonRecordStoreError)
		return
	}
	if raw == "" {
		return
	}
	var prefs map[string]any
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		s.logger.Warn("parse preferences failed", zap.Error(err))
		bundle.Degraded = append(bundle.Degraded, "preferences:"+ReasonRecordStoreError)
		return
	}
	bundle.Preferences = prefs
}

func (s *Service) fillCareer(ctx context.Context, ownerID int64, bundle *ContextBundle, limit int) {
	if s.domain == nil {
		bundle.Degraded = append(bundle.Degraded, "career:"+ReasonDomainReadError)
		return
	}
	career := &CareerContext{}
	degraded := false

	goals, err := s.domain.ActiveGoals(ctx, ownerID, limit)
	if err != nil {
		s.logger.Warn("load active goals failed", zap.Error(err))
		degraded = true
	}
	for _, g := range goals {
		career.ActiveGoals = append(career.ActiveGoals,
			fmt.Sprintf("%s (%s, %.0f%%)", g.Title, g.Priority, g.Progress))
	}

	skills, err := s.domain.SearchSkills(ctx, ownerID, "", limit)
	if err != nil {
		s.logger.Warn("load skills failed", zap.Error(err))
		degraded = true
	}
	for _, sk := range skills {
		career.Skills = append(career.Skills,
			fmt.Sprintf("%s (%s → %s)", sk.Name, sk.CurrentLevel, sk.TargetLevel))
	}

	if degraded {
		bundle.Degraded = append(bundle.Degraded, "career:"+ReasonDomainReadError)
	}
	if len(career.ActiveGoals) > 0 || len(career.Skills) > 0 {
		bundle.Career = career
	}
}

func (s *Service) fillHabits(ctx context.Context, ownerID int64, bundle *ContextBundle, limit int) {
	if s.domain == nil {
		bundle.Degraded = append(bundle.Degraded, "habits:"+ReasonDomainReadError)
		return
	}
	habits, err := s.domain.ActiveHabits(ctx, ownerID, limit)
	if err != nil {
		s.logger.Warn("load active habits failed", zap.Error(err))
		bundle.Degraded = append(bundle.Degraded, "habits:"+ReasonDomainReadError)
		return
	}
	for _, h := range habits {
		bundle.Habits = append(bundle.Habits,
			fmt.Sprintf("%s (%s, streak %d)", h.Name, h.Frequency, h.CurrentStreak))
	}
}

func (s *Service) fillFinance(ctx context.Context, ownerID int64, bundle *ContextBundle) {
	if s.domain == nil {
		bundle.Degraded = append(bundle.Degraded, "finance:"+ReasonDomainReadError)
		return
	}
	spend, err := s.domain.MonthSpendByCategory(ctx, ownerID)
	if err != nil {
		s.logger.Warn("load month spend failed", zap.Error(err))
		bundle.Degraded = append(bundle.Degraded, "finance:"+ReasonDomainReadError)
		return
	}
	if len(spend) == 0 {
		return
	}
	finance := &FinanceContext{MonthSpend: make(map[string]float64, len(spend))}
	for _, cs := range spend {
		finance.MonthSpend[cs.Category] = cs.Total
	}
	bundle.Finance = finance
}
