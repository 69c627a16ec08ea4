package store

import (
	"context"
	"fmt"
	"time"
)

// Domain tables are owned by the CRUD routers upstream; the memory core only
// needs narrow read paths for keyword fallback and context assembly, plus
// the create paths backing the seed endpoints.

// Goal is a career goal row.
type Goal struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	Progress    float64    `json:"progress_percentage"`
	TargetDate  *time.Time `json:"target_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Skill is a tracked skill row.
type Skill struct {
	ID           int64     `json:"id"`
	OwnerID      int64     `json:"owner_id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	CurrentLevel string    `json:"current_level"`
	TargetLevel  string    `json:"target_level"`
	CreatedAt    time.Time `json:"created_at"`
}

// Habit is a tracked habit row.
type Habit struct {
	ID            int64     `json:"id"`
	OwnerID       int64     `json:"owner_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Category      string    `json:"category"`
	Frequency     string    `json:"frequency"`
	CurrentStreak int       `json:"current_streak"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Expense is a logged expense row.
type Expense struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	SpentAt     time.Time `json:"spent_at"`
}

// CategorySpend is an aggregated expense total.
type CategorySpend struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// CreateGoal inserts a goal and returns its id.
func (s *Store) CreateGoal(ctx context.Context, g *Goal) (int64, error) {
	if g.Priority == "" {
		g.Priority = "medium"
	}
	if g.Status == "" {
		g.Status = "active"
	}
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO careergoal (owner_id, title, description, category, priority, status, target_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		g.OwnerID, g.Title, g.Description, g.Category, g.Priority, g.Status, g.TargetDate,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert goal: %w", err)
	}
	g.ID = id
	return id, nil
}

// CreateSkill inserts a skill and returns its id.
func (s *Store) CreateSkill(ctx context.Context, sk *Skill) (int64, error) {
	if sk.CurrentLevel == "" {
		sk.CurrentLevel = "beginner"
	}
	if sk.TargetLevel == "" {
		sk.TargetLevel = "intermediate"
	}
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO skill (owner_id, name, category, current_level, target_level)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		sk.OwnerID, sk.Name, sk.Category, sk.CurrentLevel, sk.TargetLevel,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert skill: %w", err)
	}
	sk.ID = id
	return id, nil
}

// CreateHabit inserts a habit and returns its id.
func (s *Store) CreateHabit(ctx context.Context, h *Habit) (int64, error) {
	if h.Frequency == "" {
		h.Frequency = "daily"
	}
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO habit (owner_id, name, description, category, frequency, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING id`,
		h.OwnerID, h.Name, h.Description, h.Category, h.Frequency,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert habit: %w", err)
	}
	h.ID = id
	return id, nil
}

// CreateExpense inserts an expense and returns its id.
func (s *Store) CreateExpense(ctx context.Context, e *Expense) (int64, error) {
	if e.SpentAt.IsZero() {
		e.SpentAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO expense (owner_id, amount, category, description, spent_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		e.OwnerID, e.Amount, e.Category, e.Description, e.SpentAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	e.ID = id
	return id, nil
}

// SearchGoals matches goal titles and descriptions by substring.
func (s *Store) SearchGoals(ctx context.Context, ownerID int64, query string, limit int) ([]Goal, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, title, description, category, priority, status, progress_percentage, target_date, created_at
		FROM careergoal
		WHERE owner_id = $1 AND (title ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		LIMIT $3`,
		ownerID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search goals: %w", err)
	}
	defer rows.Close()

	var out []Goal
	for rows.Next() {
		var g Goal
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Title, &g.Description, &g.Category,
			&g.Priority, &g.Status, &g.Progress, &g.TargetDate, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SearchSkills matches skill names by substring.
func (s *Store) SearchSkills(ctx context.Context, ownerID int64, query string, limit int) ([]Skill, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, name, category, current_level, target_level, created_at
		FROM skill
		WHERE owner_id = $1 AND name ILIKE '%' || $2 || '%'
		ORDER BY created_at DESC
		LIMIT $3`,
		ownerID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search skills: %w", err)
	}
	defer rows.Close()

	var out []Skill
	for rows.Next() {
		var sk Skill
		if err := rows.Scan(&sk.ID, &sk.OwnerID, &sk.Name, &sk.Category,
			&sk.CurrentLevel, &sk.TargetLevel, &sk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// SearchHabits matches habit names and descriptions by substring.
func (s *Store) SearchHabits(ctx context.Context, ownerID int64, query string, limit int) ([]Habit, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, name, description, category, frequency, current_streak, is_active, created_at
		FROM habit
		WHERE owner_id = $1 AND (name ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		LIMIT $3`,
		ownerID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search habits: %w", err)
	}
	defer rows.Close()

	var out []Habit
	for rows.Next() {
		var h Habit
		if err := rows.Scan(&h.ID, &h.OwnerID, &h.Name, &h.Description, &h.Category,
			&h.Frequency, &h.CurrentStreak, &h.IsActive, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SearchExpenses matches expense descriptions and categories by substring.
func (s *Store) SearchExpenses(ctx context.Context, ownerID int64, query string, limit int) ([]Expense, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, amount, category, description, spent_at
		FROM expense
		WHERE owner_id = $1 AND (description ILIKE '%' || $2 || '%' OR category ILIKE '%' || $2 || '%')
		ORDER BY spent_at DESC
		LIMIT $3`,
		ownerID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search expenses: %w", err)
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Amount, &e.Category, &e.Description, &e.SpentAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ActiveGoals returns a user's active goals, highest priority first.
func (s *Store) ActiveGoals(ctx context.Context, ownerID int64, limit int) ([]Goal, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, title, description, category, priority, status, progress_percentage, target_date, created_at
		FROM careergoal
		WHERE owner_id = $1 AND status = 'active'
		ORDER BY CASE priority
			WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3
		END, created_at DESC
		LIMIT $2`,
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("active goals: %w", err)
	}
	defer rows.Close()

	var out []Goal
	for rows.Next() {
		var g Goal
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Title, &g.Description, &g.Category,
			&g.Priority, &g.Status, &g.Progress, &g.TargetDate, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Skills returns a user's skills, newest first.
func (s *Store) Skills(ctx context.Context, ownerID int64, limit int) ([]Skill, error) {
	return s.SearchSkills(ctx, ownerID, "", limit)
}

// ActiveHabits returns a user's active habits.
func (s *Store) ActiveHabits(ctx context.Context, ownerID int64, limit int) ([]Habit, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, name, description, category, frequency, current_streak, is_active, created_at
		FROM habit
		WHERE owner_id = $1 AND is_active
		ORDER BY current_streak DESC, created_at DESC
		LIMIT $2`,
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("active habits: %w", err)
	}
	defer rows.Close()

	var out []Habit
	for rows.Next() {
		var h Habit
		if err := rows.Scan(&h.ID, &h.OwnerID, &h.Name, &h.Description, &h.Category,
			&h.Frequency, &h.CurrentStreak, &h.IsActive, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// MonthSpendByCategory aggregates the current month's expenses per category.
func (s *Store) MonthSpendByCategory(ctx context.Context, ownerID int64) ([]CategorySpend, error) {
	rows, err := s.db.Query(ctx, `
		SELECT category, COALESCE(SUM(amount), 0)
		FROM expense
		WHERE owner_id = $1 AND spent_at >= date_trunc('month', now())
		GROUP BY category
		ORDER BY 2 DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("month spend: %w", err)
	}
	defer rows.Close()

	var out []CategorySpend
	for rows.Next() {
		var cs CategorySpend
		if err := rows.Scan(&cs.Category, &cs.Total); err != nil {
			return nil, fmt.Errorf("scan spend: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}
