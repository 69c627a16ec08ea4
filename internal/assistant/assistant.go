// Package assistant turns memory context bundles into personalized advice.
// The completion model is optional: without one, or when it fails, replies
// fall back to canned guidance instead of erroring out.
package assistant

import (
	"context"
	"strings"

	"github.com/pathlight/pathlight/internal/llm"
	"github.com/pathlight/pathlight/internal/memory"
	"github.com/pathlight/pathlight/internal/store"
	"go.uber.org/zap"
)

// ContextSource supplies the per-user context bundle, implemented by
// *memory.Service.
type ContextSource interface {
	GetUserContext(ctx context.Context, ownerID int64, contextType string, maxMemories int) memory.ContextBundle
}

// ConversationStore persists exchanges, implemented by *store.Store.
type ConversationStore interface {
	FindOrCreateConversation(ctx context.Context, ownerID int64, sessionID, conversationType string) (int64, error)
	AppendConversationMessage(ctx context.Context, conversationID int64, msg store.ConversationMessage) error
}

// Reply is the assistant's answer plus provenance.
type Reply struct {
	Message     string   `json:"message"`
	Source      string   `json:"source"` // model name or "canned"
	ContextType string   `json:"context_type"`
	Degraded    []string `json:"degraded,omitempty"`
}

// Assistant produces advice replies. Any collaborator except the context
// source may be nil.
type Assistant struct {
	memory ContextSource
	client llm.Client
	convos ConversationStore
	logger *zap.Logger
}

// New wires the assistant.
func New(memory ContextSource, client llm.Client, convos ConversationStore, logger *zap.Logger) *Assistant {
	return &Assistant{memory: memory, client: client, convos: convos, logger: logger}
}

// CareerAdvice answers a career question against the user's goals, skills
// and recent memories.
func (a *Assistant) CareerAdvice(ctx context.Context, ownerID int64, sessionID, question string) Reply {
	return a.respond(ctx, ownerID, sessionID, "career", careerSystem, question, cannedCareer)
}

// FinanceTips answers a finance question against the user's spending.
func (a *Assistant) FinanceTips(ctx context.Context, ownerID int64, sessionID, question string) Reply {
	return a.respond(ctx, ownerID, sessionID, "finance", financeSystem, question, cannedFinance)
}

// MotivationNudge produces a short encouragement grounded in active habits.
func (a *Assistant) MotivationNudge(ctx context.Context, ownerID int64, sessionID, question string) Reply {
	return a.respond(ctx, ownerID, sessionID, "habits", motivationSystem, question, cannedMotivation)
}

func (a *Assistant) respond(ctx context.Context, ownerID int64, sessionID, contextType, system, question string, canned []string) Reply {
	bundle := a.memory.GetUserContext(ctx, ownerID, contextType, 5)

	reply := Reply{ContextType: contextType, Degraded: bundle.Degraded}

	question = strings.TrimSpace(question)
	if question == "" {
		question = defaultQuestions[contextType]
	}
	prompt := FormatContext(bundle) + "\n\nUser question: " + question

	if a.client == nil {
		reply.Message = pick(canned, ownerID)
		reply.Source = "canned"
	} else {
		answer, err := a.client.Complete(ctx, system, prompt)
		if err != nil {
			a.logger.Warn("completion failed, using canned reply",
				zap.String("context_type", contextType), zap.Error(err))
			reply.Message = pick(canned, ownerID)
			reply.Source = "canned"
			reply.Degraded = append(reply.Degraded, "llm:unavailable")
		} else {
			reply.Message = answer
			reply.Source = a.client.Model()
		}
	}

	a.persist(ctx, ownerID, sessionID, contextType, question, reply)
	return reply
}

// persist records the exchange. Best effort: conversation history is a
// convenience, never a reason to fail the reply.
func (a *Assistant) persist(ctx context.Context, ownerID int64, sessionID, contextType, question string, reply Reply) {
	if a.convos == nil || sessionID == "" {
		return
	}
	convID, err := a.convos.FindOrCreateConversation(ctx, ownerID, sessionID, contextType)
	if err != nil {
		a.logger.Warn("conversation lookup failed", zap.Error(err))
		return
	}
	if err := a.convos.AppendConversationMessage(ctx, convID, store.ConversationMessage{
		Role: "user", Content: question,
	}); err != nil {
		a.logger.Warn("persist user message failed", zap.Error(err))
		return
	}
	if err := a.convos.AppendConversationMessage(ctx, convID, store.ConversationMessage{
		Role: "assistant", Content: reply.Message,
		Metadata: map[string]any{"source": reply.Source},
	}); err != nil {
		a.logger.Warn("persist assistant message failed", zap.Error(err))
	}
}

func pick(canned []string, ownerID int64) string {
	if len(canned) == 0 {
		return ""
	}
	return canned[int(ownerID)%len(canned)]
}

var defaultQuestions = map[string]string{
	"career":  "What should I focus on next in my career?",
	"finance": "How is my spending this month and what should I adjust?",
	"habits":  "Give me a short motivational check-in on my habits.",
}

var cannedCareer = []string{
	"Pick the one active goal with the nearest deadline and block two focused hours on it this week.",
	"Review your skill targets: choose the single skill with the biggest gap and schedule deliberate practice.",
	"Progress compounds. Break your top goal into a step you can finish today and start there.",
}

var cannedFinance = []string{
	"Check your largest spending category this month and set a soft cap for the next two weeks.",
	"Log expenses as they happen. Awareness alone usually trims spending by a noticeable margin.",
	"Compare this month's category totals to your typical month and cut the one outlier.",
}

var cannedMotivation = []string{
	"Streaks are built one unremarkable day at a time. Do the small version of the habit today.",
	"Missing once is an accident, missing twice is a pattern. Keep the chain alive.",
	"You don't need motivation to start, you need a start to get motivated. Two minutes, go.",
}
