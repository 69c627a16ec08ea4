package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pathlight/pathlight/internal/memory"
	"github.com/pathlight/pathlight/internal/store"
	"go.uber.org/zap"
)

type fakeContext struct{ bundle memory.ContextBundle }

func (f *fakeContext) GetUserContext(_ context.Context, ownerID int64, contextType string, _ int) memory.ContextBundle {
	b := f.bundle
	b.OwnerID = ownerID
	b.ContextType = contextType
	return b
}

type fakeClient struct {
	reply      string
	err        error
	lastPrompt string
	lastSystem string
}

func (f *fakeClient) Complete(_ context.Context, system, prompt string) (string, error) {
	f.lastSystem = system
	f.lastPrompt = prompt
	return f.reply, f.err
}
func (f *fakeClient) Model() string { return "fake-model" }

type fakeConvos struct {
	created  int
	messages []store.ConversationMessage
	fail     bool
}

func (f *fakeConvos) FindOrCreateConversation(context.Context, int64, string, string) (int64, error) {
	if f.fail {
		return 0, errors.New("db down")
	}
	f.created++
	return 1, nil
}

func (f *fakeConvos) AppendConversationMessage(_ context.Context, _ int64, msg store.ConversationMessage) error {
	f.messages = append(f.messages, msg)
	return nil
}

func careerBundle() memory.ContextBundle {
	return memory.ContextBundle{
		Career: &memory.CareerContext{
			ActiveGoals: []string{"become staff engineer (high, 40%)"},
			Skills:      []string{"system design (intermediate → advanced)"},
		},
		RecentMemories: []memory.SearchResult{{Content: "got positive feedback on design review"}},
	}
}

func TestCareerAdviceUsesContext(t *testing.T) {
	client := &fakeClient{reply: "lead the next design review"}
	convos := &fakeConvos{}
	a := New(&fakeContext{bundle: careerBundle()}, client, convos, zap.NewNop())

	reply := a.CareerAdvice(context.Background(), 1, "sess-1", "how do I grow?")
	if reply.Message != "lead the next design review" || reply.Source != "fake-model" {
		t.Fatalf("reply = %+v", reply)
	}
	if !strings.Contains(client.lastPrompt, "become staff engineer") {
		t.Fatalf("prompt missing goal context:\n%s", client.lastPrompt)
	}
	if !strings.Contains(client.lastPrompt, "how do I grow?") {
		t.Fatal("prompt missing user question")
	}
	if client.lastSystem != careerSystem {
		t.Fatalf("system prompt = %q", client.lastSystem)
	}
	if convos.created != 1 || len(convos.messages) != 2 {
		t.Fatalf("conversation not persisted: %d created, %d messages", convos.created, len(convos.messages))
	}
	if convos.messages[0].Role != "user" || convos.messages[1].Role != "assistant" {
		t.Fatalf("message roles = %+v", convos.messages)
	}
}

func TestNilClientFallsBackToCanned(t *testing.T) {
	a := New(&fakeContext{}, nil, nil, zap.NewNop())
	reply := a.MotivationNudge(context.Background(), 3, "", "")
	if reply.Source != "canned" || reply.Message == "" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestClientErrorFallsBackToCanned(t *testing.T) {
	client := &fakeClient{err: errors.New("timeout")}
	a := New(&fakeContext{}, client, nil, zap.NewNop())

	reply := a.FinanceTips(context.Background(), 2, "", "am I overspending?")
	if reply.Source != "canned" || reply.Message == "" {
		t.Fatalf("reply = %+v", reply)
	}
	found := false
	for _, d := range reply.Degraded {
		if d == "llm:unavailable" {
			found = true
		}
	}
	if !found {
		t.Fatalf("degraded = %v", reply.Degraded)
	}
}

func TestConversationFailureDoesNotAffectReply(t *testing.T) {
	client := &fakeClient{reply: "ok"}
	a := New(&fakeContext{}, client, &fakeConvos{fail: true}, zap.NewNop())
	reply := a.CareerAdvice(context.Background(), 1, "sess-1", "q")
	if reply.Message != "ok" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestFormatContextOmitsEmptySections(t *testing.T) {
	out := FormatContext(memory.ContextBundle{})
	if strings.Contains(out, "Preferences") || strings.Contains(out, "Spending") {
		t.Fatalf("empty bundle rendered sections:\n%s", out)
	}

	full := FormatContext(memory.ContextBundle{
		Preferences: map[string]any{"tone": "direct"},
		Habits:      []string{"morning run (daily, streak 12)"},
		Finance:     &memory.FinanceContext{MonthSpend: map[string]float64{"food": 120.5}},
	})
	for _, want := range []string{"tone: direct", "morning run", "food: 120.50"} {
		if !strings.Contains(full, want) {
			t.Fatalf("rendered context missing %q:\n%s", want, full)
		}
	}
}
