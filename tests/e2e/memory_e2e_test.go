//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pathlight/pathlight/internal/api"
	"github.com/pathlight/pathlight/internal/assistant"
	"github.com/pathlight/pathlight/internal/memory"
	"github.com/pathlight/pathlight/internal/store"
	"github.com/pathlight/pathlight/internal/vecindex"
	"go.uber.org/zap"
)

var (
	testLogger *zap.Logger
	testStore  *store.Store
	testRedis  string
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	dsn, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}

	testStore, err = store.New(dsn, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store: %v\n", err)
		pgCleanup()
		os.Exit(1)
	}
	if err := testStore.Migrate(ctx, "../../migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		pgCleanup()
		os.Exit(1)
	}

	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		pgCleanup()
		os.Exit(1)
	}
	testRedis = redisURL

	code := m.Run()
	testStore.Close()
	pgCleanup()
	redisCleanup()
	os.Exit(code)
}

func newService(t *testing.T, notifier *memory.Notifier) (*memory.Service, *vecindex.Index) {
	t.Helper()
	idx, err := vecindex.Open(filepath.Join(t.TempDir(), "memory.idx"), "hash-e2e", 8, testLogger)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	svc := memory.NewService(&hashEmbedder{dim: 8}, idx, testStore, testStore, notifier,
		memory.Options{}, testLogger)
	return svc, idx
}

func TestStoreSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)

	const ownerID = 101
	res := svc.StoreMemory(ctx, ownerID, "shipped the payment service migration", "career", nil)
	if !res.Stored || !res.Indexed {
		t.Fatalf("store result = %+v", res)
	}

	outcome := svc.SearchMemories(ctx, ownerID, "shipped the payment service migration", "", 5)
	if !outcome.SemanticUsed || len(outcome.Results) == 0 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Results[0].MemoryID != res.MemoryID {
		t.Fatalf("top hit = %+v, want memory %d", outcome.Results[0], res.MemoryID)
	}

	// Access tracking should have touched the returned record.
	memories, err := testStore.ListMemories(ctx, ownerID, "", 10)
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	if len(memories) != 1 || memories[0].AccessCount == 0 {
		t.Fatalf("memories = %+v", memories)
	}
}

func TestKeywordFallbackAcrossDomainTables(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)

	const ownerID = 102
	if _, err := testStore.CreateGoal(ctx, &store.Goal{
		OwnerID: ownerID, Title: "learn Kubernetes operators",
	}); err != nil {
		t.Fatalf("create goal: %v", err)
	}

	// A query that was never embedded only surfaces through keyword search.
	outcome := svc.SearchMemories(ctx, ownerID, "Kubernetes", "career", 5)
	if len(outcome.Results) == 0 {
		t.Fatalf("no results, degraded=%v", outcome.Degraded)
	}
	found := false
	for _, r := range outcome.Results {
		if r.Source == "keyword:goal" {
			found = true
		}
	}
	if !found {
		t.Fatalf("goal not surfaced: %+v", outcome.Results)
	}
}

func TestReaderReloadsViaNotifier(t *testing.T) {
	ctx := context.Background()

	notifier, err := memory.NewNotifier(ctx, testRedis, testLogger)
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	defer notifier.Close()

	writer, writerIdx := newService(t, notifier)

	// Reader process sharing the same snapshot file.
	readerIdx, err := vecindex.Open(writerIdx.Path(), "hash-e2e", 8, testLogger)
	if err != nil {
		t.Fatalf("open reader index: %v", err)
	}
	readerNotifier, err := memory.NewNotifier(ctx, testRedis, testLogger)
	if err != nil {
		t.Fatalf("reader notifier: %v", err)
	}
	defer readerNotifier.Close()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go readerNotifier.Watch(watchCtx, readerIdx, time.Minute)
	time.Sleep(200 * time.Millisecond) // let the subscription settle

	res := writer.StoreMemory(ctx, 103, "notifier propagation check", "general", nil)
	if !res.Indexed {
		t.Fatalf("store result = %+v", res)
	}

	deadline := time.Now().Add(5 * time.Second)
	for readerIdx.Size() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if readerIdx.Size() != writerIdx.Size() {
		t.Fatalf("reader size = %d, writer size = %d", readerIdx.Size(), writerIdx.Size())
	}
}

func TestHTTPSurface(t *testing.T) {
	svc, _ := newService(t, nil)
	asst := assistant.New(svc, nil, testStore, testLogger)
	srv := httptest.NewServer(api.NewHandler(svc, asst, testStore, testLogger).Router())
	defer srv.Close()

	post := func(path string, body any) *http.Response {
		t.Helper()
		payload, _ := json.Marshal(body)
		resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(payload))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		return resp
	}

	const ownerID = 104

	resp := post("/api/journal", map[string]any{"user_id": ownerID, "content": "ran 5k before work"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("journal: status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = post("/api/habits", map[string]any{"owner_id": ownerID, "name": "morning run"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("habits: status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = post("/api/memory/search", map[string]any{"user_id": ownerID, "query": "ran 5k before work"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search: status = %d", resp.StatusCode)
	}
	var outcome memory.SearchOutcome
	json.NewDecoder(resp.Body).Decode(&outcome)
	resp.Body.Close()
	if len(outcome.Results) == 0 {
		t.Fatalf("search outcome = %+v", outcome)
	}

	resp = post("/api/assistant/motivation", map[string]any{"user_id": ownerID, "session_id": "e2e", "question": ""})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("motivation: status = %d", resp.StatusCode)
	}
	var reply assistant.Reply
	json.NewDecoder(resp.Body).Decode(&reply)
	resp.Body.Close()
	if reply.Message == "" {
		t.Fatalf("reply = %+v", reply)
	}

	// The conversation should have been persisted.
	convID, err := testStore.FindOrCreateConversation(context.Background(), ownerID, "e2e", "habits")
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	msgs, err := testStore.ConversationMessages(context.Background(), convID, 10)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) < 2 {
		t.Fatalf("messages = %+v", msgs)
	}
}
