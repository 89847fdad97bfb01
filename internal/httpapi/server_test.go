package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/pitwall/internal/config"
	"github.com/ent0n29/pitwall/internal/intent"
	"github.com/ent0n29/pitwall/internal/llm"
	"github.com/ent0n29/pitwall/internal/memory"
	"github.com/ent0n29/pitwall/internal/observability"
	"github.com/ent0n29/pitwall/internal/planner"
	"github.com/ent0n29/pitwall/internal/protocol"
	"github.com/ent0n29/pitwall/internal/scrape"
)

type fakeChampion struct{ calls atomic.Int32 }

func (f *fakeChampion) ExtractSeason(context.Context, string) scrape.Result {
	f.calls.Add(1)
	return scrape.Found("Max Verstappen", "2024")
}

type fakeNews struct{ lines []string }

func (f fakeNews) Latest(context.Context) []string { return f.lines }

type fakeStore struct{ err error }

func (f fakeStore) Ping(context.Context) error { return f.err }
func (f fakeStore) Kind() string               { return "fake" }

var harnessSeq atomic.Int64

type harness struct {
	ts       *httptest.Server
	store    *memory.InMemoryStore
	champion *fakeChampion
}

func newHarness(t *testing.T, news NewsReader, ready Store) *harness {
	t.Helper()
	metrics := observability.NewMetrics(fmt.Sprintf("test_httpapi_%s_%d", strings.ToLower(t.Name()), harnessSeq.Add(1)))
	store := memory.NewInMemoryStore()
	champion := &fakeChampion{}
	p, err := planner.New(intent.NewDefault(2025), champion, llm.NewMockResponder(), store, metrics, nil, planner.Config{})
	if err != nil {
		t.Fatalf("planner.New() error = %v", err)
	}
	if news == nil {
		news = fakeNews{}
	}
	srv := New(config.Config{}, p, news, ready, "mock", metrics, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &harness{ts: ts, store: store, champion: champion}
}

func postChat(t *testing.T, url string, body string) (*http.Response, map[string]any) {
	t.Helper()
	res, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer res.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res, out
}

func TestChatGenerated(t *testing.T) {
	h := newHarness(t, nil, nil)

	res, out := postChat(t, h.ts.URL+"/chat", `{"message":"Tell me about Monza","user":"u1"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	want := map[string]any{"response": "I heard you: Tell me about Monza", "source": "generated"}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}

	turns, err := h.store.ListRecent(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("stored turns = %d, want 1", len(turns))
	}
}

func TestChatScrapedChampion(t *testing.T) {
	h := newHarness(t, nil, nil)

	res, out := postChat(t, h.ts.URL+"/api/chat", `{"message":"Who is the current F1 champion?"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if out["source"] != "scraped" {
		t.Fatalf("source = %v, want scraped", out["source"])
	}
	if got, want := out["response"], planner.FormatChampion("2024", "Max Verstappen"); got != want {
		t.Fatalf("response = %v, want %q", got, want)
	}
	if h.champion.calls.Load() != 1 {
		t.Fatalf("champion calls = %d, want 1", h.champion.calls.Load())
	}

	turns, _ := h.store.ListRecent(context.Background(), planner.AnonymousUser, 10)
	if len(turns) != 1 {
		t.Fatalf("anonymous turns = %d, want 1", len(turns))
	}
}

func TestChatRejectsInvalidBody(t *testing.T) {
	h := newHarness(t, nil, nil)

	cases := map[string]string{
		"missing message": `{"user":"u1"}`,
		"blank message":   `{"message":"   "}`,
		"empty body":      ``,
		"malformed json":  `{"message":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			res, out := postChat(t, h.ts.URL+"/chat", body)
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
			}
			if out["code"] != "invalid_request" {
				t.Fatalf("code = %v, want invalid_request", out["code"])
			}
			if msg, _ := out["error"].(string); msg == "" {
				t.Fatalf("missing error message: %+v", out)
			}
		})
	}

	turns, _ := h.store.ListRecent(context.Background(), "u1", 10)
	if len(turns) != 0 {
		t.Fatalf("stored turns = %d, want 0", len(turns))
	}
}

func TestNewsEndpoints(t *testing.T) {
	lines := []string{"Headline one - https://example.com/1", "Headline two - https://example.com/2"}
	h := newHarness(t, fakeNews{lines: lines}, nil)

	for _, path := range []string{"/news", "/api/scrape"} {
		res, err := http.Get(h.ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		var out newsResponse
		err = json.NewDecoder(res.Body).Decode(&out)
		res.Body.Close()
		if err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		if diff := cmp.Diff(lines, out.News); diff != "" {
			t.Fatalf("GET %s news mismatch (-want +got):\n%s", path, diff)
		}
	}
}

func TestNewsEmptyIsArray(t *testing.T) {
	h := newHarness(t, nil, nil)

	res, err := http.Get(h.ts.URL + "/news")
	if err != nil {
		t.Fatalf("GET /news error = %v", err)
	}
	defer res.Body.Close()
	var raw bytes.Buffer
	_, _ = raw.ReadFrom(res.Body)
	if got := strings.TrimSpace(raw.String()); got != `{"news":[]}` {
		t.Fatalf("body = %s, want {\"news\":[]}", got)
	}
}

func TestHealthAndReady(t *testing.T) {
	h := newHarness(t, nil, fakeStore{})
	res, err := http.Get(h.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	var health map[string]any
	_ = json.NewDecoder(res.Body).Decode(&health)
	res.Body.Close()
	want := map[string]any{"status": "ok", "llm_mode": "mock", "store_mode": "fake"}
	if diff := cmp.Diff(want, health); diff != "" {
		t.Fatalf("health mismatch (-want +got):\n%s", diff)
	}

	res, err = http.Get(h.ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ready status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	down := newHarness(t, nil, fakeStore{err: errors.New("connection refused")})
	res, err = http.Get(down.ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("ready status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestPerfLatencyReportsStages(t *testing.T) {
	h := newHarness(t, nil, nil)
	postChat(t, h.ts.URL+"/chat", `{"message":"hello"}`)

	res, err := http.Get(h.ts.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("GET /v1/perf/latency error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var snap observability.StageSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	var total *observability.StageStats
	for i := range snap.Stages {
		if snap.Stages[i].Stage == observability.StageRespondTotal {
			total = &snap.Stages[i]
		}
	}
	if total == nil || total.Samples != 1 {
		t.Fatalf("respond_total stats = %+v, want 1 sample", total)
	}
}

func TestChatWebSocket(t *testing.T) {
	h := newHarness(t, nil, nil)
	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/v1/chat/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello protocol.SystemEvent
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read connected event: %v", err)
	}
	if hello.Type != protocol.TypeSystemEvent || hello.Code != "connected" {
		t.Fatalf("first event = %+v, want connected system_event", hello)
	}

	if err := conn.WriteJSON(map[string]any{"type": "chat_message", "user": "ws-user", "message": "hi there"}); err != nil {
		t.Fatalf("write chat_message: %v", err)
	}
	var reply protocol.ChatReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read chat_reply: %v", err)
	}
	want := protocol.ChatReply{Type: protocol.TypeChatReply, Response: "I heard you: hi there", Source: "generated"}
	if diff := cmp.Diff(want, reply); diff != "" {
		t.Fatalf("reply mismatch (-want +got):\n%s", diff)
	}

	if err := conn.WriteJSON(map[string]any{"type": "chat_message", "message": " "}); err != nil {
		t.Fatalf("write blank chat_message: %v", err)
	}
	var bad protocol.ErrorEvent
	if err := conn.ReadJSON(&bad); err != nil {
		t.Fatalf("read error_event: %v", err)
	}
	if bad.Type != protocol.TypeErrorEvent || bad.Code != "invalid_client_message" {
		t.Fatalf("error event = %+v", bad)
	}
}

func TestWebSocketRejectsCrossOrigin(t *testing.T) {
	h := newHarness(t, nil, nil)
	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/v1/chat/ws"

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("dial succeeded, want origin rejection")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %+v, want 403", res)
	}
}
