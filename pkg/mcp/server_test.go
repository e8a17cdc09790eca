package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agroguard/agroguard/pkg/audit"
	"github.com/agroguard/agroguard/pkg/budget"
	"github.com/agroguard/agroguard/pkg/models"
)

// fakeTracker implements tracker.Tracker for testing.
type fakeTracker struct {
	summaries []models.UsageSummary
	decisions []models.DecisionSummary
	reasons   map[string]int
	totals    map[string]int64
}

func (f *fakeTracker) RecordUsage(context.Context, models.UsageRecord) error       { return nil }
func (f *fakeTracker) RecordDecision(context.Context, models.DecisionRecord) error { return nil }
func (f *fakeTracker) QueryByProvider(context.Context, string, time.Time) ([]models.UsageRecord, error) {
	return nil, nil
}
func (f *fakeTracker) TotalByProvider(_ context.Context, provider string, _ time.Time) (int64, error) {
	return f.totals[provider], nil
}
func (f *fakeTracker) TotalByProviderAndModel(_ context.Context, provider, _ string, _ time.Time) (int64, error) {
	return f.totals[provider], nil
}
func (f *fakeTracker) Summary(context.Context, string) ([]models.UsageSummary, error) {
	return f.summaries, nil
}
func (f *fakeTracker) Decisions(context.Context, time.Time) ([]models.DecisionSummary, error) {
	return f.decisions, nil
}
func (f *fakeTracker) FallbackReasons(context.Context, time.Time) (map[string]int, error) {
	return f.reasons, nil
}
func (f *fakeTracker) Close() error { return nil }

type fakeCache struct {
	stats models.CacheStats
}

func (f *fakeCache) Stats() models.CacheStats { return f.stats }

type fakeAdvisor struct {
	got models.Request
}

func (f *fakeAdvisor) Handle(_ context.Context, req models.Request) (models.Result, models.Decision) {
	f.got = req
	return models.Result{"response": "Store onions in a dry, ventilated place."},
		models.Decision{RequestID: "req-1", UseCase: req.UseCase(), Source: models.SourceFallback, Reason: "timeout"}
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var res ToolCallResult
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Content) == 0 {
		t.Fatal("expected content")
	}
	return res
}

func TestInitialize(t *testing.T) {
	srv := New(&fakeAdvisor{}, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var res InitializeResult
	json.Unmarshal(data, &res)

	if res.ProtocolVersion != ProtocolVersion {
		t.Errorf("protocol version = %s, want %s", res.ProtocolVersion, ProtocolVersion)
	}
	if res.ServerInfo.Name != "agroguard" || res.ServerInfo.Version != "test" {
		t.Errorf("unexpected server info: %+v", res.ServerInfo)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(&fakeAdvisor{}, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	data, _ := json.Marshal(resp.Result)
	var res ToolsListResult
	json.Unmarshal(data, &res)

	if len(res.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(res.Tools), len(toolHandlers))
	}
	for _, tool := range res.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("listed tool %s has no handler", tool.Name)
		}
	}
}

func TestAdviceTool(t *testing.T) {
	adv := &fakeAdvisor{}
	srv := New(adv, "test")

	res := callTool(t, srv, "agroguard_chat", `{"message":"  How do I store onions?  "}`)
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", res.Content[0].Text)
	}
	if !strings.Contains(res.Content[0].Text, "ventilated") {
		t.Errorf("expected result JSON, got: %s", res.Content[0].Text)
	}
	if len(res.Content) != 2 || !strings.Contains(res.Content[1].Text, "source=fallback reason=timeout") {
		t.Errorf("expected decision block, got: %+v", res.Content)
	}

	got, ok := adv.got.(models.ChatRequest)
	if !ok {
		t.Fatalf("expected chat request, got %T", adv.got)
	}
	if got.Message != "How do I store onions?" || got.Language != models.DefaultLanguage {
		t.Errorf("request not normalized: %+v", got)
	}
}

func TestAdviceToolValidation(t *testing.T) {
	adv := &fakeAdvisor{}
	srv := New(adv, "test")

	res := callTool(t, srv, "agroguard_spoilage", `{"crop":"wheat","temperature":25,"humidity":150,"days_stored":2}`)
	if !res.IsError {
		t.Fatal("expected isError for out-of-range humidity")
	}
	if !strings.Contains(res.Content[0].Text, "humidity") {
		t.Errorf("unexpected error text: %s", res.Content[0].Text)
	}
	if adv.got != nil {
		t.Error("invalid request must not reach the advisor")
	}

	res = callTool(t, srv, "agroguard_price", `{"crop": 5}`)
	if !res.IsError {
		t.Error("expected isError for malformed arguments")
	}
}

func TestToolCallStats(t *testing.T) {
	tr := &fakeTracker{
		summaries: []models.UsageSummary{
			{Provider: "gemini", Model: "gemini-1.5-flash", RequestCount: 10, TotalPrompt: 500, TotalCompletion: 200, TotalTokens: 700},
		},
		decisions: []models.DecisionSummary{
			{UseCase: models.UseCaseSpoilage, Source: models.SourceFallback, Count: 3, AvgLatencyMs: 12},
		},
		reasons: map[string]int{"timeout": 2, "missing_credential": 1},
	}
	srv := New(&fakeAdvisor{}, "test", WithTracker(tr))

	text := callTool(t, srv, "agroguard_stats", `{}`).Content[0].Text
	for _, want := range []string{"gemini-1.5-flash", "700", "spoilage", "fallback", "timeout", "missing_credential"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestToolCallNotConfigured(t *testing.T) {
	srv := New(&fakeAdvisor{}, "test")

	for _, name := range []string{"agroguard_cache_stats", "agroguard_budget", "agroguard_stats", "agroguard_audit_search"} {
		text := callTool(t, srv, name, `{}`).Content[0].Text
		if !strings.Contains(text, "not configured") {
			t.Errorf("%s: expected 'not configured', got: %s", name, text)
		}
	}
}

func TestToolCallCacheStats(t *testing.T) {
	cache := &fakeCache{stats: models.CacheStats{Entries: 42, Hits: 10, Misses: 5}}
	srv := New(&fakeAdvisor{}, "test", WithCache(cache))

	text := callTool(t, srv, "agroguard_cache_stats", "").Content[0].Text
	if !strings.Contains(text, "42") || !strings.Contains(text, "66.7%") {
		t.Errorf("unexpected cache stats output: %s", text)
	}
}

func TestToolCallBudget(t *testing.T) {
	tr := &fakeTracker{totals: map[string]int64{"gemini": 250}}
	enforcer := budget.New([]models.BudgetPolicy{
		{Provider: "*", MaxTokens: 1000, Period: models.BudgetDaily},
	}, tr)
	srv := New(&fakeAdvisor{}, "test", WithBudget(enforcer, []string{"gemini", "groq"}))

	text := callTool(t, srv, "agroguard_budget", `{}`).Content[0].Text
	if !strings.Contains(text, "gemini") || !strings.Contains(text, "groq") {
		t.Errorf("expected both providers, got:\n%s", text)
	}
	if !strings.Contains(text, "25.0%") {
		t.Errorf("expected gemini usage percent, got:\n%s", text)
	}

	text = callTool(t, srv, "agroguard_budget", `{"provider":"groq"}`).Content[0].Text
	if strings.Contains(text, "gemini") {
		t.Errorf("expected groq only, got:\n%s", text)
	}
}

func TestToolCallAuditSearch(t *testing.T) {
	a, err := audit.New(models.AuditConfig{Enabled: true, DBPath: filepath.Join(t.TempDir(), "audit.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ctx := context.Background()
	_ = a.Log(ctx, models.AuditEntry{RequestID: "r-1", Attempt: 1, UseCase: models.UseCasePrice, Provider: "gemini", Model: "gemini-1.5-flash", Outcome: "ok", TotalTokens: 90})
	_ = a.Log(ctx, models.AuditEntry{RequestID: "r-2", Attempt: 1, UseCase: models.UseCaseChat, Provider: "groq", Model: "llama-3.1-8b-instant", Outcome: "timeout"})

	srv := New(&fakeAdvisor{}, "test", WithAuditor(a))

	text := callTool(t, srv, "agroguard_audit_search", `{"outcome":"timeout"}`).Content[0].Text
	if !strings.Contains(text, "r-2") || strings.Contains(text, "r-1") {
		t.Errorf("unexpected audit search output:\n%s", text)
	}

	res := callTool(t, srv, "agroguard_audit_search", `{"use_case":"weather"}`)
	if !res.IsError {
		t.Error("expected isError for unknown use case")
	}
	res = callTool(t, srv, "agroguard_audit_search", `{"since":"yesterday"}`)
	if !res.IsError {
		t.Error("expected isError for bad date")
	}
}

func TestUnknownTool(t *testing.T) {
	res := callTool(t, New(&fakeAdvisor{}, "test"), "weather_forecast", `{}`)
	if !res.IsError {
		t.Error("expected isError for unknown tool")
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := New(&fakeAdvisor{}, "test")

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestParseErrorAndUnknownMethod(t *testing.T) {
	srv := New(&fakeAdvisor{}, "test")

	var out bytes.Buffer
	_ = srv.Run(context.Background(), strings.NewReader("{not json\n"), &out)
	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", resp)
	}

	resp = sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("expected method not found, got %+v", resp)
	}
}
