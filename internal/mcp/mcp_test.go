package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/parleyhq/parley/internal/analysis"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/logging"
	"github.com/parleyhq/parley/internal/recording"
	"github.com/parleyhq/parley/internal/store"
)

// testSetup creates a temporary repository for testing.
func testSetup(t *testing.T) *recording.Repository {
	t.Helper()
	st, err := store.Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return recording.NewRepository(st, logging.Discard())
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func addRecording(t *testing.T, repo *recording.Repository, topic string) *recording.Recording {
	t.Helper()
	rec, err := repo.Add(context.Background(), recording.AddInput{
		Kind:            recording.KindAudio,
		Format:          recording.FormatMP4,
		Topic:           &topic,
		DurationSeconds: 60,
		Payload:         []byte("payload-" + topic),
	})
	if err != nil {
		t.Fatalf("failed to add recording: %v", err)
	}
	return rec
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("result content is %T, want TextContent", result.Content[0])
	}
	return text.Text
}

type fakeAnalyzer struct {
	result   *analysis.Result
	err      error
	lastReq  analysis.Request
	lastSeen bool
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req analysis.Request, _ analysis.ProgressFunc) (*analysis.Result, error) {
	f.lastReq = req
	f.lastSeen = true
	return f.result, f.err
}

func TestHandleRecordingList(t *testing.T) {
	repo := testSetup(t)
	h := NewHandlers(repo, nil)

	first := addRecording(t, repo, "first")
	second := addRecording(t, repo, "second")

	result, err := h.HandleRecordingList(context.Background(), makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("HandleRecordingList: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	var output struct {
		Recordings []recording.Recording `json:"recordings"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &output); err != nil {
		t.Fatalf("failed to parse result: %v", err)
	}
	if len(output.Recordings) != 2 {
		t.Fatalf("recordings = %d, want 2", len(output.Recordings))
	}
	if output.Recordings[0].ID != second.ID || output.Recordings[1].ID != first.ID {
		t.Errorf("recordings not newest-first: %s, %s", output.Recordings[0].ID, output.Recordings[1].ID)
	}

	// limit applies
	result, err = h.HandleRecordingList(context.Background(), makeRequest(map[string]any{"limit": 1}))
	if err != nil {
		t.Fatalf("HandleRecordingList with limit: %v", err)
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &output); err != nil {
		t.Fatalf("failed to parse result: %v", err)
	}
	if len(output.Recordings) != 1 {
		t.Errorf("recordings = %d, want 1", len(output.Recordings))
	}
}

func TestHandleRecordingGet(t *testing.T) {
	repo := testSetup(t)
	h := NewHandlers(repo, nil)
	rec := addRecording(t, repo, "trains")

	result, err := h.HandleRecordingGet(context.Background(), makeRequest(map[string]any{"id": rec.ID}))
	if err != nil {
		t.Fatalf("HandleRecordingGet: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	var got recording.Recording
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse result: %v", err)
	}
	if got.ID != rec.ID || got.Topic == nil || *got.Topic != "trains" {
		t.Errorf("got %+v, want id %s topic trains", got, rec.ID)
	}
}

func TestHandleRecordingGet_NotFound(t *testing.T) {
	repo := testSetup(t)
	h := NewHandlers(repo, nil)

	result, err := h.HandleRecordingGet(context.Background(), makeRequest(map[string]any{"id": "missing"}))
	if err != nil {
		t.Fatalf("HandleRecordingGet: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for unknown id")
	}

	var payload struct {
		Error struct {
			Code   string `json:"code"`
			Status int    `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("failed to parse error payload: %v", err)
	}
	if payload.Error.Code != "NOT_FOUND" || payload.Error.Status != 404 {
		t.Errorf("error = %+v, want NOT_FOUND 404", payload.Error)
	}
}

func TestHandleRecordingGet_MissingID(t *testing.T) {
	repo := testSetup(t)
	h := NewHandlers(repo, nil)

	result, err := h.HandleRecordingGet(context.Background(), makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("HandleRecordingGet: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing id")
	}
}

func TestHandleRecordingDelete(t *testing.T) {
	repo := testSetup(t)
	h := NewHandlers(repo, nil)
	rec := addRecording(t, repo, "trains")

	result, err := h.HandleRecordingDelete(context.Background(), makeRequest(map[string]any{"id": rec.ID}))
	if err != nil {
		t.Fatalf("HandleRecordingDelete: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	// Deleting again still succeeds.
	result, err = h.HandleRecordingDelete(context.Background(), makeRequest(map[string]any{"id": rec.ID}))
	if err != nil {
		t.Fatalf("HandleRecordingDelete (repeat): %v", err)
	}
	if result.IsError {
		t.Fatalf("repeat delete errored: %s", resultText(t, result))
	}

	if _, err := repo.Get(context.Background(), rec.ID); err == nil {
		t.Error("recording still present after delete")
	}
}

func TestHandleFeedbackGet(t *testing.T) {
	repo := testSetup(t)
	analyzer := &fakeAnalyzer{
		result: &analysis.Result{
			RequestID: "req-1",
			Feedback:  analysis.Feedback{Score: 85, Summary: "well paced"},
		},
	}
	h := NewHandlers(repo, analyzer)
	rec := addRecording(t, repo, "trains")

	result, err := h.HandleFeedbackGet(context.Background(), makeRequest(map[string]any{
		"id":       rec.ID,
		"language": "de",
	}))
	if err != nil {
		t.Fatalf("HandleFeedbackGet: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	var got analysis.Result
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse result: %v", err)
	}
	if got.Feedback.Score != 85 {
		t.Errorf("score = %d, want 85", got.Feedback.Score)
	}

	if !analyzer.lastSeen {
		t.Fatal("analyzer was never called")
	}
	if analyzer.lastReq.Language != "de" {
		t.Errorf("language = %q, want de", analyzer.lastReq.Language)
	}
	if analyzer.lastReq.Topic == nil || *analyzer.lastReq.Topic != "trains" {
		t.Errorf("topic = %v, want trains", analyzer.lastReq.Topic)
	}
	if string(analyzer.lastReq.Payload) != "payload-trains" {
		t.Errorf("payload = %q", analyzer.lastReq.Payload)
	}
}

func TestHandleFeedbackGet_ServiceFailure(t *testing.T) {
	repo := testSetup(t)
	h := NewHandlers(repo, &fakeAnalyzer{err: fmt.Errorf("service down")})
	rec := addRecording(t, repo, "trains")

	result, err := h.HandleFeedbackGet(context.Background(), makeRequest(map[string]any{"id": rec.ID}))
	if err != nil {
		t.Fatalf("HandleFeedbackGet: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for failing analyzer")
	}
}

func TestHandleFeedbackGet_NoAnalyzer(t *testing.T) {
	repo := testSetup(t)
	h := NewHandlers(repo, nil)
	rec := addRecording(t, repo, "trains")

	result, err := h.HandleFeedbackGet(context.Background(), makeRequest(map[string]any{"id": rec.ID}))
	if err != nil {
		t.Fatalf("HandleFeedbackGet: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result without an analyzer")
	}
}

func TestHandlePracticeStats(t *testing.T) {
	repo := testSetup(t)
	h := NewHandlers(repo, nil)
	addRecording(t, repo, "one")
	addRecording(t, repo, "two")

	result, err := h.HandlePracticeStats(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("HandlePracticeStats: %v", err)
	}

	var stats recording.Stats
	if err := json.Unmarshal([]byte(resultText(t, result)), &stats); err != nil {
		t.Fatalf("failed to parse result: %v", err)
	}
	if stats.Recordings != 2 || stats.TotalSpokenSeconds != 120 {
		t.Errorf("stats = %+v, want 2 recordings / 120 seconds", stats)
	}
}

func TestServerRegistration(t *testing.T) {
	repo := testSetup(t)
	h := NewHandlers(repo, nil)
	cfg := config.DefaultConfig()

	s := NewServer(h, cfg, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"recording_list",
		"recording_get",
		"recording_delete",
		"feedback_get",
		"practice_stats",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	repo := testSetup(t)
	h := NewHandlers(repo, nil)
	cfg := config.DefaultConfig()
	cfg.DisabledTools = []string{"recording_delete", "feedback_get"}

	s := NewServer(h, cfg, "test")
	tools := s.ListTools()

	if len(tools) != 3 {
		t.Errorf("registered tool count = %d, want 3", len(tools))
	}
	for _, name := range cfg.DisabledTools {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
	for _, name := range []string{"recording_list", "recording_get", "practice_stats"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("core tool %q should be registered", name)
		}
	}
}

func TestValidateDisabledTools(t *testing.T) {
	unknown := ValidateDisabledTools([]string{"recording_list", "bogus_tool"})
	if len(unknown) != 1 || unknown[0] != "bogus_tool" {
		t.Errorf("unknown = %v, want [bogus_tool]", unknown)
	}
}
