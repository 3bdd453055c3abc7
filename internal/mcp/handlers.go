package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/parleyhq/parley/internal/analysis"
	"github.com/parleyhq/parley/internal/errors"
	"github.com/parleyhq/parley/internal/recording"
)

// Analyzer runs the remote analysis pipeline for one payload.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request, onProgress analysis.ProgressFunc) (*analysis.Result, error)
}

// Handlers holds dependencies for MCP tool handlers. analyzer may be nil,
// which makes feedback_get report a service error.
type Handlers struct {
	repo     *recording.Repository
	analyzer Analyzer
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(repo *recording.Repository, analyzer Analyzer) *Handlers {
	return &Handlers{repo: repo, analyzer: analyzer}
}

// Request types for each tool

// ListRequest represents the arguments for recording_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// GetRequest represents the arguments for recording_get.
type GetRequest struct {
	ID string `json:"id"`
}

// DeleteRequest represents the arguments for recording_delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// FeedbackRequest represents the arguments for feedback_get.
type FeedbackRequest struct {
	ID       string `json:"id"`
	Language string `json:"language,omitempty"`
}

// Handler implementations

// HandleRecordingList handles the recording_list tool call.
func (h *Handlers) HandleRecordingList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	recs, err := h.repo.List(ctx, input.Limit, input.Offset)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"recordings": recs})
}

// HandleRecordingGet handles the recording_get tool call.
func (h *Handlers) HandleRecordingGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewInvalidRequest("id is required")), nil
	}

	rec, err := h.repo.Get(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(rec)
}

// HandleRecordingDelete handles the recording_delete tool call.
func (h *Handlers) HandleRecordingDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewInvalidRequest("id is required")), nil
	}

	if err := h.repo.Remove(ctx, input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"deleted": true, "id": input.ID})
}

// HandleFeedbackGet handles the feedback_get tool call. The analysis runs
// synchronously; the assistant sees the finished transcript and feedback.
func (h *Handlers) HandleFeedbackGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FeedbackRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewInvalidRequest("id is required")), nil
	}
	if h.analyzer == nil {
		return errorResult(errors.NewAnalysisService("", "analysis service is not configured")), nil
	}

	rec, err := h.repo.Get(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	payload, mediaType, found, err := h.repo.Payload(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	if !found {
		return errorResult(errors.NewNotFound(input.ID)), nil
	}

	result, err := h.analyzer.Analyze(ctx, analysis.Request{
		Payload:   payload,
		MediaType: mediaType,
		Kind:      rec.Kind,
		Topic:     rec.Topic,
		Language:  input.Language,
	}, nil)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePracticeStats handles the practice_stats tool call.
func (h *Handlers) HandlePracticeStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.repo.PracticeStats(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(stats)
}

// errorResult creates an MCP error result carrying the structured error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if perr, ok := err.(*errors.ParleyError); ok {
		errorObj := map[string]any{
			"code":    perr.Code,
			"message": perr.Message,
			"status":  perr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if perr.Code != errors.ErrInternal && perr.Details != nil {
			errorObj["details"] = perr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
