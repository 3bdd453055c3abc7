package mcp

import "github.com/mark3labs/mcp-go/mcp"

var listToolDef = mcp.NewTool("recording_list",
	mcp.WithDescription("List practice recordings, newest first."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of recordings to return. 0 returns everything."),
	),
	mcp.WithNumber("offset",
		mcp.Description("Number of recordings to skip from the newest end."),
	),
)

var getToolDef = mcp.NewTool("recording_get",
	mcp.WithDescription("Fetch one recording's metadata by id."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Recording id."),
	),
)

var deleteToolDef = mcp.NewTool("recording_delete",
	mcp.WithDescription("Delete a recording. Deleting an absent id succeeds."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Recording id."),
	),
)

var feedbackToolDef = mcp.NewTool("feedback_get",
	mcp.WithDescription("Run speech analysis on a recording and return transcript, metrics, and feedback."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Recording id."),
	),
	mcp.WithString("language",
		mcp.Description("Transcription language code. Defaults to the configured language."),
	),
)

var statsToolDef = mcp.NewTool("practice_stats",
	mcp.WithDescription("Aggregate practice totals: recording count and total spoken seconds."),
)
