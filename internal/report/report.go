// Package report renders an HTML practice report from an analysis result
// for the export command.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/parleyhq/parley/internal/analysis"
	"github.com/parleyhq/parley/internal/recording"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Practice Report{{if .Topic}} · {{.Topic}}{{end}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 46rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
h1 { font-size: 1.4rem; }
table { border-collapse: collapse; }
td, th { padding: 0.25rem 0.75rem; border: 1px solid #ccc; text-align: left; }
blockquote { border-left: 3px solid #ccc; margin-left: 0; padding-left: 1rem; color: #555; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

type pageData struct {
	Topic string
	Body  template.HTML
}

// Render produces a standalone HTML page for one analyzed recording.
func Render(rec *recording.Recording, result *analysis.Result) (string, error) {
	if rec == nil || result == nil {
		return "", fmt.Errorf("render report: missing recording or analysis result")
	}

	md := buildMarkdown(rec, result)
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	topic := ""
	if rec.Topic != nil {
		topic = *rec.Topic
	}
	var page bytes.Buffer
	if err := pageTemplate.Execute(&page, pageData{Topic: topic, Body: template.HTML(body.String())}); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return page.String(), nil
}

// buildMarkdown lays out the report as markdown so goldmark handles the
// HTML escaping and structure.
func buildMarkdown(rec *recording.Recording, result *analysis.Result) string {
	var b strings.Builder

	b.WriteString("# Practice Report\n\n")
	if rec.Topic != nil && *rec.Topic != "" {
		fmt.Fprintf(&b, "**Topic:** %s\n\n", *rec.Topic)
	}
	fmt.Fprintf(&b, "**Recorded:** %s · **Duration:** %ds · **Score:** %d/100\n\n",
		rec.CreatedAt, rec.DurationSeconds, result.Feedback.Score)

	m := result.Feedback.Metrics
	b.WriteString("## Delivery\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Words per minute | %.0f |\n", m.WordsPerMinute)
	fmt.Fprintf(&b, "| Words | %d |\n", m.WordCount)
	fmt.Fprintf(&b, "| Pauses | %d |\n", m.PauseCount)
	fmt.Fprintf(&b, "| Pause ratio | %.0f%% |\n", m.PauseRatio*100)
	fmt.Fprintf(&b, "| Average pause | %.1fs |\n\n", m.AvgPauseSeconds)

	if len(result.Feedback.Strengths) > 0 {
		b.WriteString("## Strengths\n\n")
		for _, s := range result.Feedback.Strengths {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}
	if len(result.Feedback.Improvements) > 0 {
		b.WriteString("## Areas to Improve\n\n")
		for _, s := range result.Feedback.Improvements {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}
	if result.Feedback.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(result.Feedback.Summary)
		b.WriteString("\n\n")
	}

	if len(result.Transcript) > 0 {
		b.WriteString("## Transcript\n\n")
		for _, p := range result.Transcript {
			fmt.Fprintf(&b, "> %s\n\n", p.Text)
		}
	}
	return b.String()
}
