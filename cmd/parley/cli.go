package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/parleyhq/parley/internal/analysis"
	"github.com/parleyhq/parley/internal/capture"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/errors"
	"github.com/parleyhq/parley/internal/logging"
	"github.com/parleyhq/parley/internal/news"
	"github.com/parleyhq/parley/internal/prefs"
	"github.com/parleyhq/parley/internal/recording"
	"github.com/parleyhq/parley/internal/report"
	"github.com/parleyhq/parley/internal/store"
	"github.com/parleyhq/parley/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(repo *recording.Repository, st *store.Store, cfg *config.Config, log *logrus.Logger) *cli.App {
	app := &cli.App{
		Name:    "parley",
		Usage:   "Speech practice recorder",
		Version: Version,
		Commands: []*cli.Command{
			recordCmd(repo, log),
			listCmd(repo),
			infoCmd(repo),
			deleteCmd(repo),
			exportCmd(repo, cfg, log),
			analyzeCmd(repo, cfg, log),
			newsCmd(cfg, log),
			serveCmd(repo, st, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// recordCmd creates the record command.
func recordCmd(repo *recording.Repository, log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Capture a practice take and store it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Value: "audio", Usage: "Capture kind: audio|video"},
			&cli.StringFlag{Name: "topic", Aliases: []string{"t"}, Usage: "Practice topic (optional)"},
			&cli.IntFlag{Name: "seconds", Aliases: []string{"s"}, Usage: "Stop automatically after this many seconds (0 = stop on Ctrl-C)"},
			&cli.StringFlag{Name: "audio-device", Value: "default", Usage: "Audio input device"},
			&cli.StringFlag{Name: "video-device", Value: "/dev/video0", Usage: "Video input device"},
			&cli.StringFlag{Name: "ffmpeg", Value: "ffmpeg", Usage: "ffmpeg binary to use"},
		},
		Action: func(c *cli.Context) error {
			kind, err := recording.ParseKind(c.String("kind"))
			if err != nil {
				return outputError(err)
			}

			source := capture.NewFFmpegSource(c.String("ffmpeg"))
			probe := capture.NewFFmpegProbe(c.String("ffmpeg"))
			controller := capture.NewController(source, probe, nil, log, capture.Config{})
			defer controller.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hints := capture.DeviceHints{
				AudioDevice: c.String("audio-device"),
				VideoDevice: c.String("video-device"),
			}
			if err := controller.Start(ctx, kind, hints); err != nil {
				return outputError(err)
			}

			if secs := c.Int("seconds"); secs > 0 {
				fmt.Fprintf(os.Stderr, "recording %s for %ds...\n", kind, secs)
				select {
				case <-time.After(time.Duration(secs) * time.Second):
				case <-ctx.Done():
				}
			} else {
				fmt.Fprintf(os.Stderr, "recording %s, press Ctrl-C to stop...\n", kind)
				<-ctx.Done()
			}

			result, err := controller.Stop()
			if err != nil {
				return outputError(err)
			}

			input := recording.AddInput{
				Kind:            result.Kind,
				Format:          result.Format,
				DurationSeconds: result.DurationSeconds,
				Payload:         result.Payload,
			}
			if topic := c.String("topic"); topic != "" {
				input.Topic = &topic
			}

			rec, err := repo.Add(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(rec)
		},
	}
}

// listCmd creates the list command.
func listCmd(repo *recording.Repository) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List recordings, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum number of recordings (0 = all)"},
			&cli.IntFlag{Name: "offset", Usage: "Number of recordings to skip"},
		},
		Action: func(c *cli.Context) error {
			recs, err := repo.List(c.Context, c.Int("limit"), c.Int("offset"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"recordings": recs})
		},
	}
}

// infoCmd creates the info command.
func infoCmd(repo *recording.Repository) *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show one recording's metadata",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("id argument is required"))
			}
			rec, err := repo.Get(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(rec)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(repo *recording.Repository) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a recording (absent ids succeed)",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("id argument is required"))
			}
			id := c.Args().First()
			if err := repo.Remove(c.Context, id); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"deleted": true, "id": id})
		},
	}
}

// exportCmd creates the export command.
func exportCmd(repo *recording.Repository, cfg *config.Config, log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a recording's media (or an HTML analysis report) to a file",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output path (defaults to <id> with the right extension)"},
			&cli.BoolFlag{Name: "report", Usage: "Export an HTML analysis report instead of the media file"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("id argument is required"))
			}
			id := c.Args().First()

			rec, err := repo.Get(c.Context, id)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("report") {
				result, err := runAnalysis(c.Context, repo, cfg, log, rec, "")
				if err != nil {
					return outputError(err)
				}
				html, err := report.Render(rec, result)
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				out := c.String("out")
				if out == "" {
					out = id + ".html"
				}
				if err := os.WriteFile(out, []byte(html), 0644); err != nil {
					return outputError(errors.NewInternal(err))
				}
				return outputJSON(map[string]any{"exported": out, "report": true})
			}

			payload, _, found, err := repo.Payload(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			if !found {
				return outputError(errors.NewNotFound(id))
			}
			out := c.String("out")
			if out == "" {
				out = id + rec.Format.Ext(rec.Kind)
			}
			if err := os.WriteFile(out, payload, 0644); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return outputJSON(map[string]any{"exported": out, "bytes": len(payload)})
		},
	}
}

// analyzeCmd creates the analyze command.
func analyzeCmd(repo *recording.Repository, cfg *config.Config, log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Run speech analysis on a recording",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "Transcription language (defaults to config)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("id argument is required"))
			}
			rec, err := repo.Get(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			result, err := runAnalysis(c.Context, repo, cfg, log, rec, c.String("language"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(result)
		},
	}
}

// runAnalysis loads a recording's payload and runs the remote pipeline,
// reporting phase transitions on stderr.
func runAnalysis(ctx context.Context, repo *recording.Repository, cfg *config.Config, log *logrus.Logger, rec *recording.Recording, language string) (*analysis.Result, error) {
	payload, mediaType, found, err := repo.Payload(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NewNotFound(rec.ID)
	}

	client := analysis.NewClient(cfg, analysis.FFmpegExtractor{}, log)
	return client.Analyze(ctx, analysis.Request{
		Payload:   payload,
		MediaType: mediaType,
		Kind:      rec.Kind,
		Topic:     rec.Topic,
		Language:  language,
	}, func(_ string, phase analysis.Phase) {
		fmt.Fprintf(os.Stderr, "analysis: %s\n", phase)
	})
}

// newsCmd creates the news command.
func newsCmd(cfg *config.Config, log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "news",
		Usage: "Fetch practice-topic headlines",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "topic", Aliases: []string{"t"}, Usage: "Comma-separated topics to fetch headlines for"},
		},
		Action: func(c *cli.Context) error {
			client := news.NewClient(cfg, log)
			topics := parseTopics(c.String("topic"))
			if len(topics) == 0 {
				topics = []string{""}
			}
			byTopic := make(map[string][]news.Headline, len(topics))
			for _, topic := range topics {
				headlines, err := client.Topics(c.Context, topic)
				if err != nil {
					return outputError(err)
				}
				key := topic
				if key == "" {
					key = "general"
				}
				byTopic[key] = headlines
			}
			return outputJSON(map[string]any{"headlines": byTopic})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(repo *recording.Repository, st *store.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local HTTP API for the practice front-end",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (defaults to config)"},
		},
		Action: func(c *cli.Context) error {
			// serve gets its own logger so file rotation applies.
			log := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

			var analyzer web.Analyzer
			if cfg.AnalysisURL != "" {
				analyzer = analysis.NewClient(cfg, analysis.FFmpegExtractor{}, log)
			}
			var fetcher web.NewsFetcher
			if cfg.NewsURL != "" {
				fetcher = news.NewClient(cfg, log)
			}

			addr := c.String("addr")
			if addr == "" {
				addr = cfg.ListenAddr
			}

			prefStore := prefs.New(st, log)
			defer prefStore.Flush()

			srv := web.NewServer(repo, analyzer, fetcher, prefStore, log)
			log.WithField("addr", addr).Info("serving HTTP API")
			return srv.Router().Run(addr)
		},
	}
}

// outputJSON prints a value as indented JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if perr, ok := err.(*errors.ParleyError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", perr.Code, perr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseTopics splits a comma-separated topic list, trimming blanks.
func parseTopics(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	topics := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}
