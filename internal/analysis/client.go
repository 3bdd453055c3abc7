package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/errors"
	"github.com/parleyhq/parley/internal/recording"
)

// Client consumes the remote transcription/feedback service. The service is
// opaque: async, fallible, language-parameterized. Failures are attributed
// to the specific request and never touch the underlying recording.
type Client struct {
	baseURL    string
	language   string
	pauseSplit float64
	threshold  int64
	minRatio   float64

	httpClient *http.Client
	extractor  AudioExtractor
	log        *logrus.Logger
}

// NewClient builds a Client from config. extractor may be nil, which
// disables the pre-upload audio extraction policy.
func NewClient(cfg *config.Config, extractor AudioExtractor, log *logrus.Logger) *Client {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	timeout := time.Duration(cfg.AnalysisTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.AnalysisURL, "/"),
		language:   cfg.AnalysisLanguage,
		pauseSplit: cfg.ParagraphPauseSeconds,
		threshold:  cfg.ExtractThresholdBytes,
		minRatio:   cfg.ExtractMinRatio,
		httpClient: &http.Client{Timeout: timeout},
		extractor:  extractor,
		log:        log,
	}
}

// Request is one analysis submission.
type Request struct {
	Payload   []byte
	MediaType string
	Kind      recording.Kind
	Topic     *string
	Language  string // empty means the configured default
}

// Analyze runs the full pipeline: optional audio extraction, transcription,
// then feedback. onProgress (may be nil) sees every phase transition,
// ending in complete or error.
func (c *Client) Analyze(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error) {
	requestID := uuid.NewString()
	progress := func(phase Phase) {
		if onProgress != nil {
			onProgress(requestID, phase)
		}
	}
	fail := func(msg string) (*Result, error) {
		progress(PhaseError)
		return nil, errors.NewAnalysisService(requestID, msg)
	}

	if c.baseURL == "" {
		return fail("analysis service is not configured")
	}
	if len(req.Payload) == 0 {
		return fail("empty payload")
	}

	language := req.Language
	if language == "" {
		language = c.language
	}

	progress(PhaseQueued)

	payload, mediaType := c.preparePayload(ctx, req, progress)

	progress(PhaseTranscribing)
	segments, err := c.transcribe(ctx, payload, mediaType, language, req.Topic)
	if err != nil {
		return fail(err.Error())
	}

	paragraphs := Regroup(segments, c.pauseSplit)

	progress(PhaseAnalyzing)
	feedback, err := c.requestFeedback(ctx, joinParagraphs(paragraphs), language, req.Topic)
	if err != nil {
		return fail(err.Error())
	}
	feedback.Strengths = clampPoints(feedback.Strengths)
	feedback.Improvements = clampPoints(feedback.Improvements)
	feedback.Metrics = DeriveRate(segments)

	progress(PhaseComplete)
	return &Result{
		RequestID:  requestID,
		Transcript: paragraphs,
		Feedback:   *feedback,
	}, nil
}

// preparePayload applies the upload-size policy: small payloads and plain
// audio go up as-is; large video payloads get their audio track extracted.
// An extraction failure or an implausibly small result falls back to
// sending the original payload.
func (c *Client) preparePayload(ctx context.Context, req Request, progress func(Phase)) ([]byte, string) {
	if c.extractor == nil || req.Kind != recording.KindVideo || int64(len(req.Payload)) <= c.threshold {
		return req.Payload, req.MediaType
	}

	progress(PhaseExtractingAudio)
	extracted, err := c.extractor.ExtractAudio(ctx, req.Payload)
	if err != nil {
		c.log.WithError(err).Warn("audio extraction failed; uploading original payload")
		return req.Payload, req.MediaType
	}
	if float64(len(extracted)) < c.minRatio*float64(len(req.Payload)) {
		c.log.WithFields(logrus.Fields{
			"input_bytes":  len(req.Payload),
			"output_bytes": len(extracted),
		}).Warn("extraction result implausibly small; uploading original payload")
		return req.Payload, req.MediaType
	}
	return extracted, "audio/mp4"
}

type transcriptionResponse struct {
	Segments []Segment `json:"segments"`
}

func (c *Client) transcribe(ctx context.Context, payload []byte, mediaType, language string, topic *string) ([]Segment, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "recording")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(payload); err != nil {
		return nil, err
	}
	_ = writer.WriteField("language", language)
	_ = writer.WriteField("media_type", mediaType)
	if topic != nil {
		_ = writer.WriteField("topic", *topic)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	var resp transcriptionResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return resp.Segments, nil
}

type feedbackRequest struct {
	Transcript string  `json:"transcript"`
	Language   string  `json:"language"`
	Topic      *string `json:"topic"`
}

func (c *Client) requestFeedback(ctx context.Context, transcript, language string, topic *string) (*Feedback, error) {
	body, err := json.Marshal(feedbackRequest{Transcript: transcript, Language: language, Topic: topic})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/feedback", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var feedback Feedback
	if err := c.do(httpReq, &feedback); err != nil {
		return nil, err
	}
	return &feedback, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("analysis service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
