package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/analysis"
	"github.com/parleyhq/parley/internal/errors"
	"github.com/parleyhq/parley/internal/recording"
)

// maxUploadBytes bounds a single recording upload.
const maxUploadBytes = 512 << 20

func (s *Server) listRecordings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	recs, err := s.repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": recs})
}

func (s *Server) getRecording(c *gin.Context) {
	rec, err := s.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) getMedia(c *gin.Context) {
	id := c.Param("id")
	payload, mediaType, found, err := s.repo.Payload(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !found {
		s.writeError(c, errors.NewNotFound(id))
		return
	}
	// The stored media type is authoritative; never let the client sniff.
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, mediaType, payload)
}

func (s *Server) createRecording(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		s.writeError(c, errors.NewInvalidRequest("missing file field"))
		return
	}
	payload, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		s.writeError(c, errors.NewInvalidRequest("unreadable file field"))
		return
	}

	duration := 0
	if v := c.PostForm("duration_seconds"); v != "" {
		duration, err = strconv.Atoi(v)
		if err != nil {
			s.writeError(c, errors.NewInvalidRequest("duration_seconds must be an integer"))
			return
		}
	}
	var topic *string
	if v := c.PostForm("topic"); v != "" {
		topic = &v
	}

	rec, err := s.repo.Add(c.Request.Context(), recording.AddInput{
		Kind:            recording.Kind(c.PostForm("kind")),
		Format:          recording.Format(c.PostForm("format")),
		Topic:           topic,
		DurationSeconds: duration,
		Payload:         payload,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) deleteRecording(c *gin.Context) {
	if err := s.repo.Remove(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// analysisJob tracks one in-flight or finished analysis run.
type analysisJob struct {
	ID          string           `json:"id"`
	RecordingID string           `json:"recording_id"`
	Phase       analysis.Phase   `json:"phase"`
	Result      *analysis.Result `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
}

func (s *Server) startAnalysis(c *gin.Context) {
	if s.analyzer == nil {
		s.writeError(c, errors.NewAnalysisService("", "analysis service is not configured"))
		return
	}
	id := c.Param("id")

	rec, err := s.repo.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	payload, mediaType, found, err := s.repo.Payload(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !found {
		s.writeError(c, errors.NewNotFound(id))
		return
	}

	job := &analysisJob{
		ID:          uuid.NewString(),
		RecordingID: id,
		Phase:       analysis.PhaseQueued,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	req := analysis.Request{
		Payload:   payload,
		MediaType: mediaType,
		Kind:      rec.Kind,
		Topic:     rec.Topic,
	}
	// The run outlives the HTTP request; progress lands in the job entry.
	go s.runAnalysis(job.ID, req)

	c.JSON(http.StatusAccepted, gin.H{"analysis_id": job.ID, "phase": analysis.PhaseQueued})
}

func (s *Server) runAnalysis(jobID string, req analysis.Request) {
	onProgress := func(_ string, phase analysis.Phase) {
		s.mu.Lock()
		if job, ok := s.jobs[jobID]; ok {
			job.Phase = phase
		}
		s.mu.Unlock()
	}

	result, err := s.analyzer.Analyze(context.Background(), req, onProgress)

	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return
	}
	if err != nil {
		job.Phase = analysis.PhaseError
		job.Error = err.Error()
		s.log.WithField("analysis_id", jobID).WithError(err).Warn("analysis run failed")
		return
	}
	job.Phase = analysis.PhaseComplete
	job.Result = result
}

func (s *Server) getAnalysis(c *gin.Context) {
	s.mu.Lock()
	job, ok := s.jobs[c.Param("id")]
	var snapshot analysisJob
	if ok {
		snapshot = *job
	}
	s.mu.Unlock()

	if !ok {
		s.writeError(c, errors.NewNotFound(c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) getNews(c *gin.Context) {
	if s.news == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{"code": "NEWS_UNAVAILABLE", "message": "news feed is not configured"},
		})
		return
	}
	headlines, err := s.news.Topics(c.Request.Context(), c.Query("topic"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error": gin.H{"code": "NEWS_UNAVAILABLE", "message": err.Error()},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"headlines": headlines})
}

func (s *Server) getPrefs(c *gin.Context) {
	if s.prefs == nil {
		c.JSON(http.StatusOK, gin.H{"prefs": gin.H{}})
		return
	}
	// Wait for the first durable read so the front-end never hydrates
	// from an empty mirror.
	if err := s.prefs.WaitHydrated(c.Request.Context()); err != nil {
		s.writeError(c, errors.NewInternal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"prefs": s.prefs.Snapshot()})
}

func (s *Server) putPref(c *gin.Context) {
	if s.prefs == nil {
		s.writeError(c, errors.NewInvalidRequest("preference store is not available"))
		return
	}
	key := c.Param("key")
	if key == "" {
		s.writeError(c, errors.NewInvalidRequest("key is required"))
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil || len(body) == 0 {
		s.writeError(c, errors.NewInvalidRequest("body must be a JSON value"))
		return
	}
	var value json.RawMessage
	if err := json.Unmarshal(body, &value); err != nil {
		s.writeError(c, errors.NewInvalidRequest("body must be a JSON value"))
		return
	}

	// Mirror updates synchronously; durability is fire-and-forget.
	s.prefs.Set(key, value)
	c.Status(http.StatusNoContent)
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.repo.PracticeStats(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
