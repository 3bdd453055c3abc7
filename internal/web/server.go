// Package web serves the local HTTP API the practice front-end talks to.
package web

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/parleyhq/parley/internal/analysis"
	"github.com/parleyhq/parley/internal/errors"
	"github.com/parleyhq/parley/internal/news"
	"github.com/parleyhq/parley/internal/prefs"
	"github.com/parleyhq/parley/internal/recording"
)

// Analyzer runs the remote analysis pipeline for one payload.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request, onProgress analysis.ProgressFunc) (*analysis.Result, error)
}

// NewsFetcher returns practice-topic headlines.
type NewsFetcher interface {
	Topics(ctx context.Context, topic string) ([]news.Headline, error)
}

// Server wires the repository and the external collaborators into an HTTP
// API. Analysis runs are tracked in memory; they do not survive a restart.
type Server struct {
	repo     *recording.Repository
	analyzer Analyzer
	news     NewsFetcher
	prefs    *prefs.Store
	log      *logrus.Logger

	mu   sync.Mutex
	jobs map[string]*analysisJob
}

// NewServer creates a Server. analyzer and newsFetcher may be nil when the
// corresponding service is not configured; their routes then return errors.
func NewServer(repo *recording.Repository, analyzer Analyzer, newsFetcher NewsFetcher, prefStore *prefs.Store, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		repo:     repo,
		analyzer: analyzer,
		news:     newsFetcher,
		prefs:    prefStore,
		log:      log,
		jobs:     make(map[string]*analysisJob),
	}
}

// Router builds the gin engine with all API routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	{
		api.GET("/recordings", s.listRecordings)
		api.POST("/recordings", s.createRecording)
		api.GET("/recordings/:id", s.getRecording)
		api.GET("/recordings/:id/media", s.getMedia)
		api.DELETE("/recordings/:id", s.deleteRecording)
		api.POST("/recordings/:id/analyze", s.startAnalysis)
		api.GET("/analyses/:id", s.getAnalysis)
		api.GET("/news", s.getNews)
		api.GET("/stats", s.getStats)
		api.GET("/prefs", s.getPrefs)
		api.PUT("/prefs/:key", s.putPref)
	}
	return r
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	var perr *errors.ParleyError
	if !stderrors.As(err, &perr) {
		perr = errors.NewInternal(err)
	}
	c.JSON(perr.Status, gin.H{
		"error": gin.H{
			"code":    perr.Code,
			"message": perr.Message,
			"details": perr.Details,
		},
	})
}
