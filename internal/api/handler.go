package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-disaster-news/internal/models"
	"github.com/mr1hm/go-disaster-news/internal/newsapi"
	"github.com/mr1hm/go-disaster-news/internal/normalize"
	"github.com/mr1hm/go-disaster-news/internal/observability"
	"github.com/mr1hm/go-disaster-news/internal/repository"
	"github.com/mr1hm/go-disaster-news/internal/stream"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
)

// NewsSource is the normalized view of the upstream. *normalize.Normalizer satisfies it.
type NewsSource interface {
	FetchAndParse(ctx context.Context) ([]models.NewsReport, error)
	FetchByID(ctx context.Context, id string) (*models.NewsReport, error)
}

// NewsUpdater forwards edits upstream. *newsapi.Client satisfies it.
type NewsUpdater interface {
	UpdateNews(ctx context.Context, id string, u models.NewsUpdate) (json.RawMessage, error)
}

// Monitor is the probe scheduler. *monitor.Manager satisfies it.
type Monitor interface {
	Trigger(ctx context.Context) *models.RetrievalRun
	CheckReadiness(ctx context.Context) error
}

type Handler struct {
	news        NewsSource
	updater     NewsUpdater
	runs        repository.RunRepository
	monitor     Monitor
	broadcaster *stream.Broadcaster
	metrics     *observability.Metrics
}

func NewHandler(news NewsSource, updater NewsUpdater, runs repository.RunRepository, monitor Monitor, broadcaster *stream.Broadcaster, metrics *observability.Metrics) *Handler {
	return &Handler{
		news:        news,
		updater:     updater,
		runs:        runs,
		monitor:     monitor,
		broadcaster: broadcaster,
		metrics:     metrics,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/news", h.listNews)
	r.GET("/api/news/:id", h.getNews)
	r.PUT("/api/news/:id", h.updateNews)
	r.GET("/api/map/news", h.mapNews)

	r.GET("/api/runs", h.listRuns)
	r.POST("/api/runs", h.triggerRun)
	r.GET("/api/runs/stream", h.streamRuns)
	r.GET("/api/runs/:id", h.getRun)

	r.GET("/health", h.health)
	r.GET("/readyz", h.readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (h *Handler) listNews(c *gin.Context) {
	reports, err := h.news.FetchAndParse(c.Request.Context())
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"news": reports})
}

func (h *Handler) getNews(c *gin.Context) {
	report, err := h.news.FetchByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) updateNews(c *gin.Context) {
	var u models.NewsUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	body, err := h.updater.UpdateNews(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h *Handler) mapNews(c *gin.Context) {
	reports, err := h.news.FetchAndParse(c.Request.Context())
	if err != nil {
		h.upstreamError(c, err)
		return
	}

	fc := toGeoJSON(reports)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

// upstreamError maps retrieval failures onto HTTP statuses.
func (h *Handler) upstreamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, newsapi.ErrEmptyID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, normalize.ErrReportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "news not found"})
		return
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("upstream timed out", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "upstream timed out"})
		return
	}

	if te, ok := newsapi.AsTransportError(err); ok {
		if te.NotFound() {
			c.JSON(http.StatusNotFound, gin.H{"error": "news not found"})
			return
		}
		slog.Error("upstream request failed", "path", c.FullPath(), "error", err)
		resp := gin.H{"error": "upstream request failed"}
		if te.StatusCode != 0 {
			resp["upstream_status"] = te.StatusCode
		}
		c.JSON(http.StatusBadGateway, resp)
		return
	}

	if errors.Is(err, normalize.ErrMalformedLocation) ||
		errors.Is(err, normalize.ErrInvalidEnvelope) ||
		errors.Is(err, normalize.ErrMalformedRow) {
		slog.Error("upstream returned malformed news", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream returned malformed news"})
		return
	}

	slog.Error("news request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch news"})
}

type runResponse struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	DurationMs       int64     `json:"duration_ms"`
	Status           string    `json:"status"`
	ReportCount      int       `json:"report_count"`
	DroppedRows      int       `json:"dropped_rows"`
	DroppedLocations int       `json:"dropped_locations"`
	Error            string    `json:"error,omitempty"`
	UpstreamStatus   int       `json:"upstream_status,omitempty"`
}

func toRunResponse(r *models.RetrievalRun) runResponse {
	return runResponse{
		ID:               r.ID,
		StartedAt:        r.StartedAt,
		DurationMs:       r.Duration.Milliseconds(),
		Status:           string(r.Status),
		ReportCount:      r.ReportCount,
		DroppedRows:      r.DroppedRows,
		DroppedLocations: r.DroppedLocations,
		Error:            r.Error,
		UpstreamStatus:   r.UpstreamStatus,
	}
}

func (h *Handler) listRuns(c *gin.Context) {
	filter := repository.Filter{
		Limit: defaultRunLimit,
	}

	if s := c.Query("status"); s != "" {
		status := models.RunStatus(s)
		if status != models.RunStatusOK && status != models.RunStatusFailed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be ok or failed"})
			return
		}
		filter.Status = &status
	}
	if s := c.Query("since"); s != "" {
		t, ok := parseSince(s)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be YYYY-MM-DD or RFC 3339"})
			return
		}
		filter.Since = &t
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= maxRunLimit {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), filter)
	if err != nil {
		slog.Error("error listing runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch runs",
		})
		return
	}

	out := make([]runResponse, 0, len(runs))
	for i := range runs {
		out = append(out, toRunResponse(&runs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func parseSince(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (h *Handler) getRun(c *gin.Context) {
	run, err := h.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		slog.Error("error fetching run", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, toRunResponse(run))
}

// triggerRun probes the upstream now. The run is recorded asynchronously.
func (h *Handler) triggerRun(c *gin.Context) {
	run := h.monitor.Trigger(c.Request.Context())
	if run == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "probe cancelled"})
		return
	}
	c.JSON(http.StatusAccepted, toRunResponse(run))
}

// streamRuns pushes each recorded run as a server-sent event until the
// client leaves or the broadcaster closes.
func (h *Handler) streamRuns(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "streaming disabled"})
		return
	}

	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	h.metrics.StreamSubscribers.Inc()
	defer h.metrics.StreamSubscribers.Dec()

	slog.Debug("run stream opened", "subscriber", id)

	// Send headers now so clients see the stream before the first run.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case run, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("run", toRunResponse(run))
			return true
		case <-ctx.Done():
			return false
		}
	})

	slog.Debug("run stream closed", "subscriber", id)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (h *Handler) readyz(c *gin.Context) {
	ctx := c.Request.Context()

	if p, ok := h.runs.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database: " + err.Error()})
			return
		}
	}
	if err := h.monitor.CheckReadiness(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
