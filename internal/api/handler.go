package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-drone-routes/internal/dispatch"
	"github.com/mr1hm/go-drone-routes/internal/mapview"
	"github.com/mr1hm/go-drone-routes/internal/metrics"
	"github.com/mr1hm/go-drone-routes/internal/models"
	"github.com/mr1hm/go-drone-routes/internal/repository"
	"github.com/mr1hm/go-drone-routes/internal/stream"
)

const maxDispatchBytes = 1 << 20

type Dispatcher interface {
	Submit(ctx context.Context, input string) (*dispatch.Outcome, error)
}

type MapRenderer interface {
	RenderPNG(w io.Writer) error
}

type Handler struct {
	dispatcher  Dispatcher
	view        *mapview.MapView
	renderer    MapRenderer
	repo        repository.RunRepository
	broadcaster *stream.Broadcaster
}

func NewHandler(dispatcher Dispatcher, view *mapview.MapView, renderer MapRenderer, repo repository.RunRepository, broadcaster *stream.Broadcaster) *Handler {
	return &Handler{
		dispatcher:  dispatcher,
		view:        view,
		renderer:    renderer,
		repo:        repo,
		broadcaster: broadcaster,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")
	v1.POST("/dispatch", h.dispatch)
	v1.GET("/overlays", h.getOverlays)
	v1.GET("/view", h.getView)
	v1.GET("/map.png", h.getMapPNG)
	v1.GET("/stream", h.stream)
	v1.GET("/runs", h.getRuns)
	v1.GET("/runs/:id", h.getRun)

	r.GET("/health", h.health)
	r.GET("/metrics", metrics.Handler())
}

func (h *Handler) dispatch(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxDispatchBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "dispatch body too large",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "failed to read dispatch body",
		})
		return
	}

	out, err := h.dispatcher.Submit(c.Request.Context(), string(body))
	if err != nil {
		c.JSON(dispatchStatus(err), gin.H{"error": dispatch.Message(err)})
		return
	}

	c.JSON(http.StatusOK, toDispatchResponse(out))
}

// dispatchStatus maps a Submit error to the status returned to the caller.
func dispatchStatus(err error) int {
	if errors.Is(err, dispatch.ErrSuperseded) {
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func (h *Handler) getOverlays(c *gin.Context) {
	fc := mapview.FeatureCollection(h.view.Layers().Overlays())
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) getView(c *gin.Context) {
	snap := h.view.Snapshot()
	width, height := h.view.Size()
	c.JSON(http.StatusOK, ViewResponse{
		Tiles:   h.view.Tiles(),
		View:    snap.View,
		Width:   width,
		Height:  height,
		Version: snap.Version,
	})
}

func (h *Handler) getMapPNG(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.renderer.RenderPNG(&buf); err != nil {
		slog.Error("failed to render map", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "failed to render map",
		})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (h *Handler) stream(c *gin.Context) {
	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// Current state first so a new client does not wait for the next render.
	c.SSEvent("snapshot", toSnapshotEvent(h.view.Snapshot()))
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case snap, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("snapshot", toSnapshotEvent(snap))
			return true
		}
	})
}

func (h *Handler) getRuns(c *gin.Context) {
	filter := repository.Filter{
		Limit: 20, // Default to 20 runs if limit param not supplied
	}

	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}
	if o := c.Query("outcome"); o != "" {
		outcome, ok := parseOutcome(o)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "unknown outcome: " + o,
			})
			return
		}
		filter.Outcome = &outcome
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filter.Since = &t
		} else if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}

	runs, err := h.repo.ListRuns(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch runs",
		})
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, r := range runs {
		resp = append(resp, toRunResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"runs": resp})
}

func (h *Handler) getRun(c *gin.Context) {
	run, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "run not found",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch run",
		})
		return
	}

	c.JSON(http.StatusOK, toRunResponse(*run))
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"subscribers":    h.broadcaster.SubscriberCount(),
		"stream_dropped": h.broadcaster.Dropped(),
	})
}

func parseOutcome(s string) (models.RunOutcome, bool) {
	switch o := models.RunOutcome(s); o {
	case models.RunOutcomeOK,
		models.RunOutcomeTransportError,
		models.RunOutcomeHTTPError,
		models.RunOutcomeDecodeError,
		models.RunOutcomeSuperseded:
		return o, true
	default:
		return "", false
	}
}
