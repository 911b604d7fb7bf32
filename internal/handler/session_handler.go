package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dpup/wayfinder/internal/cache"
	"github.com/dpup/wayfinder/internal/clients/location"
	"github.com/dpup/wayfinder/internal/lib/export"
	"github.com/dpup/wayfinder/internal/lib/geo"
	"github.com/dpup/wayfinder/internal/lib/routing"
	"github.com/dpup/wayfinder/internal/services"
	"github.com/dpup/wayfinder/internal/store"
)

// History lists journalled sessions.
type History interface {
	ListSessions(ctx context.Context, limit int) ([]store.Session, error)
	Events(ctx context.Context, id string) ([]store.Event, error)
}

// StartSessionRequest starts navigation either on a supplied route or on one
// planned from origin to destination. A missing origin defaults to the last
// reported location.
type StartSessionRequest struct {
	Route       *routing.Route `json:"route"`
	Origin      *geo.Point     `json:"origin"`
	Destination *geo.Point     `json:"destination"`
}

// LocationRequest reports a fix, or a location failure when Error is set.
type LocationRequest struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Error     string  `json:"error"`
}

// CommandRequest carries a recognized voice command.
type CommandRequest struct {
	Utterance string `json:"utterance" binding:"required"`
}

// CacheReporter is implemented by planners that cache routes.
type CacheReporter interface {
	CacheStats() cache.Stats
}

// SessionHandler exposes the navigation session over HTTP.
type SessionHandler struct {
	nav          *services.NavigationService
	planner      services.RouteProvider
	source       *location.PushSource
	dispatcher   *services.CommandDispatcher
	history      History
	historyLimit int
	logger       *zap.SugaredLogger
}

// NewSessionHandler creates a handler. history may be nil when the journal is
// disabled.
func NewSessionHandler(nav *services.NavigationService, planner services.RouteProvider, source *location.PushSource,
	dispatcher *services.CommandDispatcher, history History, historyLimit int, logger *zap.SugaredLogger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SessionHandler{
		nav:          nav,
		planner:      planner,
		source:       source,
		dispatcher:   dispatcher,
		history:      history,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Register mounts the API under /api/v1.
func (h *SessionHandler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.POST("/sessions", h.StartSession)
	v1.GET("/sessions/current", h.CurrentSession)
	v1.DELETE("/sessions/current", h.StopSession)
	v1.POST("/locations", h.ReportLocation)
	v1.POST("/commands", h.Command)
	v1.GET("/route.geojson", h.RouteGeoJSON)
	v1.GET("/route.kml", h.RouteKML)
	v1.GET("/history", h.ListHistory)
	v1.GET("/history/:id/events", h.SessionEvents)
	v1.GET("/debug/route-cache", h.RouteCacheStats)
}

// StartSession POST /api/v1/sessions
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid JSON format: "+err.Error())
		return
	}

	var route routing.Route
	switch {
	case req.Route != nil:
		route = *req.Route
	case req.Destination != nil:
		planned, ok := h.planRoute(c, req.Origin, *req.Destination)
		if !ok {
			return
		}
		route = *planned
	default:
		badRequest(c, "missing_parameter", "either route or destination is required")
		return
	}

	id, err := h.nav.Start(c.Request.Context(), route)
	if errors.Is(err, services.ErrEmptyRoute) {
		badRequest(c, "invalid_route", err.Error())
		return
	} else if err != nil {
		internalError(c, "Failed to start navigation", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": id,
		"route":      route,
	})
}

func (h *SessionHandler) planRoute(c *gin.Context, origin *geo.Point, destination geo.Point) (*routing.Route, bool) {
	if origin == nil {
		last, ok := h.source.LastKnown()
		if !ok {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "no_position",
				"message": "origin is required until a location has been reported",
			})
			return nil, false
		}
		origin = &last
	}
	distance, err := geo.PointToPoint(*origin, destination)
	if err != nil {
		badRequest(c, "invalid_parameter", "origin and destination must be valid coordinates")
		return nil, false
	}
	if distance <= h.nav.Thresholds().Arrival {
		badRequest(c, "already_at_destination", fmt.Sprintf("destination is %.0f meters away", distance))
		return nil, false
	}

	route, err := h.planner.ComputeRoute(c.Request.Context(), *origin, destination)
	if err != nil {
		h.logger.Warnw("Route planning failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "routing_failed",
			"message": "Failed to compute route: " + err.Error(),
		})
		return nil, false
	}
	return route, true
}

// CurrentSession GET /api/v1/sessions/current
func (h *SessionHandler) CurrentSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.nav.Current())
}

// StopSession DELETE /api/v1/sessions/current
func (h *SessionHandler) StopSession(c *gin.Context) {
	if err := h.nav.Stop(); err != nil {
		notNavigating(c)
		return
	}
	c.JSON(http.StatusOK, h.nav.Current())
}

// ReportLocation POST /api/v1/locations
func (h *SessionHandler) ReportLocation(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid JSON format: "+err.Error())
		return
	}

	if req.Error != "" {
		h.source.Fail(fmt.Errorf("%w: %s", location.ErrSignalLost, req.Error))
		c.JSON(http.StatusAccepted, gin.H{"accepted": true})
		return
	}

	point := geo.Point{Latitude: req.Latitude, Longitude: req.Longitude}
	if !point.IsValid() {
		badRequest(c, "invalid_parameter", "lat and lng must be valid coordinates")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": h.source.Push(point)})
}

// Command POST /api/v1/commands
func (h *SessionHandler) Command(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid JSON format: "+err.Error())
		return
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), req.Utterance)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, services.ErrUnknownCommand):
		badRequest(c, "unknown_command", err.Error())
	case errors.Is(err, services.ErrUnknownPlace):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_place", "message": err.Error()})
	case errors.Is(err, services.ErrNoPosition), errors.Is(err, services.ErrNotNavigating):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state", "message": err.Error()})
	default:
		h.logger.Warnw("Command failed", "utterance", req.Utterance, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "command_failed", "message": err.Error()})
	}
}

// RouteGeoJSON GET /api/v1/route.geojson
func (h *SessionHandler) RouteGeoJSON(c *gin.Context) {
	route, ok := h.nav.Route()
	if !ok {
		notNavigating(c)
		return
	}
	data, err := export.RouteGeoJSON(route)
	if err != nil {
		internalError(c, "Failed to render GeoJSON", err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

// RouteKML GET /api/v1/route.kml
func (h *SessionHandler) RouteKML(c *gin.Context) {
	route, ok := h.nav.Route()
	if !ok {
		notNavigating(c)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteRouteKML(&buf, routeName(route), route); err != nil {
		internalError(c, "Failed to render KML", err)
		return
	}
	c.Data(http.StatusOK, "application/vnd.google-earth.kml+xml", buf.Bytes())
}

// ListHistory GET /api/v1/history
func (h *SessionHandler) ListHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"sessions": []store.Session{}})
		return
	}

	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "invalid_parameter", "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessions, err := h.history.ListSessions(c.Request.Context(), limit)
	if err != nil {
		internalError(c, "Failed to list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// SessionEvents GET /api/v1/history/:id/events
func (h *SessionHandler) SessionEvents(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"events": []store.Event{}})
		return
	}
	events, err := h.history.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		internalError(c, "Failed to list events", err)
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// RouteCacheStats GET /api/v1/debug/route-cache
func (h *SessionHandler) RouteCacheStats(c *gin.Context) {
	reporter, ok := h.planner.(CacheReporter)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_cached",
			"message": "route planner does not cache routes",
		})
		return
	}
	c.JSON(http.StatusOK, reporter.CacheStats())
}

func routeName(route routing.Route) string {
	if route.Summary != "" {
		return "Walk via " + route.Summary
	}
	return "Walking route"
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   code,
		"message": message,
	})
}

func notNavigating(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   "not_navigating",
		"message": services.ErrNotNavigating.Error(),
	})
}

func internalError(c *gin.Context, message string, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": message + ": " + err.Error(),
	})
}
