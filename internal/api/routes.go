package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/synapse-fi/bridge-hub/internal/config"
	"github.com/synapse-fi/bridge-hub/internal/hub"
	"github.com/synapse-fi/bridge-hub/pkg/models"
)

type APIHandler struct {
	hub    *hub.Hub
	stream *StreamHub
}

func SetupRouter(h *hub.Hub, stream *StreamHub, apiKey string) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://portal.synapse-fi.example
	// Development: leave empty for *
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-API-Key, X-Request-ID, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.Use(RequestIDMiddleware())

	handler := &APIHandler{hub: h, stream: stream}

	// Public endpoints: discovery and liveness only.
	r.GET("/", handler.handleRoot)
	r.GET("/health", handler.handleHealth)

	limiter := NewRateLimiter(600, 60)

	protected := r.Group("/")
	protected.Use(AuthMiddleware(apiKey), limiter.Middleware())
	{
		protected.POST("/ingest", handler.handleIngest)
		protected.GET("/advisories", handler.handleAdvisories)
		protected.GET("/advisories/:advisory_id", handler.handleAdvisoryByID)
		protected.GET("/patterns/:fingerprint", handler.handlePatternHistory)
		protected.GET("/entities/:entity_id/activity", handler.handleEntityActivity)
		protected.GET("/stats", handler.handleStats)
		protected.GET("/metrics", handler.handleMetrics)
		protected.GET("/metrics/prometheus", gin.WrapH(
			promhttp.HandlerFor(h.Tracker().Registry(), promhttp.HandlerOpts{})))
		protected.GET("/stream", stream.Subscribe)

		admin := protected.Group("/admin")
		{
			admin.GET("/graph/nodes", handler.handleGraphNodes)
			admin.GET("/graph/edges", handler.handleGraphEdges)
			admin.POST("/config/update", handler.handleConfigUpdate)
		}
	}

	return r
}

// handleRoot returns the service banner for discovery.
func (h *APIHandler) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     "SYNAPSE-FI BRIDGE Hub",
		"description": "Collective fraud intelligence for financial institutions",
		"privacy":     "Behavioral fingerprints only. No PII crosses this service.",
		"endpoints": []string{
			"POST /ingest", "GET /advisories", "GET /advisories/:advisory_id",
			"GET /patterns/:fingerprint", "GET /entities/:entity_id/activity",
			"GET /stats", "GET /metrics", "GET /metrics/prometheus",
			"GET /stream", "GET /health",
		},
	})
}

// handleHealth reports liveness. Public: load balancers do not authenticate.
func (h *APIHandler) handleHealth(c *gin.Context) {
	hs := h.hub.Health()
	status := http.StatusOK
	if hs.Status != "HEALTHY" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, hs)
}

// handleIngest accepts one risk fingerprint and runs it through the full
// pipeline synchronously. 202 because the advisory side effects (broadcast,
// peer consumption) complete after the response.
func (h *APIHandler) handleIngest(c *gin.Context) {
	var fp models.RiskFingerprint
	if err := c.ShouldBindJSON(&fp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	res, err := h.hub.Ingest(c.Request.Context(), fp)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, res)
}

// handleAdvisories returns recent advisories, newest first.
// Query: limit (default 10), severity (optional filter).
func (h *APIHandler) handleAdvisories(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	severity := c.Query("severity")

	advisories := h.hub.Advisories(limit, severity)
	c.JSON(http.StatusOK, gin.H{
		"advisories": advisories,
		"count":      len(advisories),
	})
}

func (h *APIHandler) handleAdvisoryByID(c *gin.Context) {
	adv, err := h.hub.AdvisoryByID(c.Param("advisory_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, adv)
}

// handlePatternHistory returns the introspection view for one fingerprint.
// Query: hours (default 1).
func (h *APIHandler) handlePatternHistory(c *gin.Context) {
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "1"))

	details, err := h.hub.PatternHistory(c.Param("fingerprint"), hours)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// handleEntityActivity returns the observations one entity contributed.
// Query: hours (default 1).
func (h *APIHandler) handleEntityActivity(c *gin.Context) {
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "1"))
	entityID := c.Param("entity_id")

	activity := h.hub.EntityActivity(entityID, hours)
	c.JSON(http.StatusOK, gin.H{
		"entity_id":    entityID,
		"observations": activity,
		"count":        len(activity),
	})
}

func (h *APIHandler) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}

func (h *APIHandler) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.MetricsSummary())
}

// handleGraphNodes dumps all pattern nodes for operator inspection.
func (h *APIHandler) handleGraphNodes(c *gin.Context) {
	nodes := h.hub.Graph().DumpNodes()
	c.JSON(http.StatusOK, gin.H{"nodes": nodes, "count": len(nodes)})
}

// handleGraphEdges dumps all observation edges for operator inspection.
func (h *APIHandler) handleGraphEdges(c *gin.Context) {
	edges := h.hub.Graph().DumpEdges()
	c.JSON(http.StatusOK, gin.H{"edges": edges, "count": len(edges)})
}

// handleConfigUpdate applies a runtime tuning patch. Rejected patches leave
// the old config in place.
func (h *APIHandler) handleConfigUpdate(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	next, err := h.hub.UpdateConfig(patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "config": next})
}

// respondError maps the hub's error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, hub.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, hub.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, hub.ErrCapacity):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "transient": true})
	case errors.Is(err, config.ErrConfig):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
