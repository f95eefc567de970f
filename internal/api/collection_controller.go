// Package api exposes the collection and insight cores over a small REST
// surface. It is an operational interface for the pipeline itself, not a
// dashboard backend.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jscharber/costlens/pkg/collection"
	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/logger"
)

// CollectionController handles collection orchestration endpoints.
type CollectionController struct {
	orchestrator *collection.Orchestrator
	logger       *logger.Logger
	tracer       trace.Tracer
}

// NewCollectionController creates a collection controller.
func NewCollectionController(orchestrator *collection.Orchestrator, log *logger.Logger) *CollectionController {
	if log == nil {
		log = logger.GetDefault()
	}
	return &CollectionController{
		orchestrator: orchestrator,
		logger:       log.WithField("component", "collection_api"),
		tracer:       otel.Tracer("api"),
	}
}

// RegisterRoutes registers collection endpoints on the router group.
func (c *CollectionController) RegisterRoutes(router *gin.RouterGroup) {
	collections := router.Group("/collections")
	{
		collections.POST("/:client_id", c.StartCollection)
		collections.GET("/:orchestration_id", c.GetCollection)
		collections.DELETE("/:orchestration_id", c.CancelCollection)
	}
}

// startCollectionRequest is the body of POST /collections/:client_id.
type startCollectionRequest struct {
	StartDate string                   `json:"start_date"`
	EndDate   string                   `json:"end_date"`
	Providers []costdata.CloudProvider `json:"providers,omitempty"`
	Priority  collection.TaskPriority  `json:"priority,omitempty"`
}

// StartCollection orchestrates a collection run for a client. A PARTIAL
// result is still a 200: callers distinguish degraded outcomes by status.
func (c *CollectionController) StartCollection(ctx *gin.Context) {
	clientID := ctx.Param("client_id")
	spanCtx, span := c.tracer.Start(ctx.Request.Context(), "api.start_collection",
		trace.WithAttributes(attribute.String("client_id", clientID)))
	defer span.End()

	var req startCollectionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	dateRange := costdata.DateRange{Start: req.StartDate, End: req.EndDate}
	if dateRange.Start == "" || dateRange.End == "" {
		yesterday := time.Now().UTC().AddDate(0, 0, -1).Format(costdata.DateFormat)
		dateRange = costdata.DateRange{Start: yesterday, End: yesterday}
	}
	if dateRange.Days() == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "start_date and end_date must be YYYY-MM-DD with start <= end"})
		return
	}

	result, err := c.orchestrator.OrchestrateCollection(spanCtx, clientID, dateRange, req.Providers, req.Priority)
	if err != nil {
		// Precondition failures (unknown client, no accounts) are the
		// caller's error; the synthetic result carries the detail.
		ctx.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// GetCollection returns an orchestration result by id.
func (c *CollectionController) GetCollection(ctx *gin.Context) {
	orchestrationID := ctx.Param("orchestration_id")
	result, ok := c.orchestrator.GetOrchestration(orchestrationID)
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "orchestration not found"})
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// CancelCollection cancels an in-flight orchestration, best effort.
func (c *CollectionController) CancelCollection(ctx *gin.Context) {
	orchestrationID := ctx.Param("orchestration_id")
	if !c.orchestrator.CancelOrchestration(orchestrationID) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "orchestration not found or already finished"})
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{"orchestration_id": orchestrationID, "cancelled": true})
}
