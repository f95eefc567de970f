package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/insights"
	"github.com/jscharber/costlens/pkg/logger"
)

// InsightsController handles insight workflow endpoints.
type InsightsController struct {
	workflow *insights.Workflow
	logger   *logger.Logger
	tracer   trace.Tracer
}

// NewInsightsController creates an insights controller.
func NewInsightsController(workflow *insights.Workflow, log *logger.Logger) *InsightsController {
	if log == nil {
		log = logger.GetDefault()
	}
	return &InsightsController{
		workflow: workflow,
		logger:   log.WithField("component", "insights_api"),
		tracer:   otel.Tracer("api"),
	}
}

// RegisterRoutes registers insight endpoints on the router group.
func (c *InsightsController) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/insights")
	{
		group.POST("/:client_id", c.RunWorkflow)
		group.GET("/workflow/:workflow_id", c.GetWorkflow)
	}
}

// runWorkflowRequest is the body of POST /insights/:client_id.
type runWorkflowRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// RunWorkflow executes the insight workflow for a client. Low-confidence
// results are still 200s; callers weigh confidence_score themselves.
func (c *InsightsController) RunWorkflow(ctx *gin.Context) {
	clientID := ctx.Param("client_id")
	spanCtx, span := c.tracer.Start(ctx.Request.Context(), "api.run_insight_workflow",
		trace.WithAttributes(attribute.String("client_id", clientID)))
	defer span.End()

	var req runWorkflowRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	dateRange := costdata.DateRange{Start: req.StartDate, End: req.EndDate}
	if dateRange.Start == "" || dateRange.End == "" {
		now := time.Now().UTC()
		dateRange = costdata.DateRange{
			Start: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Format(costdata.DateFormat),
			End:   now.Format(costdata.DateFormat),
		}
	}
	if dateRange.Days() == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "start_date and end_date must be YYYY-MM-DD with start <= end"})
		return
	}

	result, err := c.workflow.RunWorkflow(spanCtx, clientID, dateRange)
	if err != nil {
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// GetWorkflow returns a completed workflow result by id.
func (c *InsightsController) GetWorkflow(ctx *gin.Context) {
	workflowID := ctx.Param("workflow_id")
	result, ok := c.workflow.GetWorkflow(workflowID)
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
		return
	}
	ctx.JSON(http.StatusOK, result)
}
