package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

type JobEngine interface {
	Submit(ctx context.Context, kind entity.JobKind, raw json.RawMessage, jobKey string, dedupe bool) (*entity.AnalysisJob, bool, error)
	Get(id string) (*entity.AnalysisJob, error)
	Result(id string) (*entity.AnalysisJob, error)
	Cancel(id string) error
	Events(id string) ([]entity.JobEvent, error)
	List() []*entity.AnalysisJob
}

type URLSigner interface {
	GetPresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type JobHandler struct {
	Engine JobEngine
	Signer URLSigner
}

func NewJobHandler(engine JobEngine, signer URLSigner) *JobHandler {
	return &JobHandler{Engine: engine, Signer: signer}
}

func (h *JobHandler) Register(g *gin.RouterGroup) {
	g.POST("/jobs", h.CreateJob)
	g.GET("/jobs", h.ListJobs)
	g.GET("/jobs/:job_id", h.GetJob)
	g.GET("/jobs/:job_id/result", h.GetResult)
	g.POST("/jobs/:job_id/cancel", h.CancelJob)
	g.GET("/jobs/:job_id/events", h.GetEvents)
}

type createJobRequest struct {
	JobType entity.JobKind  `json:"job_type" binding:"required"`
	Params  json.RawMessage `json:"params" binding:"required"`
	JobKey  string          `json:"job_key"`
	Dedupe  bool            `json:"dedupe"`
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, replayed, err := h.Engine.Submit(c.Request.Context(), req.JobType, req.Params, req.JobKey, req.Dedupe)
	if err != nil {
		h.writeError(c, err)
		return
	}
	// Resubmission of a known job key replays the existing job.
	if replayed {
		c.JSON(http.StatusOK, job)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.Engine.List()})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.Engine.Get(c.Param("job_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) GetResult(c *gin.Context) {
	job, err := h.Engine.Result(c.Param("job_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if job.ResultKey != "" {
		if h.Signer == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "result offloaded but no signer configured"})
			return
		}
		url, err := h.Signer.GetPresignedURL(c.Request.Context(), job.ResultKey, 24*time.Hour)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"job_id":     job.ID,
			"warnings":   job.Warnings,
			"result_url": url,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":   job.ID,
		"warnings": job.Warnings,
		"result":   job.Result,
	})
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	if err := h.Engine.Cancel(c.Param("job_id")); err != nil {
		h.writeError(c, err)
		return
	}
	job, err := h.Engine.Get(c.Param("job_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) GetEvents(c *gin.Context) {
	events, err := h.Engine.Events(c.Param("job_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *JobHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entity.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, entity.ErrJobNotCompleted), errors.Is(err, entity.ErrJobTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, entity.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, entity.ErrUnknownJobKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
