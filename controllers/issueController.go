package controllers

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"civicspotter/collab"
	"civicspotter/engine"
	"civicspotter/idgen"
	"civicspotter/models"
	"civicspotter/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IssueController exposes the lifecycle engine over HTTP.
type IssueController struct {
	Engine    *engine.Engine
	UploadDir string
}

// NewIssueController builds the controller. Uploaded photos are stored under
// uploadDir.
func NewIssueController(eng *engine.Engine, uploadDir string) *IssueController {
	return &IssueController{Engine: eng, UploadDir: uploadDir}
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// SubmitReport handles a citizen report: multipart photos plus issue type and
// optional device GPS coordinates.
func (ic *IssueController) SubmitReport(c *gin.Context) {
	var input struct {
		IssueType string   `form:"issue_type" binding:"required,max=100"`
		Latitude  *float64 `form:"latitude"`
		Longitude *float64 `form:"longitude"`
		Datetime  string   `form:"datetime"`
	}
	if err := c.ShouldBind(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	photos := form.File["photos"]
	if len(photos) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one photo is required"})
		return
	}

	imagePaths := make([]string, 0, len(photos))
	for _, photo := range photos {
		dst := filepath.Join(ic.UploadDir, uuid.NewString()+filepath.Ext(photo.Filename))
		if err := c.SaveUploadedFile(photo, dst); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store uploaded photo"})
			return
		}
		imagePaths = append(imagePaths, dst)
	}

	var external *collab.ExternalLocation
	if input.Latitude != nil && input.Longitude != nil {
		external = &collab.ExternalLocation{
			Latitude:  *input.Latitude,
			Longitude: *input.Longitude,
			Datetime:  input.Datetime,
		}
	}

	ctx, cancel := requestContext()
	defer cancel()

	result, err := ic.Engine.SubmitReport(ctx, imagePaths, input.IssueType, external)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrLocationMissing):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no usable location; issue could not be created"})
		case errors.Is(err, idgen.ErrLockUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "issue counter busy, try again"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create issue"})
		}
		return
	}

	status := http.StatusCreated
	if result.Merged {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// ListIssues returns summaries for a partition (default: active).
func (ic *IssueController) ListIssues(c *gin.Context) {
	partition := store.Partition(c.DefaultQuery("partition", "active"))
	if !partition.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid partition"})
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	issues, err := ic.Engine.ListIssues(ctx, partition)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list issues"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"partition": partition, "issues": issues})
}

// GetIssue returns the full record for an issue, wherever it currently lives.
func (ic *IssueController) GetIssue(c *gin.Context) {
	ctx, cancel := requestContext()
	defer cancel()

	rec, partition, err := ic.Engine.GetIssue(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve issue"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"partition": partition, "issue": rec})
}

// ApproveStage flips an operator approval and advances the issue when the
// approval covers its current stage.
func (ic *IssueController) ApproveStage(c *gin.Context) {
	var input struct {
		Stage string `json:"stage" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	rec, err := ic.Engine.ApproveStage(ctx, c.Param("id"), models.Stage(input.Stage))
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidStage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stage"})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to approve stage"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"issue": rec})
}

// RejectIssue moves an issue out of the active workflow permanently.
func (ic *IssueController) RejectIssue(c *gin.Context) {
	ctx, cancel := requestContext()
	defer cancel()

	if err := ic.Engine.RejectIssue(ctx, c.Param("id")); err != nil {
		switch {
		case errors.Is(err, engine.ErrNotRejectable):
			c.JSON(http.StatusConflict, gin.H{"error": "issue can only be rejected during metadata review"})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reject issue"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Issue rejected"})
}

// RetryStage re-runs the current stage's side effect after a recorded
// failure, without requiring re-approval.
func (ic *IssueController) RetryStage(c *gin.Context) {
	ctx, cancel := requestContext()
	defer cancel()

	rec, err := ic.Engine.RetryStage(ctx, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidStage), errors.Is(err, engine.ErrNotRetryable):
			c.JSON(http.StatusConflict, gin.H{"error": "issue is not in a retryable state"})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retry stage"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"issue": rec})
}

// Sweep triggers one pass of the batch driver over the active partition.
func (ic *IssueController) Sweep(c *gin.Context) {
	ctx, cancel := requestContext()
	defer cancel()

	if err := ic.Engine.Sweep(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "sweep completed"})
}
