package routes

import (
	"civicspotter/controllers"
	"civicspotter/middlewares"

	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue workflow routes.
func IssueRoutes(r *gin.Engine, ic *controllers.IssueController, limitKey string, dailyCap int) {
	issue := r.Group("/api")
	{
		issue.POST("/report", middlewares.IssueRateLimiter(limitKey, dailyCap), ic.SubmitReport)
		issue.GET("/issues", ic.ListIssues)
		issue.GET("/issue/:id", ic.GetIssue)
		issue.POST("/issue/:id/approve", ic.ApproveStage)
		issue.POST("/issue/:id/reject", ic.RejectIssue)
		issue.POST("/issue/:id/retry", ic.RetryStage)
		issue.POST("/sweep", ic.Sweep)
	}
}
