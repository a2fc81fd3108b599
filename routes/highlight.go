package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"doc-rag-platform/internal/highlight"
	"doc-rag-platform/utils"
)

type highlightRequest struct {
	Polygon            []float64 `json:"polygon" binding:"required"`
	Scale              float64   `json:"scale" binding:"required,gt=0"`
	RenderedPageHeight float64   `json:"rendered_page_height" binding:"required,gt=0"`
}

// SetupHighlightRoutes registers the highlight geometry endpoint.
func SetupHighlightRoutes(router *gin.Engine) {
	router.POST("/api/highlight", HandleHighlight())
}

// HandleHighlight converts a reference's bounding polygon into a rendered
// rectangle for the viewer. Stateless: the caller sends the polygon it got
// from a reference plus its render parameters. A polygon that cannot produce
// a rectangle yields a null highlight, not an error, so chunks without
// geometry degrade gracefully.
func HandleHighlight() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req highlightRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "polygon, scale, and rendered_page_height are required", err.Error())
			return
		}

		rect, ok := highlight.Locate(req.Polygon, req.Scale, req.RenderedPageHeight)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"highlight": nil})
			return
		}

		c.JSON(http.StatusOK, gin.H{"highlight": rect})
	}
}
