package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nubictl/nubi/internal/nerr"
)

// writeError maps a core error onto the taxonomy's HTTP status (spec §7):
// ReloadFailed is success-with-warning, everything else is a failure
// status with the error's message as the body.
func writeError(c *gin.Context, err error) {
	ne, ok := err.(*nerr.Error)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(ne.Kind.HTTPStatus(), gin.H{"error": ne.Message, "kind": ne.Kind, "diagnostic": ne.Diagnostic})
}
