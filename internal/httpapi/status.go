package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Status(c.Request.Context()))
}
