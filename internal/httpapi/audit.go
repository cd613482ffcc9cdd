package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) listAudit(c *gin.Context) {
	c.JSON(http.StatusOK, s.audit.Recent())
}
