package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nubictl/nubi/internal/model"
)

func (s *Server) listProviders(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.ListNotificationProviders())
}

func (s *Server) createProvider(c *gin.Context) {
	var p model.NotificationProvider
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := s.store.CreateNotificationProvider(&p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) updateProvider(c *gin.Context) {
	var p model.NotificationProvider
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := s.store.UpdateNotificationProvider(c.Param("id"), &p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteProvider(c *gin.Context) {
	if err := s.store.DeleteNotificationProvider(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notification provider deleted"})
}

// testProvider sends an unconditional test message, bypassing the
// per-event filter flags, so an operator can confirm delivery before
// enabling a provider.
func (s *Server) testProvider(c *gin.Context) {
	p, err := s.store.GetNotificationProvider(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.notify.TestProvider(p); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "test notification sent"})
}
