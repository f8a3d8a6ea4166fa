package harvestmodule

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the harvest module routes
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/harvest")
	{
		api.POST("/sessions", m.startSession)
		api.GET("/sessions", m.listSessions)
		api.GET("/sessions/:id", m.getSession)
		api.GET("/sessions/:id/progress", m.getProgress)
		api.POST("/sessions/:id/pause", m.pauseSession)
		api.POST("/sessions/:id/resume", m.resumeSession)
		api.POST("/sessions/:id/stop", m.stopSession)
		api.DELETE("/sessions/:id", m.deleteSession)

		api.POST("/cleanup", m.cleanupSessions)
	}
}
