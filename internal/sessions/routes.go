package sessions

import (
	"github.com/gaigemini/telegram-hub/pkg/storage"
	"github.com/gaigemini/telegram-hub/pkg/telegram"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, db *storage.DB, reg *telegram.Registry) {
	handler := NewHandler(db, reg)

	session := r.Group("/session")
	session.GET("/:id/status", handler.Status)
	session.POST("/:id/disconnect", handler.Disconnect)
	session.DELETE("/:id", handler.Destroy)

	// Ручной повтор восстановления живёт отдельно от маршрутов с :id.
	r.POST("/sessions/restore", handler.Restore)
}
