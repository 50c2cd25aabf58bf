package messages

import (
	"github.com/gaigemini/telegram-hub/pkg/telegram"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.RouterGroup, reg *telegram.Registry, resolver *telegram.Resolver) {
	handler := NewHandler(reg, resolver)
	r.POST("/send", handler.SendMessage)
}
