package login

import (
	"github.com/gaigemini/telegram-hub/pkg/telegram"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.RouterGroup, flow *telegram.LoginFlow) {
	handler := NewHandler(flow)
	r.POST("/start", handler.StartLogin)
	r.POST("/code", handler.SubmitCode)
	r.POST("/password", handler.SubmitPassword)
}
