package messages

import (
	"net/http"

	"github.com/gaigemini/telegram-hub/internal/httputil"
	"github.com/gaigemini/telegram-hub/pkg/telegram"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Registry *telegram.Registry
	Resolver *telegram.Resolver
}

func NewHandler(reg *telegram.Registry, resolver *telegram.Resolver) *Handler {
	return &Handler{Registry: reg, Resolver: resolver}
}

// SendMessage отправляет текст в чат по неоднозначной ссылке:
// числовому ID, @username или телефону.
func (h *Handler) SendMessage(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
		ChatID    string `json:"chat_id" binding:"required"`
		Message   string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	ctx := c.Request.Context()
	if !h.Registry.IsAuthenticated(ctx, req.SessionID) {
		httputil.RespondError(c, http.StatusUnauthorized, "сессия не авторизована, выполните вход")
		return
	}

	peer, err := h.Resolver.Resolve(ctx, req.SessionID, req.ChatID)
	if err != nil {
		httputil.RespondCoreError(c, err)
		return
	}

	handle, err := h.Registry.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		httputil.RespondCoreError(c, err)
		return
	}
	if err := handle.Client.SendMessage(ctx, peer, req.Message); err != nil {
		httputil.RespondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "сообщение отправлено"})
}
