package sessions

import (
	"net/http"

	"github.com/gaigemini/telegram-hub/internal/httputil"
	"github.com/gaigemini/telegram-hub/pkg/storage"
	"github.com/gaigemini/telegram-hub/pkg/telegram"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	DB       *storage.DB
	Registry *telegram.Registry
}

func NewHandler(db *storage.DB, reg *telegram.Registry) *Handler {
	return &Handler{DB: db, Registry: reg}
}

// Status отвечает, авторизована ли сессия с точки зрения Telegram.
func (h *Handler) Status(c *gin.Context) {
	sessionID := c.Param("id")
	authorized := h.Registry.IsAuthenticated(c.Request.Context(), sessionID)
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "authorized": authorized})
}

// Disconnect разрывает живое подключение сессии. Сохранённые учётные
// данные не трогаются: сессию можно восстановить позже.
func (h *Handler) Disconnect(c *gin.Context) {
	sessionID := c.Param("id")
	h.Registry.Disconnect(c.Request.Context(), sessionID)
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "сессия отключена"})
}

// Destroy навсегда удаляет сессию: подключение, учётные данные и кеш
// сущностей.
func (h *Handler) Destroy(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.Registry.DestroySession(c.Request.Context(), sessionID); err != nil {
		httputil.RespondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "сессия удалена"})
}

// Restore вручную повторяет процедуру восстановления сессий.
func (h *Handler) Restore(c *gin.Context) {
	restored, err := telegram.RestoreAll(c.Request.Context(), h.DB, h.Registry)
	if err != nil {
		httputil.RespondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "restored": restored})
}
