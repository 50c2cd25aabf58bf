package login

import (
	"net/http"

	"github.com/gaigemini/telegram-hub/internal/httputil"
	"github.com/gaigemini/telegram-hub/pkg/telegram"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Flow *telegram.LoginFlow
}

func NewHandler(flow *telegram.LoginFlow) *Handler {
	return &Handler{Flow: flow}
}

// StartLogin запрашивает код подтверждения для сессии.
func (h *Handler) StartLogin(c *gin.Context) {
	var req struct {
		SessionID   string `json:"session_id" binding:"required"`
		PhoneNumber string `json:"phone_number" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	out, err := h.Flow.StartLogin(c.Request.Context(), req.SessionID, req.PhoneNumber)
	if err != nil {
		httputil.RespondCoreError(c, err)
		return
	}
	if out.AlreadyAuthorized {
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "аккаунт уже авторизован"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "success",
		"message":         "код отправлен",
		"phone_code_hash": out.CodeHash,
	})
}

// SubmitCode подтверждает вход кодом из Telegram.
func (h *Handler) SubmitCode(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
		PhoneCode string `json:"phone_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	res, err := h.Flow.SubmitCode(c.Request.Context(), req.SessionID, req.PhoneCode)
	if err != nil {
		httputil.RespondCoreError(c, err)
		return
	}
	if res.Status == telegram.SignInPasswordNeeded {
		c.JSON(http.StatusOK, gin.H{"status": "2fa_required", "message": "аккаунт защищён паролем"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "user_id": res.User.EntityID})
}

// SubmitPassword подтверждает вход паролем второго фактора.
func (h *Handler) SubmitPassword(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
		Password  string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	res, err := h.Flow.SubmitPassword(c.Request.Context(), req.SessionID, req.Password)
	if err != nil {
		httputil.RespondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "user_id": res.User.EntityID})
}
