package httputil

import (
	"errors"
	"net/http"

	"github.com/gaigemini/telegram-hub/pkg/telegram"

	"github.com/gin-gonic/gin"
)

// RespondError отправляет сообщение об ошибке в едином формате и прекращает обработку запроса.
// Используем AbortWithStatusJSON, чтобы последующие обработчики не выполнялись, даже если забыли вернуть управление.
func RespondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// RespondCoreError переводит типизированную ошибку ядра в HTTP-ответ:
// статус по виду ошибки, человекочитаемое сообщение и рекомендация
// (retry / restart_login / fatal). Для ErrorRateLimited добавляется
// подсказка, сколько секунд подождать.
func RespondCoreError(c *gin.Context, err error) {
	var coreErr *telegram.Error
	if !errors.As(err, &coreErr) {
		RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch coreErr.Kind {
	case telegram.ErrorInvalidInput:
		status = http.StatusBadRequest
	case telegram.ErrorAuthRejected:
		status = http.StatusUnauthorized
	case telegram.ErrorNotFound:
		status = http.StatusNotFound
	case telegram.ErrorRateLimited:
		status = http.StatusTooManyRequests
	case telegram.ErrorStorageUnavailable, telegram.ErrorConnectionFailed:
		status = http.StatusServiceUnavailable
	}

	body := gin.H{
		"error":  coreErr.Message,
		"action": string(coreErr.Advice()),
	}
	if coreErr.RetryAfter > 0 {
		body["retry_after"] = int(coreErr.RetryAfter.Seconds())
	}
	c.AbortWithStatusJSON(status, body)
}
