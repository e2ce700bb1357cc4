package middleware

import (
	"errors"
	"net/http"

	"go-screening-backend/internal/delivery/http/response"
	"go-screening-backend/internal/domain"
	"go-screening-backend/pkg/apperror"
	"go-screening-backend/pkg/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func ErrorHandler(log *zap.Logger, audit *security.AuditLogger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		requestID := c.GetString(string(domain.KeyRequestID))

		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code < http.StatusInternalServerError {
			response.Error(c, appErr.Code, appErr.Message, appErr.Details)
			return
		}

		code, message := http.StatusInternalServerError, "An unexpected error occurred. Please try again later."
		if appErr != nil && appErr.Code != http.StatusInternalServerError {
			// 503 and friends keep their message; the cause stays in the log
			code, message = appErr.Code, appErr.Message
		}
		log.Error("request failed",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", code),
			zap.Error(err),
		)
		if code == http.StatusInternalServerError {
			audit.Log(c.Request.Context(), security.SecurityEvent{
				Event:     security.EventServerError,
				IP:        c.ClientIP(),
				RequestID: requestID,
				Details:   map[string]interface{}{"path": c.FullPath()},
			})
		}
		response.Error(c, code, message, nil)
	}
}
