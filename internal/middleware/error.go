package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/skara-labs/crowdgate/internal/pkg/apperrors"
	"github.com/skara-labs/crowdgate/internal/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error as
// an AppError body. Sale rejections are logged at warn, everything that
// maps to a 5xx at error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := asAppError(c.Errors.Last().Err)
		fields := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"code", appErr.Type,
		}
		if appErr.Kind != "" {
			fields = append(fields, "kind", appErr.Kind)
		}
		if n := len(c.Errors); n > 1 {
			fields = append(fields, "error_count", n)
		}

		ctx := c.Request.Context()
		if appErr.HTTPStatus >= 500 {
			logger.LogError(ctx, appErr, "Request failed", fields...)
		} else {
			logger.WarnContext(ctx, appErr.Message, fields...)
		}

		if c.Writer.Written() {
			return
		}
		c.JSON(appErr.HTTPStatus, appErr)
	}
}

func asAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.New(apperrors.ErrInternal, "internal error", err)
}
