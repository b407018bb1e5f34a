package middleware

import (
	"errors"
	"net/http"

	"seedloop-core/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error maps service errors onto HTTP responses. Internal detail is logged
// server-side and never echoed to the client.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}

		var base errutil.BaseError
		if errors.As(last.Err, &base) {
			if base.Code == errutil.StatusInternal {
				zap.L().Error("internal error", zap.String("path", c.FullPath()), zap.Error(last.Err))
			}
			c.JSON(base.Code.HTTPStatus(), base.JSON())
			return
		}

		zap.L().Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(last.Err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": "internal error",
			},
		})
	}
}
