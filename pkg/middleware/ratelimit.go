package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"seedloop-core/pkg/errutil"
	"seedloop-core/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimit gates a route group by the shared fixed-window limiter. The
// bucket key is an opaque hash of the caller identity so raw user ids never
// land in the counter table.
func RateLimit(limiter *ratelimit.Limiter, scope string, limit int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.GetHeader("X-User-Id")
		if identity == "" {
			identity = c.ClientIP()
		}

		res, err := limiter.Check(c.Request.Context(), hashKey(scope, identity), limit, window)
		if err != nil {
			// A broken limiter must not take the API down with it.
			zap.L().Error("rate limit check failed", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}

		if !res.Allowed {
			c.AbortWithStatusJSON(errutil.StatusTooManyRequests.HTTPStatus(), gin.H{
				"error": gin.H{
					"code":    errutil.StatusTooManyRequests,
					"message": "rate limit exceeded, back off and retry on the next window",
				},
			})
			return
		}

		c.Next()
	}
}

func hashKey(scope, identity string) string {
	sum := sha256.Sum256([]byte(scope + ":" + identity))
	return scope + ":" + hex.EncodeToString(sum[:8])
}
