package middlewares

import (
	"net/http"
	"time"

	"civicspotter/config"

	"github.com/gin-gonic/gin"
)

// IssueRateLimiter caps how many reports a single client may submit per day,
// backed by a Redis counter with a 24h TTL. When no Redis client is
// configured the limiter is a no-op.
func IssueRateLimiter(keyPrefix string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.RedisClient == nil {
			c.Next()
			return
		}

		// No authentication in this service; the client IP is the best
		// available submitter identity.
		clientKey := keyPrefix + ":" + c.ClientIP()
		ctx := config.Ctx

		count, err := config.RedisClient.Incr(ctx, clientKey).Result()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redis error incrementing count"})
			c.Abort()
			return
		}

		// Set TTL only for the first increment (when count = 1)
		if count == 1 {
			if err := config.RedisClient.Expire(ctx, clientKey, 24*time.Hour).Err(); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "redis error setting TTL"})
				c.Abort()
				return
			}
		}

		if count > int64(limit) {
			retryAfter, _ := config.RedisClient.TTL(ctx, clientKey).Result()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
