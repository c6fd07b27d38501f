package middleware

import (
	"net/http"
	"strconv"
	"time"

	"PPInbox/logger"
	"PPInbox/service/storage"
	"PPInbox/tools/errs"

	"github.com/gin-gonic/gin"
)

// RateLimit 准入闸（固定窗口，按来源IP计数）
// 拒绝必须发生在一切核心处理之前；Redis 故障时放行并告警（闸门挂了不挡业务）
func RateLimit(limit int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		source := c.ClientIP()

		res, err := storage.Allow(c.Request.Context(), source, limit, window)
		if err != nil {
			logger.Warnf("[ratelimit] allow failed source=%s err=%v (fail open)", source, err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errs.ErrRateLimited)
			return
		}
		c.Next()
	}
}
