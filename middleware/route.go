package middleware

import (
	"time"

	midsec "PPInbox/middleware/security"

	"github.com/gin-gonic/gin"
)

// RouteOpt 配置选项
type RouteOpt struct {
	IsAuth bool             // 挂会话鉴权
	Auth   *midsec.Options  // IsAuth 时必填
	Limit  int64            // >0 时挂准入闸
	Window time.Duration
}

func (o RouteOpt) chain(handler gin.HandlerFunc) []gin.HandlerFunc {
	var hs []gin.HandlerFunc
	if o.Limit > 0 {
		hs = append(hs, RateLimit(o.Limit, o.Window))
	}
	if o.IsAuth {
		hs = append(hs, midsec.Middleware(o.Auth))
	}
	return append(hs, handler)
}

// POST 封装
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.POST(path, opt.chain(handler)...)
}

// GET 封装
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.GET(path, opt.chain(handler)...)
}
