package security

import (
	"net/http"
	"strings"

	"PPInbox/tools/errs"
	"PPInbox/tools/security"

	"github.com/gin-gonic/gin"
)

// —— context key ——
// 后续 handler 统一用这个 key 读取会话身份
const CtxAgentClaims = "agentClaims"

type Options struct {
	JWT security.Options

	// 读取哪个请求头；默认 Authorization: Bearer xxx
	HeaderToken               string
	EnableAuthorizationBearer bool
}

func DefaultOptions(jwt security.Options) *Options {
	return &Options{
		JWT:                       jwt,
		HeaderToken:               "authorization",
		EnableAuthorizationBearer: true,
	}
}

// Middleware 校验会话 JWT，写入 AgentClaims；失败直接 401 短路
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token = strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// 兼容 Authorization: Bearer xxx
		if opts.EnableAuthorizationBearer {
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[len("bearer "):])
			}
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
			return
		}

		claims, err := security.Verify(opts.JWT, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid.WithDetail(err.Error()))
			return
		}

		c.Set(CtxAgentClaims, claims)
		c.Next()
	}
}

// ClaimsFrom handler 里取会话身份；没有（未挂鉴权中间件）返回 nil
func ClaimsFrom(c *gin.Context) *security.AgentClaims {
	v, ok := c.Get(CtxAgentClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*security.AgentClaims)
	return claims
}

// HasTeamRole 团队管理权限：manager / admin
func HasTeamRole(claims *security.AgentClaims) bool {
	if claims == nil {
		return false
	}
	return claims.Role == "manager" || claims.Role == "admin"
}
