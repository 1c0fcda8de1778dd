package router

import (
	"context"
	"crypto/subtle"

	"cv-agent-go/internal/api/handler"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// APIKeyHeader 客户端携带 API Key 的请求头
const APIKeyHeader = "X-API-Key"

// RegisterRoutes 注册 API 路由
// apiKeys 非空时 /api/v1 下除健康检查外的接口都需要 API Key
func RegisterRoutes(h *server.Hertz, cvHandler *handler.CVHandler, apiKeys []string) {
	h.GET("/health", health)

	api := h.Group("/api/v1")
	api.GET("/health", health)

	protected := api.Group("")
	if len(apiKeys) > 0 {
		protected.Use(APIKeyAuth(apiKeys))
	}

	protected.POST("/cv/upload", cvHandler.HandleUpload)
	protected.GET("/cv/summary", cvHandler.HandleSummary)
	protected.GET("/cv/documents/:id", cvHandler.HandleGetDocument)

	protected.GET("/chat", cvHandler.HandleHistory)
	protected.POST("/chat", cvHandler.HandleChat)
	protected.POST("/chat/clear", cvHandler.HandleClearChat)

	protected.DELETE("/session", cvHandler.HandleDestroySession)
}

// APIKeyAuth 校验 X-API-Key 请求头
func APIKeyAuth(apiKeys []string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+APIKeyHeader, ""),
		keyauth.WithValidator(func(_ context.Context, _ *app.RequestContext, key string) (bool, error) {
			for _, k := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, nil
		}),
		keyauth.WithErrorHandler(func(_ context.Context, c *app.RequestContext, err error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "无效或缺失的 API Key"})
		}),
	)
}

func health(_ context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"status": "ok"})
}
