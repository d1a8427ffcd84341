package server

import (
	"net/http"
	"os"
	"time"

	"github.com/abhijithm34/chat-app/internal/config"
	"github.com/abhijithm34/chat-app/internal/metrics"
	"github.com/abhijithm34/chat-app/internal/mw"
	"github.com/abhijithm34/chat-app/internal/rooms"
	"github.com/abhijithm34/chat-app/internal/service"
	"github.com/abhijithm34/chat-app/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化 Gin 中间件、REST API、上传与 WebSocket 端点。
func SetupRouter(cfg config.Config, h *Handler, hub *ws.Hub, dir *rooms.Directory, roomSvc *service.RoomService, msgSvc *service.MessageService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的速率，上传和加入接口尤其需要。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.GET("/rooms/:code", h.GetRoom)
	api.GET("/rooms/:code/messages", h.ListMessages)
	api.POST("/upload", h.Upload)

	r.GET("/ws", ws.Serve(hub, dir, roomSvc, msgSvc, cfg))

	// 上传的字节按稳定前缀原样回放；过期后文件消失，链接自然失效。
	r.Static("/uploads", cfg.UploadDir)
	// 前端资源目录不存在时不挂载，避免注册一条死路由。
	if _, err := os.Stat(cfg.StaticDir); err == nil {
		r.Static("/static", cfg.StaticDir)
	}

	return r
}
