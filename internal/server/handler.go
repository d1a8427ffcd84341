package server

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abhijithm34/chat-app/internal/config"
	"github.com/abhijithm34/chat-app/internal/files"
	"github.com/abhijithm34/chat-app/internal/metrics"
	"github.com/abhijithm34/chat-app/internal/models"
	"github.com/abhijithm34/chat-app/internal/rooms"
	"github.com/abhijithm34/chat-app/internal/service"
	"github.com/abhijithm34/chat-app/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// 上传类型白名单：常见图片、pdf、doc/docx 和纯文本。
func allowedMime(mimeType string) bool {
	switch mimeType {
	case "image/png", "image/jpeg", "image/gif", "image/webp",
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"text/plain":
		return true
	}
	return false
}

// Handler 聚合所有 HTTP handler，依赖注入 service 层与文件管理。
type Handler struct {
	cfg     config.Config
	roomSvc *service.RoomService
	msgSvc  *service.MessageService
	keeper  *files.Keeper
	hub     *ws.Hub
	dir     *rooms.Directory
}

func NewHandler(cfg config.Config, roomSvc *service.RoomService, msgSvc *service.MessageService, keeper *files.Keeper, hub *ws.Hub, dir *rooms.Directory) *Handler {
	return &Handler{cfg: cfg, roomSvc: roomSvc, msgSvc: msgSvc, keeper: keeper, hub: hub, dir: dir}
}

// GetRoom 按房间码返回房间元数据。
func (h *Handler) GetRoom(c *gin.Context) {
	code := service.NormalizeCode(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room code"})
		return
	}
	room, err := h.roomSvc.GetByCode(code)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		log.Error().Err(err).Str("room", code).Msg("get room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":           room.Code,
		"creator":        room.CreatorNick,
		"persist":        room.Persist,
		"created_at":     room.CreatedAt,
		"online":         h.hub.Online(room.Code),
		"active_members": h.dir.Active(room.Code),
	})
}

// ListMessages 按创建顺序（升序）返回房间的持久化消息。
// 已过期文件的消息 file_url 为 null，由前端呈现为失效链接。
func (h *Handler) ListMessages(c *gin.Context) {
	code := service.NormalizeCode(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room code"})
		return
	}
	if _, err := h.roomSvc.GetByCode(code); err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		log.Error().Err(err).Str("room", code).Msg("get room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	limit := 200
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	msgs, err := h.msgSvc.ListByRoom(code, limit)
	if err != nil {
		log.Error().Err(err).Str("room", code).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Upload 接收 multipart 文件：校验大小与类型，生成碰撞安全的文件名落盘，
// 交给生命周期管理调度过期，再按房间持久化开关写消息并广播文件事件。
// 校验全部在落盘前完成，拒绝的请求不留下半成品文件。
func (h *Handler) Upload(c *gin.Context) {
	code := service.NormalizeCode(c.PostForm("room"))
	nick := strings.TrimSpace(c.PostForm("nickname"))
	if code == "" || nick == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room and nickname are required"})
		return
	}
	room, err := h.roomSvc.GetByCode(code)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		log.Error().Err(err).Str("room", code).Msg("get room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fh.Size > h.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	mimeType := fh.Header.Get("Content-Type")
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			mimeType = byExt
			if i := strings.Index(mimeType, ";"); i >= 0 {
				mimeType = strings.TrimSpace(mimeType[:i])
			}
		}
	}
	if !allowedMime(mimeType) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported file type"})
		return
	}

	// 文件名由服务端生成：时间戳 + 随机后缀，绝不采用客户端名称。
	name := strconv.FormatInt(time.Now().UnixNano(), 10) + "_" + uuid.NewString()[:8] + ext
	dst := filepath.Join(h.cfg.UploadDir, name)
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		log.Error().Err(err).Str("file", name).Msg("save upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	expiresAt, err := h.keeper.Register(name, room.Code, fh.Filename, mimeType, fh.Size)
	if err != nil {
		_ = os.Remove(dst)
		log.Error().Err(err).Str("file", name).Msg("register upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	metrics.FilesUploadedTotal.Inc()

	url := "/uploads/" + name
	msg := models.Message{
		RoomCode:  room.Code,
		Nickname:  nick,
		Kind:      models.KindFile,
		Content:   strings.TrimSpace(c.PostForm("caption")),
		FileName:  &name,
		FileURL:   &url,
		CreatedAt: time.Now(),
	}
	if room.Persist {
		if err := h.msgSvc.Append(&msg); err != nil {
			log.Error().Err(err).Str("room", room.Code).Msg("append file message")
		}
	}
	h.hub.Publish(room.Code, ws.MessageEvent{
		Type:      ws.EvMessage,
		Room:      room.Code,
		Nickname:  nick,
		Kind:      models.KindFile,
		Content:   msg.Content,
		FileName:  &name,
		FileURL:   &url,
		CreatedAt: msg.CreatedAt,
	})

	c.JSON(http.StatusOK, gin.H{
		"file_name":     name,
		"url":           url,
		"mime":          mimeType,
		"original_name": fh.Filename,
		"expires_at":    expiresAt,
	})
}
