package service

import (
	"fmt"
	"time"

	"github.com/abhijithm34/chat-app/internal/models"

	"gorm.io/gorm"
)

// MessageService 封装消息持久化：写入、按房间读取、文件引用脱敏。
type MessageService struct {
	db *gorm.DB
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

// MessageDTO 是对外输出的消息数据。
type MessageDTO struct {
	Type      string    `json:"type"`
	ID        uint      `json:"id"`
	Room      string    `json:"room"`
	Nickname  string    `json:"nickname"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	FileName  *string   `json:"file_name,omitempty"`
	FileURL   *string   `json:"file_url"`
	CreatedAt time.Time `json:"created_at"`
}

// Append 追加写入一条消息。存储故障返回 ErrPersistenceUnavailable，调用方降级为仅在线投递。
func (s *MessageService) Append(msg *models.Message) error {
	msg.RoomCode = NormalizeCode(msg.RoomCode)
	if err := s.db.Create(msg).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}

// ListByRoom 按创建顺序（id 升序）返回指定房间的消息。
func (s *MessageService) ListByRoom(code string, limit int) ([]MessageDTO, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var msgs []models.Message
	err := s.db.Where("room_code = ?", NormalizeCode(code)).Order("id desc").Limit(limit).Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}

	// 反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageDTO{
			Type:      "message",
			ID:        m.ID,
			Room:      m.RoomCode,
			Nickname:  m.Nickname,
			Kind:      m.Kind,
			Content:   m.Content,
			FileName:  m.FileName,
			FileURL:   m.FileURL,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

// RedactFileReferences 清空引用该文件的所有消息的 URL 并替换展示文本。
// 文件删除后调用，消息本身保留，历史里呈现为失效链接。
func (s *MessageService) RedactFileReferences(filename, replacement string) error {
	err := s.db.Model(&models.Message{}).
		Where("file_name = ?", filename).
		Updates(map[string]interface{}{"file_url": nil, "content": replacement}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}
