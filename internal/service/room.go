package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/abhijithm34/chat-app/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoomService 封装房间元数据与加入记录的业务逻辑。
type RoomService struct {
	db *gorm.DB
}

func NewRoomService(db *gorm.DB) *RoomService {
	return &RoomService{db: db}
}

// NormalizeCode 房间码大小写不敏感，统一转为小写。
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// NewCode 生成一个短房间码。
func NewCode() string {
	return uuid.NewString()[:8]
}

// Create 创建房间记录，persist 标志只在创建时设定。
// 并发创建同一房间码会撞到唯一索引：输的一方回读已有房间，
// created 标记本次调用是否真正建出了房间。
func (s *RoomService) Create(code, creatorNick string, persist bool) (*models.Room, bool, error) {
	room := models.Room{Code: NormalizeCode(code), CreatorNick: creatorNick, Persist: persist}
	if err := s.db.Create(&room).Error; err != nil {
		existing, gerr := s.GetByCode(code)
		if gerr != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
		}
		return existing, false, nil
	}
	return &room, true, nil
}

// GetByCode 按房间码查询房间。
func (s *RoomService) GetByCode(code string) (*models.Room, error) {
	var room models.Room
	if err := s.db.Where("code = ?", NormalizeCode(code)).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return &room, nil
}

// SetPersist 修改房间的持久化开关，仅允许创建者调用方使用。
func (s *RoomService) SetPersist(code string, persist bool) error {
	res := s.db.Model(&models.Room{}).Where("code = ?", NormalizeCode(code)).Update("persist", persist)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// RecordJoin 追加一条加入记录，重复加入会产生多条，不做去重。
func (s *RoomService) RecordJoin(code, nickname string) error {
	ev := models.JoinEvent{RoomCode: NormalizeCode(code), Nickname: nickname}
	if err := s.db.Create(&ev).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}

// PastMembers 返回曾加入过房间的昵称，按首次出现顺序去重。
func (s *RoomService) PastMembers(code string) ([]string, error) {
	var events []models.JoinEvent
	if err := s.db.Where("room_code = ?", NormalizeCode(code)).Order("id asc").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, ev := range events {
		if _, ok := seen[ev.Nickname]; ok {
			continue
		}
		seen[ev.Nickname] = struct{}{}
		out = append(out, ev.Nickname)
	}
	return out, nil
}
