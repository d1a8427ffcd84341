package service

import (
	"errors"
	"fmt"

	"github.com/abhijithm34/chat-app/internal/models"

	"gorm.io/gorm"
)

// UploadService 维护上传文件的持久化镜像，供文件生命周期管理在重启后恢复计划。
type UploadService struct {
	db *gorm.DB
}

func NewUploadService(db *gorm.DB) *UploadService {
	return &UploadService{db: db}
}

// SaveUpload 写入一条上传记录。
func (s *UploadService) SaveUpload(f *models.UploadedFile) error {
	f.RoomCode = NormalizeCode(f.RoomCode)
	if err := s.db.Create(f).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}

// DeleteUpload 删除上传记录，记录不存在视为成功。
func (s *UploadService) DeleteUpload(filename string) error {
	if err := s.db.Where("file_name = ?", filename).Delete(&models.UploadedFile{}).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}

// ListUploads 返回全部仍被跟踪的上传记录。
func (s *UploadService) ListUploads() ([]models.UploadedFile, error) {
	var files []models.UploadedFile
	if err := s.db.Order("id asc").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return files, nil
}

// RoomForUpload 查询文件归属的房间，孤儿文件清扫时用于定位通知对象。
func (s *UploadService) RoomForUpload(filename string) (string, error) {
	var f models.UploadedFile
	if err := s.db.Where("file_name = ?", filename).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return f.RoomCode, nil
}
