package models

import "time"

// 消息类型：文本、文件、系统通知。
const (
	KindText   = "text"
	KindFile   = "file"
	KindSystem = "system"
)

type Room struct {
	ID          uint   `gorm:"primaryKey"`
	Code        string `gorm:"uniqueIndex;size:32;not null"`
	CreatorNick string `gorm:"size:64;not null"`
	Persist     bool   `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Message struct {
	ID        uint    `gorm:"primaryKey"`
	RoomCode  string  `gorm:"index:idx_msg_room_code;size:32;not null"`
	Nickname  string  `gorm:"size:64;not null"`
	Kind      string  `gorm:"size:16;not null"`
	Content   string  `gorm:"type:text"`
	FileName  *string `gorm:"index;size:128"`
	FileURL   *string `gorm:"size:512"`
	CreatedAt time.Time
}

// JoinEvent 按加入顺序追加记录，同一昵称重复加入会产生多条记录。
type JoinEvent struct {
	ID        uint   `gorm:"primaryKey"`
	RoomCode  string `gorm:"index:idx_join_room_code;size:32;not null"`
	Nickname  string `gorm:"size:64;not null"`
	CreatedAt time.Time
}

// UploadedFile 是内存跟踪表的持久化镜像，进程重启后用于恢复过期计划。
type UploadedFile struct {
	ID           uint      `gorm:"primaryKey"`
	FileName     string    `gorm:"uniqueIndex;size:128;not null"`
	RoomCode     string    `gorm:"index;size:32;not null"`
	OriginalName string    `gorm:"size:256;not null"`
	MimeType     string    `gorm:"size:128;not null"`
	Size         int64     `gorm:"not null"`
	ExpiresAt    time.Time `gorm:"index;not null"`
	CreatedAt    time.Time
}
