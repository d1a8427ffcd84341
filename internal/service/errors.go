package service

import "errors"

// 业务层通用错误，handler 和 ws 层据此映射到 HTTP 状态码或错误事件。
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrRoomNotFound           = errors.New("room not found")
	ErrMessageTooLong         = errors.New("message too long")
	ErrFileTooLarge           = errors.New("file too large")
	ErrUnsupportedFileType    = errors.New("unsupported file type")
	ErrNotCreator             = errors.New("not room creator")
	ErrDuplicateFilename      = errors.New("duplicate filename")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)
