package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/abhijithm34/chat-app/internal/metrics"
	"github.com/abhijithm34/chat-app/internal/models"
	"github.com/abhijithm34/chat-app/internal/service"

	"github.com/rs/zerolog/log"
)

// 过期原因，用于指标与日志区分定时器、兜底清扫和停机清理。
const (
	CauseTTL      = "ttl"
	CauseSweep    = "sweep"
	CauseShutdown = "shutdown"
)

const (
	expiredNotice  = "File expired and was removed"
	shutdownNotice = "File removed during server shutdown"
)

// Store 是上传记录的持久化镜像，重启后据此恢复过期计划并定位孤儿文件。
type Store interface {
	SaveUpload(f *models.UploadedFile) error
	DeleteUpload(filename string) error
	ListUploads() ([]models.UploadedFile, error)
	RoomForUpload(filename string) (string, error)
}

// Redactor 清除持久化消息中指向已删除文件的引用。
type Redactor interface {
	RedactFileReferences(filename, replacement string) error
}

// Notifier 向归属房间广播系统通知。
type Notifier interface {
	RoomNotice(room, text string)
}

type entry struct {
	room         string
	originalName string
	mime         string
	size         int64
	expiresAt    time.Time
	timer        *time.Timer
}

// Keeper 负责上传文件的生命周期：跟踪、定时过期、兜底清扫、停机清理。
// 每个在跟踪的文件恰好挂一个过期定时器；删除是幂等的，移除跟踪条目是
// 删除流程的最后一步。定时器只是降低延迟的优化，按磁盘文件年龄的周期
// 清扫才是重启安全的权威机制。
type Keeper struct {
	dir      string
	ttl      time.Duration
	store    Store
	redactor Redactor
	notifier Notifier

	mu       sync.Mutex
	tracked  map[string]*entry
	inflight map[string]struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

func NewKeeper(dir string, ttl time.Duration, store Store, redactor Redactor, notifier Notifier) *Keeper {
	return &Keeper{
		dir:      dir,
		ttl:      ttl,
		store:    store,
		redactor: redactor,
		notifier: notifier,
		tracked:  make(map[string]*entry),
		inflight: make(map[string]struct{}),
		stop:     make(chan struct{}),
	}
}

// Register 登记新上传的文件并调度过期动作，返回过期时刻。
// 文件名由服务端生成，重复登记属于不变量被破坏，按错误日志处理而非用户可见错误。
func (k *Keeper) Register(filename, room, originalName, mime string, size int64) (time.Time, error) {
	expiresAt := time.Now().Add(k.ttl)
	if err := k.track(filename, room, originalName, mime, size, expiresAt); err != nil {
		return time.Time{}, err
	}
	f := &models.UploadedFile{
		FileName:     filename,
		RoomCode:     room,
		OriginalName: originalName,
		MimeType:     mime,
		Size:         size,
		ExpiresAt:    expiresAt,
	}
	// 镜像写入失败只记日志：磁盘清扫不依赖它，重启恢复会少一个定时器而已。
	if err := k.store.SaveUpload(f); err != nil {
		log.Error().Err(err).Str("file", filename).Msg("save upload record")
	}
	return expiresAt, nil
}

func (k *Keeper) track(filename, room, originalName, mime string, size int64, expiresAt time.Time) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.tracked[filename]; ok {
		log.Error().Str("file", filename).Msg("duplicate filename registered, generator invariant violated")
		return service.ErrDuplicateFilename
	}
	ent := &entry{room: room, originalName: originalName, mime: mime, size: size, expiresAt: expiresAt}
	delay := time.Until(expiresAt)
	if delay < 0 {
		delay = 0
	}
	ent.timer = time.AfterFunc(delay, func() {
		if err := k.Expire(filename, CauseTTL); err != nil {
			log.Error().Err(err).Str("file", filename).Msg("timer expire")
		}
	})
	k.tracked[filename] = ent
	metrics.TrackedFiles.Inc()
	return nil
}

// Restore 从持久化镜像恢复跟踪表，已过期的条目会立刻触发过期动作。
func (k *Keeper) Restore() error {
	uploads, err := k.store.ListUploads()
	if err != nil {
		return err
	}
	for _, f := range uploads {
		if err := k.track(f.FileName, f.RoomCode, f.OriginalName, f.MimeType, f.Size, f.ExpiresAt); err != nil {
			log.Error().Err(err).Str("file", f.FileName).Msg("restore upload")
		}
	}
	if len(uploads) > 0 {
		log.Info().Int("count", len(uploads)).Msg("restored tracked uploads")
	}
	return nil
}

// Expire 幂等地删除文件：删除磁盘字节（已不存在视为成功）、脱敏持久化消息、
// 移除镜像记录，最后摘除跟踪条目并向房间广播系统通知。
// 磁盘删除失败保留条目，等下一轮清扫重试；脱敏失败不阻止文件删除。
func (k *Keeper) Expire(filename, cause string) error {
	k.mu.Lock()
	if _, busy := k.inflight[filename]; busy {
		k.mu.Unlock()
		return nil
	}
	ent, wasTracked := k.tracked[filename]
	if wasTracked && ent.timer != nil {
		ent.timer.Stop()
	}
	k.inflight[filename] = struct{}{}
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		delete(k.inflight, filename)
		k.mu.Unlock()
	}()

	path := filepath.Join(k.dir, filename)
	err := os.Remove(path)
	removed := err == nil
	if err != nil && !os.IsNotExist(err) {
		log.Error().Err(err).Str("file", filename).Msg("delete file bytes, will retry on sweep")
		return err
	}
	if !wasTracked && !removed {
		// 未跟踪且磁盘上也没有：早已删除，保持幂等。
		return nil
	}

	room := ""
	notice := expiredNotice
	if cause == CauseShutdown {
		notice = shutdownNotice
	}
	if wasTracked {
		room = ent.room
	} else if r, err := k.store.RoomForUpload(filename); err == nil {
		room = r
	} else {
		log.Error().Err(err).Str("file", filename).Msg("lookup room for orphan file")
	}

	if err := k.redactor.RedactFileReferences(filename, notice); err != nil {
		log.Error().Err(err).Str("file", filename).Msg("redact file references")
	}
	if err := k.store.DeleteUpload(filename); err != nil {
		log.Error().Err(err).Str("file", filename).Msg("delete upload record")
	}

	k.mu.Lock()
	if _, ok := k.tracked[filename]; ok {
		delete(k.tracked, filename)
		metrics.TrackedFiles.Dec()
	}
	k.mu.Unlock()

	metrics.FilesExpiredTotal.WithLabelValues(cause).Inc()
	log.Info().Str("file", filename).Str("cause", cause).Msg("file expired")

	if room != "" && k.notifier != nil {
		name := filename
		if wasTracked && ent.originalName != "" {
			name = ent.originalName
		}
		// 广播文案与改写文案一致地区分关机与过期。
		verb := "has expired and was deleted"
		if cause == CauseShutdown {
			verb = "was removed during server shutdown"
		}
		k.notifier.RoomNotice(room, fmt.Sprintf("File %q %s", name, verb))
	}
	return nil
}

// StartSweep 启动周期清扫：按磁盘文件年龄兜底过期，覆盖崩溃丢失定时器的情况。
func (k *Keeper) StartSweep(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-k.stop:
				return
			case <-ticker.C:
				k.sweepOnce()
			}
		}
	}()
}

func (k *Keeper) sweepOnce() {
	entries, err := os.ReadDir(k.dir)
	if err != nil {
		log.Error().Err(err).Str("dir", k.dir).Msg("sweep read dir")
		return
	}
	now := time.Now()
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) >= k.ttl {
			if err := k.Expire(de.Name(), CauseSweep); err != nil {
				log.Error().Err(err).Str("file", de.Name()).Msg("sweep expire")
			}
		}
	}
}

// ShutdownCleanup 取消全部定时器并同步过期所有在跟踪的文件。
// 进程退出前必须等它完成，ctx 给出宽限期上限。
func (k *Keeper) ShutdownCleanup(ctx context.Context) error {
	k.stopOnce.Do(func() { close(k.stop) })

	k.mu.Lock()
	names := make([]string, 0, len(k.tracked))
	for name, ent := range k.tracked {
		if ent.timer != nil {
			ent.timer.Stop()
		}
		names = append(names, name)
	}
	k.mu.Unlock()

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			log.Warn().Int("remaining", len(names)).Msg("shutdown cleanup grace period exceeded")
			return err
		}
		if err := k.Expire(name, CauseShutdown); err != nil {
			log.Error().Err(err).Str("file", name).Msg("shutdown expire")
		}
	}
	return nil
}

// Tracked 返回当前在跟踪的文件数，测试与诊断用。
func (k *Keeper) Tracked() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.tracked)
}
