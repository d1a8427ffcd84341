package rooms

import (
	"errors"
	"sync"
)

// ErrAlreadyJoined 同一连接重复加入时返回，连接级状态机不允许换房。
var ErrAlreadyJoined = errors.New("connection already joined a room")

// Directory 是进程内的房间成员目录：房间码到当前在线成员的映射，
// 外加按加入顺序追加的历史成员日志。纯内存数据结构，不做任何 I/O。
// key 必须是可比较类型（通常为连接对象指针）。
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
	conns map[any]string
}

type member struct {
	nick string
	key  any
}

// roomState 的成员变更由自身的互斥锁串行化，避免并发加入/离开丢失更新。
type roomState struct {
	mu      sync.Mutex
	persist bool
	flagSet bool
	members []member
	past    []string
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]*roomState), conns: make(map[any]string)}
}

type JoinResult struct {
	Room    string
	Active  []string
	Past    []string
	Persist bool
}

type LeaveResult struct {
	Room     string
	Nickname string
	Active   []string
}

func (d *Directory) ensure(code string) *roomState {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs, ok := d.rooms[code]
	if !ok {
		rs = &roomState{}
		d.rooms[code] = rs
	}
	return rs
}

// Join 注册成员。persist 只在该房间条目首次出现时生效，后续加入忽略。
func (d *Directory) Join(code, nickname string, key any, persist bool) (JoinResult, error) {
	d.mu.Lock()
	if _, ok := d.conns[key]; ok {
		d.mu.Unlock()
		return JoinResult{}, ErrAlreadyJoined
	}
	rs, ok := d.rooms[code]
	if !ok {
		rs = &roomState{}
		d.rooms[code] = rs
	}
	d.conns[key] = code
	d.mu.Unlock()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if !rs.flagSet {
		rs.persist = persist
		rs.flagSet = true
	}
	rs.members = append(rs.members, member{nick: nickname, key: key})
	rs.past = append(rs.past, nickname)
	return JoinResult{
		Room:    code,
		Active:  rs.activeLocked(),
		Past:    rs.pastLocked(),
		Persist: rs.persist,
	}, nil
}

// Leave 移除连接所属的成员关系。连接从未加入或已离开时返回 ok=false。
func (d *Directory) Leave(key any) (LeaveResult, bool) {
	d.mu.Lock()
	code, ok := d.conns[key]
	if !ok {
		d.mu.Unlock()
		return LeaveResult{}, false
	}
	delete(d.conns, key)
	rs := d.rooms[code]
	d.mu.Unlock()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	var nick string
	for i, m := range rs.members {
		if m.key == key {
			nick = m.nick
			rs.members = append(rs.members[:i], rs.members[i+1:]...)
			break
		}
	}
	return LeaveResult{Room: code, Nickname: nick, Active: rs.activeLocked()}, true
}

// Active 返回房间当前在线昵称快照，按加入顺序。
func (d *Directory) Active(code string) []string {
	d.mu.RLock()
	rs := d.rooms[code]
	d.mu.RUnlock()
	if rs == nil {
		return nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.activeLocked()
}

// Past 返回历史成员视图：按首次出现顺序去重。
func (d *Directory) Past(code string) []string {
	d.mu.RLock()
	rs := d.rooms[code]
	d.mu.RUnlock()
	if rs == nil {
		return nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.pastLocked()
}

// SeedPast 用持久化的加入记录初始化历史成员日志，仅在日志为空时生效，
// 覆盖进程重启后房间条目重建的场景。
func (d *Directory) SeedPast(code string, nicks []string) {
	rs := d.ensure(code)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.past) == 0 {
		rs.past = append(rs.past, nicks...)
	}
}

// SetPersist 同步房间的持久化开关，由重配置操作调用。
func (d *Directory) SetPersist(code string, persist bool) {
	rs := d.ensure(code)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.persist = persist
	rs.flagSet = true
}

func (rs *roomState) activeLocked() []string {
	out := make([]string, 0, len(rs.members))
	for _, m := range rs.members {
		out = append(out, m.nick)
	}
	return out
}

func (rs *roomState) pastLocked() []string {
	seen := make(map[string]struct{}, len(rs.past))
	out := make([]string, 0, len(rs.past))
	for _, n := range rs.past {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
