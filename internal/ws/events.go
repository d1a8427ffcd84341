package ws

import (
	"time"

	"github.com/abhijithm34/chat-app/internal/service"
)

// 事件名统一收敛为一套：入站 join/message/configure，
// 出站 roomSnapshot/membershipUpdate/message/error。
// 每个事件对应一个带标签的结构体，负载形状在编译期固定。
const (
	EvJoin       = "join"
	EvMessage    = "message"
	EvConfigure  = "configure"
	EvSnapshot   = "roomSnapshot"
	EvMembership = "membershipUpdate"
	EvError      = "error"
)

// Inbound 是客户端发来的事件，按 Type 分发。
type Inbound struct {
	Type         string `json:"type"`
	Room         string `json:"room,omitempty"`
	Nickname     string `json:"nickname,omitempty"`
	Create       bool   `json:"create,omitempty"`
	Persist      bool   `json:"persist,omitempty"`
	CreatorToken string `json:"creator_token,omitempty"`
	Text         string `json:"text,omitempty"`
}

// SnapshotEvent 发给刚加入的连接：成员、历史消息与持久化开关。
type SnapshotEvent struct {
	Type          string               `json:"type"`
	Room          string               `json:"room"`
	ActiveMembers []string             `json:"active_members"`
	PastMembers   []string             `json:"past_members"`
	Messages      []service.MessageDTO `json:"messages,omitempty"`
	Persist       bool                 `json:"persist"`
	CreatorToken  string               `json:"creator_token,omitempty"`
}

type MembershipEvent struct {
	Type          string   `json:"type"`
	Room          string   `json:"room"`
	ActiveMembers []string `json:"active_members"`
}

func NewMembershipEvent(room string, active []string) MembershipEvent {
	return MembershipEvent{Type: EvMembership, Room: room, ActiveMembers: active}
}

// MessageEvent 覆盖 text/file/system 三种消息，文件消息携带引用字段。
type MessageEvent struct {
	Type      string    `json:"type"`
	Room      string    `json:"room"`
	Nickname  string    `json:"nickname"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	FileName  *string   `json:"file_name,omitempty"`
	FileURL   *string   `json:"file_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorEvent(code, msg string) ErrorEvent {
	return ErrorEvent{Type: EvError, Code: code, Message: msg}
}
