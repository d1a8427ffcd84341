package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abhijithm34/chat-app/internal/metrics"
	"github.com/abhijithm34/chat-app/internal/models"

	"github.com/rs/zerolog/log"
)

// Hub 管理按房间码划分的子 Hub，实现延迟创建与并发安全。
// 投递是尽力而为：只发给调用时刻仍注册的连接，不重试不排队。
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*RoomHub
}

func NewHub() *Hub { return &Hub{rooms: make(map[string]*RoomHub)} }

// GetRoom 若房间未初始化则懒加载一个 RoomHub。
func (h *Hub) GetRoom(code string) *RoomHub {
	h.mu.RLock()
	room := h.rooms[code]
	h.mu.RUnlock()
	if room != nil {
		return room
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	room = h.rooms[code]
	if room != nil {
		return room
	}
	room = NewRoomHub(code)
	h.rooms[code] = room
	go room.run()
	return room
}

func (h *Hub) Online(code string) int {
	h.mu.RLock()
	room := h.rooms[code]
	h.mu.RUnlock()
	if room == nil {
		return 0
	}
	return room.Online()
}

// Publish 把事件投递给房间当前的全部连接。
// 同一调用方对同一房间的发布顺序即成员观察到的顺序。
func (h *Hub) Publish(code string, event interface{}) {
	b, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("room", code).Msg("marshal event")
		return
	}
	h.GetRoom(code).broadcast <- b
}

// RoomNotice 向房间广播一条系统消息，文件过期等后台动作使用。
func (h *Hub) RoomNotice(room, text string) {
	h.Publish(room, MessageEvent{
		Type:      EvMessage,
		Room:      room,
		Nickname:  "",
		Kind:      models.KindSystem,
		Content:   text,
		CreatedAt: time.Now(),
	})
}

type RoomHub struct {
	code       string
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	online     int32
}

func NewRoomHub(code string) *RoomHub {
	return &RoomHub{
		code:       code,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

// run 串行处理注册、注销与广播，房间内事件顺序由此保证。
// 发送缓冲写满的慢连接会被直接摘除，与尽力而为的投递语义一致。
func (rh *RoomHub) run() {
	for {
		select {
		case c := <-rh.register:
			rh.clients[c] = true
			atomic.StoreInt32(&rh.online, int32(len(rh.clients)))
			metrics.WsConnections.Inc()
		case c := <-rh.unregister:
			if _, ok := rh.clients[c]; ok {
				delete(rh.clients, c)
				c.closeSend()
				atomic.StoreInt32(&rh.online, int32(len(rh.clients)))
				metrics.WsConnections.Dec()
			}
		case msg := <-rh.broadcast:
			for c := range rh.clients {
				if !c.trySend(msg) {
					c.closeSend()
					delete(rh.clients, c)
					atomic.StoreInt32(&rh.online, int32(len(rh.clients)))
					metrics.WsConnections.Dec()
				}
			}
		}
	}
}

// Online 返回房间在线连接数，供 REST 接口复用。
func (rh *RoomHub) Online() int { return int(atomic.LoadInt32(&rh.online)) }
