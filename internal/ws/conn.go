package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/abhijithm34/chat-app/internal/config"
	"github.com/abhijithm34/chat-app/internal/creator"
	"github.com/abhijithm34/chat-app/internal/metrics"
	"github.com/abhijithm34/chat-app/internal/models"
	"github.com/abhijithm34/chat-app/internal/rooms"
	"github.com/abhijithm34/chat-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client 是单个连接的状态机：未加入 -> 房间成员 -> 断开。
// 连接存续期间不允许换房；persist 在加入时捕获，决定本会话消息是否落库。
type Client struct {
	hub     *Hub
	rh      *RoomHub
	conn    *websocket.Conn
	send    chan []byte
	dir     *rooms.Directory
	roomSvc *service.RoomService
	msgSvc  *service.MessageService
	cfg     config.Config

	// send 只允许经 trySend/closeSend 访问：hub 摘除慢连接会关闭通道，
	// 与 readPump 的直发事件并发。
	sendMu     sync.Mutex
	sendClosed bool

	joined    bool
	room      string
	nick      string
	persist   bool
	isCreator bool
}

// trySend 非阻塞投递；连接已被摘除或缓冲写满时丢弃并返回 false。
func (c *Client) trySend(b []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// closeSend 幂等关闭发送通道，之后的 trySend 都是空操作。
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func Serve(hub *Hub, dir *rooms.Directory, roomSvc *service.RoomService, msgSvc *service.MessageService, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			hub:     hub,
			conn:    conn,
			send:    make(chan []byte, 256),
			dir:     dir,
			roomSvc: roomSvc,
			msgSvc:  msgSvc,
			cfg:     cfg,
		}
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		if c.rh != nil {
			c.rh.unregister <- c
		}
		_ = c.conn.Close()
		c.onDisconnect()
	}()
	c.conn.SetReadLimit(1 << 16)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.sendEvent(NewErrorEvent("invalid_input", "malformed event"))
			continue
		}
		switch in.Type {
		case EvJoin:
			c.onJoin(in)
		case EvMessage:
			c.onMessage(in)
		case EvConfigure:
			c.onConfigure(in)
		default:
			c.sendEvent(NewErrorEvent("invalid_input", "unknown event type"))
		}
	}
}

// onJoin 校验入参、解析或创建房间、登记目录成员，然后给加入者发快照、
// 向房间广播成员更新与系统消息。历史消息只在持久化房间返回。
func (c *Client) onJoin(in Inbound) {
	if c.joined {
		c.sendEvent(NewErrorEvent("already_joined", "connection already joined a room"))
		return
	}
	nick := strings.TrimSpace(in.Nickname)
	code := service.NormalizeCode(in.Room)
	if nick == "" || (code == "" && !in.Create) {
		c.sendEvent(NewErrorEvent("invalid_input", "nickname and room are required"))
		return
	}

	var room *models.Room
	var issuedToken string
	if in.Create {
		if code == "" {
			code = service.NewCode()
		}
		existing, err := c.roomSvc.GetByCode(code)
		switch {
		case err == nil:
			// 房间已存在：create 退化为普通加入，persist 参数被忽略。
			room = existing
		case errors.Is(err, service.ErrRoomNotFound):
			var created bool
			room, created, err = c.roomSvc.Create(code, nick, in.Persist)
			if err != nil {
				log.Error().Err(err).Str("room", code).Msg("create room")
				c.sendEvent(NewErrorEvent("persistence_unavailable", "could not create room"))
				return
			}
			// created=false：并发创建输给了另一条连接，按普通加入处理。
			if created {
				c.isCreator = true
				if tok, terr := creator.Issue(code, c.cfg.CreatorTokenSecret); terr == nil {
					issuedToken = tok
				} else {
					log.Error().Err(terr).Str("room", code).Msg("issue creator token")
				}
			}
		default:
			log.Error().Err(err).Str("room", code).Msg("lookup room")
			c.sendEvent(NewErrorEvent("persistence_unavailable", "could not look up room"))
			return
		}
	} else {
		var err error
		room, err = c.roomSvc.GetByCode(code)
		if err != nil {
			if errors.Is(err, service.ErrRoomNotFound) {
				c.sendEvent(NewErrorEvent("room_not_found", "no room with this code"))
			} else {
				log.Error().Err(err).Str("room", code).Msg("lookup room")
				c.sendEvent(NewErrorEvent("persistence_unavailable", "could not look up room"))
			}
			return
		}
	}

	if !c.isCreator && in.CreatorToken != "" {
		if err := creator.Verify(in.CreatorToken, code, c.cfg.CreatorTokenSecret); err == nil {
			c.isCreator = true
		} else {
			log.Warn().Err(err).Str("room", code).Msg("creator token rejected")
		}
	}

	// 加入记录无条件落库；失败降级，只影响重启后的历史成员视图。
	if past, err := c.roomSvc.PastMembers(code); err == nil {
		c.dir.SeedPast(code, past)
	} else {
		log.Error().Err(err).Str("room", code).Msg("load past members")
	}
	if err := c.roomSvc.RecordJoin(code, nick); err != nil {
		log.Error().Err(err).Str("room", code).Str("nickname", nick).Msg("record join")
	}

	res, err := c.dir.Join(code, nick, c, room.Persist)
	if err != nil {
		c.sendEvent(NewErrorEvent("already_joined", "connection already joined a room"))
		return
	}
	c.joined = true
	c.room = code
	c.nick = nick
	c.persist = room.Persist

	c.rh = c.hub.GetRoom(code)
	c.rh.register <- c

	var history []service.MessageDTO
	if room.Persist {
		history, err = c.msgSvc.ListByRoom(code, 200)
		if err != nil {
			log.Error().Err(err).Str("room", code).Msg("load history")
			history = nil
		}
	}
	c.sendEvent(SnapshotEvent{
		Type:          EvSnapshot,
		Room:          code,
		ActiveMembers: res.Active,
		PastMembers:   res.Past,
		Messages:      history,
		Persist:       room.Persist,
		CreatorToken:  issuedToken,
	})

	c.hub.Publish(code, NewMembershipEvent(code, res.Active))
	c.systemMessage(nick + " has joined")
}

// onMessage 校验长度后构造消息：持久化房间写库（失败降级），广播无条件进行。
func (c *Client) onMessage(in Inbound) {
	if !c.joined {
		c.sendEvent(NewErrorEvent("not_joined", "join a room first"))
		return
	}
	if in.Text == "" {
		return
	}
	if len([]rune(in.Text)) > c.cfg.MaxMessageChars {
		c.sendEvent(NewErrorEvent("message_too_long", "message exceeds length limit"))
		return
	}
	msg := models.Message{
		RoomCode:  c.room,
		Nickname:  c.nick,
		Kind:      models.KindText,
		Content:   in.Text,
		CreatedAt: time.Now(),
	}
	if c.persist {
		if err := c.msgSvc.Append(&msg); err != nil {
			log.Error().Err(err).Str("room", c.room).Msg("append message")
		}
	}
	metrics.WsMessagesTotal.Inc()
	c.hub.Publish(c.room, MessageEvent{
		Type:      EvMessage,
		Room:      c.room,
		Nickname:  c.nick,
		Kind:      models.KindText,
		Content:   in.Text,
		CreatedAt: msg.CreatedAt,
	})
}

// onConfigure 是创建者专属的重配置操作：切换房间的持久化开关。
// 只影响之后的加入；已在线会话沿用各自加入时捕获的开关。
func (c *Client) onConfigure(in Inbound) {
	if !c.joined {
		c.sendEvent(NewErrorEvent("not_joined", "join a room first"))
		return
	}
	if !c.isCreator {
		c.sendEvent(NewErrorEvent("not_creator", "only the room creator may reconfigure"))
		return
	}
	if err := c.roomSvc.SetPersist(c.room, in.Persist); err != nil {
		log.Error().Err(err).Str("room", c.room).Msg("set persist")
		c.sendEvent(NewErrorEvent("persistence_unavailable", "could not update room"))
		return
	}
	c.dir.SetPersist(c.room, in.Persist)
	state := "disabled"
	if in.Persist {
		state = "enabled"
	}
	c.systemMessage("message persistence " + state + " by " + c.nick)
}

// onDisconnect 注销目录成员并通知余下成员；连接从未加入过则是空操作。
func (c *Client) onDisconnect() {
	res, ok := c.dir.Leave(c)
	if !ok {
		return
	}
	c.hub.Publish(res.Room, NewMembershipEvent(res.Room, res.Active))
	c.systemMessageIn(res.Room, res.Nickname+" has left")
}

func (c *Client) systemMessage(text string) {
	c.systemMessageIn(c.room, text)
}

func (c *Client) systemMessageIn(room, text string) {
	msg := models.Message{
		RoomCode:  room,
		Nickname:  "",
		Kind:      models.KindSystem,
		Content:   text,
		CreatedAt: time.Now(),
	}
	if c.persist {
		if err := c.msgSvc.Append(&msg); err != nil {
			log.Error().Err(err).Str("room", room).Msg("append system message")
		}
	}
	c.hub.Publish(room, MessageEvent{
		Type:      EvMessage,
		Room:      room,
		Kind:      models.KindSystem,
		Content:   text,
		CreatedAt: msg.CreatedAt,
	})
}

func (c *Client) sendEvent(event interface{}) {
	b, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("marshal event")
		return
	}
	c.trySend(b)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
