package server

import (
	"encoding/json"
	"net/http"
	"net/rpc"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/wfunc/gametrack/auth"
	"github.com/wfunc/gametrack/broadcast"
	"github.com/wfunc/gametrack/catalog"
	"github.com/wfunc/gametrack/chat"
	"github.com/wfunc/gametrack/config"
	"github.com/wfunc/gametrack/logger"
	"github.com/wfunc/gametrack/monitor"
	"github.com/wfunc/gametrack/network"
	"github.com/wfunc/gametrack/persistence"
	"github.com/wfunc/gametrack/room"
	gametrack_rpc "github.com/wfunc/gametrack/rpc"
	"github.com/wfunc/gametrack/services"
	"github.com/wfunc/gametrack/session"
	"github.com/wfunc/gametrack/timer"
)

const (
	sweepInterval = time.Minute
	idleTimeout   = 10 * time.Minute
)

type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	catalogService *catalog.Service
	chatService    *chat.Service
	userService    *services.UserService
	libraryService *services.LibraryService
	authManager    *auth.Manager
	monitor        *monitor.Monitor
	rpcServer      *gametrack_rpc.Server
	timers         *timer.TimerManager
	router         *mux.Router
	monitorAddr    string
	shutdownChan   chan struct{}
	sendLocks      sync.Map // roomID -> *sync.Mutex
}

// roomSendLock 返回房间的发送串行锁。同一房间内持久化和广播成对
// 执行，广播顺序即提交顺序。
func (s *GameServer) roomSendLock(roomID string) *sync.Mutex {
	lock, _ := s.sendLocks.LoadOrStore(roomID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func NewGameServer(cfg *config.Config, db persistence.Database) *GameServer {
	s := &GameServer{
		addr:           cfg.Server.HTTPAddress,
		monitorAddr:    cfg.Server.MonitorAddress,
		roomManager:    room.NewRoomManager(),
		sessionManager: session.NewManager(),
		catalogService: catalog.NewService(db, cfg.Catalog.DefaultLimit, cfg.Catalog.MaxLimit),
		chatService:    chat.NewService(db, cfg.Chat.HistoryLimit, cfg.Chat.MaxMessageLength),
		userService:    services.NewUserService(db),
		libraryService: services.NewLibraryService(db),
		authManager:    auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		monitor:        monitor.NewMonitor("gametrack"),
		timers:         timer.NewTimerManager(),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器
	s.broadcaster = broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager)

	// 初始化RPC服务器
	rpcServer, err := gametrack_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer

	// 注册RPC服务
	adminService := gametrack_rpc.NewAdminService(s.catalogService, s.roomManager)
	rpc.Register(adminService)

	s.router = s.buildRouter()
	s.registerTimers()

	return s
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()
	s.monitor.StartServer(s.monitorAddr)

	logger.Log.Infof("Game server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, s.router)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.timers.Stop()
	s.rpcServer.Stop()
}

// registerTimers 注册后台定时任务：空房间兜底回收和空闲会话清理
func (s *GameServer) registerTimers() {
	s.timers.AddTimer(sweepInterval, sweepInterval, func() {
		if removed := s.roomManager.Sweep(); removed > 0 {
			logger.Log.Infof("Swept %d empty rooms", removed)
		}
		s.monitor.SetActiveRooms(s.roomManager.Count())
	})

	s.timers.AddTimer(idleTimeout, idleTimeout/2, func() {
		cutoff := time.Now().Add(-idleTimeout)
		for _, sess := range s.sessionManager.IdleLongerThan(cutoff) {
			logger.Log.Infof("Closing idle session %s", sess.GetID())
			sess.Close()
		}
	})
}

// --- Websocket聊天入口 ---

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlineClients()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		// 断开即离开所有房间，空房间随之回收
		s.roomManager.LeaveAll(sess)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlineClients()
		s.monitor.SetActiveRooms(s.roomManager.Count())
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Touch()
	case network.MsgTypeAuth:
		s.handleAuth(sess, packet)
	case network.MsgTypeJoinRoom:
		s.handleJoinRoom(sess, packet)
	case network.MsgTypeSendMessage:
		s.handleSendMessage(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

func (s *GameServer) ack(sess *session.Session, op string, err error) {
	ack := network.Ack{Op: op, OK: err == nil}
	if err != nil {
		ack.Error = err.Error()
	}
	if sendErr := sess.SendJSON(network.MsgTypeAck, ack); sendErr != nil {
		logger.Log.Warnf("Failed to ack %s to session %s: %v", op, sess.GetID(), sendErr)
	}
}

// handleAuth 将连接绑定到已验证的用户身份。聊天消息的发送者
// 一律取自会话身份，不信任客户端自报的名字。
func (s *GameServer) handleAuth(sess *session.Session, packet *network.Packet) {
	var req network.AuthRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.ack(sess, "auth", err)
		return
	}

	claims, err := s.authManager.Validate(req.Token)
	if err != nil {
		s.ack(sess, "auth", err)
		return
	}

	sess.Authenticate(claims.UserID, claims.Username)
	logger.Log.Infof("Session %s authenticated as %s", sess.GetID(), claims.Username)
	s.ack(sess, "auth", nil)
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) {
	if _, _, ok := sess.Identity(); !ok {
		s.ack(sess, "join", auth.ErrInvalidToken)
		return
	}

	var req network.JoinRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil || req.RoomID == "" {
		s.ack(sess, "join", chat.ErrRoomNotFound)
		return
	}

	// 房间在第一次加入时惰性创建；创建和加入是一次原子操作
	s.roomManager.Join(req.RoomID, sess)
	s.monitor.SetActiveRooms(s.roomManager.Count())
	logger.Log.Infof("Session %s joined room %s", sess.GetID(), req.RoomID)
	s.ack(sess, "join", nil)

	// 历史消息只发给新加入者，倒序（最新在前）
	history, err := s.chatService.History(req.RoomID)
	if err != nil {
		logger.Log.Errorf("Error fetching history for room %s: %v", req.RoomID, err)
		return
	}
	if err := sess.SendJSON(network.MsgTypePreviousMessages, network.History{
		RoomID:   req.RoomID,
		Messages: history,
	}); err != nil {
		logger.Log.Warnf("Failed to deliver history to session %s: %v", sess.GetID(), err)
	}
}

func (s *GameServer) handleSendMessage(sess *session.Session, packet *network.Packet) {
	_, username, ok := sess.Identity()
	if !ok {
		s.ack(sess, "send", auth.ErrInvalidToken)
		return
	}

	var req network.SendRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.ack(sess, "send", err)
		return
	}

	lock := s.roomSendLock(req.RoomID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	msg, err := s.chatService.Append(req.RoomID, username, req.Body)
	if err != nil {
		// 持久化失败或校验失败：不广播，向发送者明确报错
		logger.Log.Errorf("Error saving message in room %s: %v", req.RoomID, err)
		s.monitor.IncMessagesDropped()
		s.ack(sess, "send", err)
		return
	}
	s.monitor.IncMessagesReceived()
	s.ack(sess, "send", nil)

	// 持久化成功后才广播，包括发送者本人
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Errorf("Error marshalling message %s: %v", msg.ID, err)
		return
	}
	if err := s.broadcaster.BroadcastToRoom(req.RoomID, network.MsgTypeNewMessage, data); err != nil {
		// 房间没有成员时广播是空操作
		logger.Log.Debugf("No broadcast for room %s: %v", req.RoomID, err)
	}
	s.monitor.ObserveBroadcastLatency(time.Since(start))
}
