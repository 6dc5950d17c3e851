package rpc

import (
	"net"
	"net/rpc"

	"github.com/wfunc/gametrack/catalog"
	"github.com/wfunc/gametrack/logger"
	"github.com/wfunc/gametrack/models"
	"github.com/wfunc/gametrack/room"
)

// Server manages the RPC listener for internal admin tooling.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes catalog queries and room occupancy over net/rpc
// for internal tooling. It must follow the net/rpc signature: exported
// method, exported arguments, second argument a pointer, error return.
type AdminService struct {
	catalogService *catalog.Service
	roomManager    *room.Manager
}

// NewAdminService creates a new AdminService.
func NewAdminService(cs *catalog.Service, rm *room.Manager) *AdminService {
	return &AdminService{catalogService: cs, roomManager: rm}
}

type ListGamesArgs struct {
	Filter string
	Page   int
	Limit  int
	Sort   string
}

type ListGamesReply struct {
	Games      []models.Game
	TotalCount int64
}

func (as *AdminService) ListGames(args *ListGamesArgs, reply *ListGamesReply) error {
	result, err := as.catalogService.ListGames(args.Filter, args.Page, args.Limit, args.Sort)
	if err != nil {
		return err
	}
	reply.Games = result.Games
	reply.TotalCount = result.TotalCount
	return nil
}

type RoomStatsArgs struct{}

type RoomStatsReply struct {
	ActiveRooms int
	Occupancy   map[string]int
}

func (as *AdminService) RoomStats(args *RoomStatsArgs, reply *RoomStatsReply) error {
	reply.Occupancy = as.roomManager.Occupancy()
	reply.ActiveRooms = len(reply.Occupancy)
	return nil
}
