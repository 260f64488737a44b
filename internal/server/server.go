package server

import (
	"net/http"

	"tilerunner/internal/config"
	"tilerunner/internal/engine"

	"gorm.io/gorm"
)

type Server struct {
	db    *gorm.DB
	cfg   config.Config
	locks *engine.LockRegistry
	ws    *wsHub
}

func New(conn *gorm.DB, cfg config.Config) *Server {
	return &Server{
		db:    conn,
		cfg:   cfg,
		locks: engine.NewLockRegistry(),
		ws:    newWSHub(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/games", s.handleListGames)
	mux.HandleFunc("POST /api/games", s.handleCreateGame)
	mux.HandleFunc("GET /api/games/", s.handleGameSubroutes)
	mux.HandleFunc("POST /api/games/", s.handleGameSubroutes)
	mux.HandleFunc("DELETE /api/games/", s.handleGameSubroutes)
	mux.HandleFunc("GET /ws/games/", s.handleWebsocket)
	return mux
}
