package server

import (
	"log"
	"net/http"
	"strconv"

	"tilerunner/internal/engine"

	"gorm.io/gorm"
)

type createGameRequest struct {
	Name    string               `json:"name"`
	Players []engine.PlayerInput `json:"players"`
}

type joinRequest struct {
	Nickname string `json:"nickname"`
	Color    string `json:"color,omitempty"`
}

type rollRequest struct {
	PlayerID string `json:"playerId"`
}

type chooseRequest struct {
	PlayerID string `json:"playerId"`
	ToTileID string `json:"toTileId"`
}

type endTurnRequest struct {
	PlayerID string `json:"playerId"`
}

type rulesRequest struct {
	PlayerID string            `json:"playerId"`
	Action   string            `json:"action"`
	RuleID   string            `json:"ruleId,omitempty"`
	Rule     *engine.RuleInput `json:"rule,omitempty"`
}

type tilesRequest struct {
	PlayerID string `json:"playerId"`
	Action   string `json:"action"`
	engine.TileInput
}

// inGameTx serializes the action against other actions on the same game and
// runs it inside one transaction. An error rolls everything back.
func (s *Server) inGameTx(gameID string, fn func(tx *gorm.DB) error) error {
	unlock := s.locks.Lock(gameID)
	defer unlock()
	return s.db.Transaction(fn)
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, engine.CodeBadInput, "invalid request body")
		return
	}
	var state *engine.State
	err := s.db.Transaction(func(tx *gorm.DB) error {
		game, err := engine.CreateGame(tx, req.Name, req.Players, s.cfg.TrackLength)
		if err != nil {
			return err
		}
		state, err = engine.GetState(tx, game.ID)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	log.Printf("game created game_id=%s players=%d", state.Game.ID, len(state.Players))
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	var games []engine.GameSummary
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		games, err = engine.ListGames(tx)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}

func (s *Server) handleGameSubroutes(w http.ResponseWriter, r *http.Request) {
	gameID, action, ok := parseGamePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		switch action {
		case "":
			s.handleGetState(w, r, gameID)
		case "events":
			s.handleEvents(w, r, gameID)
		default:
			http.NotFound(w, r)
		}
	case http.MethodDelete:
		if action != "" {
			http.NotFound(w, r)
			return
		}
		s.handleDeleteGame(w, r, gameID)
	case http.MethodPost:
		switch action {
		case "join":
			s.handleJoin(w, r, gameID)
		case "roll":
			s.handleRoll(w, r, gameID)
		case "choose":
			s.handleChoose(w, r, gameID)
		case "end-turn":
			s.handleEndTurn(w, r, gameID)
		case "rules":
			s.handleRules(w, r, gameID)
		case "tiles":
			s.handleTiles(w, r, gameID)
		default:
			http.NotFound(w, r)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request, gameID string) {
	var state *engine.State
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		state, err = engine.GetState(tx, gameID)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, gameID string) {
	since := uint64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, engine.CodeBadInput, "since must be a cursor")
			return
		}
		since = parsed
	}
	limit := s.cfg.EventsPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, engine.CodeBadInput, "limit must be positive")
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}
	var events []engine.EventView
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		events, err = engine.GetEvents(tx, gameID, uint(since), limit)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"gameId": gameID,
		"events": events,
	})
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request, gameID string) {
	err := s.inGameTx(gameID, func(tx *gorm.DB) error {
		return engine.DeleteGame(tx, gameID)
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.locks.Forget(gameID)
	s.ws.CloseGame(gameID)
	log.Printf("game deleted game_id=%s", gameID)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": gameID})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request, gameID string) {
	var req joinRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, engine.CodeBadInput, "nickname is required")
		return
	}
	var playerID string
	err := s.inGameTx(gameID, func(tx *gorm.DB) error {
		player, err := engine.JoinGame(tx, gameID, engine.PlayerInput{
			Nickname: req.Nickname,
			Color:    req.Color,
		})
		if err != nil {
			return err
		}
		playerID = player.ID
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	log.Printf("player joined game_id=%s player_id=%s nickname=%s", gameID, playerID, req.Nickname)
	writeJSON(w, http.StatusOK, map[string]string{
		"gameId":   gameID,
		"playerId": playerID,
	})
	s.broadcastState(gameID)
}

func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request, gameID string) {
	var req rollRequest
	if err := readJSON(r.Body, &req); err != nil || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, engine.CodeBadInput, "playerId is required")
		return
	}
	var result engine.RollResult
	err := s.inGameTx(gameID, func(tx *gorm.DB) error {
		var err error
		result, err = engine.RollAndMove(tx, gameID, req.PlayerID)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	log.Printf("roll game_id=%s player_id=%s rolled=%d", gameID, req.PlayerID, result.Rolled)
	writeJSON(w, http.StatusOK, result)
	s.broadcastState(gameID)
}

func (s *Server) handleChoose(w http.ResponseWriter, r *http.Request, gameID string) {
	var req chooseRequest
	if err := readJSON(r.Body, &req); err != nil || req.PlayerID == "" || req.ToTileID == "" {
		writeError(w, http.StatusBadRequest, engine.CodeBadInput, "playerId and toTileId are required")
		return
	}
	var result engine.ChooseResult
	err := s.inGameTx(gameID, func(tx *gorm.DB) error {
		var err error
		result, err = engine.ChooseDirection(tx, gameID, req.PlayerID, req.ToTileID)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	log.Printf("choice game_id=%s player_id=%s to_tile=%s", gameID, req.PlayerID, req.ToTileID)
	writeJSON(w, http.StatusOK, result)
	s.broadcastState(gameID)
}

func (s *Server) handleEndTurn(w http.ResponseWriter, r *http.Request, gameID string) {
	var req endTurnRequest
	if err := readJSON(r.Body, &req); err != nil || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, engine.CodeBadInput, "playerId is required")
		return
	}
	var result engine.EndTurnResult
	err := s.inGameTx(gameID, func(tx *gorm.DB) error {
		var err error
		result, err = engine.EndTurn(tx, gameID, req.PlayerID)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	log.Printf("turn ended game_id=%s player_id=%s finished=%t", gameID, req.PlayerID, result.Finished)
	writeJSON(w, http.StatusOK, result)
	s.broadcastState(gameID)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request, gameID string) {
	var req rulesRequest
	if err := readJSON(r.Body, &req); err != nil || req.PlayerID == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, engine.CodeBadInput, "playerId and action are required")
		return
	}
	var result engine.MutationResult
	err := s.inGameTx(gameID, func(tx *gorm.DB) error {
		var err error
		result, err = engine.MutateRule(tx, gameID, req.PlayerID, req.Action, req.Rule, req.RuleID)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	log.Printf("rule %s game_id=%s player_id=%s rule_id=%s", req.Action, gameID, req.PlayerID, result.RuleID)
	writeJSON(w, http.StatusOK, result)
	s.broadcastState(gameID)
}

func (s *Server) handleTiles(w http.ResponseWriter, r *http.Request, gameID string) {
	var req tilesRequest
	if err := readJSON(r.Body, &req); err != nil || req.PlayerID == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, engine.CodeBadInput, "playerId and action are required")
		return
	}
	var result engine.MutationResult
	err := s.inGameTx(gameID, func(tx *gorm.DB) error {
		var err error
		result, err = engine.MutateTile(tx, gameID, req.PlayerID, req.Action, req.TileInput)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	log.Printf("tile %s game_id=%s player_id=%s tile_id=%s", req.Action, gameID, req.PlayerID, result.TileID)
	writeJSON(w, http.StatusOK, result)
	s.broadcastState(gameID)
}
