package engine

import (
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"tilerunner/internal/db"
)

// State is the full per-game projection handed to clients. It is assembled
// inside one transaction so every slice reflects the same cursor.
type State struct {
	Game        GameView         `json:"game"`
	Turn        *TurnView        `json:"turn,omitempty"`
	Players     []PlayerView     `json:"players"`
	Pawns       []PawnView       `json:"pawns"`
	Tiles       []TileView       `json:"tiles"`
	Connections []ConnectionView `json:"connections"`
	Rules       []RuleView       `json:"rules"`
	Cursor      uint             `json:"cursor"`
}

type GameView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type TurnView struct {
	ID                  string            `json:"id"`
	Index               int               `json:"index"`
	CurrentPlayerID     string            `json:"currentPlayerId"`
	RolledThisTurn      bool              `json:"rolledThisTurn"`
	LastRoll            *int              `json:"lastRoll,omitempty"`
	RuleChangedThisTurn bool              `json:"ruleChangedThisTurn"`
	PendingMove         *PendingMoveState `json:"pendingMove,omitempty"`
}

type PlayerView struct {
	ID           string  `json:"id"`
	Nickname     string  `json:"nickname"`
	Color        string  `json:"color"`
	Seat         int     `json:"seat"`
	IsActive     bool    `json:"isActive"`
	SkipNextTurn bool    `json:"skipNextTurn"`
	MainPawnID   *string `json:"mainPawnId,omitempty"`
}

type PawnView struct {
	ID            string  `json:"id"`
	OwnerPlayerID *string `json:"ownerPlayerId,omitempty"`
	Kind          string  `json:"kind"`
	X             int     `json:"x"`
	Y             int     `json:"y"`
}

type TileView struct {
	ID      string           `json:"id"`
	X       int              `json:"x"`
	Y       int              `json:"y"`
	Preset  string           `json:"preset"`
	Tags    []string         `json:"tags"`
	Effects []TileEffectView `json:"effects,omitempty"`
}

type TileEffectView struct {
	ID     string          `json:"id"`
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
	Order  int             `json:"order"`
}

type ConnectionView struct {
	ID         string `json:"id"`
	FromTileID string `json:"fromTileId"`
	ToTileID   string `json:"toTileId"`
	Bidir      bool   `json:"bidir"`
}

type RuleView struct {
	ID          string          `json:"id"`
	Scope       string          `json:"scope"`
	Trigger     string          `json:"trigger"`
	Conditions  json.RawMessage `json:"conditions,omitempty"`
	Effects     json.RawMessage `json:"effects"`
	Priority    int             `json:"priority"`
	Specificity int             `json:"specificity"`
	Enabled     bool            `json:"enabled"`
	CreatedBy   string          `json:"createdBy"`
}

// GetState loads the full projection for a game.
func GetState(tx *gorm.DB, gameID string) (*State, error) {
	game, err := getGame(tx, gameID)
	if err != nil {
		return nil, err
	}
	state := &State{
		Game: GameView{ID: game.ID, Name: game.Name, Status: game.Status},
	}

	turn, err := currentTurn(tx, gameID)
	if err != nil {
		return nil, err
	}
	if turn != nil {
		view := &TurnView{
			ID:              turn.ID,
			Index:           turn.Index,
			CurrentPlayerID: turn.CurrentPlayerID,
		}
		rolled, err := db.CountEvents(tx, gameID, &turn.ID, &turn.CurrentPlayerID, EventRollAndMove)
		if err != nil {
			return nil, err
		}
		view.RolledThisTurn = rolled > 0
		if view.RolledThisTurn {
			if roll, err := lastRollThisTurn(tx, gameID, turn.ID); err != nil {
				return nil, err
			} else if roll != nil {
				view.LastRoll = roll
			}
		}
		changed, err := db.CountEvents(tx, gameID, &turn.ID, nil, mutationEventTypes...)
		if err != nil {
			return nil, err
		}
		view.RuleChangedThisTurn = changed > 0

		pending, err := pendingMoveFor(tx, gameID)
		if err != nil {
			return nil, err
		}
		if pending != nil {
			view.PendingMove = &PendingMoveState{
				PawnID:        pending.PawnID,
				CurrentTileID: pending.CurrentTileID,
				StepsLeft:     pending.StepsLeft,
			}
		}
		state.Turn = view
	}

	var players []db.Player
	if err := tx.Where("game_id = ?", gameID).Order("seat asc").Find(&players).Error; err != nil {
		return nil, err
	}
	for _, p := range players {
		state.Players = append(state.Players, PlayerView{
			ID:           p.ID,
			Nickname:     p.Nickname,
			Color:        p.Color,
			Seat:         p.Seat,
			IsActive:     p.IsActive,
			SkipNextTurn: p.SkipNextTurn,
			MainPawnID:   p.MainPawnID,
		})
	}

	var pawns []db.Pawn
	if err := tx.Where("game_id = ?", gameID).Order("created_at asc").Find(&pawns).Error; err != nil {
		return nil, err
	}
	for _, p := range pawns {
		state.Pawns = append(state.Pawns, PawnView{
			ID:            p.ID,
			OwnerPlayerID: p.OwnerPlayerID,
			Kind:          p.Kind,
			X:             p.X,
			Y:             p.Y,
		})
	}

	var tiles []db.Tile
	if err := tx.Where("game_id = ?", gameID).Order("x asc, y asc").Find(&tiles).Error; err != nil {
		return nil, err
	}
	var effects []db.TileEffect
	if err := tx.Where("game_id = ?", gameID).Order(`"order" asc`).Find(&effects).Error; err != nil {
		return nil, err
	}
	effectsByTile := map[string][]TileEffectView{}
	for _, e := range effects {
		effectsByTile[e.TileID] = append(effectsByTile[e.TileID], TileEffectView{
			ID:     e.ID,
			Kind:   e.Kind,
			Params: json.RawMessage(e.Params),
			Order:  e.Order,
		})
	}
	for _, t := range tiles {
		state.Tiles = append(state.Tiles, TileView{
			ID:      t.ID,
			X:       t.X,
			Y:       t.Y,
			Preset:  t.Preset,
			Tags:    t.Tags,
			Effects: effectsByTile[t.ID],
		})
	}

	var conns []db.Connection
	if err := tx.Where("game_id = ?", gameID).Find(&conns).Error; err != nil {
		return nil, err
	}
	for _, c := range conns {
		state.Connections = append(state.Connections, ConnectionView{
			ID:         c.ID,
			FromTileID: c.FromTileID,
			ToTileID:   c.ToTileID,
			Bidir:      c.Bidir,
		})
	}

	var rules []db.Rule
	if err := tx.Where("game_id = ?", gameID).Order("created_at asc").Find(&rules).Error; err != nil {
		return nil, err
	}
	for _, r := range rules {
		state.Rules = append(state.Rules, RuleView{
			ID:          r.ID,
			Scope:       r.Scope,
			Trigger:     r.Trigger,
			Conditions:  json.RawMessage(r.Conditions),
			Effects:     json.RawMessage(r.Effects),
			Priority:    r.Priority,
			Specificity: r.Specificity,
			Enabled:     r.Enabled,
			CreatedBy:   r.CreatedBy,
		})
	}

	cursor, err := db.LatestCursor(tx, gameID)
	if err != nil {
		return nil, err
	}
	state.Cursor = cursor
	return state, nil
}

func lastRollThisTurn(tx *gorm.DB, gameID, turnID string) (*int, error) {
	var event db.Event
	err := tx.Where("game_id = ? AND turn_id = ? AND type = ?", gameID, turnID, EventRollAndMove).
		Order("id desc").First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var payload EventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload.Rolled, nil
}

// EventView is one log entry as seen by clients.
type EventView struct {
	Cursor  uint            `json:"cursor"`
	Type    string          `json:"type"`
	TurnID  *string         `json:"turnId,omitempty"`
	ActorID *string         `json:"actorId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      string          `json:"at"`
}

// GetEvents pages the log forward from a cursor.
func GetEvents(tx *gorm.DB, gameID string, since uint, limit int) ([]EventView, error) {
	if _, err := getGame(tx, gameID); err != nil {
		return nil, err
	}
	events, err := db.EventsSince(tx, gameID, since, limit)
	if err != nil {
		return nil, err
	}
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		out = append(out, EventView{
			Cursor:  e.ID,
			Type:    e.Type,
			TurnID:  e.TurnID,
			ActorID: e.ActorID,
			Payload: json.RawMessage(e.Payload),
			At:      e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	return out, nil
}
