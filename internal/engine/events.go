package engine

import (
	"gorm.io/gorm"

	"tilerunner/internal/db"
)

// Event log entry types. The log is the authoritative record of everything
// the engine does; consumers must tolerate types they do not know.
const (
	EventGameCreated    = "GAME_CREATED"
	EventPlayerJoined   = "PLAYER_JOINED"
	EventRollAndMove    = "ROLL_AND_MOVE"
	EventMovePending    = "MOVE_PENDING"
	EventPlayerFinished = "PLAYER_FINISHED"
	EventTurnEnded      = "TURN_ENDED"
	EventTurnSkipped    = "TURN_SKIPPED"
	EventRuleAdded      = "RULE_ADDED"
	EventRuleModified   = "RULE_MODIFIED"
	EventRuleRemoved    = "RULE_REMOVED"
	EventTileEdit       = "TILE_EDIT"
	EventEffectMove     = "EFFECT_MOVE_DELTA"
	EventEffectMoveSet  = "EFFECT_MOVE_SET"
	EventEffectDiceSet  = "EFFECT_DICE_SET"
	EventVictoryDeclare = "VICTORY_DECLARE"
	EventEffectTileMove = "EFFECT_TILE_MOVE"
	EventEffectSkipTurn = "EFFECT_SKIP_TURN"
	EventEffectGiveItem = "EFFECT_GIVE_ITEM"
	EventEffectTakeItem = "EFFECT_TAKE_ITEM"
	EventEffectWin      = "EFFECT_WIN"
	EventEffectSkipped  = "EFFECT_SKIPPED"
	EventEffectUnknown  = "EFFECT_UNKNOWN"
)

// mutationEventTypes share the one-change-per-turn quota.
var mutationEventTypes = []string{
	EventRuleAdded, EventRuleModified, EventRuleRemoved, EventTileEdit,
}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// EventPayload covers all event types; unused fields are omitted.
type EventPayload struct {
	PlayerID      string    `json:"playerId,omitempty"`
	Nickname      string    `json:"nickname,omitempty"`
	Players       []string  `json:"players,omitempty"`
	Name          string    `json:"name,omitempty"`
	PawnID        string    `json:"pawnId,omitempty"`
	DieID         string    `json:"dieId,omitempty"`
	Die           string    `json:"die,omitempty"`
	Faces         []int     `json:"faces,omitempty"`
	Rolled        int       `json:"rolled,omitempty"`
	Steps         int       `json:"steps,omitempty"`
	Amount        int       `json:"amount,omitempty"`
	From          *Position `json:"from,omitempty"`
	To            *Position `json:"to,omitempty"`
	Position      *Position `json:"position,omitempty"`
	CurrentTileID string    `json:"currentTileId,omitempty"`
	StepsLeft     *int      `json:"stepsLeft,omitempty"`
	TileID        string    `json:"tileId,omitempty"`
	FromTileID    string    `json:"fromTileId,omitempty"`
	ToTileID      string    `json:"toTileId,omitempty"`
	Bidir         *bool     `json:"bidir,omitempty"`
	Preset        string    `json:"preset,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	ConnectTo     string    `json:"connectToTileId,omitempty"`
	RuleID        string    `json:"ruleId,omitempty"`
	Action        string    `json:"action,omitempty"`
	EffectType    string    `json:"effectType,omitempty"`
	Item          string    `json:"item,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Message       string    `json:"message,omitempty"`
	Finished      bool      `json:"finished,omitempty"`
}

func logEvent(tx *gorm.DB, gameID, eventType string, payload EventPayload, turnID, actorID *string) (uint, error) {
	return db.AppendEvent(tx, gameID, eventType, payload, turnID, actorID)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(v int) *int {
	return &v
}
