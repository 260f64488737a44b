package engine

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tilerunner/internal/db"
)

// Rule mutation actions.
const (
	RuleActionAdd    = "add"
	RuleActionModify = "modify"
	RuleActionRemove = "remove"
)

// Tile mutation actions.
const (
	TileActionAdd        = "addTile"
	TileActionRemove     = "removeTile"
	TileActionConnect    = "connect"
	TileActionDisconnect = "disconnect"
	TileActionUpdate     = "updateTile"
)

// RuleInput is the player-submitted rule body for add/modify.
type RuleInput struct {
	Scope       string          `json:"scope"`
	Trigger     string          `json:"trigger"`
	Conditions  json.RawMessage `json:"conditions,omitempty"`
	Effects     []Effect        `json:"effects"`
	Priority    int             `json:"priority"`
	Specificity int             `json:"specificity"`
	Enabled     *bool           `json:"enabled,omitempty"`
}

// TileInput is the player-submitted tile edit body.
type TileInput struct {
	X          *int     `json:"x,omitempty"`
	Y          *int     `json:"y,omitempty"`
	TileID     string   `json:"tileId,omitempty"`
	FromTileID string   `json:"fromTileId,omitempty"`
	ToTileID   string   `json:"toTileId,omitempty"`
	Bidir      *bool    `json:"bidir,omitempty"`
	Preset     string   `json:"preset,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	ConnectTo  string   `json:"connectToTileId,omitempty"`
}

// MutationResult carries the log cursor of the mutation event.
type MutationResult struct {
	RuleID string `json:"ruleId,omitempty"`
	TileID string `json:"tileId,omitempty"`
	Cursor uint   `json:"cursor"`
}

// requireMutationBudget enforces the shared one-mutation-per-turn quota and
// its ordering gates: the player must own the turn, must have rolled, and
// must not be sitting on an unresolved branch choice.
func requireMutationBudget(tx *gorm.DB, gameID, playerID string) (*db.Turn, error) {
	turn, err := requireCurrentTurn(tx, gameID, playerID)
	if err != nil {
		return nil, err
	}

	pending, err := pendingMoveFor(tx, gameID)
	if err != nil {
		return nil, err
	}
	if pending != nil && pending.StepsLeft > 0 {
		return nil, sequenceViolation(CodeMovePendingChoice, "resolve the branch choice first")
	}

	rolled, err := db.CountEvents(tx, gameID, &turn.ID, &playerID, EventRollAndMove)
	if err != nil {
		return nil, err
	}
	if rolled == 0 {
		return nil, sequenceViolation(CodeMustRollBeforeEdit, "roll before editing rules or tiles")
	}

	// The quota is shared across rule and tile mutations, by any actor.
	used, err := db.CountEvents(tx, gameID, &turn.ID, nil, mutationEventTypes...)
	if err != nil {
		return nil, err
	}
	if used > 0 {
		return nil, quotaExceeded("one rule or tile change per turn")
	}
	return turn, nil
}

// MutateRule adds, modifies or removes a user-authored rule. Authoring is
// lint-gated: see lintRule.
func MutateRule(tx *gorm.DB, gameID, playerID, action string, input *RuleInput, ruleID string) (MutationResult, error) {
	turn, err := requireMutationBudget(tx, gameID, playerID)
	if err != nil {
		return MutationResult{}, err
	}

	var eventType string
	payload := EventPayload{Action: action}

	switch action {
	case RuleActionAdd:
		if input == nil {
			return MutationResult{}, validation(CodeBadInput, "rule body is required")
		}
		applyRuleDefaults(input)
		if err := lintRule(tx, gameID, *input, ""); err != nil {
			return MutationResult{}, err
		}
		effects, err := json.Marshal(input.Effects)
		if err != nil {
			return MutationResult{}, err
		}
		record := db.Rule{
			ID:          uuid.NewString(),
			GameID:      gameID,
			Scope:       input.Scope,
			Trigger:     input.Trigger,
			Conditions:  datatypes.JSON(input.Conditions),
			Effects:     datatypes.JSON(effects),
			Priority:    input.Priority,
			Specificity: input.Specificity,
			Enabled:     input.Enabled == nil || *input.Enabled,
			CreatedBy:   playerID,
		}
		if err := tx.Create(&record).Error; err != nil {
			return MutationResult{}, err
		}
		eventType = EventRuleAdded
		ruleID = record.ID

	case RuleActionModify:
		if ruleID == "" {
			return MutationResult{}, validation(CodeRuleIDRequired, "ruleId is required")
		}
		if input == nil {
			return MutationResult{}, validation(CodeBadInput, "rule body is required")
		}
		var record db.Rule
		if err := tx.Where("id = ? AND game_id = ?", ruleID, gameID).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return MutationResult{}, notFound(CodeRuleNotFound, "rule %s", ruleID)
			}
			return MutationResult{}, err
		}
		applyRuleDefaults(input)
		if err := lintRule(tx, gameID, *input, ruleID); err != nil {
			return MutationResult{}, err
		}
		effects, err := json.Marshal(input.Effects)
		if err != nil {
			return MutationResult{}, err
		}
		updates := map[string]any{
			"scope":       input.Scope,
			"trigger":     input.Trigger,
			"conditions":  datatypes.JSON(input.Conditions),
			"effects":     datatypes.JSON(effects),
			"priority":    input.Priority,
			"specificity": input.Specificity,
		}
		if input.Enabled != nil {
			updates["enabled"] = *input.Enabled
		}
		if err := tx.Model(&db.Rule{}).Where("id = ?", ruleID).Updates(updates).Error; err != nil {
			return MutationResult{}, err
		}
		eventType = EventRuleModified

	case RuleActionRemove:
		if ruleID == "" {
			return MutationResult{}, validation(CodeRuleIDRequired, "ruleId is required")
		}
		result := tx.Where("id = ? AND game_id = ?", ruleID, gameID).Delete(&db.Rule{})
		if result.Error != nil {
			return MutationResult{}, result.Error
		}
		if result.RowsAffected == 0 {
			return MutationResult{}, notFound(CodeRuleNotFound, "rule %s", ruleID)
		}
		eventType = EventRuleRemoved

	default:
		return MutationResult{}, validation(CodeUnknownAction, "unknown rule action %q", action)
	}

	payload.RuleID = ruleID
	cursor, err := logEvent(tx, gameID, eventType, payload, &turn.ID, &playerID)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{RuleID: ruleID, Cursor: cursor}, nil
}

func applyRuleDefaults(input *RuleInput) {
	if input.Scope == "" {
		input.Scope = ScopeGeneric
	}
	if input.Trigger == "" {
		input.Trigger = TriggerAfterMove
	}
}

// MutateTile edits the board. Shares the per-turn mutation quota with rules.
func MutateTile(tx *gorm.DB, gameID, playerID, action string, input TileInput) (MutationResult, error) {
	turn, err := requireMutationBudget(tx, gameID, playerID)
	if err != nil {
		return MutationResult{}, err
	}

	payload := EventPayload{Action: action}

	switch action {
	case TileActionAdd:
		if input.X == nil || input.Y == nil {
			return MutationResult{}, validation(CodeBadCoords, "x and y are required")
		}
		existing, err := tileAt(tx, gameID, *input.X, *input.Y)
		if err != nil {
			return MutationResult{}, err
		}
		if existing != nil {
			return MutationResult{}, validation(CodeTileExists, "tile at (%d,%d) already exists", *input.X, *input.Y)
		}
		preset := input.Preset
		if preset == "" {
			preset = "neutral"
		}
		tags := input.Tags
		if tags == nil {
			tags = []string{}
		}
		tile := db.Tile{
			ID:     uuid.NewString(),
			GameID: gameID,
			X:      *input.X,
			Y:      *input.Y,
			Preset: preset,
			Tags:   datatypes.JSONSlice[string](tags),
		}
		if err := tx.Create(&tile).Error; err != nil {
			if isUniqueViolation(err) {
				return MutationResult{}, validation(CodeTileExists, "tile at (%d,%d) already exists", *input.X, *input.Y)
			}
			return MutationResult{}, err
		}
		if input.ConnectTo != "" {
			var target db.Tile
			if err := tx.Where("id = ? AND game_id = ?", input.ConnectTo, gameID).First(&target).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return MutationResult{}, validation(CodeConnectTargetGone, "tile %s", input.ConnectTo)
				}
				return MutationResult{}, err
			}
			if err := ensureConnection(tx, gameID, target.ID, tile.ID, true); err != nil {
				return MutationResult{}, err
			}
			if err := ensureConnection(tx, gameID, tile.ID, target.ID, true); err != nil {
				return MutationResult{}, err
			}
		}
		payload.TileID = tile.ID
		payload.Preset = preset
		payload.Tags = tags
		payload.ConnectTo = input.ConnectTo

	case TileActionRemove:
		if input.TileID == "" {
			return MutationResult{}, validation(CodeBadInput, "tileId is required")
		}
		if err := tx.Where("game_id = ? AND (from_tile_id = ? OR to_tile_id = ?)",
			gameID, input.TileID, input.TileID).Delete(&db.Connection{}).Error; err != nil {
			return MutationResult{}, err
		}
		if err := tx.Where("game_id = ? AND tile_id = ?", gameID, input.TileID).
			Delete(&db.TileEffect{}).Error; err != nil {
			return MutationResult{}, err
		}
		result := tx.Where("id = ? AND game_id = ?", input.TileID, gameID).Delete(&db.Tile{})
		if result.Error != nil {
			return MutationResult{}, result.Error
		}
		if result.RowsAffected == 0 {
			return MutationResult{}, notFound(CodeTileNotFound, "tile %s", input.TileID)
		}
		payload.TileID = input.TileID

	case TileActionConnect:
		if input.FromTileID == "" || input.ToTileID == "" {
			return MutationResult{}, validation(CodeBadConnection, "fromTileId and toTileId are required")
		}
		var count int64
		if err := tx.Model(&db.Tile{}).Where("game_id = ? AND id IN ?",
			gameID, []string{input.FromTileID, input.ToTileID}).Count(&count).Error; err != nil {
			return MutationResult{}, err
		}
		if count != 2 {
			return MutationResult{}, validation(CodeBadConnection, "both tiles must exist")
		}
		bidir := input.Bidir == nil || *input.Bidir
		if err := ensureConnection(tx, gameID, input.FromTileID, input.ToTileID, bidir); err != nil {
			return MutationResult{}, err
		}
		if bidir {
			if err := ensureConnection(tx, gameID, input.ToTileID, input.FromTileID, bidir); err != nil {
				return MutationResult{}, err
			}
		}
		payload.FromTileID = input.FromTileID
		payload.ToTileID = input.ToTileID
		payload.Bidir = &bidir

	case TileActionDisconnect:
		if input.FromTileID == "" || input.ToTileID == "" {
			return MutationResult{}, validation(CodeBadConnection, "fromTileId and toTileId are required")
		}
		if err := tx.Where("game_id = ? AND from_tile_id = ? AND to_tile_id = ?",
			gameID, input.FromTileID, input.ToTileID).Delete(&db.Connection{}).Error; err != nil {
			return MutationResult{}, err
		}
		if err := tx.Where("game_id = ? AND from_tile_id = ? AND to_tile_id = ?",
			gameID, input.ToTileID, input.FromTileID).Delete(&db.Connection{}).Error; err != nil {
			return MutationResult{}, err
		}
		payload.FromTileID = input.FromTileID
		payload.ToTileID = input.ToTileID

	case TileActionUpdate:
		if input.TileID == "" {
			return MutationResult{}, validation(CodeBadInput, "tileId is required")
		}
		updates := map[string]any{}
		if input.Preset != "" {
			updates["preset"] = input.Preset
		}
		if input.Tags != nil {
			updates["tags"] = datatypes.JSONSlice[string](input.Tags)
		}
		if len(updates) > 0 {
			result := tx.Model(&db.Tile{}).Where("id = ? AND game_id = ?", input.TileID, gameID).Updates(updates)
			if result.Error != nil {
				return MutationResult{}, result.Error
			}
			if result.RowsAffected == 0 {
				return MutationResult{}, notFound(CodeTileNotFound, "tile %s", input.TileID)
			}
		}
		payload.TileID = input.TileID
		payload.Preset = input.Preset
		payload.Tags = input.Tags

	default:
		return MutationResult{}, validation(CodeUnknownAction, "unknown tile action %q", action)
	}

	cursor, err := logEvent(tx, gameID, EventTileEdit, payload, &turn.ID, &playerID)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{TileID: payload.TileID, Cursor: cursor}, nil
}

func ensureConnection(tx *gorm.DB, gameID, fromTileID, toTileID string, bidir bool) error {
	var existing db.Connection
	err := tx.Where("game_id = ? AND from_tile_id = ? AND to_tile_id = ?",
		gameID, fromTileID, toTileID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return tx.Create(&db.Connection{
		ID:         uuid.NewString(),
		GameID:     gameID,
		FromTileID: fromTileID,
		ToTileID:   toTileID,
		Bidir:      bidir,
	}).Error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
