package engine

import (
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tilerunner/internal/db"
)

// DSL effect kinds. The enumeration is closed; anything else lands in the
// dispatch default and is logged as EFFECT_UNKNOWN, never fatal.
const (
	EffectMoveDelta      = "move.delta"
	EffectMoveSet        = "move.set"
	EffectDiceSet        = "dice.set"
	EffectVictoryDeclare = "victory.declare"
)

// Effect is one entry of a rule's ordered effect list.
type Effect struct {
	Type    string `json:"type"`
	Steps   int    `json:"steps,omitempty"`
	Faces   []int  `json:"faces,omitempty"`
	Label   string `json:"label,omitempty"`
	Message string `json:"message,omitempty"`
}

// ApplyResult reports where the acting player's core pawn ended up, if any
// effect moved it.
type ApplyResult struct {
	FinalPos *Position
}

func mainPawn(tx *gorm.DB, gameID, playerID string) (*db.Pawn, error) {
	var player db.Player
	if err := tx.Where("id = ? AND game_id = ?", playerID, gameID).First(&player).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(CodePlayerNotFound, "player %s", playerID)
		}
		return nil, err
	}
	if player.MainPawnID == nil {
		return nil, validation(CodeCorePawnMissing, "player %s has no core pawn", playerID)
	}
	var pawn db.Pawn
	if err := tx.Where("id = ?", *player.MainPawnID).First(&pawn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validation(CodeCorePawnMissing, "core pawn of player %s is gone", playerID)
		}
		return nil, err
	}
	return &pawn, nil
}

func trackMax(tx *gorm.DB, gameID string) (int, error) {
	var max *int
	if err := tx.Model(&db.Tile{}).Where("game_id = ?", gameID).
		Select("MAX(x)").Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// ApplyEffects executes a DSL effect list strictly in order. Each effect
// produces exactly one log event; no-ops log EFFECT_SKIPPED so the audit
// trail stays complete.
func ApplyEffects(tx *gorm.DB, gameID, turnID, playerID string, effects []Effect) (ApplyResult, error) {
	if len(effects) == 0 {
		return ApplyResult{}, nil
	}

	pawn, err := mainPawn(tx, gameID, playerID)
	if err != nil {
		return ApplyResult{}, err
	}

	result := ApplyResult{}
	for _, effect := range effects {
		switch effect.Type {
		case EffectMoveDelta:
			maxX, err := trackMax(tx, gameID)
			if err != nil {
				return ApplyResult{}, err
			}
			from := Position{X: pawn.X, Y: pawn.Y}
			toX := from.X + effect.Steps
			if toX < 0 {
				toX = 0
			}
			if toX > maxX {
				toX = maxX
			}
			to := Position{X: toX, Y: from.Y}
			if to == from {
				if _, err := logEvent(tx, gameID, EventEffectSkipped, EventPayload{
					PlayerID:   playerID,
					PawnID:     pawn.ID,
					EffectType: EffectMoveDelta,
					Steps:      effect.Steps,
					Reason:     "no position change",
				}, strPtr(turnID), strPtr(playerID)); err != nil {
					return ApplyResult{}, err
				}
				continue
			}
			if err := tx.Model(&db.Pawn{}).Where("id = ?", pawn.ID).
				Updates(map[string]any{"x": to.X, "y": to.Y}).Error; err != nil {
				return ApplyResult{}, err
			}
			pawn.X, pawn.Y = to.X, to.Y
			result.FinalPos = &Position{X: to.X, Y: to.Y}
			if _, err := logEvent(tx, gameID, EventEffectMove, EventPayload{
				PlayerID: playerID,
				PawnID:   pawn.ID,
				Steps:    effect.Steps,
				From:     &from,
				To:       &to,
			}, strPtr(turnID), strPtr(playerID)); err != nil {
				return ApplyResult{}, err
			}

		case EffectMoveSet:
			maxX, err := trackMax(tx, gameID)
			if err != nil {
				return ApplyResult{}, err
			}
			from := Position{X: pawn.X, Y: pawn.Y}
			toX := effect.Steps
			if toX < 0 {
				toX = 0
			}
			if toX > maxX {
				toX = maxX
			}
			to := Position{X: toX, Y: from.Y}
			if to == from {
				if _, err := logEvent(tx, gameID, EventEffectSkipped, EventPayload{
					PlayerID:   playerID,
					PawnID:     pawn.ID,
					EffectType: EffectMoveSet,
					Steps:      effect.Steps,
					Reason:     "no position change",
				}, strPtr(turnID), strPtr(playerID)); err != nil {
					return ApplyResult{}, err
				}
				continue
			}
			if err := tx.Model(&db.Pawn{}).Where("id = ?", pawn.ID).
				Updates(map[string]any{"x": to.X, "y": to.Y}).Error; err != nil {
				return ApplyResult{}, err
			}
			pawn.X, pawn.Y = to.X, to.Y
			result.FinalPos = &Position{X: to.X, Y: to.Y}
			if _, err := logEvent(tx, gameID, EventEffectMoveSet, EventPayload{
				PlayerID: playerID,
				PawnID:   pawn.ID,
				Steps:    effect.Steps,
				From:     &from,
				To:       &to,
			}, strPtr(turnID), strPtr(playerID)); err != nil {
				return ApplyResult{}, err
			}

		case EffectDiceSet:
			var die db.Die
			err := tx.Where("game_id = ? AND owner_player_id = ?", gameID, playerID).
				Order("created_at asc").First(&die).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if _, err := logEvent(tx, gameID, EventEffectSkipped, EventPayload{
					PlayerID:   playerID,
					EffectType: EffectDiceSet,
					Reason:     "player has no die",
				}, strPtr(turnID), strPtr(playerID)); err != nil {
					return ApplyResult{}, err
				}
				continue
			}
			if err != nil {
				return ApplyResult{}, err
			}
			updates := map[string]any{}
			if len(effect.Faces) > 0 {
				updates["faces"] = datatypes.JSONSlice[int](effect.Faces)
			}
			if effect.Label != "" {
				updates["label"] = effect.Label
			}
			if len(updates) > 0 {
				if err := tx.Model(&db.Die{}).Where("id = ?", die.ID).Updates(updates).Error; err != nil {
					return ApplyResult{}, err
				}
			}
			// Affects future rolls only; the current roll already read the die.
			if _, err := logEvent(tx, gameID, EventEffectDiceSet, EventPayload{
				PlayerID: playerID,
				DieID:    die.ID,
				Faces:    effect.Faces,
				Die:      effect.Label,
			}, strPtr(turnID), strPtr(playerID)); err != nil {
				return ApplyResult{}, err
			}

		case EffectVictoryDeclare:
			if err := tx.Model(&db.Player{}).Where("id = ?", playerID).
				Update("is_active", false).Error; err != nil {
				return ApplyResult{}, err
			}
			message := effect.Message
			if message == "" {
				message = "victory!"
			}
			if _, err := logEvent(tx, gameID, EventVictoryDeclare, EventPayload{
				PlayerID: playerID,
				Message:  message,
			}, strPtr(turnID), strPtr(playerID)); err != nil {
				return ApplyResult{}, err
			}

		default:
			if _, err := logEvent(tx, gameID, EventEffectUnknown, EventPayload{
				PlayerID:   playerID,
				EffectType: effect.Type,
			}, strPtr(turnID), strPtr(playerID)); err != nil {
				return ApplyResult{}, err
			}
		}
	}

	return result, nil
}
