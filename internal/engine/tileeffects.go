package engine

import (
	"encoding/json"

	"gorm.io/gorm"

	"tilerunner/internal/db"
)

// Native tile effect kinds. Unlike DSL rules these are attached directly to
// a tile, always active, and applied in their explicit order whenever a
// pawn's movement ends there.
const (
	TileEffectMove     = "move"
	TileEffectSkipTurn = "skipTurn"
	TileEffectGiveItem = "giveItem"
	TileEffectTakeItem = "takeItem"
	TileEffectWin      = "win"
)

type tileEffectParams struct {
	Amount int    `json:"amount,omitempty"`
	Item   string `json:"item,omitempty"`
}

// RunArrivalEffects fires the tile-arrival pipeline for the player's core
// pawn. The ordering is load-bearing: enter-tile rules first, then the
// tile's native effects (order asc), then after-move rules, so native
// effects see the position written by arrival rules and after-move rules see
// the native results.
func RunArrivalEffects(tx *gorm.DB, gameID, turnID, playerID string) (ApplyResult, error) {
	pawn, err := mainPawn(tx, gameID, playerID)
	if err != nil {
		return ApplyResult{}, err
	}
	tileID := tileIDAt(tx, gameID, pawn.X, pawn.Y)

	result, err := runTriggerEffects(tx, gameID, turnID, playerID, tileID, TriggerEnterTile)
	if err != nil {
		return ApplyResult{}, err
	}

	// Arrival rules may have moved the pawn; native effects run where it is now.
	pawn, err = mainPawn(tx, gameID, playerID)
	if err != nil {
		return ApplyResult{}, err
	}
	tileID = tileIDAt(tx, gameID, pawn.X, pawn.Y)
	if tileID != "" {
		nativeResult, err := runNativeEffects(tx, gameID, turnID, playerID, tileID)
		if err != nil {
			return ApplyResult{}, err
		}
		if nativeResult.FinalPos != nil {
			result.FinalPos = nativeResult.FinalPos
		}
	}

	pawn, err = mainPawn(tx, gameID, playerID)
	if err != nil {
		return ApplyResult{}, err
	}
	tileID = tileIDAt(tx, gameID, pawn.X, pawn.Y)
	afterResult, err := runTriggerEffects(tx, gameID, turnID, playerID, tileID, TriggerAfterMove)
	if err != nil {
		return ApplyResult{}, err
	}
	if afterResult.FinalPos != nil {
		result.FinalPos = afterResult.FinalPos
	}
	return result, nil
}

func runTriggerEffects(tx *gorm.DB, gameID, turnID, playerID, tileID, trigger string) (ApplyResult, error) {
	rules, err := ApplicableRules(tx, gameID, trigger, playerID, tileID)
	if err != nil {
		return ApplyResult{}, err
	}
	result := ApplyResult{}
	for _, rule := range rules {
		ruleResult, err := ApplyEffects(tx, gameID, turnID, playerID, rule.Effects)
		if err != nil {
			return ApplyResult{}, err
		}
		if ruleResult.FinalPos != nil {
			result.FinalPos = ruleResult.FinalPos
		}
	}
	return result, nil
}

func runNativeEffects(tx *gorm.DB, gameID, turnID, playerID, tileID string) (ApplyResult, error) {
	var effects []db.TileEffect
	if err := tx.Where("game_id = ? AND tile_id = ?", gameID, tileID).
		Order(`"order" asc, created_at asc`).
		Find(&effects).Error; err != nil {
		return ApplyResult{}, err
	}

	result := ApplyResult{}
	for _, effect := range effects {
		var params tileEffectParams
		if len(effect.Params) > 0 {
			if err := json.Unmarshal([]byte(effect.Params), &params); err != nil {
				return ApplyResult{}, validation(CodeBadInput, "tile effect %s has malformed params", effect.ID)
			}
		}

		switch effect.Kind {
		case TileEffectMove:
			moved, err := applyNativeMove(tx, gameID, turnID, playerID, effect.TileID, params.Amount)
			if err != nil {
				return ApplyResult{}, err
			}
			if moved != nil {
				result.FinalPos = moved
			}

		case TileEffectSkipTurn:
			if err := tx.Model(&db.Player{}).Where("id = ?", playerID).
				Update("skip_next_turn", true).Error; err != nil {
				return ApplyResult{}, err
			}
			if _, err := logEvent(tx, gameID, EventEffectSkipTurn, EventPayload{
				PlayerID: playerID,
				TileID:   effect.TileID,
			}, strPtr(turnID), strPtr(playerID)); err != nil {
				return ApplyResult{}, err
			}

		case TileEffectGiveItem, TileEffectTakeItem:
			// No inventory storage in this core; logged for consumers.
			eventType := EventEffectGiveItem
			if effect.Kind == TileEffectTakeItem {
				eventType = EventEffectTakeItem
			}
			if _, err := logEvent(tx, gameID, eventType, EventPayload{
				PlayerID: playerID,
				TileID:   effect.TileID,
				Item:     params.Item,
			}, strPtr(turnID), strPtr(playerID)); err != nil {
				return ApplyResult{}, err
			}

		case TileEffectWin:
			if err := tx.Model(&db.Player{}).Where("id = ?", playerID).
				Update("is_active", false).Error; err != nil {
				return ApplyResult{}, err
			}
			if _, err := logEvent(tx, gameID, EventEffectWin, EventPayload{
				PlayerID: playerID,
				TileID:   effect.TileID,
			}, strPtr(turnID), strPtr(playerID)); err != nil {
				return ApplyResult{}, err
			}

		default:
			if _, err := logEvent(tx, gameID, EventEffectUnknown, EventPayload{
				PlayerID:   playerID,
				TileID:     effect.TileID,
				EffectType: effect.Kind,
			}, strPtr(turnID), strPtr(playerID)); err != nil {
				return ApplyResult{}, err
			}
		}
	}
	return result, nil
}

// applyNativeMove walks the connection graph step by step: positive amounts
// follow the first outbound edge, negative amounts the first inbound edge.
// Candidate edges are ordered by destination coordinate (x, then y) so the
// walk is deterministic when a tile has several edges.
func applyNativeMove(tx *gorm.DB, gameID, turnID, playerID, sourceTileID string, amount int) (*Position, error) {
	pawn, err := mainPawn(tx, gameID, playerID)
	if err != nil {
		return nil, err
	}
	from := Position{X: pawn.X, Y: pawn.Y}

	steps := amount
	if steps < 0 {
		steps = -steps
	}
	currentID := tileIDAt(tx, gameID, pawn.X, pawn.Y)
	var current *db.Tile
	for i := 0; i < steps && currentID != ""; i++ {
		var next []db.Tile
		if amount > 0 {
			next, err = outboundTiles(tx, gameID, currentID)
		} else {
			next, err = inboundTiles(tx, gameID, currentID)
		}
		if err != nil {
			return nil, err
		}
		if len(next) == 0 {
			break
		}
		current = &next[0]
		currentID = current.ID
	}

	if current == nil || (current.X == from.X && current.Y == from.Y) {
		_, err := logEvent(tx, gameID, EventEffectSkipped, EventPayload{
			PlayerID:   playerID,
			PawnID:     pawn.ID,
			TileID:     sourceTileID,
			EffectType: TileEffectMove,
			Amount:     amount,
			Reason:     "no position change",
		}, strPtr(turnID), strPtr(playerID))
		return nil, err
	}

	if err := tx.Model(&db.Pawn{}).Where("id = ?", pawn.ID).
		Updates(map[string]any{"x": current.X, "y": current.Y}).Error; err != nil {
		return nil, err
	}
	to := Position{X: current.X, Y: current.Y}
	if _, err := logEvent(tx, gameID, EventEffectTileMove, EventPayload{
		PlayerID: playerID,
		PawnID:   pawn.ID,
		TileID:   sourceTileID,
		Amount:   amount,
		From:     &from,
		To:       &to,
	}, strPtr(turnID), strPtr(playerID)); err != nil {
		return nil, err
	}
	return &to, nil
}
