package engine

import (
	"errors"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tilerunner/internal/db"
)

// PendingMoveState is the in-flight branch choice surfaced to clients.
type PendingMoveState struct {
	PawnID        string `json:"pawnId"`
	CurrentTileID string `json:"currentTileId"`
	StepsLeft     int    `json:"stepsLeft"`
}

func tileAt(tx *gorm.DB, gameID string, x, y int) (*db.Tile, error) {
	var tile db.Tile
	err := tx.Where("game_id = ? AND x = ? AND y = ?", gameID, x, y).First(&tile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tile, nil
}

func tileIDAt(tx *gorm.DB, gameID string, x, y int) string {
	tile, err := tileAt(tx, gameID, x, y)
	if err != nil || tile == nil {
		return ""
	}
	return tile.ID
}

// outboundTiles lists the tiles reachable one step forward from a tile,
// ordered by coordinate (x asc, then y asc) so walks are deterministic.
func outboundTiles(tx *gorm.DB, gameID, fromTileID string) ([]db.Tile, error) {
	var tiles []db.Tile
	err := tx.Model(&db.Tile{}).
		Joins("JOIN connections ON connections.to_tile_id = tiles.id").
		Where("connections.game_id = ? AND connections.from_tile_id = ?", gameID, fromTileID).
		Order("tiles.x asc, tiles.y asc").
		Find(&tiles).Error
	return tiles, err
}

// inboundTiles is the reverse walk, used by negative native move amounts.
func inboundTiles(tx *gorm.DB, gameID, toTileID string) ([]db.Tile, error) {
	var tiles []db.Tile
	err := tx.Model(&db.Tile{}).
		Joins("JOIN connections ON connections.from_tile_id = tiles.id").
		Where("connections.game_id = ? AND connections.to_tile_id = ?", gameID, toTileID).
		Order("tiles.x asc, tiles.y asc").
		Find(&tiles).Error
	return tiles, err
}

// autoAdvance consumes steps through single-exit chains: a dead end stops
// the walk (remaining steps are dropped), a branch pauses it for a player
// choice. The pawn row is updated at every step taken.
func autoAdvance(tx *gorm.DB, gameID string, pawn *db.Pawn, currentTileID string, stepsLeft int) (string, int, error) {
	for stepsLeft > 0 {
		outs, err := outboundTiles(tx, gameID, currentTileID)
		if err != nil {
			return "", 0, err
		}
		if len(outs) != 1 {
			break
		}
		next := outs[0]
		if err := tx.Model(&db.Pawn{}).Where("id = ?", pawn.ID).
			Updates(map[string]any{"x": next.X, "y": next.Y}).Error; err != nil {
			return "", 0, err
		}
		pawn.X, pawn.Y = next.X, next.Y
		currentTileID = next.ID
		stepsLeft--
	}
	return currentTileID, stepsLeft, nil
}

func pendingMoveFor(tx *gorm.DB, gameID string) (*db.PendingMove, error) {
	var pending db.PendingMove
	err := tx.Where("game_id = ?", gameID).First(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

func savePendingMove(tx *gorm.DB, gameID, turnID, playerID, pawnID, currentTileID string, stepsLeft int) (*PendingMoveState, error) {
	existing, err := pendingMoveFor(tx, gameID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := tx.Model(&db.PendingMove{}).Where("id = ?", existing.ID).Updates(map[string]any{
			"turn_id":         turnID,
			"pawn_id":         pawnID,
			"current_tile_id": currentTileID,
			"steps_left":      stepsLeft,
		}).Error; err != nil {
			return nil, err
		}
	} else {
		record := db.PendingMove{
			ID:            uuid.NewString(),
			GameID:        gameID,
			TurnID:        turnID,
			PawnID:        pawnID,
			CurrentTileID: currentTileID,
			StepsLeft:     stepsLeft,
		}
		if err := tx.Create(&record).Error; err != nil {
			return nil, err
		}
	}
	state := &PendingMoveState{PawnID: pawnID, CurrentTileID: currentTileID, StepsLeft: stepsLeft}
	if _, err := logEvent(tx, gameID, EventMovePending, EventPayload{
		PlayerID:      playerID,
		PawnID:        pawnID,
		CurrentTileID: currentTileID,
		StepsLeft:     intPtr(stepsLeft),
	}, strPtr(turnID), strPtr(playerID)); err != nil {
		return nil, err
	}
	return state, nil
}

func clearPendingMoves(tx *gorm.DB, gameID string) error {
	return tx.Where("game_id = ?", gameID).Delete(&db.PendingMove{}).Error
}

// completeMovement runs once a pawn's steps hit zero: the marker is cleared,
// the arrival pipeline fires, and landing on a goal/"arrival" tile retires
// the player. Retiring a player here does not end the game; that only
// happens when rotation finds nobody left to play.
func completeMovement(tx *gorm.DB, gameID, turnID, playerID, finalTileID string) error {
	if err := clearPendingMoves(tx, gameID); err != nil {
		return err
	}
	if _, err := RunArrivalEffects(tx, gameID, turnID, playerID); err != nil {
		return err
	}

	var tile db.Tile
	if err := tx.Where("id = ?", finalTileID).First(&tile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	isArrival := tile.Preset == "goal" || slices.Contains([]string(tile.Tags), "arrival")
	if !isArrival {
		return nil
	}
	var player db.Player
	if err := tx.Where("id = ?", playerID).First(&player).Error; err != nil {
		return err
	}
	if !player.IsActive {
		return nil
	}
	if err := tx.Model(&db.Player{}).Where("id = ?", playerID).
		Update("is_active", false).Error; err != nil {
		return err
	}
	_, err := logEvent(tx, gameID, EventPlayerFinished, EventPayload{
		PlayerID: playerID,
		Position: &Position{X: tile.X, Y: tile.Y},
	}, strPtr(turnID), strPtr(playerID))
	return err
}

// ChooseResult reports the state after a direction choice.
type ChooseResult struct {
	PendingMove *PendingMoveState `json:"pendingMove,omitempty"`
	Finished    bool              `json:"finished"`
}

// ChooseDirection resolves a pending branch choice: the chosen tile must be
// one of the current branch's outbound targets. It advances one step, then
// re-enters the auto-advance loop.
func ChooseDirection(tx *gorm.DB, gameID, playerID, toTileID string) (ChooseResult, error) {
	turn, err := requireCurrentTurn(tx, gameID, playerID)
	if err != nil {
		return ChooseResult{}, err
	}

	pending, err := pendingMoveFor(tx, gameID)
	if err != nil {
		return ChooseResult{}, err
	}
	if pending == nil || pending.StepsLeft <= 0 {
		return ChooseResult{}, sequenceViolation(CodeNoPendingMove, "no branch choice is pending")
	}

	outs, err := outboundTiles(tx, gameID, pending.CurrentTileID)
	if err != nil {
		return ChooseResult{}, err
	}
	if len(outs) <= 1 {
		return ChooseResult{}, validation(CodeNoChoiceExpected, "tile %s has no branch", pending.CurrentTileID)
	}
	var chosen *db.Tile
	for i := range outs {
		if outs[i].ID == toTileID {
			chosen = &outs[i]
			break
		}
	}
	if chosen == nil {
		return ChooseResult{}, validation(CodeInvalidChoice, "tile %s is not an outbound target", toTileID)
	}

	pawn := db.Pawn{}
	if err := tx.Where("id = ?", pending.PawnID).First(&pawn).Error; err != nil {
		return ChooseResult{}, err
	}
	if err := tx.Model(&db.Pawn{}).Where("id = ?", pawn.ID).
		Updates(map[string]any{"x": chosen.X, "y": chosen.Y}).Error; err != nil {
		return ChooseResult{}, err
	}
	pawn.X, pawn.Y = chosen.X, chosen.Y

	currentTileID, stepsLeft, err := autoAdvance(tx, gameID, &pawn, chosen.ID, pending.StepsLeft-1)
	if err != nil {
		return ChooseResult{}, err
	}

	if stepsLeft > 0 {
		outs, err := outboundTiles(tx, gameID, currentTileID)
		if err != nil {
			return ChooseResult{}, err
		}
		if len(outs) > 1 {
			state, err := savePendingMove(tx, gameID, turn.ID, playerID, pawn.ID, currentTileID, stepsLeft)
			if err != nil {
				return ChooseResult{}, err
			}
			return ChooseResult{PendingMove: state}, nil
		}
		// Dead end: remaining steps are dropped.
	}

	if err := completeMovement(tx, gameID, turn.ID, playerID, currentTileID); err != nil {
		return ChooseResult{}, err
	}
	return ChooseResult{Finished: true}, nil
}
