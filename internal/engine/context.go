package engine

import (
	"errors"

	"gorm.io/gorm"

	"tilerunner/internal/db"
)

// buildEvalContext assembles the read-only snapshot rules are evaluated
// against. Built fresh for every evaluation: rules can run mid-transaction
// against state mutated moments earlier, so nothing here may be cached.
func buildEvalContext(tx *gorm.DB, gameID, playerID, tileID string) (map[string]any, error) {
	ctx := map[string]any{
		"currentPlayerId": nil,
		"player":          nil,
		"pawn":            nil,
		"tile":            nil,
	}

	if playerID != "" {
		var player db.Player
		if err := tx.Where("id = ? AND game_id = ?", playerID, gameID).First(&player).Error; err == nil {
			ctx["currentPlayerId"] = player.ID
			ctx["player"] = map[string]any{
				"id":           player.ID,
				"nickname":     player.Nickname,
				"color":        player.Color,
				"isActive":     player.IsActive,
				"skipNextTurn": player.SkipNextTurn,
			}
			if player.MainPawnID != nil {
				var pawn db.Pawn
				if err := tx.Where("id = ?", *player.MainPawnID).First(&pawn).Error; err == nil {
					ctx["pawn"] = map[string]any{
						"id": pawn.ID,
						"x":  pawn.X,
						"y":  pawn.Y,
					}
				}
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if tileID != "" {
		var tile db.Tile
		if err := tx.Where("id = ? AND game_id = ?", tileID, gameID).First(&tile).Error; err == nil {
			ctx["tile"] = map[string]any{
				"id":     tile.ID,
				"preset": tile.Preset,
				"tags":   []string(tile.Tags),
				"x":      tile.X,
				"y":      tile.Y,
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return ctx, nil
}
