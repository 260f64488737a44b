package main

import (
	"encoding/json"
	"log"
	"os"

	"tilerunner/internal/config"
	"tilerunner/internal/db"
	"tilerunner/internal/engine"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Seeds a demo game: three players on the default track, one branch tile,
// a couple of native tile effects and a starter rule.
func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	var conn *gorm.DB
	var err error
	if os.Getenv("DATABASE_URL") != "" {
		conn, err = db.Open()
	} else {
		log.Println("DATABASE_URL not set, seeding local sqlite file tilerunner.db")
		conn, err = db.OpenSQLite("tilerunner.db")
	}
	if err != nil {
		log.Fatalf("database connect failed: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	err = conn.Transaction(func(tx *gorm.DB) error {
		game, err := engine.CreateGame(tx, "Demo Run", []engine.PlayerInput{
			{Nickname: "Ada"},
			{Nickname: "Brendan"},
			{Nickname: "Grace"},
		}, cfg.TrackLength)
		if err != nil {
			return err
		}

		branch := db.Tile{
			ID:     uuid.NewString(),
			GameID: game.ID,
			X:      5,
			Y:      1,
			Preset: "bonus",
			Tags:   datatypes.JSONSlice[string]{"shortcut"},
		}
		if err := tx.Create(&branch).Error; err != nil {
			return err
		}
		fork, err := tileByCoord(tx, game.ID, 4, 0)
		if err != nil {
			return err
		}
		rejoin, err := tileByCoord(tx, game.ID, 8, 0)
		if err != nil {
			return err
		}
		for _, pair := range [][2]string{
			{fork.ID, branch.ID},
			{branch.ID, rejoin.ID},
		} {
			if err := tx.Create(&db.Connection{
				ID:         uuid.NewString(),
				GameID:     game.ID,
				FromTileID: pair[0],
				ToTileID:   pair[1],
				Bidir:      false,
			}).Error; err != nil {
				return err
			}
		}

		setback, err := tileByCoord(tx, game.ID, 12, 0)
		if err != nil {
			return err
		}
		rest, err := tileByCoord(tx, game.ID, 7, 0)
		if err != nil {
			return err
		}
		effects := []db.TileEffect{
			{ID: uuid.NewString(), GameID: game.ID, TileID: setback.ID, Kind: engine.TileEffectMove, Params: mustJSON(map[string]any{"amount": -3}), Order: 0},
			{ID: uuid.NewString(), GameID: game.ID, TileID: rest.ID, Kind: engine.TileEffectSkipTurn, Params: mustJSON(map[string]any{}), Order: 0},
			{ID: uuid.NewString(), GameID: game.ID, TileID: branch.ID, Kind: engine.TileEffectGiveItem, Params: mustJSON(map[string]any{"item": "key"}), Order: 0},
		}
		if err := tx.Create(&effects).Error; err != nil {
			return err
		}

		rule := db.Rule{
			ID:      uuid.NewString(),
			GameID:  game.ID,
			Scope:   engine.ScopeTile,
			Trigger: engine.TriggerEnterTile,
			Conditions: mustJSON(map[string]any{
				"op":    "hasTag",
				"path":  "tile.tags",
				"value": "shortcut",
			}),
			Effects: mustJSON([]map[string]any{
				{"type": engine.EffectMoveDelta, "steps": 1},
			}),
			Priority:    0,
			Specificity: 1,
			Enabled:     true,
			CreatedBy:   "seed",
		}
		if err := tx.Create(&rule).Error; err != nil {
			return err
		}

		log.Printf("seeded demo game game_id=%s", game.ID)
		return nil
	})
	if err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func tileByCoord(tx *gorm.DB, gameID string, x, y int) (*db.Tile, error) {
	var tile db.Tile
	if err := tx.Where("game_id = ? AND x = ? AND y = ?", gameID, x, y).First(&tile).Error; err != nil {
		return nil, err
	}
	return &tile, nil
}

func mustJSON(value any) datatypes.JSON {
	data, err := json.Marshal(value)
	if err != nil {
		log.Fatalf("seed payload marshal failed: %v", err)
	}
	return datatypes.JSON(data)
}
