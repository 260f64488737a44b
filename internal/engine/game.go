package engine

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tilerunner/internal/db"
)

var playerColors = []string{"#e74c3c", "#3498db", "#2ecc71", "#f1c40f", "#9b59b6", "#e67e22"}

// PlayerInput is a roster entry at game creation or join time.
type PlayerInput struct {
	Nickname string `json:"nickname"`
	Color    string `json:"color,omitempty"`
}

// CreateGame builds a fresh game: a linear track of trackLength tiles with
// start and goal endpoints, one core pawn and one D6 per player, and an open
// first turn for the first seat.
func CreateGame(tx *gorm.DB, name string, roster []PlayerInput, trackLength int) (*db.Game, error) {
	if name == "" {
		return nil, validation(CodeBadInput, "name is required")
	}
	if len(roster) == 0 {
		return nil, validation(CodeBadInput, "at least one player is required")
	}
	if trackLength < 2 {
		trackLength = 2
	}

	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	game := db.Game{
		ID:     uuid.NewString(),
		Name:   name,
		Status: StatusRunning,
		Seed:   seed,
	}
	if err := tx.Create(&game).Error; err != nil {
		return nil, err
	}

	tiles := make([]db.Tile, 0, trackLength)
	for i := 0; i < trackLength; i++ {
		tile := db.Tile{
			ID:     uuid.NewString(),
			GameID: game.ID,
			X:      i,
			Y:      0,
			Preset: "neutral",
			Tags:   datatypes.JSONSlice[string]{},
		}
		switch i {
		case 0:
			tile.Preset = "start"
		case trackLength - 1:
			tile.Preset = "goal"
			tile.Tags = datatypes.JSONSlice[string]{"arrival"}
		}
		tiles = append(tiles, tile)
	}
	if err := tx.Create(&tiles).Error; err != nil {
		return nil, err
	}

	// One forward edge per segment keeps the default track branch-free;
	// backward native moves walk the inbound side of the same edges. The
	// bidir flag is informational, the walker only follows directed edges.
	conns := make([]db.Connection, 0, trackLength-1)
	for i := 0; i < trackLength-1; i++ {
		conns = append(conns, db.Connection{
			ID:         uuid.NewString(),
			GameID:     game.ID,
			FromTileID: tiles[i].ID,
			ToTileID:   tiles[i+1].ID,
			Bidir:      true,
		})
	}
	if err := tx.Create(&conns).Error; err != nil {
		return nil, err
	}

	nicknames := make([]string, 0, len(roster))
	var firstPlayerID string
	for seat, entry := range roster {
		player, err := addPlayer(tx, game.ID, entry, seat)
		if err != nil {
			return nil, err
		}
		if seat == 0 {
			firstPlayerID = player.ID
		}
		nicknames = append(nicknames, player.Nickname)
	}

	turn := db.Turn{
		ID:              uuid.NewString(),
		GameID:          game.ID,
		Index:           1,
		CurrentPlayerID: firstPlayerID,
	}
	if err := tx.Create(&turn).Error; err != nil {
		return nil, err
	}

	_, err = logEvent(tx, game.ID, EventGameCreated, EventPayload{
		Name:    name,
		Players: nicknames,
	}, &turn.ID, nil)
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// JoinGame adds a late player to a game that has not finished. The new seat
// goes to the end of the rotation.
func JoinGame(tx *gorm.DB, gameID string, entry PlayerInput) (*db.Player, error) {
	game, err := getGame(tx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Status == StatusFinished {
		return nil, sequenceViolation(CodeGameFinished, "game %s is finished", gameID)
	}

	var maxSeat struct{ Seat *int }
	if err := tx.Model(&db.Player{}).Select("MAX(seat) AS seat").
		Where("game_id = ?", gameID).Scan(&maxSeat).Error; err != nil {
		return nil, err
	}
	seat := 0
	if maxSeat.Seat != nil {
		seat = *maxSeat.Seat + 1
	}

	player, err := addPlayer(tx, gameID, entry, seat)
	if err != nil {
		return nil, err
	}

	turn, err := currentTurn(tx, gameID)
	if err != nil {
		return nil, err
	}
	var turnID *string
	if turn != nil {
		turnID = &turn.ID
	}
	_, err = logEvent(tx, gameID, EventPlayerJoined, EventPayload{
		PlayerID: player.ID,
		Nickname: player.Nickname,
	}, turnID, &player.ID)
	if err != nil {
		return nil, err
	}
	return player, nil
}

func addPlayer(tx *gorm.DB, gameID string, entry PlayerInput, seat int) (*db.Player, error) {
	if entry.Nickname == "" {
		return nil, validation(CodeBadInput, "nickname is required")
	}
	color := entry.Color
	if color == "" {
		color = playerColors[seat%len(playerColors)]
	}

	player := db.Player{
		ID:       uuid.NewString(),
		GameID:   gameID,
		Nickname: entry.Nickname,
		Color:    color,
		Seat:     seat,
		IsActive: true,
	}
	if err := tx.Create(&player).Error; err != nil {
		return nil, err
	}

	pawn := db.Pawn{
		ID:            uuid.NewString(),
		GameID:        gameID,
		OwnerPlayerID: &player.ID,
		Kind:          "core",
		X:             0,
		Y:             0,
	}
	if err := tx.Create(&pawn).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&db.Player{}).Where("id = ?", player.ID).
		Update("main_pawn_id", pawn.ID).Error; err != nil {
		return nil, err
	}
	player.MainPawnID = &pawn.ID

	die := db.Die{
		ID:            uuid.NewString(),
		GameID:        gameID,
		OwnerPlayerID: player.ID,
		Label:         "D6",
		Faces:         datatypes.JSONSlice[int]{1, 2, 3, 4, 5, 6},
	}
	if err := tx.Create(&die).Error; err != nil {
		return nil, err
	}
	return &player, nil
}

// DeleteGame removes a game and every row that references it, children first.
func DeleteGame(tx *gorm.DB, gameID string) error {
	if _, err := getGame(tx, gameID); err != nil {
		return err
	}
	for _, model := range []any{
		&db.Event{}, &db.Rule{}, &db.TileEffect{}, &db.PendingMove{},
		&db.Connection{}, &db.Die{}, &db.Pawn{}, &db.Turn{}, &db.Player{},
		&db.Tile{},
	} {
		if err := tx.Where("game_id = ?", gameID).Delete(model).Error; err != nil {
			return err
		}
	}
	if err := tx.Delete(&db.Game{}, "id = ?", gameID).Error; err != nil {
		return err
	}
	return nil
}

// GameSummary is the list-view projection of a game.
type GameSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	PlayerCount int64  `json:"playerCount"`
	CreatedAt   string `json:"createdAt"`
}

// ListGames returns all games, newest first.
func ListGames(tx *gorm.DB) ([]GameSummary, error) {
	var games []db.Game
	if err := tx.Order("created_at desc").Find(&games).Error; err != nil {
		return nil, err
	}
	out := make([]GameSummary, 0, len(games))
	for _, game := range games {
		var count int64
		if err := tx.Model(&db.Player{}).Where("game_id = ?", game.ID).Count(&count).Error; err != nil {
			return nil, err
		}
		out = append(out, GameSummary{
			ID:          game.ID,
			Name:        game.Name,
			Status:      game.Status,
			PlayerCount: count,
			CreatedAt:   game.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return out, nil
}
