package engine

import (
	"fmt"
	"sync/atomic"
	"testing"

	"tilerunner/internal/db"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

func testConn(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:enginetest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	conn, err := db.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func setupGame(t *testing.T, conn *gorm.DB, nicknames ...string) (*db.Game, []db.Player) {
	t.Helper()
	roster := make([]PlayerInput, 0, len(nicknames))
	for _, nickname := range nicknames {
		roster = append(roster, PlayerInput{Nickname: nickname})
	}
	game, err := CreateGame(conn, "test game", roster, 20)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	var players []db.Player
	if err := conn.Where("game_id = ?", game.ID).Order("seat asc").Find(&players).Error; err != nil {
		t.Fatalf("load players: %v", err)
	}
	return game, players
}

// forceDie pins a player's die to fixed faces. A single face makes the roll
// deterministic regardless of seed.
func forceDie(t *testing.T, conn *gorm.DB, gameID, playerID string, faces ...int) {
	t.Helper()
	err := conn.Model(&db.Die{}).
		Where("game_id = ? AND owner_player_id = ?", gameID, playerID).
		Update("faces", datatypes.JSONSlice[int](faces)).Error
	if err != nil {
		t.Fatalf("force die: %v", err)
	}
}

func mustRoll(t *testing.T, conn *gorm.DB, gameID, playerID string) RollResult {
	t.Helper()
	result, err := RollAndMove(conn, gameID, playerID)
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	return result
}

func mustEndTurn(t *testing.T, conn *gorm.DB, gameID, playerID string) EndTurnResult {
	t.Helper()
	result, err := EndTurn(conn, gameID, playerID)
	if err != nil {
		t.Fatalf("end turn: %v", err)
	}
	return result
}

func pawnPosition(t *testing.T, conn *gorm.DB, gameID, playerID string) (int, int) {
	t.Helper()
	var pawn db.Pawn
	err := conn.Where("game_id = ? AND owner_player_id = ? AND kind = ?", gameID, playerID, "core").
		First(&pawn).Error
	if err != nil {
		t.Fatalf("load pawn: %v", err)
	}
	return pawn.X, pawn.Y
}

func eventTypes(t *testing.T, conn *gorm.DB, gameID string) []string {
	t.Helper()
	var events []db.Event
	if err := conn.Where("game_id = ?", gameID).Order("id asc").Find(&events).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	return types
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := KindOf(err); got != want {
		t.Fatalf("expected error kind %d, got %d (%v)", want, got, err)
	}
}

func assertCode(t *testing.T, err error, want Code) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := CodeOf(err); got != want {
		t.Fatalf("expected error code %s, got %s (%v)", want, got, err)
	}
}
