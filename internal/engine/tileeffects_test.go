package engine

import (
	"encoding/json"
	"slices"
	"testing"

	"tilerunner/internal/db"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func addNativeEffect(t *testing.T, conn *gorm.DB, gameID, tileID, kind string, params map[string]any, order int) {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	effect := db.TileEffect{
		ID:     uuid.NewString(),
		GameID: gameID,
		TileID: tileID,
		Kind:   kind,
		Params: datatypes.JSON(raw),
		Order:  order,
	}
	if err := conn.Create(&effect).Error; err != nil {
		t.Fatalf("create tile effect: %v", err)
	}
}

func TestNativeMoveWalksBackward(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada", "Bob")
	landing, _ := tileAt(conn, game.ID, 3, 0)
	addNativeEffect(t, conn, game.ID, landing.ID, TileEffectMove, map[string]any{"amount": -2}, 0)
	forceDie(t, conn, game.ID, players[0].ID, 3)

	result := mustRoll(t, conn, game.ID, players[0].ID)
	if result.FinalPos == nil || result.FinalPos.X != 1 {
		t.Fatalf("expected setback to (1,0), got %#v", result.FinalPos)
	}
	if x, _ := pawnPosition(t, conn, game.ID, players[0].ID); x != 1 {
		t.Fatalf("pawn at x=%d, expected 1", x)
	}
	if !slices.Contains(eventTypes(t, conn, game.ID), EventEffectTileMove) {
		t.Fatal("missing EFFECT_TILE_MOVE event")
	}
}

func TestSkipTurnTileSetsAndConsumesFlag(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada", "Bob")
	landing, _ := tileAt(conn, game.ID, 2, 0)
	addNativeEffect(t, conn, game.ID, landing.ID, TileEffectSkipTurn, nil, 0)
	forceDie(t, conn, game.ID, players[0].ID, 2)
	forceDie(t, conn, game.ID, players[1].ID, 1)

	mustRoll(t, conn, game.ID, players[0].ID)
	var marked db.Player
	if err := conn.First(&marked, "id = ?", players[0].ID).Error; err != nil {
		t.Fatalf("reload player: %v", err)
	}
	if !marked.SkipNextTurn {
		t.Fatal("landing on skip tile should set the flag")
	}
	mustEndTurn(t, conn, game.ID, players[0].ID)

	mustRoll(t, conn, game.ID, players[1].ID)
	result := mustEndTurn(t, conn, game.ID, players[1].ID)
	if result.NextPlayerID != players[1].ID {
		t.Fatalf("expected marked player skipped, next=%s", result.NextPlayerID)
	}
}

func TestWinTileRetiresPlayer(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada", "Bob")
	landing, _ := tileAt(conn, game.ID, 2, 0)
	addNativeEffect(t, conn, game.ID, landing.ID, TileEffectWin, nil, 0)
	forceDie(t, conn, game.ID, players[0].ID, 2)

	mustRoll(t, conn, game.ID, players[0].ID)
	var winner db.Player
	if err := conn.First(&winner, "id = ?", players[0].ID).Error; err != nil {
		t.Fatalf("reload player: %v", err)
	}
	if winner.IsActive {
		t.Fatal("win tile should retire the player")
	}
	if !slices.Contains(eventTypes(t, conn, game.ID), EventEffectWin) {
		t.Fatal("missing EFFECT_WIN event")
	}
}

func TestNativeEffectsRunInOrder(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada")
	landing, _ := tileAt(conn, game.ID, 2, 0)
	addNativeEffect(t, conn, game.ID, landing.ID, TileEffectTakeItem, map[string]any{"item": "torch"}, 1)
	addNativeEffect(t, conn, game.ID, landing.ID, TileEffectGiveItem, map[string]any{"item": "coin"}, 0)
	forceDie(t, conn, game.ID, players[0].ID, 2)

	mustRoll(t, conn, game.ID, players[0].ID)
	types := eventTypes(t, conn, game.ID)
	give := slices.Index(types, EventEffectGiveItem)
	take := slices.Index(types, EventEffectTakeItem)
	if give == -1 || take == -1 || give > take {
		t.Fatalf("native effects out of order: %v", types)
	}
}

// The arrival pipeline is enter-tile rules, then native effects at the
// possibly updated position, then after-move rules.
func TestArrivalPipelineOrdering(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada")

	// Enter-tile rule shoves the pawn one tile forward; the native effect
	// sits on the tile it gets shoved onto.
	insertRule(t, conn, game.ID, TriggerEnterTile, 0, 0,
		[]Effect{{Type: EffectMoveDelta, Steps: 1}}, nil)
	shovedOnto, _ := tileAt(conn, game.ID, 3, 0)
	addNativeEffect(t, conn, game.ID, shovedOnto.ID, TileEffectGiveItem, map[string]any{"item": "coin"}, 0)
	forceDie(t, conn, game.ID, players[0].ID, 2)

	mustRoll(t, conn, game.ID, players[0].ID)
	if x, _ := pawnPosition(t, conn, game.ID, players[0].ID); x != 3 {
		t.Fatalf("pawn at x=%d, expected 3 after enter-tile shove", x)
	}

	types := eventTypes(t, conn, game.ID)
	move := slices.Index(types, EventEffectMove)
	give := slices.Index(types, EventEffectGiveItem)
	if move == -1 {
		t.Fatalf("enter-tile rule did not fire: %v", types)
	}
	if give == -1 {
		t.Fatal("native effect did not run at the updated position")
	}
	if move > give {
		t.Fatalf("enter-tile rule must precede native effects: %v", types)
	}
}

func TestAfterMoveRulesSeeNativeResults(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada")

	landing, _ := tileAt(conn, game.ID, 2, 0)
	addNativeEffect(t, conn, game.ID, landing.ID, TileEffectMove, map[string]any{"amount": 2}, 0)
	// Fires only if the pawn really ended up at x=4.
	insertRule(t, conn, game.ID, TriggerAfterMove, 0, 0,
		[]Effect{{Type: EffectDiceSet, Faces: []int{9}}},
		&CondNode{Op: opEq, Path: "pawn.x", Value: 4})
	forceDie(t, conn, game.ID, players[0].ID, 2)

	mustRoll(t, conn, game.ID, players[0].ID)
	var die db.Die
	if err := conn.Where("game_id = ? AND owner_player_id = ?", game.ID, players[0].ID).
		First(&die).Error; err != nil {
		t.Fatalf("reload die: %v", err)
	}
	if len(die.Faces) != 1 || die.Faces[0] != 9 {
		t.Fatalf("after-move rule did not see native result, faces=%v", die.Faces)
	}
}
