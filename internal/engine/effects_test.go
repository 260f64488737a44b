package engine

import (
	"slices"
	"testing"

	"tilerunner/internal/db"
)

func TestApplyMoveDelta(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada")

	result, err := ApplyEffects(conn, game.ID, "", players[0].ID, []Effect{
		{Type: EffectMoveDelta, Steps: 4},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.FinalPos == nil || result.FinalPos.X != 4 {
		t.Fatalf("expected final x=4, got %#v", result.FinalPos)
	}
	if x, _ := pawnPosition(t, conn, game.ID, players[0].ID); x != 4 {
		t.Fatalf("pawn at x=%d, expected 4", x)
	}
	if !slices.Contains(eventTypes(t, conn, game.ID), EventEffectMove) {
		t.Fatal("missing EFFECT_MOVE_DELTA event")
	}
}

func TestApplyMoveDeltaClampsAtTrackEnds(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada")

	if _, err := ApplyEffects(conn, game.ID, "", players[0].ID, []Effect{
		{Type: EffectMoveDelta, Steps: -5},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if x, _ := pawnPosition(t, conn, game.ID, players[0].ID); x != 0 {
		t.Fatalf("expected clamp at 0, pawn at %d", x)
	}
	// Clamped to a no-op from x=0, so the audit trail gets a skip marker.
	if !slices.Contains(eventTypes(t, conn, game.ID), EventEffectSkipped) {
		t.Fatal("missing EFFECT_SKIPPED event for clamped no-op")
	}

	if _, err := ApplyEffects(conn, game.ID, "", players[0].ID, []Effect{
		{Type: EffectMoveDelta, Steps: 100},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if x, _ := pawnPosition(t, conn, game.ID, players[0].ID); x != 19 {
		t.Fatalf("expected clamp at 19, pawn at %d", x)
	}
}

func TestApplyMoveSetOverridesPosition(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada")

	result, err := ApplyEffects(conn, game.ID, "", players[0].ID, []Effect{
		{Type: EffectMoveSet, Steps: 7},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.FinalPos == nil || result.FinalPos.X != 7 {
		t.Fatalf("expected final x=7, got %#v", result.FinalPos)
	}
	if !slices.Contains(eventTypes(t, conn, game.ID), EventEffectMoveSet) {
		t.Fatal("missing EFFECT_MOVE_SET event")
	}
}

func TestApplyDiceSet(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada")

	if _, err := ApplyEffects(conn, game.ID, "", players[0].ID, []Effect{
		{Type: EffectDiceSet, Faces: []int{2, 2, 8}, Label: "loaded"},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	var die db.Die
	if err := conn.Where("game_id = ? AND owner_player_id = ?", game.ID, players[0].ID).
		First(&die).Error; err != nil {
		t.Fatalf("reload die: %v", err)
	}
	if die.Label != "loaded" || len(die.Faces) != 3 || die.Faces[2] != 8 {
		t.Fatalf("die not reconfigured: label=%s faces=%v", die.Label, die.Faces)
	}
	if !slices.Contains(eventTypes(t, conn, game.ID), EventEffectDiceSet) {
		t.Fatal("missing EFFECT_DICE_SET event")
	}
}

func TestApplyVictoryDeclare(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada", "Bob")

	if _, err := ApplyEffects(conn, game.ID, "", players[0].ID, []Effect{
		{Type: EffectVictoryDeclare, Message: "crossed the line"},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	var player db.Player
	if err := conn.First(&player, "id = ?", players[0].ID).Error; err != nil {
		t.Fatalf("reload player: %v", err)
	}
	if player.IsActive {
		t.Fatal("declared winner should be inactive")
	}
	if !slices.Contains(eventTypes(t, conn, game.ID), EventVictoryDeclare) {
		t.Fatal("missing VICTORY_DECLARE event")
	}
}

func TestApplyUnknownEffectLogged(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada")

	if _, err := ApplyEffects(conn, game.ID, "", players[0].ID, []Effect{
		{Type: "teleport"},
	}); err != nil {
		t.Fatalf("unknown effect must not fail: %v", err)
	}
	if !slices.Contains(eventTypes(t, conn, game.ID), EventEffectUnknown) {
		t.Fatal("missing EFFECT_UNKNOWN event")
	}
}

func TestApplyEffectsInOrder(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada")

	if _, err := ApplyEffects(conn, game.ID, "", players[0].ID, []Effect{
		{Type: EffectMoveDelta, Steps: 2},
		{Type: EffectDiceSet, Faces: []int{1}},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	types := eventTypes(t, conn, game.ID)
	movePos := slices.Index(types, EventEffectMove)
	dicePos := slices.Index(types, EventEffectDiceSet)
	if movePos == -1 || dicePos == -1 || movePos > dicePos {
		t.Fatalf("effects logged out of order: %v", types)
	}
}
