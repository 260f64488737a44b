package engine

import (
	"testing"

	"tilerunner/internal/db"
)

func intp(v int) *int { return &v }

func TestRuleEditRequiresRoll(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada", "Bob")

	_, err := MutateRule(conn, game.ID, players[0].ID, RuleActionAdd, &RuleInput{
		Effects: []Effect{{Type: EffectMoveDelta, Steps: 1}},
	}, "")
	assertCode(t, err, CodeMustRollBeforeEdit)

	_, err = MutateTile(conn, game.ID, players[0].ID, TileActionAdd, TileInput{X: intp(0), Y: intp(5)})
	assertCode(t, err, CodeMustRollBeforeEdit)
}

func TestMutationQuotaSharedAcrossKinds(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada", "Bob")
	forceDie(t, conn, game.ID, players[0].ID, 1)
	mustRoll(t, conn, game.ID, players[0].ID)

	if _, err := MutateRule(conn, game.ID, players[0].ID, RuleActionAdd, &RuleInput{
		Effects: []Effect{{Type: EffectMoveDelta, Steps: 1}},
	}, ""); err != nil {
		t.Fatalf("first mutation should pass: %v", err)
	}

	_, err := MutateTile(conn, game.ID, players[0].ID, TileActionAdd, TileInput{X: intp(0), Y: intp(5)})
	assertKind(t, err, KindQuotaExceeded)
	assertCode(t, err, CodeQuotaExceeded)

	_, err = MutateRule(conn, game.ID, players[0].ID, RuleActionAdd, &RuleInput{
		Effects: []Effect{{Type: EffectMoveDelta, Steps: 2}},
	}, "")
	assertKind(t, err, KindQuotaExceeded)

	// The quota resets with the turn.
	mustEndTurn(t, conn, game.ID, players[0].ID)
	forceDie(t, conn, game.ID, players[1].ID, 1)
	mustRoll(t, conn, game.ID, players[1].ID)
	if _, err := MutateTile(conn, game.ID, players[1].ID, TileActionAdd, TileInput{X: intp(0), Y: intp(5)}); err != nil {
		t.Fatalf("next turn mutation should pass: %v", err)
	}
}

func TestRuleLifecycle(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada", "Bob", "Cleo")
	for _, p := range players {
		forceDie(t, conn, game.ID, p.ID, 1)
	}

	mustRoll(t, conn, game.ID, players[0].ID)
	added, err := MutateRule(conn, game.ID, players[0].ID, RuleActionAdd, &RuleInput{
		Trigger:     TriggerEnterTile,
		Effects:     []Effect{{Type: EffectMoveDelta, Steps: 1}},
		Priority:    1,
		Specificity: 1,
	}, "")
	if err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if added.RuleID == "" {
		t.Fatal("add must return the new rule id")
	}
	mustEndTurn(t, conn, game.ID, players[0].ID)

	mustRoll(t, conn, game.ID, players[1].ID)
	if _, err := MutateRule(conn, game.ID, players[1].ID, RuleActionModify, &RuleInput{
		Trigger:     TriggerEnterTile,
		Effects:     []Effect{{Type: EffectMoveDelta, Steps: 2}},
		Priority:    2,
		Specificity: 1,
	}, added.RuleID); err != nil {
		t.Fatalf("modify rule: %v", err)
	}
	var record db.Rule
	if err := conn.First(&record, "id = ?", added.RuleID).Error; err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	if record.Priority != 2 {
		t.Fatalf("modify did not stick, priority=%d", record.Priority)
	}
	mustEndTurn(t, conn, game.ID, players[1].ID)

	mustRoll(t, conn, game.ID, players[2].ID)
	if _, err := MutateRule(conn, game.ID, players[2].ID, RuleActionRemove, nil, added.RuleID); err != nil {
		t.Fatalf("remove rule: %v", err)
	}
	var count int64
	conn.Model(&db.Rule{}).Where("id = ?", added.RuleID).Count(&count)
	if count != 0 {
		t.Fatal("rule should be deleted")
	}

	types := eventTypes(t, conn, game.ID)
	for _, want := range []string{EventRuleAdded, EventRuleModified, EventRuleRemoved} {
		found := false
		for _, got := range types {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing %s event in %v", want, types)
		}
	}
}

func TestRuleMutationErrors(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada")
	forceDie(t, conn, game.ID, players[0].ID, 1)
	mustRoll(t, conn, game.ID, players[0].ID)

	_, err := MutateRule(conn, game.ID, players[0].ID, RuleActionModify, &RuleInput{
		Effects: []Effect{{Type: EffectMoveDelta, Steps: 1}},
	}, "")
	assertCode(t, err, CodeRuleIDRequired)

	_, err = MutateRule(conn, game.ID, players[0].ID, RuleActionModify, &RuleInput{
		Effects: []Effect{{Type: EffectMoveDelta, Steps: 1}},
	}, "missing-rule")
	assertKind(t, err, KindNotFound)

	_, err = MutateRule(conn, game.ID, players[0].ID, "explode", nil, "")
	assertCode(t, err, CodeUnknownAction)
}

func TestTileAddAndConnect(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada", "Bob")
	forceDie(t, conn, game.ID, players[0].ID, 1)
	mustRoll(t, conn, game.ID, players[0].ID)

	target, err := tileAt(conn, game.ID, 5, 0)
	if err != nil || target == nil {
		t.Fatalf("target tile: %v", err)
	}
	result, err := MutateTile(conn, game.ID, players[0].ID, TileActionAdd, TileInput{
		X:         intp(5),
		Y:         intp(1),
		Preset:    "trap",
		ConnectTo: target.ID,
	})
	if err != nil {
		t.Fatalf("add tile: %v", err)
	}
	if result.TileID == "" {
		t.Fatal("add must return the tile id")
	}

	outs, err := outboundTiles(conn, game.ID, target.ID)
	if err != nil {
		t.Fatalf("outbound: %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("expected auto-connect to create a branch, outbound=%d", len(outs))
	}
}

func TestTileAddDuplicateCoordsRejected(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada", "Bob")
	forceDie(t, conn, game.ID, players[0].ID, 1)
	mustRoll(t, conn, game.ID, players[0].ID)

	_, err := MutateTile(conn, game.ID, players[0].ID, TileActionAdd, TileInput{X: intp(5), Y: intp(0)})
	assertCode(t, err, CodeTileExists)

	_, err = MutateTile(conn, game.ID, players[0].ID, TileActionAdd, TileInput{X: intp(5)})
	assertCode(t, err, CodeBadCoords)
}

func TestTileRemoveCascades(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada", "Bob")
	forceDie(t, conn, game.ID, players[0].ID, 1)
	mustRoll(t, conn, game.ID, players[0].ID)

	victim, err := tileAt(conn, game.ID, 10, 0)
	if err != nil || victim == nil {
		t.Fatalf("victim tile: %v", err)
	}
	if _, err := MutateTile(conn, game.ID, players[0].ID, TileActionRemove, TileInput{TileID: victim.ID}); err != nil {
		t.Fatalf("remove tile: %v", err)
	}

	var edges int64
	conn.Model(&db.Connection{}).
		Where("game_id = ? AND (from_tile_id = ? OR to_tile_id = ?)", game.ID, victim.ID, victim.ID).
		Count(&edges)
	if edges != 0 {
		t.Fatalf("expected edges removed with the tile, got %d", edges)
	}
}

func TestTileConnectAndDisconnect(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada", "Bob", "Cleo")
	for _, p := range players {
		forceDie(t, conn, game.ID, p.ID, 1)
	}

	from, _ := tileAt(conn, game.ID, 4, 0)
	to, _ := tileAt(conn, game.ID, 9, 0)
	if from == nil || to == nil {
		t.Fatal("track tiles missing")
	}

	mustRoll(t, conn, game.ID, players[0].ID)
	if _, err := MutateTile(conn, game.ID, players[0].ID, TileActionConnect, TileInput{
		FromTileID: from.ID,
		ToTileID:   to.ID,
	}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	outs, _ := outboundTiles(conn, game.ID, from.ID)
	if len(outs) != 2 {
		t.Fatalf("expected shortcut edge, outbound=%d", len(outs))
	}
	mustEndTurn(t, conn, game.ID, players[0].ID)

	mustRoll(t, conn, game.ID, players[1].ID)
	if _, err := MutateTile(conn, game.ID, players[1].ID, TileActionDisconnect, TileInput{
		FromTileID: from.ID,
		ToTileID:   to.ID,
	}); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	outs, _ = outboundTiles(conn, game.ID, from.ID)
	if len(outs) != 1 {
		t.Fatalf("expected shortcut removed, outbound=%d", len(outs))
	}
	mustEndTurn(t, conn, game.ID, players[1].ID)

	mustRoll(t, conn, game.ID, players[2].ID)
	_, err := MutateTile(conn, game.ID, players[2].ID, TileActionConnect, TileInput{
		FromTileID: from.ID,
		ToTileID:   "missing-tile",
	})
	assertCode(t, err, CodeBadConnection)
}

func TestTileUpdate(t *testing.T) {
	conn := testConn(t)
	game, players := setupGame(t, conn, "Ada", "Bob")
	forceDie(t, conn, game.ID, players[0].ID, 1)
	mustRoll(t, conn, game.ID, players[0].ID)

	tile, _ := tileAt(conn, game.ID, 6, 0)
	if tile == nil {
		t.Fatal("tile missing")
	}
	if _, err := MutateTile(conn, game.ID, players[0].ID, TileActionUpdate, TileInput{
		TileID: tile.ID,
		Preset: "trap",
		Tags:   []string{"lava"},
	}); err != nil {
		t.Fatalf("update tile: %v", err)
	}

	reloaded, _ := tileAt(conn, game.ID, 6, 0)
	if reloaded.Preset != "trap" || len(reloaded.Tags) != 1 || reloaded.Tags[0] != "lava" {
		t.Fatalf("update did not stick: preset=%s tags=%v", reloaded.Preset, reloaded.Tags)
	}
}
