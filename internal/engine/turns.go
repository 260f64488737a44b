package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tilerunner/internal/db"
)

// Game statuses.
const (
	StatusWaiting  = "waiting"
	StatusRunning  = "running"
	StatusFinished = "finished"
)

func getGame(tx *gorm.DB, gameID string) (*db.Game, error) {
	var game db.Game
	if err := tx.Where("id = ?", gameID).First(&game).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(CodeGameNotFound, "game %s", gameID)
		}
		return nil, err
	}
	return &game, nil
}

func currentTurn(tx *gorm.DB, gameID string) (*db.Turn, error) {
	var turn db.Turn
	err := tx.Where("game_id = ?", gameID).Order(`"index" desc`).First(&turn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(CodeTurnNotFound, "game %s has no turn", gameID)
	}
	if err != nil {
		return nil, err
	}
	return &turn, nil
}

// requireCurrentTurn loads the open turn and enforces turn ownership.
func requireCurrentTurn(tx *gorm.DB, gameID, playerID string) (*db.Turn, error) {
	turn, err := currentTurn(tx, gameID)
	if err != nil {
		return nil, err
	}
	if turn.CurrentPlayerID != playerID {
		return nil, permissionDenied(CodeNotYourTurn, "player %s is not the current player", playerID)
	}
	return turn, nil
}

// RollResult is the outcome of a roll action: either the movement fully
// resolved (FinalPos set) or it paused at a branch (PendingMove set).
type RollResult struct {
	Rolled      int               `json:"rolled"`
	PendingMove *PendingMoveState `json:"pendingMove,omitempty"`
	FinalPos    *Position         `json:"finalPos,omitempty"`
}

// RollAndMove rolls the player's die and resolves movement as far as the
// graph allows without a branch choice.
func RollAndMove(tx *gorm.DB, gameID, playerID string) (RollResult, error) {
	game, err := getGame(tx, gameID)
	if err != nil {
		return RollResult{}, err
	}
	if game.Status == StatusFinished {
		return RollResult{}, sequenceViolation(CodeGameFinished, "game %s is finished", gameID)
	}

	turn, err := requireCurrentTurn(tx, gameID, playerID)
	if err != nil {
		return RollResult{}, err
	}

	var player db.Player
	if err := tx.Where("id = ? AND game_id = ?", playerID, gameID).First(&player).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RollResult{}, notFound(CodePlayerNotFound, "player %s", playerID)
		}
		return RollResult{}, err
	}
	if !player.IsActive {
		return RollResult{}, permissionDenied(CodePlayerInactive, "player %s already finished", playerID)
	}

	already, err := db.CountEvents(tx, gameID, &turn.ID, &playerID, EventRollAndMove)
	if err != nil {
		return RollResult{}, err
	}
	if already > 0 {
		return RollResult{}, sequenceViolation(CodeAlreadyRolled, "one roll per turn")
	}

	pawn, err := mainPawn(tx, gameID, playerID)
	if err != nil {
		return RollResult{}, err
	}
	fromTile, err := tileAt(tx, gameID, pawn.X, pawn.Y)
	if err != nil {
		return RollResult{}, err
	}
	if fromTile == nil {
		return RollResult{}, validation(CodeNoTileUnderPawn, "pawn %s is off the board", pawn.ID)
	}

	var die db.Die
	if err := tx.Where("game_id = ? AND owner_player_id = ?", gameID, playerID).
		Order("created_at asc").First(&die).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RollResult{}, validation(CodeNoDie, "player %s has no die", playerID)
		}
		return RollResult{}, err
	}
	faces := []int(die.Faces)
	if len(faces) == 0 {
		faces = []int{1, 2, 3, 4, 5, 6}
	}

	eventCount, err := db.CountEvents(tx, gameID, nil, nil)
	if err != nil {
		return RollResult{}, err
	}
	rolled := Roll(game.Seed, eventCount, faces)

	if _, err := logEvent(tx, gameID, EventRollAndMove, EventPayload{
		PlayerID: playerID,
		Die:      die.Label,
		Faces:    faces,
		Rolled:   rolled,
	}, &turn.ID, &playerID); err != nil {
		return RollResult{}, err
	}

	currentTileID, stepsLeft, err := autoAdvance(tx, gameID, pawn, fromTile.ID, rolled)
	if err != nil {
		return RollResult{}, err
	}

	if stepsLeft > 0 {
		outs, err := outboundTiles(tx, gameID, currentTileID)
		if err != nil {
			return RollResult{}, err
		}
		if len(outs) > 1 {
			state, err := savePendingMove(tx, gameID, turn.ID, playerID, pawn.ID, currentTileID, stepsLeft)
			if err != nil {
				return RollResult{}, err
			}
			return RollResult{Rolled: rolled, PendingMove: state}, nil
		}
		// Dead end: remaining steps are dropped.
	}

	if err := completeMovement(tx, gameID, turn.ID, playerID, currentTileID); err != nil {
		return RollResult{}, err
	}
	final, err := mainPawn(tx, gameID, playerID)
	if err != nil {
		return RollResult{}, err
	}
	return RollResult{Rolled: rolled, FinalPos: &Position{X: final.X, Y: final.Y}}, nil
}

// EndTurnResult names the next player, or reports the game finished.
type EndTurnResult struct {
	Finished     bool   `json:"finished,omitempty"`
	TurnID       string `json:"turnId,omitempty"`
	NextPlayerID string `json:"currentPlayerId,omitempty"`
}

// EndTurn closes the current turn and rotates to the next eligible player in
// ring order (seat asc). Inactive players are skipped; an active player with
// skipNextTurn set has the flag consumed, gets a TURN_SKIPPED event, and is
// passed over. If nobody can play, the game finishes.
func EndTurn(tx *gorm.DB, gameID, playerID string) (EndTurnResult, error) {
	game, err := getGame(tx, gameID)
	if err != nil {
		return EndTurnResult{}, err
	}
	if game.Status == StatusFinished {
		return EndTurnResult{}, sequenceViolation(CodeGameFinished, "game %s is finished", gameID)
	}

	turn, err := requireCurrentTurn(tx, gameID, playerID)
	if err != nil {
		return EndTurnResult{}, err
	}

	pending, err := pendingMoveFor(tx, gameID)
	if err != nil {
		return EndTurnResult{}, err
	}
	if pending != nil && pending.StepsLeft > 0 {
		return EndTurnResult{}, sequenceViolation(CodeMovePendingChoice, "resolve the branch choice first")
	}

	rolled, err := db.CountEvents(tx, gameID, &turn.ID, &playerID, EventRollAndMove)
	if err != nil {
		return EndTurnResult{}, err
	}
	if rolled == 0 {
		return EndTurnResult{}, sequenceViolation(CodeMustRollBeforeEnd, "roll before ending the turn")
	}

	var players []db.Player
	if err := tx.Where("game_id = ?", gameID).Order("seat asc").Find(&players).Error; err != nil {
		return EndTurnResult{}, err
	}
	curIdx := -1
	for i := range players {
		if players[i].ID == turn.CurrentPlayerID {
			curIdx = i
			break
		}
	}
	if curIdx < 0 {
		return EndTurnResult{}, notFound(CodePlayerNotFound, "current player left the game")
	}

	// Bounded walk: every hop either skips an inactive player or consumes a
	// skip flag, so ring length plus a small constant is always enough.
	maxHops := len(players) + 5
	nextIdx := (curIdx + 1) % len(players)
	var chosen *db.Player
	for hops := 0; hops < maxHops; hops++ {
		cand := &players[nextIdx]
		if cand.IsActive {
			if cand.SkipNextTurn {
				if err := tx.Model(&db.Player{}).Where("id = ?", cand.ID).
					Update("skip_next_turn", false).Error; err != nil {
					return EndTurnResult{}, err
				}
				cand.SkipNextTurn = false
				if _, err := logEvent(tx, gameID, EventTurnSkipped, EventPayload{
					Reason: "skipNextTurn",
				}, &turn.ID, &cand.ID); err != nil {
					return EndTurnResult{}, err
				}
				nextIdx = (nextIdx + 1) % len(players)
				continue
			}
			chosen = cand
			break
		}
		nextIdx = (nextIdx + 1) % len(players)
	}

	now := time.Now().UTC()
	if chosen == nil {
		if err := tx.Model(&db.Game{}).Where("id = ?", gameID).
			Update("status", StatusFinished).Error; err != nil {
			return EndTurnResult{}, err
		}
		if err := tx.Model(&db.Turn{}).Where("id = ?", turn.ID).
			Update("ended_at", now).Error; err != nil {
			return EndTurnResult{}, err
		}
		if _, err := logEvent(tx, gameID, EventTurnEnded, EventPayload{
			Finished: true,
		}, &turn.ID, &playerID); err != nil {
			return EndTurnResult{}, err
		}
		return EndTurnResult{Finished: true}, nil
	}

	if _, err := logEvent(tx, gameID, EventTurnEnded, EventPayload{}, &turn.ID, &playerID); err != nil {
		return EndTurnResult{}, err
	}
	if err := tx.Model(&db.Turn{}).Where("id = ?", turn.ID).
		Update("ended_at", now).Error; err != nil {
		return EndTurnResult{}, err
	}

	next := db.Turn{
		ID:              uuid.NewString(),
		GameID:          gameID,
		Index:           turn.Index + 1,
		CurrentPlayerID: chosen.ID,
	}
	if err := tx.Create(&next).Error; err != nil {
		return EndTurnResult{}, err
	}
	if err := clearPendingMoves(tx, gameID); err != nil {
		return EndTurnResult{}, err
	}
	return EndTurnResult{TurnID: next.ID, NextPlayerID: chosen.ID}, nil
}
