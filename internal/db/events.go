package db

import (
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AppendEvent writes one row to the append-only event log inside the caller's
// transaction and returns the assigned cursor id.
func AppendEvent(tx *gorm.DB, gameID, eventType string, payload any, turnID, actorID *string) (uint, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	event := Event{
		GameID:  gameID,
		TurnID:  turnID,
		ActorID: actorID,
		Type:    eventType,
		Payload: datatypes.JSON(data),
	}
	if err := tx.Create(&event).Error; err != nil {
		return 0, err
	}
	return event.ID, nil
}

// CountEvents counts log entries for the game, optionally narrowed to a turn,
// an actor, and a set of event types. Used for roll and quota gates.
func CountEvents(tx *gorm.DB, gameID string, turnID, actorID *string, types ...string) (int64, error) {
	query := tx.Model(&Event{}).Where("game_id = ?", gameID)
	if turnID != nil {
		query = query.Where("turn_id = ?", *turnID)
	}
	if actorID != nil {
		query = query.Where("actor_id = ?", *actorID)
	}
	if len(types) == 1 {
		query = query.Where("type = ?", types[0])
	} else if len(types) > 1 {
		query = query.Where("type IN ?", types)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// EventsSince scans the log for a game in ascending id order, starting after
// the given cursor, capped at limit rows.
func EventsSince(tx *gorm.DB, gameID string, since uint, limit int) ([]Event, error) {
	var events []Event
	err := tx.Where("game_id = ? AND id > ?", gameID, since).
		Order("id asc").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// LatestCursor returns the id of the newest event for the game, 0 if none.
func LatestCursor(tx *gorm.DB, gameID string) (uint, error) {
	var event Event
	err := tx.Where("game_id = ?", gameID).Order("id desc").First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return event.ID, nil
}
