package db

import (
	"time"

	"gorm.io/datatypes"
)

type Game struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"size:120;not null"`
	Status    string    `gorm:"size:16;not null"`
	Seed      string    `gorm:"size:32;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
	Players   []Player
	Tiles     []Tile
	Turns     []Turn
	Events    []Event
}

type Player struct {
	ID           string    `gorm:"primaryKey;size:36"`
	GameID       string    `gorm:"size:36;index;not null;uniqueIndex:idx_players_game_seat"`
	Nickname     string    `gorm:"size:64;not null"`
	Color        string    `gorm:"size:16;not null"`
	Seat         int       `gorm:"not null;uniqueIndex:idx_players_game_seat"`
	IsActive     bool      `gorm:"not null;default:true"`
	MainPawnID   *string   `gorm:"size:36"`
	SkipNextTurn bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type Pawn struct {
	ID            string    `gorm:"primaryKey;size:36"`
	GameID        string    `gorm:"size:36;index;not null"`
	OwnerPlayerID *string   `gorm:"size:36;index"`
	Kind          string    `gorm:"size:16;not null;default:core"`
	X             int       `gorm:"not null"`
	Y             int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

type Die struct {
	ID            string                   `gorm:"primaryKey;size:36"`
	GameID        string                   `gorm:"size:36;index;not null"`
	OwnerPlayerID string                   `gorm:"size:36;index;not null"`
	Label         string                   `gorm:"size:32;not null"`
	Faces         datatypes.JSONSlice[int] `gorm:"not null"`
	CreatedAt     time.Time                `gorm:"not null"`
	UpdatedAt     time.Time                `gorm:"not null"`
}

type Tile struct {
	ID        string                      `gorm:"primaryKey;size:36"`
	GameID    string                      `gorm:"size:36;index;not null;uniqueIndex:idx_tiles_game_coord"`
	X         int                         `gorm:"not null;uniqueIndex:idx_tiles_game_coord"`
	Y         int                         `gorm:"not null;uniqueIndex:idx_tiles_game_coord"`
	Preset    string                      `gorm:"size:32;not null;default:neutral"`
	Tags      datatypes.JSONSlice[string] `gorm:"not null"`
	CreatedAt time.Time                   `gorm:"not null"`
	UpdatedAt time.Time                   `gorm:"not null"`
}

type Connection struct {
	ID         string    `gorm:"primaryKey;size:36"`
	GameID     string    `gorm:"size:36;index;not null"`
	FromTileID string    `gorm:"size:36;index;not null"`
	ToTileID   string    `gorm:"size:36;index;not null"`
	Bidir      bool      `gorm:"not null;default:false"`
	CreatedAt  time.Time `gorm:"not null"`
}

type Turn struct {
	ID              string     `gorm:"primaryKey;size:36"`
	GameID          string     `gorm:"size:36;index;not null;uniqueIndex:idx_turns_game_index"`
	Index           int        `gorm:"not null;uniqueIndex:idx_turns_game_index"`
	CurrentPlayerID string     `gorm:"size:36;not null"`
	CreatedAt       time.Time  `gorm:"not null"`
	EndedAt         *time.Time ``
}

type Rule struct {
	ID          string         `gorm:"primaryKey;size:36"`
	GameID      string         `gorm:"size:36;index;not null"`
	Scope       string         `gorm:"size:16;not null;default:generic"`
	Trigger     string         `gorm:"size:32;index;not null"`
	Conditions  datatypes.JSON ``
	Effects     datatypes.JSON `gorm:"not null"`
	Priority    int            `gorm:"not null;default:0"`
	Specificity int            `gorm:"not null;default:0"`
	Enabled     bool           `gorm:"not null;default:true"`
	CreatedBy   string         `gorm:"size:36"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

type TileEffect struct {
	ID        string         `gorm:"primaryKey;size:36"`
	GameID    string         `gorm:"size:36;index;not null"`
	TileID    string         `gorm:"size:36;index;not null"`
	Kind      string         `gorm:"size:32;not null"`
	Params    datatypes.JSON ``
	Order     int            `gorm:"not null;default:0"`
	CreatedAt time.Time      `gorm:"not null"`
}

// PendingMove is the in-flight branch-choice marker. At most one open marker
// exists per game; it is deleted once movement completes or the turn ends.
type PendingMove struct {
	ID            string    `gorm:"primaryKey;size:36"`
	GameID        string    `gorm:"size:36;uniqueIndex;not null"`
	TurnID        string    `gorm:"size:36;not null"`
	PawnID        string    `gorm:"size:36;not null"`
	CurrentTileID string    `gorm:"size:36;not null"`
	StepsLeft     int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

type Event struct {
	ID        uint           `gorm:"primaryKey"`
	GameID    string         `gorm:"size:36;index:idx_events_game_id;not null"`
	TurnID    *string        `gorm:"size:36;index:idx_events_game_turn_type"`
	ActorID   *string        `gorm:"size:36;index"`
	Type      string         `gorm:"size:64;index:idx_events_game_turn_type;not null"`
	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
