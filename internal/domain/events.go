package domain

import "time"

// Event types for bus publication and WebSocket broadcast
const (
	EventKill            = "kill"
	EventRefreshProgress = "refresh_progress"
	EventRefreshComplete = "refresh_complete"
)

// Weapon markers written by the parser for self-inflicted deaths.
// Falling is emitted by the game itself for fall damage.
const (
	WeaponMenuSuicide = "Menu Suicide"
	WeaponSuicide     = "Suicide"
	WeaponFalling     = "Falling"
)

// Event is the envelope for real-time notifications
type Event struct {
	Type      string      `json:"event"`
	GuildID   int64       `json:"guild_id"`
	ServerID  string      `json:"server_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// KillEvent is one parsed death-log record. ID and CreatedAt are zero
// until the event has been persisted.
type KillEvent struct {
	ID        int64     `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Killer    string    `json:"killer"`
	Victim    string    `json:"victim"`
	Weapon    string    `json:"weapon"`
	Distance  float64   `json:"distance"`
	IsSuicide bool      `json:"is_suicide"`
	RawLine   string    `json:"raw_line,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// IsSuicideWeapon reports whether a weapon label is one of the
// self-inflicted markers excluded from weapon leaderboards.
func IsSuicideWeapon(weapon string) bool {
	switch weapon {
	case WeaponMenuSuicide, WeaponSuicide, WeaponFalling:
		return true
	}
	return false
}
