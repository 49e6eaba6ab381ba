package domain

import "time"

// PlayerStats holds aggregated PvP counters for one player on one server
type PlayerStats struct {
	GuildID       int64     `json:"guild_id"`
	ServerID      string    `json:"server_id"`
	PlayerName    string    `json:"player_name"`
	Kills         int64     `json:"kills"`
	Deaths        int64     `json:"deaths"`
	Suicides      int64     `json:"suicides"`
	KDR           float64   `json:"kdr"`
	TotalDistance float64   `json:"total_distance"`
	CurrentStreak int64     `json:"current_streak"`
	LongestStreak int64     `json:"longest_streak"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LeaderboardEntry represents a player's position on a leaderboard
type LeaderboardEntry struct {
	Rank int `json:"rank"`
	PlayerStats
}

// LeaderboardResponse is the API response for leaderboard data
type LeaderboardResponse struct {
	Stat    string             `json:"stat"`
	Entries []LeaderboardEntry `json:"entries"`
}

// WeaponStat is one weapon's kill count for a player or a server
type WeaponStat struct {
	Weapon string `json:"weapon"`
	Kills  int64  `json:"kills"`
}

// RivalryEntry names an opponent and how often the encounter went one way
type RivalryEntry struct {
	PlayerName string `json:"player_name"`
	Count      int64  `json:"count"`
}

// Rivalry pairs a player's most-killed victim with their most-lethal killer
type Rivalry struct {
	Rival   *RivalryEntry `json:"rival,omitempty"`
	Nemesis *RivalryEntry `json:"nemesis,omitempty"`
}

// PlayerProfile is the API response for a single player's stats page
type PlayerProfile struct {
	Stats      PlayerStats  `json:"stats"`
	TopWeapons []WeaponStat `json:"top_weapons"`
	Rivalry    Rivalry      `json:"rivalry"`
}

// ComparisonResponse is the API response for a head-to-head compare
type ComparisonResponse struct {
	Player PlayerStats `json:"player"`
	Other  PlayerStats `json:"other"`
}
