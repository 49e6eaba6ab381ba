package domain

import "time"

// Guild represents a Discord guild whose game servers are tracked
type Guild struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// GameServer represents one Deadside server registered to a guild.
// Host, Port, Username and Password are the SFTP credentials for the
// box that exports the death logs. Password never serializes.
type GameServer struct {
	GuildID  int64     `json:"guild_id"`
	ServerID string    `json:"server_id"`
	Name     string    `json:"name,omitempty"`
	Host     string    `json:"host"`
	Port     int       `json:"port"`
	Username string    `json:"username"`
	Password string    `json:"-"`
	AddedAt  time.Time `json:"added_at"`
}

// PremiumGrant marks a (guild, server) pair as premium. A nil ExpiresAt
// means the grant does not expire.
type PremiumGrant struct {
	GuildID   int64      `json:"guild_id"`
	ServerID  string     `json:"server_id"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Active reports whether the grant is currently in force.
func (g *PremiumGrant) Active(now time.Time) bool {
	if g == nil {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}
