package storage

import (
	"database/sql"
	"time"

	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
)

// Null scanner helpers - reduce repetitive nil-checking code

func scanNullTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanUser scans a user row from the database
func scanUser(s scanner) (*User, error) {
	var user User
	var lastLogin sql.NullTime
	err := s.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin,
		&user.PasswordChangeRequired, &user.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	user.LastLogin = scanNullTime(lastLogin)
	return &user, nil
}

// scanServer scans a game server row from the database
func scanServer(s scanner) (*domain.GameServer, error) {
	var srv domain.GameServer
	err := s.Scan(&srv.GuildID, &srv.ServerID, &srv.Name, &srv.Host, &srv.Port,
		&srv.Username, &srv.Password, &srv.AddedAt)
	if err != nil {
		return nil, err
	}
	return &srv, nil
}

// collectServers drains a server query into a slice
func collectServers(rows *sql.Rows) ([]domain.GameServer, error) {
	var servers []domain.GameServer
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *srv)
	}
	return servers, rows.Err()
}

// scanPlayerStats scans a pvp_stats row from the database
func scanPlayerStats(s scanner) (*domain.PlayerStats, error) {
	var ps domain.PlayerStats
	err := s.Scan(&ps.GuildID, &ps.ServerID, &ps.PlayerName, &ps.Kills, &ps.Deaths,
		&ps.Suicides, &ps.KDR, &ps.TotalDistance, &ps.CurrentStreak, &ps.LongestStreak, &ps.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

// scanKillEvent scans a kill_events row from the database
func scanKillEvent(s scanner) (*domain.KillEvent, error) {
	var ev domain.KillEvent
	err := s.Scan(&ev.ID, &ev.Timestamp, &ev.Killer, &ev.Victim, &ev.Weapon,
		&ev.Distance, &ev.IsSuicide, &ev.RawLine, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// scanPremium scans a premium row from the database
func scanPremium(s scanner) (*domain.PremiumGrant, error) {
	var g domain.PremiumGrant
	var expires sql.NullTime
	err := s.Scan(&g.GuildID, &g.ServerID, &g.GrantedAt, &expires)
	if err != nil {
		return nil, err
	}
	g.ExpiresAt = scanNullTime(expires)
	return &g, nil
}
