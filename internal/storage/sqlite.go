package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
	_ "modernc.org/sqlite"
)

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

//go:embed schema.sql
var schema string

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable foreign keys, WAL mode for better performance, and busy timeout for concurrency
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	// Create tables
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Guild methods ---

// UpsertGuild creates or renames a guild
func (s *Store) UpsertGuild(ctx context.Context, g *domain.Guild) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guilds (id, name)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name
	`, g.ID, g.Name)
	if err != nil {
		return err
	}
	return s.db.QueryRowContext(ctx, "SELECT created_at FROM guilds WHERE id = ?", g.ID).Scan(&g.CreatedAt)
}

// GetGuild returns a guild by ID
func (s *Store) GetGuild(ctx context.Context, id int64) (*domain.Guild, error) {
	var g domain.Guild
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM guilds WHERE id = ?
	`, id).Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGuilds returns all guilds
func (s *Store) ListGuilds(ctx context.Context) ([]domain.Guild, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at FROM guilds ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guilds []domain.Guild
	for rows.Next() {
		var g domain.Guild
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		guilds = append(guilds, g)
	}
	return guilds, rows.Err()
}

// --- Server methods ---

// AddServer registers a game server under a guild, or updates its
// credentials when the (guild, server) pair already exists
func (s *Store) AddServer(ctx context.Context, srv *domain.GameServer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (guild_id, server_id, name, host, port, username, password)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, server_id) DO UPDATE SET
			name = excluded.name,
			host = excluded.host,
			port = excluded.port,
			username = excluded.username,
			password = excluded.password
	`, srv.GuildID, srv.ServerID, srv.Name, srv.Host, srv.Port, srv.Username, srv.Password)
	if err != nil {
		return err
	}
	return s.db.QueryRowContext(ctx,
		"SELECT added_at FROM servers WHERE guild_id = ? AND server_id = ?",
		srv.GuildID, srv.ServerID).Scan(&srv.AddedAt)
}

// GetServer returns one registered server
func (s *Store) GetServer(ctx context.Context, guildID int64, serverID string) (*domain.GameServer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, server_id, name, host, port, username, password, added_at
		FROM servers WHERE guild_id = ? AND server_id = ?
	`, guildID, serverID)
	return scanServer(row)
}

// ListServers returns all servers registered under a guild
func (s *Store) ListServers(ctx context.Context, guildID int64) ([]domain.GameServer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, server_id, name, host, port, username, password, added_at
		FROM servers WHERE guild_id = ? ORDER BY server_id
	`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectServers(rows)
}

// ListAllServers returns every registered server across all guilds.
// The ingestion loop iterates this on every poll
func (s *Store) ListAllServers(ctx context.Context) ([]domain.GameServer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, server_id, name, host, port, username, password, added_at
		FROM servers ORDER BY guild_id, server_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectServers(rows)
}

// RemoveServer deletes a server registration. Stats, kill events and
// premium grants cascade away with it
func (s *Store) RemoveServer(ctx context.Context, guildID int64, serverID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM servers WHERE guild_id = ? AND server_id = ?`, guildID, serverID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("server not found: %s", serverID)
	}
	return nil
}

// --- Stat methods ---

// RecordKill credits a PvP kill to the killer: kills and streak move up,
// total distance accumulates, and KDR is recomputed in the same statement
func (s *Store) RecordKill(ctx context.Context, guildID int64, serverID, killer string, distance float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pvp_stats (guild_id, server_id, player_name, kills, kdr, total_distance, current_streak, longest_streak, updated_at)
		VALUES (?, ?, ?, 1, 1.0, ?, 1, 1, ?)
		ON CONFLICT(guild_id, server_id, player_name) DO UPDATE SET
			kills = kills + 1,
			total_distance = total_distance + excluded.total_distance,
			current_streak = current_streak + 1,
			longest_streak = MAX(longest_streak, current_streak + 1),
			kdr = CAST(kills + 1 AS REAL) / MAX(deaths, 1),
			updated_at = excluded.updated_at
	`, guildID, serverID, killer, distance, formatTimestamp(time.Now()))
	return err
}

// RecordDeath charges a PvP death to the victim: deaths move up, the
// current streak resets, and KDR is recomputed in the same statement
func (s *Store) RecordDeath(ctx context.Context, guildID int64, serverID, victim string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pvp_stats (guild_id, server_id, player_name, deaths, kdr, updated_at)
		VALUES (?, ?, ?, 1, 0.0, ?)
		ON CONFLICT(guild_id, server_id, player_name) DO UPDATE SET
			deaths = deaths + 1,
			current_streak = 0,
			kdr = CAST(kills AS REAL) / MAX(deaths + 1, 1),
			updated_at = excluded.updated_at
	`, guildID, serverID, victim, formatTimestamp(time.Now()))
	return err
}

// RecordSuicide counts a self-inflicted death. Only the suicide counter
// and streak move; kills, deaths and KDR stay put
func (s *Store) RecordSuicide(ctx context.Context, guildID int64, serverID, victim string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pvp_stats (guild_id, server_id, player_name, suicides, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(guild_id, server_id, player_name) DO UPDATE SET
			suicides = suicides + 1,
			current_streak = 0,
			updated_at = excluded.updated_at
	`, guildID, serverID, victim, formatTimestamp(time.Now()))
	return err
}

// GetPlayerStats returns one player's counters on one server
func (s *Store) GetPlayerStats(ctx context.Context, guildID int64, serverID, player string) (*domain.PlayerStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, server_id, player_name, kills, deaths, suicides, kdr, total_distance, current_streak, longest_streak, updated_at
		FROM pvp_stats WHERE guild_id = ? AND server_id = ? AND player_name = ?
	`, guildID, serverID, player)
	return scanPlayerStats(row)
}

// Leaderboard returns the top players on a server ordered by one stat
func (s *Store) Leaderboard(ctx context.Context, guildID int64, serverID, stat string, limit int) ([]domain.LeaderboardEntry, error) {
	var orderBy string
	switch stat {
	case "kills":
		orderBy = "kills DESC"
	case "deaths":
		orderBy = "deaths DESC"
	case "kdr":
		orderBy = "kdr DESC"
	case "suicides":
		orderBy = "suicides DESC"
	case "distance":
		orderBy = "total_distance DESC"
	case "streak":
		orderBy = "longest_streak DESC"
	default:
		return nil, fmt.Errorf("unknown leaderboard stat: %q", stat)
	}

	query := fmt.Sprintf(`
		SELECT guild_id, server_id, player_name, kills, deaths, suicides, kdr, total_distance, current_streak, longest_streak, updated_at
		FROM pvp_stats WHERE guild_id = ? AND server_id = ?
		ORDER BY %s, player_name ASC LIMIT ?
	`, orderBy)

	rows, err := s.db.QueryContext(ctx, query, guildID, serverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		ps, err := scanPlayerStats(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, domain.LeaderboardEntry{Rank: len(entries) + 1, PlayerStats: *ps})
	}
	return entries, rows.Err()
}

// CountTrackedPlayers returns how many players have stats on a server
func (s *Store) CountTrackedPlayers(ctx context.Context, guildID int64, serverID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pvp_stats WHERE guild_id = ? AND server_id = ?`,
		guildID, serverID).Scan(&n)
	return n, err
}

// ClearServerData wipes a server's stats and kill events in one
// transaction. Historical rebuilds call this before replaying files
func (s *Store) ClearServerData(ctx context.Context, guildID int64, serverID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pvp_stats WHERE guild_id = ? AND server_id = ?`, guildID, serverID); err != nil {
		return fmt.Errorf("clearing stats: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM kill_events WHERE guild_id = ? AND server_id = ?`, guildID, serverID); err != nil {
		return fmt.Errorf("clearing kill events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// --- Kill event methods ---

// InsertKillEvent appends one event to the log and populates its ID
func (s *Store) InsertKillEvent(ctx context.Context, guildID int64, serverID string, ev *domain.KillEvent) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO kill_events (guild_id, server_id, occurred_at, killer, victim, weapon, distance, is_suicide, raw_line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, guildID, serverID, formatTimestamp(ev.Timestamp), ev.Killer, ev.Victim, ev.Weapon, ev.Distance, ev.IsSuicide, ev.RawLine)
	if err != nil {
		return err
	}
	ev.ID, err = result.LastInsertId()
	return err
}

// RecentKills returns the newest events on a server, newest first
func (s *Store) RecentKills(ctx context.Context, guildID int64, serverID string, limit int) ([]domain.KillEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, occurred_at, killer, victim, weapon, distance, is_suicide, raw_line, created_at
		FROM kill_events WHERE guild_id = ? AND server_id = ?
		ORDER BY id DESC LIMIT ?
	`, guildID, serverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.KillEvent
	for rows.Next() {
		ev, err := scanKillEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// RecentRawLines returns the newest stored raw lines for a server. The
// dedup tracker primes itself from these after a restart
func (s *Store) RecentRawLines(ctx context.Context, guildID int64, serverID string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT raw_line FROM kill_events WHERE guild_id = ? AND server_id = ?
		ORDER BY id DESC LIMIT ?
	`, guildID, serverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// CountKillEvents returns how many events a server has logged
func (s *Store) CountKillEvents(ctx context.Context, guildID int64, serverID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kill_events WHERE guild_id = ? AND server_id = ?`,
		guildID, serverID).Scan(&n)
	return n, err
}

// WeaponTotals returns kill counts per weapon, optionally for a single
// killer. Self-inflicted markers never rank
func (s *Store) WeaponTotals(ctx context.Context, guildID int64, serverID, player string, limit int) ([]domain.WeaponStat, error) {
	query := `
		SELECT weapon, COUNT(*) AS kills
		FROM kill_events
		WHERE guild_id = ? AND server_id = ? AND is_suicide = 0
			AND weapon NOT IN (?, ?, ?)
	`
	args := []interface{}{guildID, serverID, domain.WeaponMenuSuicide, domain.WeaponSuicide, domain.WeaponFalling}
	if player != "" {
		query += " AND killer = ?"
		args = append(args, player)
	}
	query += " GROUP BY weapon ORDER BY kills DESC, weapon ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weapons []domain.WeaponStat
	for rows.Next() {
		var w domain.WeaponStat
		if err := rows.Scan(&w.Weapon, &w.Kills); err != nil {
			return nil, err
		}
		weapons = append(weapons, w)
	}
	return weapons, rows.Err()
}

// Rivalry returns the victim a player kills most and the killer that
// kills the player most, from the PvP event log
func (s *Store) Rivalry(ctx context.Context, guildID int64, serverID, player string) (domain.Rivalry, error) {
	var r domain.Rivalry

	var rival domain.RivalryEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT victim, COUNT(*) AS c
		FROM kill_events
		WHERE guild_id = ? AND server_id = ? AND killer = ? AND is_suicide = 0
		GROUP BY victim ORDER BY c DESC, victim ASC LIMIT 1
	`, guildID, serverID, player).Scan(&rival.PlayerName, &rival.Count)
	switch err {
	case nil:
		r.Rival = &rival
	case sql.ErrNoRows:
	default:
		return r, err
	}

	var nemesis domain.RivalryEntry
	err = s.db.QueryRowContext(ctx, `
		SELECT killer, COUNT(*) AS c
		FROM kill_events
		WHERE guild_id = ? AND server_id = ? AND victim = ? AND is_suicide = 0
		GROUP BY killer ORDER BY c DESC, killer ASC LIMIT 1
	`, guildID, serverID, player).Scan(&nemesis.PlayerName, &nemesis.Count)
	switch err {
	case nil:
		r.Nemesis = &nemesis
	case sql.ErrNoRows:
	default:
		return r, err
	}

	return r, nil
}

// --- Premium methods ---

// SetPremium grants or extends premium for a (guild, server) pair.
// A nil expiry never lapses
func (s *Store) SetPremium(ctx context.Context, guildID int64, serverID string, expiresAt *time.Time) error {
	var expires interface{}
	if expiresAt != nil {
		expires = formatTimestamp(*expiresAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO premium (guild_id, server_id, granted_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id, server_id) DO UPDATE SET
			granted_at = excluded.granted_at,
			expires_at = excluded.expires_at
	`, guildID, serverID, formatTimestamp(time.Now()), expires)
	return err
}

// RevokePremium removes a grant
func (s *Store) RevokePremium(ctx context.Context, guildID int64, serverID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM premium WHERE guild_id = ? AND server_id = ?`, guildID, serverID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("no premium grant for server: %s", serverID)
	}
	return nil
}

// GetPremium returns the grant for a (guild, server) pair. An expired
// grant is deleted on read and reported as absent
func (s *Store) GetPremium(ctx context.Context, guildID int64, serverID string) (*domain.PremiumGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, server_id, granted_at, expires_at
		FROM premium WHERE guild_id = ? AND server_id = ?
	`, guildID, serverID)
	grant, err := scanPremium(row)
	if err != nil {
		return nil, err
	}
	if !grant.Active(time.Now()) {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM premium WHERE guild_id = ? AND server_id = ?`, guildID, serverID); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	return grant, nil
}

// IsPremium reports whether a (guild, server) pair has an active grant
func (s *Store) IsPremium(ctx context.Context, guildID int64, serverID string) (bool, error) {
	_, err := s.GetPremium(ctx, guildID, serverID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// --- User methods ---

// User represents an operator account
type User struct {
	ID                     int64
	Username               string
	PasswordHash           string
	IsAdmin                bool
	PasswordChangeRequired bool
	CreatedAt              time.Time
	LastLogin              *time.Time
}

// CreateUser creates a new user account
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, is_admin, password_change_required)
		VALUES (?, ?, ?, TRUE)
	`, username, passwordHash, isAdmin)
	return err
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, password_change_required, created_at, last_login
		FROM users WHERE username = ?
	`, username)
	return scanUser(row)
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, password_change_required, created_at, last_login
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

// DeleteUser removes a user by username
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", username)
	}
	return nil
}

// ListUsers returns all user accounts
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, is_admin, password_change_required, created_at, last_login
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUserLastLogin stamps a successful login
func (s *Store) UpdateUserLastLogin(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE username = ?`, username)
	return err
}

// UpdateUserPassword sets a new password hash and clears the forced
// change flag
func (s *Store) UpdateUserPassword(ctx context.Context, username, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, password_change_required = FALSE WHERE username = ?
	`, passwordHash, username)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", username)
	}
	return nil
}

// ResetUserPassword sets a new password hash and forces a change on the
// next login
func (s *Store) ResetUserPassword(ctx context.Context, username, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, password_change_required = TRUE WHERE username = ?
	`, passwordHash, username)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", username)
	}
	return nil
}

// UpdateUserAdmin toggles the admin flag
func (s *Store) UpdateUserAdmin(ctx context.Context, username string, isAdmin bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_admin = ? WHERE username = ?`, isAdmin, username)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", username)
	}
	return nil
}
