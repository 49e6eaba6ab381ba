package api

import (
	"net/http"

	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
)

// handleGetPlayerProfile returns a player's stats with top weapons and
// rivalry info
func (r *Router) handleGetPlayerProfile(w http.ResponseWriter, req *http.Request) {
	guildID, serverID, err := scope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	player := req.PathValue("player")

	stats, err := r.store.GetPlayerStats(req.Context(), guildID, serverID, player)
	if err != nil {
		writeError(w, http.StatusNotFound, "player not found")
		return
	}

	weapons, err := r.store.WeaponTotals(req.Context(), guildID, serverID, player, 5)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rivalry, err := r.store.Rivalry(req.Context(), guildID, serverID, player)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, domain.PlayerProfile{
		Stats:      *stats,
		TopWeapons: weapons,
		Rivalry:    rivalry,
	})
}

// handleGetLeaderboard returns top players for a stat. Leaderboards
// are a premium feature, gated per server
func (r *Router) handleGetLeaderboard(w http.ResponseWriter, req *http.Request) {
	guildID, serverID, err := scope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	premium, err := r.store.IsPremium(req.Context(), guildID, serverID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !premium {
		writeError(w, http.StatusForbidden, "leaderboards require premium")
		return
	}

	stat := req.URL.Query().Get("stat")
	if stat == "" {
		stat = "kills"
	}
	if !validateStat(stat) {
		writeError(w, http.StatusBadRequest, "invalid stat")
		return
	}
	limit := parseLimit(req, 10, 100)

	entries, err := r.store.Leaderboard(req.Context(), guildID, serverID, stat, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, domain.LeaderboardResponse{Stat: stat, Entries: entries})
}

// handleGetWeaponTotals returns kill counts per weapon, optionally for
// one player
func (r *Router) handleGetWeaponTotals(w http.ResponseWriter, req *http.Request) {
	guildID, serverID, err := scope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	player := req.URL.Query().Get("player")
	limit := parseLimit(req, 10, 50)

	weapons, err := r.store.WeaponTotals(req.Context(), guildID, serverID, player, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if weapons == nil {
		weapons = []domain.WeaponStat{}
	}
	writeJSON(w, http.StatusOK, weapons)
}

// handleComparePlayers returns two players' stats side by side
func (r *Router) handleComparePlayers(w http.ResponseWriter, req *http.Request) {
	guildID, serverID, err := scope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	player := req.URL.Query().Get("player")
	other := req.URL.Query().Get("other")
	if player == "" || other == "" {
		writeError(w, http.StatusBadRequest, "player and other are required")
		return
	}

	left, err := r.store.GetPlayerStats(req.Context(), guildID, serverID, player)
	if err != nil {
		writeError(w, http.StatusNotFound, "player not found: "+player)
		return
	}
	right, err := r.store.GetPlayerStats(req.Context(), guildID, serverID, other)
	if err != nil {
		writeError(w, http.StatusNotFound, "player not found: "+other)
		return
	}

	writeJSON(w, http.StatusOK, domain.ComparisonResponse{Player: *left, Other: *right})
}

// handleGetRecentKills returns the newest kill events for a server
func (r *Router) handleGetRecentKills(w http.ResponseWriter, req *http.Request) {
	guildID, serverID, err := scope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	limit := parseLimit(req, 25, 100)
	kills, err := r.store.RecentKills(req.Context(), guildID, serverID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if kills == nil {
		kills = []domain.KillEvent{}
	}
	writeJSON(w, http.StatusOK, kills)
}
