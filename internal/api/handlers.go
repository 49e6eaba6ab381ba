package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
	"github.com/abakedjoetato/DiscordKillfeed/internal/ingest"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseID parses an ID from the URL path
func parseID(req *http.Request, param string) (int64, error) {
	idStr := req.PathValue(param)
	return strconv.ParseInt(idStr, 10, 64)
}

// scope extracts the guild ID and server ID from the URL path
func scope(req *http.Request) (int64, string, error) {
	guildID, err := parseID(req, "guild")
	if err != nil {
		return 0, "", err
	}
	return guildID, req.PathValue("server"), nil
}

// UpsertGuildRequest is the request body for registering a guild
type UpsertGuildRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// handleUpsertGuild registers or renames a guild
func (r *Router) handleUpsertGuild(w http.ResponseWriter, req *http.Request) {
	var body UpsertGuildRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ID == 0 {
		writeError(w, http.StatusBadRequest, "guild id required")
		return
	}

	guild := &domain.Guild{ID: body.ID, Name: body.Name}
	if err := r.store.UpsertGuild(req.Context(), guild); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, guild)
}

// handleListGuilds returns all registered guilds
func (r *Router) handleListGuilds(w http.ResponseWriter, req *http.Request) {
	guilds, err := r.store.ListGuilds(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if guilds == nil {
		guilds = []domain.Guild{}
	}
	writeJSON(w, http.StatusOK, guilds)
}

// handleGetGuild returns a single guild
func (r *Router) handleGetGuild(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	guild, err := r.store.GetGuild(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "guild not found")
		return
	}
	writeJSON(w, http.StatusOK, guild)
}

// handleListServers returns a guild's registered servers
func (r *Router) handleListServers(w http.ResponseWriter, req *http.Request) {
	guildID, err := parseID(req, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	servers, err := r.store.ListServers(req.Context(), guildID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if servers == nil {
		servers = []domain.GameServer{}
	}
	writeJSON(w, http.StatusOK, servers)
}

// AddServerRequest is the request body for registering a game server
type AddServerRequest struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleAddServer registers a game server and schedules its first
// historical refresh
func (r *Router) handleAddServer(w http.ResponseWriter, req *http.Request) {
	guildID, err := parseID(req, "guild")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	var body AddServerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ServerID == "" || body.Host == "" {
		writeError(w, http.StatusBadRequest, "server_id and host are required")
		return
	}
	if body.Port == 0 {
		body.Port = 22
	}

	if _, err := r.store.GetGuild(req.Context(), guildID); err != nil {
		writeError(w, http.StatusNotFound, "guild not registered")
		return
	}

	srv := &domain.GameServer{
		GuildID:  guildID,
		ServerID: body.ServerID,
		Name:     body.Name,
		Host:     body.Host,
		Port:     body.Port,
		Username: body.Username,
		Password: body.Password,
	}
	if err := r.store.AddServer(req.Context(), srv); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The first rebuild runs after a delay so registration returns
	// immediately.
	r.refresher.ScheduleInitial(guildID, body.ServerID)

	writeJSON(w, http.StatusCreated, srv)
}

// handleGetServer returns a single registered server
func (r *Router) handleGetServer(w http.ResponseWriter, req *http.Request) {
	guildID, serverID, err := scope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	srv, err := r.store.GetServer(req.Context(), guildID, serverID)
	if err != nil {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

// handleRemoveServer unregisters a server and drops its tracked state
func (r *Router) handleRemoveServer(w http.ResponseWriter, req *http.Request) {
	guildID, serverID, err := scope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	r.refresher.CancelScheduled(guildID, serverID)
	if err := r.store.RemoveServer(req.Context(), guildID, serverID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	r.tracker.Clear(guildID, serverID)

	writeJSON(w, http.StatusOK, map[string]string{"message": "server removed"})
}

// handleTriggerRefresh starts a historical rebuild in the background
func (r *Router) handleTriggerRefresh(w http.ResponseWriter, req *http.Request) {
	guildID, serverID, err := scope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	if _, err := r.store.GetServer(req.Context(), guildID, serverID); err != nil {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}

	runID, err := r.refresher.Trigger(guildID, serverID)
	if errors.Is(err, ingest.ErrRefreshInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// handleGetRefreshStatus returns the latest refresh progress snapshot
func (r *Router) handleGetRefreshStatus(w http.ResponseWriter, req *http.Request) {
	guildID, serverID, err := scope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	progress, ok := r.refresher.Status(guildID, serverID)
	if !ok {
		writeError(w, http.StatusNotFound, "no refresh recorded for server")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// SetPremiumRequest is the request body for granting premium
type SetPremiumRequest struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// handleSetPremium grants or extends a server's premium entitlement
func (r *Router) handleSetPremium(w http.ResponseWriter, req *http.Request) {
	guildID, serverID, err := scope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	var body SetPremiumRequest
	if req.ContentLength > 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if _, err := r.store.GetServer(req.Context(), guildID, serverID); err != nil {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}

	if err := r.store.SetPremium(req.Context(), guildID, serverID, body.ExpiresAt); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "premium granted"})
}

// handleRevokePremium removes a server's premium entitlement
func (r *Router) handleRevokePremium(w http.ResponseWriter, req *http.Request) {
	guildID, serverID, err := scope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	if err := r.store.RevokePremium(req.Context(), guildID, serverID); err != nil {
		if strings.Contains(err.Error(), "no premium grant") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "premium revoked"})
}

// handleGetPremium reports a server's premium state
func (r *Router) handleGetPremium(w http.ResponseWriter, req *http.Request) {
	guildID, serverID, err := scope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guild id")
		return
	}

	grant, err := r.store.GetPremium(req.Context(), guildID, serverID)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusOK, map[string]interface{}{"premium": false})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"premium":    true,
		"granted_at": grant.GrantedAt,
		"expires_at": grant.ExpiresAt,
	})
}

// handleHealth returns a simple health check response
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
