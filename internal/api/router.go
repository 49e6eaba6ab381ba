package api

import (
	"log/slog"
	"net/http"

	"github.com/abakedjoetato/DiscordKillfeed/internal/auth"
	"github.com/abakedjoetato/DiscordKillfeed/internal/bus"
	"github.com/abakedjoetato/DiscordKillfeed/internal/ingest"
	"github.com/abakedjoetato/DiscordKillfeed/internal/storage"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux       *http.ServeMux
	store     *storage.Store
	tracker   *ingest.SeenTracker
	refresher *ingest.Refresher
	wsHub     *WebSocketHub
	auth      *auth.Service
	logger    *slog.Logger
}

// NewRouter creates a new HTTP router
func NewRouter(store *storage.Store, tracker *ingest.SeenTracker, refresher *ingest.Refresher, authService *auth.Service, logger *slog.Logger) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		store:     store,
		tracker:   tracker,
		refresher: refresher,
		wsHub:     NewWebSocketHub(logger),
		auth:      authService,
		logger:    logger,
	}

	// Guild routes
	r.mux.HandleFunc("POST /api/guilds", r.requireAuth(r.handleUpsertGuild))
	r.mux.HandleFunc("GET /api/guilds", r.handleListGuilds)
	r.mux.HandleFunc("GET /api/guilds/{guild}", r.handleGetGuild)

	// Server routes
	r.mux.HandleFunc("GET /api/guilds/{guild}/servers", r.handleListServers)
	r.mux.HandleFunc("POST /api/guilds/{guild}/servers", r.requireAuth(r.handleAddServer))
	r.mux.HandleFunc("GET /api/guilds/{guild}/servers/{server}", r.handleGetServer)
	r.mux.HandleFunc("DELETE /api/guilds/{guild}/servers/{server}", r.requireAuth(r.handleRemoveServer))

	// Stats routes
	r.mux.HandleFunc("GET /api/guilds/{guild}/servers/{server}/stats/{player}", r.handleGetPlayerProfile)
	r.mux.HandleFunc("GET /api/guilds/{guild}/servers/{server}/leaderboard", r.handleGetLeaderboard)
	r.mux.HandleFunc("GET /api/guilds/{guild}/servers/{server}/weapons", r.handleGetWeaponTotals)
	r.mux.HandleFunc("GET /api/guilds/{guild}/servers/{server}/compare", r.handleComparePlayers)
	r.mux.HandleFunc("GET /api/guilds/{guild}/servers/{server}/kills", r.handleGetRecentKills)

	// Historical refresh routes
	r.mux.HandleFunc("POST /api/guilds/{guild}/servers/{server}/refresh", r.requireAuth(r.handleTriggerRefresh))
	r.mux.HandleFunc("GET /api/guilds/{guild}/servers/{server}/refresh", r.handleGetRefreshStatus)

	// Premium routes
	r.mux.HandleFunc("GET /api/guilds/{guild}/servers/{server}/premium", r.handleGetPremium)
	r.mux.HandleFunc("PUT /api/guilds/{guild}/servers/{server}/premium", r.requireAdmin(r.handleSetPremium))
	r.mux.HandleFunc("DELETE /api/guilds/{guild}/servers/{server}/premium", r.requireAdmin(r.handleRevokePremium))

	// Auth routes
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)
	r.mux.HandleFunc("POST /api/auth/logout", r.handleLogout)
	r.mux.HandleFunc("GET /api/auth/check", r.handleAuthCheck)
	r.mux.HandleFunc("POST /api/auth/change-password", r.requireAuth(r.handleChangePassword))

	// User management routes (admin only)
	r.mux.HandleFunc("GET /api/users", r.requireAdmin(r.handleListUsers))
	r.mux.HandleFunc("POST /api/users", r.requireAdmin(r.handleCreateUser))
	r.mux.HandleFunc("DELETE /api/users/{username}", r.requireAdmin(r.handleDeleteUser))
	r.mux.HandleFunc("PATCH /api/users/{username}", r.requireAdmin(r.handleUpdateUser))
	r.mux.HandleFunc("POST /api/users/{username}/reset-password", r.requireAdmin(r.handleResetUserPassword))

	// WebSocket endpoint
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// StartWebSocketHub starts the hub and feeds it every event published
// on the bus.
func (r *Router) StartWebSocketHub(b *bus.Bus) error {
	go r.wsHub.Run()

	_, err := b.SubscribeAll(func(subject string, payload []byte) {
		r.wsHub.BroadcastRaw(payload)
	})
	return err
}
