// killfeed - Deadside death-log ingestion and stats service
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/abakedjoetato/DiscordKillfeed/internal/api"
	"github.com/abakedjoetato/DiscordKillfeed/internal/auth"
	"github.com/abakedjoetato/DiscordKillfeed/internal/bus"
	"github.com/abakedjoetato/DiscordKillfeed/internal/config"
	"github.com/abakedjoetato/DiscordKillfeed/internal/deathlog"
	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
	"github.com/abakedjoetato/DiscordKillfeed/internal/ingest"
	"github.com/abakedjoetato/DiscordKillfeed/internal/logging"
	"github.com/abakedjoetato/DiscordKillfeed/internal/stats"
	"github.com/abakedjoetato/DiscordKillfeed/internal/storage"
)

var version = "dev"

const defaultConfigPath = "/etc/killfeed/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "guild":
		cmdGuild(os.Args[2:])
	case "server":
		cmdServer(os.Args[2:])
	case "user":
		cmdUser(os.Args[2:])
	case "premium":
		cmdPremium(os.Args[2:])
	case "leaderboard":
		cmdLeaderboard(os.Args[2:])
	case "recent":
		cmdRecent(os.Args[2:])
	case "version":
		fmt.Printf("killfeed %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: killfeed <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the ingestion and stats server")
	fmt.Println("  status                              Show registered servers and refresh state")
	fmt.Println("  guild add <guild-id> <name>         Register a Discord guild")
	fmt.Println("  guild list                          List registered guilds")
	fmt.Println("  server add --guild N --host H [flags] <server-id>")
	fmt.Println("                                      Register a game server for a guild")
	fmt.Println("  server remove --guild N <server-id> Remove a game server")
	fmt.Println("  server list [--guild N]             List registered game servers")
	fmt.Println("  server refresh --guild N <server-id>")
	fmt.Println("                                      Rebuild stats from every retained death log")
	fmt.Println("  user add [--admin] <username>       Add a panel user (prompts for password)")
	fmt.Println("  user remove <username>              Remove a panel user")
	fmt.Println("  user list                           List panel users")
	fmt.Println("  user reset <username>               Reset a user's password")
	fmt.Println("  user admin <username>               Toggle admin status for a user")
	fmt.Println("  premium grant --guild N [--days D] <server-id>")
	fmt.Println("                                      Grant premium to a server")
	fmt.Println("  premium revoke --guild N <server-id>")
	fmt.Println("                                      Revoke a server's premium grant")
	fmt.Println("  premium status --guild N <server-id>")
	fmt.Println("                                      Show a server's premium grant")
	fmt.Println("  leaderboard --guild N --server S [--stat kills] [--top 20]")
	fmt.Println("                                      Show the top players on a server")
	fmt.Println("  recent --guild N --server S [--limit 25]")
	fmt.Println("                                      Show the most recent kills on a server")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/killfeed/config.yml)")
	fmt.Println("  --url <url>        Base URL of the killfeed server (default: derived from config)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  killfeed serve --config /etc/killfeed/config.yml")
	fmt.Println("  killfeed guild add 123456789012345678 \"Emerald EU\"")
	fmt.Println("  killfeed server add --guild 123456789012345678 --host 203.0.113.5 --user deadside 7777")
	fmt.Println("  killfeed server refresh --guild 123456789012345678 7777")
	fmt.Println("  killfeed leaderboard --guild 123456789012345678 --server 7777 --stat kdr")
}

// cmdServe starts the ingestion and stats server
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	// .env is optional; deployments usually carry secrets there.
	_ = godotenv.Load()

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			fmt.Fprintf(os.Stderr, "No config file found at %s. Use --config to specify a config file.\n", defaultConfigPath)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	logger.Info("killfeed starting", "version", version)

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		logger.Error("initializing database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("database ready", "path", cfg.Database.Path)

	b, err := bus.New(cfg.Bus.Port, logger)
	if err != nil {
		logger.Error("starting event bus", "error", err)
		os.Exit(1)
	}
	logger.Info("event bus ready", "url", b.ClientURL())

	tracker := ingest.NewSeenTracker(store, cfg.Ingest.DedupWindow)
	agg := stats.New(store)
	newSource := func(srv domain.GameServer) deathlog.Source {
		if cfg.Ingest.DevMode {
			return deathlog.NewLocalSource(cfg.Ingest.DevDataDir, srv, logger)
		}
		return deathlog.NewSFTPSource(srv, logger)
	}
	if cfg.Ingest.DevMode {
		logger.Info("dev mode: reading death logs from local fixtures", "dir", cfg.Ingest.DevDataDir)
	}

	refresher := ingest.NewRefresher(cfg, store, agg, tracker, newSource, b, logger)
	runner := ingest.NewRunner(cfg, store, agg, tracker, newSource, b, refresher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner.Start(ctx)
	logger.Info("ingestion runner started", "poll_interval", cfg.Ingest.PollInterval)

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no jwt secret configured, auth tokens will use an empty secret")
	}

	router := api.NewRouter(store, tracker, refresher, authService, logger)
	if err := router.StartWebSocketHub(b); err != nil {
		logger.Error("starting websocket hub", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}

	// Sequential shutdown: stop taking requests, drain ingestion, then
	// close the bus while the store is still open behind it.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	runner.Stop()
	refresher.Stop()
	b.Close()
	cancel()
	logger.Info("shutdown complete")
}

// CLI helper variables
var (
	baseURL = "http://localhost:8080"
	dbPath  string
)

// loadCLIConfigFromFlags loads config using pre-parsed flag values
func loadCLIConfigFromFlags(configPath, url string) *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", configPath, err)
		dbPath = "/var/lib/killfeed/killfeed.db"
		if v := os.Getenv("KILLFEED_DB"); v != "" {
			dbPath = v
		}
		if url != "" {
			baseURL = url
		}
		return nil
	}

	dbPath = cfg.Database.Path
	if url != "" {
		baseURL = url
	} else {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	}
	return cfg
}

// cliLogger builds a quiet logger for one-shot commands: warnings and
// errors only, human-readable output.
func cliLogger() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelWarn,
		TimeFormat: time.Kitchen,
	}))
}

func openCLIStore() *storage.Store {
	store, err := storage.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func requireGuildFlag(id int64) {
	if id <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --guild is required\n")
		os.Exit(1)
	}
}

func getJSON(path string, target interface{}) error {
	url := baseURL + path
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

// cmdStatus shows every registered server with premium and refresh state
func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	url := fs.String("url", "", "base URL of the killfeed server")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, *url)

	var guilds []domain.Guild
	if err := getJSON("/api/guilds", &guilds); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(guilds) == 0 {
		fmt.Println("No guilds registered")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GUILD\tSERVER\tNAME\tHOST\tPREMIUM\tREFRESH")
	fmt.Fprintln(w, "-----\t------\t----\t----\t-------\t-------")

	for _, g := range guilds {
		var servers []domain.GameServer
		if err := getJSON(fmt.Sprintf("/api/guilds/%d/servers", g.ID), &servers); err != nil {
			continue
		}
		for _, srv := range servers {
			premium := "no"
			var grant map[string]interface{}
			if err := getJSON(fmt.Sprintf("/api/guilds/%d/servers/%s/premium", g.ID, srv.ServerID), &grant); err == nil {
				if active, ok := grant["premium"].(bool); ok && active {
					premium = "yes"
				}
			}

			refresh := "-"
			var progress ingest.Progress
			if err := getJSON(fmt.Sprintf("/api/guilds/%d/servers/%s/refresh", g.ID, srv.ServerID), &progress); err == nil {
				refresh = progress.State
			}

			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", g.ID, srv.ServerID, srv.Name, srv.Host, premium, refresh)
		}
	}

	w.Flush()
}

// cmdGuild dispatches guild subcommands
func cmdGuild(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: guild subcommand required: add, list\n")
		os.Exit(1)
	}

	switch args[0] {
	case "add":
		cmdGuildAdd(args[1:])
	case "list":
		cmdGuildList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown guild command: %s (use: add, list)\n", args[0])
		os.Exit(1)
	}
}

func cmdGuildAdd(args []string) {
	fs := flag.NewFlagSet("guild add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, "")

	remaining := fs.Args()
	if len(remaining) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: killfeed guild add <guild-id> <name>\n")
		os.Exit(1)
	}
	guildID, err := strconv.ParseInt(remaining[0], 10, 64)
	if err != nil || guildID <= 0 {
		fmt.Fprintf(os.Stderr, "Error: invalid guild id %q\n", remaining[0])
		os.Exit(1)
	}
	name := strings.Join(remaining[1:], " ")

	store := openCLIStore()
	defer store.Close()

	if err := store.UpsertGuild(context.Background(), &domain.Guild{ID: guildID, Name: name}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Guild %d (%s) registered\n", guildID, name)
}

func cmdGuildList(args []string) {
	fs := flag.NewFlagSet("guild list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, "")

	store := openCLIStore()
	defer store.Close()

	guilds, err := store.ListGuilds(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(guilds) == 0 {
		fmt.Println("No guilds registered")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GUILD\tNAME")
	fmt.Fprintln(w, "-----\t----")
	for _, g := range guilds {
		fmt.Fprintf(w, "%d\t%s\n", g.ID, g.Name)
	}
	w.Flush()
}

// cmdServer dispatches server subcommands
func cmdServer(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: server subcommand required: add, remove, list, refresh\n")
		os.Exit(1)
	}

	switch args[0] {
	case "add":
		cmdServerAdd(args[1:])
	case "remove":
		cmdServerRemove(args[1:])
	case "list":
		cmdServerList(args[1:])
	case "refresh":
		cmdServerRefresh(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown server command: %s (use: add, remove, list, refresh)\n", args[0])
		os.Exit(1)
	}
}

func cmdServerAdd(args []string) {
	fs := flag.NewFlagSet("server add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	guildID := fs.Int64("guild", 0, "guild id the server belongs to")
	name := fs.String("name", "", "display name (default: the server id)")
	host := fs.String("host", "", "sftp host of the game server")
	port := fs.Int("port", 22, "sftp port")
	username := fs.String("user", "", "sftp username")
	password := fs.String("pass", "", "sftp password")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, "")

	remaining := fs.Args()
	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: killfeed server add --guild N --host H [--port N] [--user U] [--pass P] <server-id>\n")
		os.Exit(1)
	}
	requireGuildFlag(*guildID)
	if *host == "" {
		fmt.Fprintf(os.Stderr, "Error: --host is required\n")
		os.Exit(1)
	}
	serverID := remaining[0]

	store := openCLIStore()
	defer store.Close()
	ctx := context.Background()

	if _, err := store.GetGuild(ctx, *guildID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: guild %d not registered (run: killfeed guild add %d <name>)\n", *guildID, *guildID)
		os.Exit(1)
	}

	srv := &domain.GameServer{
		GuildID:  *guildID,
		ServerID: serverID,
		Name:     *name,
		Host:     *host,
		Port:     *port,
		Username: *username,
		Password: *password,
	}
	if srv.Name == "" {
		srv.Name = serverID
	}
	if err := store.AddServer(ctx, srv); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server %s added to guild %d\n", serverID, *guildID)
	fmt.Printf("Backfill stats with: killfeed server refresh --guild %d %s\n", *guildID, serverID)
}

func cmdServerRemove(args []string) {
	fs := flag.NewFlagSet("server remove", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	guildID := fs.Int64("guild", 0, "guild id the server belongs to")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, "")

	remaining := fs.Args()
	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: killfeed server remove --guild N <server-id>\n")
		os.Exit(1)
	}
	requireGuildFlag(*guildID)

	store := openCLIStore()
	defer store.Close()

	if err := store.RemoveServer(context.Background(), *guildID, remaining[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Server %s removed from guild %d\n", remaining[0], *guildID)
}

func cmdServerList(args []string) {
	fs := flag.NewFlagSet("server list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	guildID := fs.Int64("guild", 0, "limit to one guild")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, "")

	store := openCLIStore()
	defer store.Close()
	ctx := context.Background()

	var servers []domain.GameServer
	var err error
	if *guildID > 0 {
		servers, err = store.ListServers(ctx, *guildID)
	} else {
		servers, err = store.ListAllServers(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(servers) == 0 {
		fmt.Println("No servers registered")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GUILD\tSERVER\tNAME\tHOST\tPORT\tUSER")
	fmt.Fprintln(w, "-----\t------\t----\t----\t----\t----")
	for _, srv := range servers {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", srv.GuildID, srv.ServerID, srv.Name, srv.Host, srv.Port, srv.Username)
	}
	w.Flush()
}

func cmdServerRefresh(args []string) {
	fs := flag.NewFlagSet("server refresh", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	guildID := fs.Int64("guild", 0, "guild id the server belongs to")
	fs.Parse(args)

	cfg := loadCLIConfigFromFlags(*configPath, "")
	if cfg == nil {
		cfg = &config.Config{}
		cfg.Ingest.ProgressInterval = 5 * time.Second
	}

	remaining := fs.Args()
	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: killfeed server refresh --guild N <server-id>\n")
		os.Exit(1)
	}
	requireGuildFlag(*guildID)
	serverID := remaining[0]

	store := openCLIStore()
	defer store.Close()

	logger := cliLogger()
	tracker := ingest.NewSeenTracker(store, cfg.Ingest.DedupWindow)
	agg := stats.New(store)
	newSource := func(srv domain.GameServer) deathlog.Source {
		if cfg.Ingest.DevMode {
			return deathlog.NewLocalSource(cfg.Ingest.DevDataDir, srv, logger)
		}
		return deathlog.NewSFTPSource(srv, logger)
	}
	refresher := ingest.NewRefresher(cfg, store, agg, tracker, newSource, nil, logger)

	fmt.Printf("Rebuilding stats for server %s in guild %d...\n", serverID, *guildID)
	completion, err := refresher.Refresh(context.Background(), *guildID, serverID, func(p ingest.Progress) {
		if p.State == ingest.StateRunning && p.LinesTotal > 0 {
			fmt.Printf("  %d/%d lines (%d/%d files)\n", p.LinesProcessed, p.LinesTotal, p.FilesDone, p.FilesTotal)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Refresh complete: %d events applied, %d lines skipped, %d files in %.1fs\n",
		completion.EventsApplied, completion.LinesSkipped, completion.FilesTotal, completion.ElapsedSeconds)
}

// cmdUser handles user subcommands
func cmdUser(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: user subcommand required: add, remove, list, reset, admin\n")
		os.Exit(1)
	}

	subCmd := args[0]
	fs := flag.NewFlagSet("user", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	isAdmin := fs.Bool("admin", false, "create as admin user")
	fs.Parse(args[1:])
	loadCLIConfigFromFlags(*configPath, "")
	remaining := fs.Args()

	store := openCLIStore()
	defer store.Close()

	ctx := context.Background()

	var err error
	switch subCmd {
	case "add":
		err = cmdUserAdd(ctx, store, *isAdmin, remaining)
	case "remove":
		err = cmdUserRemove(ctx, store, remaining)
	case "list":
		err = cmdUserList(ctx, store)
	case "reset":
		err = cmdUserReset(ctx, store, remaining)
	case "admin":
		err = cmdUserAdmin(ctx, store, remaining)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown user command: %s (use: add, remove, list, reset, admin)\n", subCmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// promptPassword reads and confirms a password without echoing it.
func promptPassword() (string, error) {
	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(password) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(password), nil
}

func cmdUserAdd(ctx context.Context, store *storage.Store, isAdmin bool, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: killfeed user add [--admin] <username>")
	}
	username := args[0]

	if _, err := store.GetUserByUsername(ctx, username); err == nil {
		return fmt.Errorf("user '%s' already exists", username)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.CreateUser(ctx, username, hash, isAdmin); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	roleStr := "user"
	if isAdmin {
		roleStr = "admin"
	}
	fmt.Printf("User '%s' created successfully (role: %s)\n", username, roleStr)
	return nil
}

func cmdUserRemove(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: killfeed user remove <username>")
	}
	username := args[0]

	if err := store.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}

	fmt.Printf("User '%s' removed\n", username)
	return nil
}

func cmdUserList(ctx context.Context, store *storage.Store) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tPWD_CHANGE\tLAST_LOGIN")
	fmt.Fprintln(w, "--------\t----\t----------\t----------")

	for _, user := range users {
		role := "user"
		if user.IsAdmin {
			role = "admin"
		}
		pwdChange := "no"
		if user.PasswordChangeRequired {
			pwdChange = "yes"
		}
		lastLogin := "never"
		if user.LastLogin != nil {
			lastLogin = user.LastLogin.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", user.Username, role, pwdChange, lastLogin)
	}
	return w.Flush()
}

func cmdUserReset(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: killfeed user reset <username>")
	}
	username := args[0]

	if _, err := store.GetUserByUsername(ctx, username); err != nil {
		return fmt.Errorf("user not found: %s", username)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.ResetUserPassword(ctx, username, hash); err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	fmt.Printf("Password reset for '%s' (user will be required to change it on next login)\n", username)
	return nil
}

func cmdUserAdmin(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: killfeed user admin <username>")
	}
	username := args[0]

	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user not found: %s", username)
	}

	newAdminStatus := !user.IsAdmin
	if err := store.UpdateUserAdmin(ctx, username, newAdminStatus); err != nil {
		return fmt.Errorf("failed to update admin status: %w", err)
	}

	if newAdminStatus {
		fmt.Printf("User '%s' is now an admin\n", username)
	} else {
		fmt.Printf("User '%s' is no longer an admin\n", username)
	}
	return nil
}

// cmdPremium dispatches premium subcommands
func cmdPremium(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: premium subcommand required: grant, revoke, status\n")
		os.Exit(1)
	}

	switch args[0] {
	case "grant":
		cmdPremiumGrant(args[1:])
	case "revoke":
		cmdPremiumRevoke(args[1:])
	case "status":
		cmdPremiumStatus(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown premium command: %s (use: grant, revoke, status)\n", args[0])
		os.Exit(1)
	}
}

func cmdPremiumGrant(args []string) {
	fs := flag.NewFlagSet("premium grant", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	guildID := fs.Int64("guild", 0, "guild id the server belongs to")
	days := fs.Int("days", 0, "grant duration in days (0 = permanent)")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, "")

	remaining := fs.Args()
	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: killfeed premium grant --guild N [--days D] <server-id>\n")
		os.Exit(1)
	}
	requireGuildFlag(*guildID)
	serverID := remaining[0]

	store := openCLIStore()
	defer store.Close()
	ctx := context.Background()

	if _, err := store.GetServer(ctx, *guildID, serverID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: server %s not registered in guild %d\n", serverID, *guildID)
		os.Exit(1)
	}

	var expiresAt *time.Time
	if *days > 0 {
		t := time.Now().UTC().Add(time.Duration(*days) * 24 * time.Hour)
		expiresAt = &t
	}
	if err := store.SetPremium(ctx, *guildID, serverID, expiresAt); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if expiresAt != nil {
		fmt.Printf("Premium granted to server %s until %s\n", serverID, expiresAt.Format("2006-01-02"))
	} else {
		fmt.Printf("Premium granted to server %s (permanent)\n", serverID)
	}
}

func cmdPremiumRevoke(args []string) {
	fs := flag.NewFlagSet("premium revoke", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	guildID := fs.Int64("guild", 0, "guild id the server belongs to")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, "")

	remaining := fs.Args()
	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: killfeed premium revoke --guild N <server-id>\n")
		os.Exit(1)
	}
	requireGuildFlag(*guildID)

	store := openCLIStore()
	defer store.Close()

	if err := store.RevokePremium(context.Background(), *guildID, remaining[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Premium revoked for server %s\n", remaining[0])
}

func cmdPremiumStatus(args []string) {
	fs := flag.NewFlagSet("premium status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	guildID := fs.Int64("guild", 0, "guild id the server belongs to")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, "")

	remaining := fs.Args()
	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: killfeed premium status --guild N <server-id>\n")
		os.Exit(1)
	}
	requireGuildFlag(*guildID)
	serverID := remaining[0]

	store := openCLIStore()
	defer store.Close()

	grant, err := store.GetPremium(context.Background(), *guildID, serverID)
	if err == sql.ErrNoRows {
		fmt.Printf("Server %s has no premium grant\n", serverID)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server %s premium grant:\n", serverID)
	fmt.Printf("  Granted: %s\n", grant.GrantedAt.Format("2006-01-02 15:04"))
	if grant.ExpiresAt != nil {
		fmt.Printf("  Expires: %s\n", grant.ExpiresAt.Format("2006-01-02 15:04"))
	} else {
		fmt.Printf("  Expires: never\n")
	}
}

func cmdLeaderboard(args []string) {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	guildID := fs.Int64("guild", 0, "guild id")
	serverID := fs.String("server", "", "server id")
	stat := fs.String("stat", "kills", "stat to rank by (kills, deaths, kdr, suicides, distance, streak)")
	limit := fs.Int("top", 20, "number of top players to show")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, "")

	requireGuildFlag(*guildID)
	if *serverID == "" {
		fmt.Fprintf(os.Stderr, "Error: --server is required\n")
		os.Exit(1)
	}

	store := openCLIStore()
	defer store.Close()

	entries, err := store.Leaderboard(context.Background(), *guildID, *serverID, *stat, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("No stats recorded")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPLAYER\tKILLS\tDEATHS\tK/D\tSTREAK")
	fmt.Fprintln(w, "----\t------\t-----\t------\t---\t------")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%.2f\t%d\n", e.Rank, e.PlayerName, e.Kills, e.Deaths, e.KDR, e.LongestStreak)
	}
	w.Flush()
}

func cmdRecent(args []string) {
	fs := flag.NewFlagSet("recent", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	guildID := fs.Int64("guild", 0, "guild id")
	serverID := fs.String("server", "", "server id")
	limit := fs.Int("limit", 25, "number of kills to show")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, "")

	requireGuildFlag(*guildID)
	if *serverID == "" {
		fmt.Fprintf(os.Stderr, "Error: --server is required\n")
		os.Exit(1)
	}

	store := openCLIStore()
	defer store.Close()

	kills, err := store.RecentKills(context.Background(), *guildID, *serverID, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(kills) == 0 {
		fmt.Println("No kills recorded")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKILLER\tVICTIM\tWEAPON\tDISTANCE")
	fmt.Fprintln(w, "----\t------\t------\t------\t--------")
	for _, k := range kills {
		distance := "-"
		if k.Distance > 0 {
			distance = fmt.Sprintf("%.0fm", k.Distance)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			k.Timestamp.Format("2006-01-02 15:04:05"), k.Killer, k.Victim, k.Weapon, distance)
	}
	w.Flush()
}
