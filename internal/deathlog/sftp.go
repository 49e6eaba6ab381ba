package deathlog

import (
	"context"
	"log/slog"
	"net"
	"os"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
)

const (
	defaultSFTPPort = 22
	sftpDialTimeout = 10 * time.Second
)

// SFTPSource fetches death logs over SFTP with per-server password
// credentials. Every call dials a fresh session and closes it before
// returning, so a flaky host never pins a dead connection.
type SFTPSource struct {
	server domain.GameServer
	logger *slog.Logger
}

// NewSFTPSource builds a source for one registered game server.
func NewSFTPSource(server domain.GameServer, logger *slog.Logger) *SFTPSource {
	return &SFTPSource{server: server, logger: logger}
}

// Name identifies the backend in logs.
func (s *SFTPSource) Name() string { return "sftp" }

// configured reports whether the server carries enough credentials to
// dial. An unconfigured server is a soft condition, not an error.
func (s *SFTPSource) configured() bool {
	return s.server.Host != "" && s.server.Username != ""
}

func (s *SFTPSource) connect() (*ssh.Client, *sftp.Client, error) {
	port := s.server.Port
	if port == 0 {
		port = defaultSFTPPort
	}
	addr := net.JoinHostPort(s.server.Host, strconv.Itoa(port))
	cfg := &ssh.ClientConfig{
		User: s.server.Username,
		Auth: []ssh.AuthMethod{ssh.Password(s.server.Password)},
		// Game hosts get reprovisioned often enough that host keys
		// cannot be pinned.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sftpDialTimeout,
	}
	conn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, nil, transportErr("dial "+addr, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, nil, transportErr("sftp session "+addr, err)
	}
	return conn, client, nil
}

// listLogs returns the log files in the server's death-log directory.
func (s *SFTPSource) listLogs(client *sftp.Client, dir string) ([]os.FileInfo, error) {
	infos, err := client.ReadDir(dir)
	if err != nil {
		return nil, transportErr("list "+dir, err)
	}
	logs := infos[:0]
	for _, info := range infos {
		if !info.IsDir() && isLogFile(info.Name()) {
			logs = append(logs, info)
		}
	}
	return logs, nil
}

func (s *SFTPSource) readFile(client *sftp.Client, dir, name string) ([]string, error) {
	f, err := client.Open(path.Join(dir, name))
	if err != nil {
		return nil, transportErr("open "+name, err)
	}
	defer f.Close()
	lines, err := readLines(name, f)
	if err != nil {
		return nil, transportErr("read "+name, err)
	}
	return lines, nil
}

// FetchLatest returns the most recently modified log file, which is
// where a live Deadside server appends new deaths.
func (s *SFTPSource) FetchLatest(ctx context.Context) (*FileLines, error) {
	if !s.configured() {
		s.logger.Debug("sftp credentials not configured, skipping",
			"guild_id", s.server.GuildID, "server_id", s.server.ServerID)
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, client, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	defer client.Close()

	dir := logDir(s.server.Host, s.server.ServerID)
	logs, err := s.listLogs(client, dir)
	if err != nil {
		return nil, err
	}
	var latest os.FileInfo
	for _, info := range logs {
		if latest == nil || info.ModTime().After(latest.ModTime()) {
			latest = info
		}
	}
	if latest == nil {
		return nil, nil
	}
	lines, err := s.readFile(client, dir, latest.Name())
	if err != nil {
		return nil, err
	}
	return &FileLines{Name: latest.Name(), Lines: lines}, nil
}

// FetchAll returns every log file ordered by modification time, oldest
// first, so historical rebuilds replay deaths in rough wall order.
func (s *SFTPSource) FetchAll(ctx context.Context) ([]FileLines, error) {
	if !s.configured() {
		s.logger.Debug("sftp credentials not configured, skipping",
			"guild_id", s.server.GuildID, "server_id", s.server.ServerID)
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, client, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	defer client.Close()

	dir := logDir(s.server.Host, s.server.ServerID)
	logs, err := s.listLogs(client, dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].ModTime().Before(logs[j].ModTime())
	})

	files := make([]FileLines, 0, len(logs))
	for _, info := range logs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines, err := s.readFile(client, dir, info.Name())
		if err != nil {
			return nil, err
		}
		files = append(files, FileLines{Name: info.Name(), Lines: lines})
	}
	return files, nil
}
