package deathlog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
)

// LocalSource reads death logs from a fixture directory instead of a
// remote host. Development mode points every server at one of these;
// the directory layout under root matches the remote convention.
type LocalSource struct {
	root   string
	server domain.GameServer
	logger *slog.Logger
}

// NewLocalSource builds a fixture-backed source rooted at root.
func NewLocalSource(root string, server domain.GameServer, logger *slog.Logger) *LocalSource {
	return &LocalSource{root: root, server: server, logger: logger}
}

// Name identifies the backend in logs.
func (s *LocalSource) Name() string { return "local" }

func (s *LocalSource) dir() string {
	return filepath.Join(s.root, filepath.FromSlash(logDir(s.server.Host, s.server.ServerID)))
}

// list returns the fixture log files. A missing directory is a soft
// condition: the server simply has no data yet.
func (s *LocalSource) list() ([]os.FileInfo, error) {
	dir := s.dir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("fixture directory missing", "dir", dir)
			return nil, nil
		}
		return nil, transportErr("list "+dir, err)
	}
	var infos []os.FileInfo
	for _, e := range entries {
		if e.IsDir() || !isLogFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, transportErr("stat "+e.Name(), err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *LocalSource) readFile(name string) ([]string, error) {
	f, err := os.Open(filepath.Join(s.dir(), name))
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

// FetchLatest returns the most recently modified fixture.
func (s *LocalSource) FetchLatest(ctx context.Context) (*FileLines, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := s.list()
	if err != nil {
		return nil, err
	}
	var latest os.FileInfo
	for _, info := range infos {
		if latest == nil || info.ModTime().After(latest.ModTime()) {
			latest = info
		}
	}
	if latest == nil {
		return nil, nil
	}
	lines, err := s.readFile(latest.Name())
	if err != nil {
		return nil, err
	}
	return &FileLines{Name: latest.Name(), Lines: lines}, nil
}

// FetchAll returns every fixture file in name order. Fixture sets use
// date-stamped names, so name order is replay order.
func (s *LocalSource) FetchAll(ctx context.Context) ([]FileLines, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := s.list()
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name() < infos[j].Name()
	})

	files := make([]FileLines, 0, len(infos))
	for _, info := range infos {
		lines, err := s.readFile(info.Name())
		if err != nil {
			return nil, err
		}
		files = append(files, FileLines{Name: info.Name(), Lines: lines})
	}
	return files, nil
}
