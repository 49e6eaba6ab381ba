package deathlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrTransportUnavailable wraps dial, list and read failures against a
// game-server host. Callers degrade to an empty batch per server.
var ErrTransportUnavailable = errors.New("transport unavailable")

// transportErr tags an operation failure with ErrTransportUnavailable
// so callers can branch with errors.Is.
func transportErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransportUnavailable, op, err)
}

// Source lists and reads death-log files for one game server. Backends
// open whatever connection they need per call and close it before
// returning; a Source holds no live session between calls.
type Source interface {
	// FetchLatest returns the most recently modified log file, or nil
	// when the server has no logs yet.
	FetchLatest(ctx context.Context) (*FileLines, error)
	// FetchAll returns every log file, ordered for historical rebuilds.
	FetchAll(ctx context.Context) ([]FileLines, error)
	// Name identifies the backend in logs.
	Name() string
}

// FileLines is one log file split into lines.
type FileLines struct {
	Name  string   `json:"name"`
	Lines []string `json:"-"`
}

// logDir builds the per-server log directory. Deadside hosts export
// death logs under {host}_{serverID}/actual1/deathlogs/.
func logDir(host, serverID string) string {
	return host + "_" + serverID + "/actual1/deathlogs"
}

// isLogFile accepts plain and gzip-rotated death logs.
func isLogFile(name string) bool {
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".csv.gz")
}

// readLines splits a log file into lines, decompressing rotated files
// by name suffix. Lines keep their text as-is; blank-line and dedup
// filtering belongs to the caller.
func readLines(name string, r io.Reader) ([]string, error) {
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
