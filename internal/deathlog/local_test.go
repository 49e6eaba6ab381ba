package deathlog

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func newFixtureSource(t *testing.T) (*LocalSource, string) {
	t.Helper()
	root := t.TempDir()
	srv := domain.GameServer{GuildID: 1, ServerID: "7777", Host: "203.0.113.5"}
	dir := filepath.Join(root, "203.0.113.5_7777", "actual1", "deathlogs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return NewLocalSource(root, srv, testLogger()), dir
}

func writeFixture(t *testing.T, dir, name, content string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
}

func TestLocalFetchLatestPicksNewestByModTime(t *testing.T) {
	src, dir := newFixtureSource(t)
	base := time.Now().Add(-time.Hour)
	// Name order deliberately disagrees with modification order.
	writeFixture(t, dir, "2024.06.02.csv", "old line\n", base)
	writeFixture(t, dir, "2024.06.01.csv", "new line\n", base.Add(10*time.Minute))

	file, err := src.FetchLatest(context.Background())
	if err != nil {
		t.Fatalf("fetch latest: %v", err)
	}
	if file == nil || file.Name != "2024.06.01.csv" {
		t.Fatalf("unexpected file: %+v", file)
	}
	if len(file.Lines) != 1 || file.Lines[0] != "new line" {
		t.Fatalf("unexpected lines: %q", file.Lines)
	}
}

func TestLocalFetchAllNameOrder(t *testing.T) {
	src, dir := newFixtureSource(t)
	base := time.Now().Add(-time.Hour)
	// Modification times run backwards; name order must win.
	writeFixture(t, dir, "2024.06.03.csv", "c\n", base)
	writeFixture(t, dir, "2024.06.01.csv", "a\n", base.Add(20*time.Minute))
	writeFixture(t, dir, "2024.06.02.csv", "b\n", base.Add(10*time.Minute))

	files, err := src.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}
	for i, want := range []string{"2024.06.01.csv", "2024.06.02.csv", "2024.06.03.csv"} {
		if files[i].Name != want {
			t.Fatalf("file %d = %s, want %s", i, files[i].Name, want)
		}
	}
	if files[0].Lines[0] != "a" || files[2].Lines[0] != "c" {
		t.Fatalf("lines do not match file order: %+v", files)
	}
}

func TestLocalReadsGzipRotatedLogs(t *testing.T) {
	src, dir := newFixtureSource(t)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte("2024-01-01T00:00:00Z,Alice,Bob,AK74,10\n")); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "2024.05.31.csv.gz"), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	files, err := src.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(files) != 1 || len(files[0].Lines) != 1 {
		t.Fatalf("unexpected files: %+v", files)
	}
	if files[0].Lines[0] != "2024-01-01T00:00:00Z,Alice,Bob,AK74,10" {
		t.Fatalf("unexpected line: %q", files[0].Lines[0])
	}
}

func TestLocalMissingDirectoryIsSoftEmpty(t *testing.T) {
	root := t.TempDir()
	srv := domain.GameServer{GuildID: 1, ServerID: "9999", Host: "203.0.113.9"}
	src := NewLocalSource(root, srv, testLogger())

	file, err := src.FetchLatest(context.Background())
	if err != nil {
		t.Fatalf("fetch latest: %v", err)
	}
	if file != nil {
		t.Fatalf("expected no file, got %+v", file)
	}

	files, err := src.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files, got %+v", files)
	}
}

func TestLocalIgnoresNonLogFiles(t *testing.T) {
	src, dir := newFixtureSource(t)
	writeFixture(t, dir, "notes.txt", "not a log\n", time.Now())
	writeFixture(t, dir, "2024.06.01.csv", "line\n", time.Now())

	files, err := src.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(files) != 1 || files[0].Name != "2024.06.01.csv" {
		t.Fatalf("unexpected files: %+v", files)
	}
}
