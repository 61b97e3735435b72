package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"WARN":  slog.LevelWarn,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lyrad.log")
	l, err := New(&Config{
		Level:     slog.LevelInfo,
		Output:    "file",
		FilePath:  path,
		MaxSizeMB: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("daemon started", "bus", 2)
	l.Debug("suppressed")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "daemon started") {
		t.Errorf("log entry missing from file: %q", data)
	}
	if strings.Contains(string(data), "suppressed") {
		t.Error("debug entry written despite info level")
	}
}

func TestRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.log")
	r, err := NewFileRotator(path, 64, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	line := strings.Repeat("x", 40) + "\n"
	for i := 0; i < 4; i++ {
		if _, err := r.Write([]byte(line)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	if _, err := os.Stat(backupName(path, 1)); err != nil {
		t.Errorf("expected first backup: %v", err)
	}
	if _, err := os.Stat(backupName(path, 3)); err == nil {
		t.Error("backup beyond the retention limit exists")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > 64 {
		t.Errorf("active file larger than the limit: %d", info.Size())
	}
}
