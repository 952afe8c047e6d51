package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFactory_Console(t *testing.T) {
	var buf bytes.Buffer
	f, err := New(Options{Stderr: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer f.Close()

	f.Logger("sync").Println("Synced 3 spots")

	if !strings.Contains(buf.String(), "[sync] ") || !strings.Contains(buf.String(), "Synced 3 spots") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestFactory_FileAndConsole(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "fms.log")

	f, err := New(Options{File: path, MaxSizeMB: 1, Stderr: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	f.Logger("daemon").Println("Starting daemon")
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Second close is a no-op.
	if err := f.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "[daemon] ") {
		t.Errorf("log file missing line: %q", data)
	}
	if !strings.Contains(buf.String(), "Starting daemon") {
		t.Errorf("console missing line: %q", buf.String())
	}
}

func TestFactory_Quiet(t *testing.T) {
	var buf bytes.Buffer
	f, err := New(Options{Quiet: true, Stderr: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer f.Close()

	f.Logger("cache").Println("hidden")
	if buf.Len() != 0 {
		t.Errorf("quiet factory wrote to console: %q", buf.String())
	}
	if err := f.Rotate(); err != nil {
		t.Errorf("Rotate without file should be a no-op, got %v", err)
	}
}

func TestFactory_Rotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fms.log")

	f, err := New(Options{File: path, Quiet: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer f.Close()

	f.Logger("sync").Println("before rotate")
	if err := f.Rotate(); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	f.Logger("sync").Println("after rotate")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) < 2 {
		t.Errorf("expected a backup file after rotate, got %d entries", len(entries))
	}
}
