package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/studioclock/timeturner/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
sync:
  hardware_offset_ms: 10
`

const watcherUpdatedYAML = `
server:
  log_level: debug
sync:
  hardware_offset_ms: 25
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Sync.HardwareOffsetMs != 10 {
		t.Errorf("hardware_offset_ms: got %v, want 10", cfg.Sync.HardwareOffsetMs)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var mu sync.Mutex
	var gotDiff config.ConfigDiff
	changed := make(chan struct{}, 1)
	onChange := func(old, new *config.Config, diff config.ConfigDiff) {
		mu.Lock()
		gotDiff = diff
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	w, err := config.NewWatcher(cfgPath, onChange, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	// Ensure the mtime moves even on coarse-grained filesystems.
	time.Sleep(20 * time.Millisecond)
	writeFile(t, cfgPath, watcherUpdatedYAML)
	now := time.Now()
	os.Chtimes(cfgPath, now, now)

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if !gotDiff.LogLevelChanged || !gotDiff.SyncChanged {
		t.Errorf("diff = %+v, want log level and sync changes", gotDiff)
	}
	if w.Current().Sync.HardwareOffsetMs != 25 {
		t.Errorf("Current() not updated: %v", w.Current().Sync.HardwareOffsetMs)
	}
}

func TestWatcher_KeepsOldConfigOnInvalidFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	writeFile(t, cfgPath, watcherInvalidYAML)
	now := time.Now()
	os.Chtimes(cfgPath, now, now)

	time.Sleep(200 * time.Millisecond)
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("invalid reload replaced config: log_level = %q", got)
	}
}

func TestWatcher_InitialLoadFailure(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/does/not/exist.yaml", nil); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
