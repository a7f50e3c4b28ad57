package seed

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_NewFileImported(t *testing.T) {
	e := newEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var imported []string

	go Watch(ctx, e.im, e.im.logger, func(path string, _ Result) {
		mu.Lock()
		imported = append(imported, path)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(e.dir, "music.yaml"), []byte(musicDoc), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := e.store.ImportChecksum(context.Background(), "music.yaml")
		return cs != ""
	}, "new seed file not imported by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(imported) == 1 && imported[0] == "music.yaml"
	}, "expected one callback for music.yaml")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	e := newEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, e.im, e.im.logger, nil)

	time.Sleep(100 * time.Millisecond)

	subDir := filepath.Join(e.dir, "music")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(subDir, "playlists.yml"), []byte(musicDoc), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := e.svc.EntityByKey(context.Background(), "road-trip")
		return err == nil
	}, "file in new subdir not imported by watcher")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	e := newEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	go Watch(ctx, e.im, e.im.logger, func(string, Result) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(e.dir, "notes.txt"), []byte(musicDoc), 0o644)
	time.Sleep(2 * settleDelay)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("callback fired %d times for a non-seed file", calls)
	}
}
