package seed

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/linkorder/internal/storage"
)

// settleDelay is how long a seed file must stay quiet before it is imported.
const settleDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven import of path.
type EventCallback func(path string, res Result)

// Watch starts an fsnotify watcher on the seed directory and imports seed
// files as they are created or written, until ctx is cancelled. Bursts of
// writes to the same file are coalesced into one import.
//
// Removing a seed file does not remove what it imported.
func Watch(ctx context.Context, im *Importer, logger *slog.Logger, cb EventCallback) error {
	root := im.files.Root()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("seed watcher: started", slog.String("root", root))

	pending := make(map[string]struct{})
	var (
		settleTimer *time.Timer
		settleCh    <-chan time.Time
	)
	schedule := func(rel string) {
		pending[rel] = struct{}{}
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("seed watcher: stopped")
			return nil

		case <-settleCh:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			for _, p := range paths {
				res, err := im.ImportFile(ctx, p)
				if err != nil {
					logger.Warn("seed watcher: import failed", slog.String("path", p), slog.String("error", err.Error()))
					continue
				}
				if res.Files > 0 && cb != nil {
					cb(p, res)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("seed watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
						continue
					}
					for _, rel := range seedFilesUnder(root, ev.Name) {
						schedule(rel)
					}
					continue
				}
			}

			if !storage.IsSeedFile(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule(rel)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				logger.Debug("seed watcher: file gone, imported data kept", slog.String("path", rel))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("seed watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// seedFilesUnder returns the seed files below dir, relative to root.
func seedFilesUnder(root, dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsSeedFile(p) {
			return nil
		}
		if rel, relErr := filepath.Rel(root, p); relErr == nil {
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	return out
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
