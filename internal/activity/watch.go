package activity

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 500 * time.Millisecond

// Watch calls fn whenever a feed file in dir is written or created, with
// bursts of events collapsed into one call. It blocks until ctx is done.
func Watch(ctx context.Context, dir string, log *zap.Logger, fn func()) error {
	if log == nil {
		log = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Info("watching feed directory", zap.String("dir", dir))

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isFeedFile(event.Name) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, fn)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("feed watcher error", zap.Error(err))

		case <-ctx.Done():
			return nil
		}
	}
}

func isFeedFile(path string) bool {
	switch filepath.Base(path) {
	case ActivityFile, ScreenFile, ClipboardFile, MusicFile:
		return true
	}
	return false
}
