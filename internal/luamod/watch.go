package luamod

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debounce collapses the burst of events editors produce on save.
const Debounce = 200 * time.Millisecond

// Watch calls reload, through post, whenever a .lua file in the main
// module's directory changes. It returns when ctx is done.
func Watch(ctx context.Context, mainPath string, post func(func()), reload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("module watch: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(mainPath)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("module watch %s: %w", dir, err)
	}
	slog.Info("watching modules", "dir", dir)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".lua" {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(Debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			slog.Info("module changed, reloading")
			post(reload)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("module watch error", "err", err)
		}
	}
}
