package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch keeps the skill name index in sync with the skills directory until
// ctx is done. Newly dropped .wasm files become runnable without a restart;
// removed files stop resolving.
func (e *Engine) Watch(ctx context.Context) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create skills dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(e.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", e.dir, err)
	}

	e.rescan()

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Ext(ev.Name) != ".wasm" {
					continue
				}
				name := strings.TrimSuffix(filepath.Base(ev.Name), ".wasm")
				switch {
				case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Rename):
					e.rescan()
					e.logger.Info("skill installed", zap.String("skill", name))
				case ev.Op.Has(fsnotify.Remove):
					e.mu.Lock()
					delete(e.index, name)
					e.mu.Unlock()
					e.logger.Info("skill removed", zap.String("skill", name))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				e.logger.Warn("skill watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (e *Engine) rescan() {
	names, err := e.ListSkills()
	if err != nil {
		e.logger.Warn("skill rescan failed", zap.Error(err))
		return
	}
	index := make(map[string]string, len(names))
	for _, name := range names {
		index[name] = filepath.Join(e.dir, name+".wasm")
	}
	e.mu.Lock()
	e.index = index
	e.mu.Unlock()
}
