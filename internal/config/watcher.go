package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch reloads the configuration file into store whenever it changes on
// disk and blocks until ctx is canceled. A reload that fails to parse or
// validate leaves the current snapshot in place. Editors that replace the
// file (rename+create) are handled by watching the parent directory.
func Watch(ctx context.Context, path string, store *Store) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(path)
	var debounce *time.Timer
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			log.Errorf("config: reload failed, keeping previous configuration: %v", err)
			return
		}
		store.Replace(cfg)
		log.Infof("config: reloaded %s (%d model profiles)", path, len(cfg.Profiles))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// Editors fire bursts of events per save; collapse them.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, reload)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warnf("config: watcher error: %v", err)
		}
	}
}
