package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/soyeahso/arbiter/internal/logging"
)

const defaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the config file whenever it changes on disk and hands every
// config that loads and validates cleanly to fn. The parent directory is
// watched so editors that replace the file on save are still seen.
// Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, debounce time.Duration, log *logging.Logger, fn func(Config)) error {
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config watcher error")

		case <-timer.C:
			cfg, err := Load(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("config reload failed")
				continue
			}
			if issues := Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Warn().Str("issue", issue.String()).Msg("config reload rejected")
				}
				continue
			}
			log.Info().Str("path", path).Msg("config reloaded")
			fn(cfg)
		}
	}
}
