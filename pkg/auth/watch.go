package auth

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// WatchTokenFile swaps the Vault connect token whenever the sink file
// changes, until the context ends. Agents rewrite the sink by rename,
// so the watch is on the directory rather than the file itself.
func (v *VaultValidator) WatchTokenFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("token watcher: %v", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %v", dir, err)
	}
	base := filepath.Base(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := v.loadToken(path); err != nil {
				log.WithError(err).Warn("Vault token file changed but could not be reloaded")
				continue
			}
			log.WithField("file", path).Info("Reloaded vault connect token")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("Token watcher error")
		}
	}
}
