package events

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"adventbot/pkg/logx"
)

// Watch reloads the store when the backing file is edited externally.
// It watches the parent directory because editors and our own atomic save
// replace the file via rename. Returns once the watcher is running; it stops
// when ctx is cancelled.
//
// Reload is debounced: editors fire several events per save.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}
	base := filepath.Base(s.path)

	go func() {
		defer w.Close()
		var timer *time.Timer
		fire := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.AfterFunc(250*time.Millisecond, func() {
						select {
						case fire <- struct{}{}:
						default:
						}
					})
				} else {
					timer.Reset(250 * time.Millisecond)
				}
			case <-fire:
				if err := s.reload(); err != nil {
					s.log.Warn("events reload failed", logx.Err(err))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn("events watcher error", logx.Err(err))
			}
		}
	}()
	return nil
}
