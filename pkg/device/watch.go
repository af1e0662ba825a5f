package device

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	fsnotify "github.com/fsnotify/fsnotify"
)

// Watcher notifies on camera hot-plug by watching the device directory for
// video node create/remove events. Notification is advisory; the watcher
// failing to start does not prevent capture.
type Watcher struct {
	devDir   string
	onChange func()
	fsw      *fsnotify.Watcher
	done     chan struct{}
}

func NewWatcher(devDir string, onChange func()) *Watcher {
	if devDir == "" {
		devDir = defaultDevDir
	}
	return &Watcher{
		devDir:   devDir,
		onChange: onChange,
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = fsw.Add(w.devDir); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if !strings.HasPrefix(filepath.Base(ev.Name), "video") {
					continue
				}
				if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Remove) {
					slog.Debug("video device changed", "node", ev.Name, "op", ev.Op.String())
					w.onChange()
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				slog.Warn("device watch error", "err", err)
			}
		}
	}()
	return nil
}

func (w *Watcher) Stop() {
	if w.fsw == nil {
		return
	}
	w.fsw.Close()
	<-w.done
	w.fsw = nil
}
