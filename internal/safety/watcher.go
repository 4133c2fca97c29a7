package safety

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"skipper/internal/logger"
)

// Watcher flips the manual kill switch when the operator drops or removes the
// kill-switch file while the ops server is up. Single-shot runs also check the
// file directly at evaluation time, so the watcher is purely a convenience for
// long-lived serve sessions.
type Watcher struct {
	machine *Machine
	path    string
	fsw     *fsnotify.Watcher
}

// NewWatcher watches the directory containing the kill-switch file (the file
// itself may not exist yet).
func NewWatcher(machine *Machine, path string) (*Watcher, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("kill-switch watcher requires a path")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{machine: machine, path: path, fsw: fsw}, nil
}

// Run blocks until ctx is done, applying file create/remove events.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != filepath.Clean(w.path) {
				continue
			}
			switch {
			case evt.Op.Has(fsnotify.Create) || evt.Op.Has(fsnotify.Write):
				logger.Warnf("safety: kill-switch file appeared (%s), activating", w.path)
				if err := w.machine.SetKillSwitch(ctx, true, "operator kill-switch file present"); err != nil {
					logger.Errorf("safety: activate kill switch failed: %v", err)
				}
			case evt.Op.Has(fsnotify.Remove) || evt.Op.Has(fsnotify.Rename):
				logger.Infof("safety: kill-switch file removed (%s), deactivating", w.path)
				if err := w.machine.SetKillSwitch(ctx, false, ""); err != nil {
					logger.Errorf("safety: deactivate kill switch failed: %v", err)
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("safety: watcher error: %v", err)
		}
	}
}
