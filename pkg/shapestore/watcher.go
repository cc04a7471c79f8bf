package shapestore

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watcher refreshes a store shortly after its files change on disk, so
// the rebuild cost is not paid by the next query.
//
// Queries still check modification times themselves; the watcher only
// makes the rebuild happen earlier.
type watcher struct {
	store    *Store
	fsw      *fsnotify.Watcher
	base     string // lower-cased base name of the shapefile
	debounce time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

func newWatcher(s *Store, debounce time.Duration) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(s.cfg.File)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	base := filepath.Base(s.cfg.File)
	if strings.EqualFold(filepath.Ext(base), ".shp") {
		base = base[:len(base)-len(".shp")]
	}
	return &watcher{
		store:    s,
		fsw:      fsw,
		base:     strings.ToLower(base),
		debounce: debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

func (w *watcher) start() {
	go w.run()
}

// stop ends the event loop and waits for it.
func (w *watcher) stop() {
	w.once.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		if err := w.fsw.Close(); err != nil {
			w.store.log.Warn("closing file watcher", zap.Error(err))
		}
	})
}

// relevant reports whether an event concerns the .shp, .dbf, .prj or .cpg
// of the store. Changes to the index side files are ignored.
func (w *watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := strings.ToLower(filepath.Base(ev.Name))
	ext := filepath.Ext(name)
	if strings.TrimSuffix(name, ext) != w.base {
		return false
	}
	switch ext {
	case ".shp", ".dbf", ".prj", ".cpg":
		return true
	}
	return false
}

func (w *watcher) run() {
	defer close(w.doneCh)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.store.log.Debug("file changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.store.log.Warn("file watcher error", zap.Error(err))

		case <-timer.C:
			if err := w.store.Refresh(context.Background()); err != nil {
				w.store.log.Warn("refresh after file change failed", zap.Error(err))
			}
		}
	}
}
