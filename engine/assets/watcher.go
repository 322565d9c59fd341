package assets

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/asteroids/engine/core"
)

// watch calls fn once a burst of changes to path has been quiet for delay.
// Editors usually save with several writes or a rename, which would
// otherwise reload a half-written file.
type watch struct {
	path  string
	delay time.Duration
	fn    func(path string)

	mutex   sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (w *watch) trigger() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Reset(w.delay)
		return
	}
	w.timer = time.AfterFunc(w.delay, w.fire)
}

func (w *watch) fire() {
	w.mutex.Lock()
	if w.stopped {
		w.mutex.Unlock()
		return
	}
	w.timer = nil
	w.mutex.Unlock()
	w.fn(w.path)
}

func (w *watch) stop() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Watch calls fn on a separate goroutine whenever the file at path is
// written or replaced. The file may live outside the asset root.
func (am *AssetManager) Watch(path string, delay time.Duration, fn func(path string)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return errors.New("asset manager already closed")
	}
	am.watches[abs] = append(am.watches[abs], &watch{path: abs, delay: delay, fn: fn})
	am.mutex.Unlock()

	// the directory is watched so replacing the file keeps the watch alive
	if !am.inRoot(abs) {
		if err := am.fsnotify.Add(filepath.Dir(abs)); err != nil {
			return errors.Wrapf(err, "watching %s", abs)
		}
	}
	core.LogDebug("watching %s for changes", abs)
	return nil
}

func (am *AssetManager) notify(e fsnotify.Event) {
	if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	am.mutex.RLock()
	ws := am.watches[filepath.Clean(e.Name)]
	am.mutex.RUnlock()
	for _, w := range ws {
		w.trigger()
	}
}
