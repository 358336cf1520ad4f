package assets

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Watcher reports writes to a set of files. It watches the parent
// directories, so files replaced by rename (as most editors and exporters
// do) keep being reported.
type Watcher struct {
	fs      *fsnotify.Watcher
	log     *zap.Logger
	changed chan string

	mu    sync.Mutex
	files map[string]struct{}
	dirs  map[string]struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher starts a watcher. A nil logger discards output.
func NewWatcher(log *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}
	if log == nil {
		log = zap.NewNop()
	}

	w := &Watcher{
		fs:      fsw,
		log:     log,
		changed: make(chan string, 16),
		files:   make(map[string]struct{}),
		dirs:    make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Add starts reporting changes to path.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.dirs[dir]; !ok {
		if err := w.fs.Add(dir); err != nil {
			return errors.Wrapf(err, "watching %s", dir)
		}
		w.dirs[dir] = struct{}{}
	}
	w.files[abs] = struct{}{}
	return nil
}

// Changed delivers the absolute path of each changed file. Bursts of
// events for one file may be coalesced when the reader falls behind.
func (w *Watcher) Changed() <-chan string {
	return w.changed
}

// Close stops the watcher and closes the Changed channel.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	close(w.changed)
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case e, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Clean(e.Name)
			w.mu.Lock()
			_, tracked := w.files[name]
			w.mu.Unlock()
			if !tracked {
				continue
			}
			w.log.Debug("asset changed", zap.String("path", name), zap.Stringer("op", e.Op))
			select {
			case w.changed <- name:
			default:
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", zap.Error(err))

		case <-w.done:
			return
		}
	}
}
