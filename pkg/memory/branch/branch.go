// Package branch detects the current git branch of a workspace and
// watches for branch switches. The branch-aware storage backend uses the
// detected name to partition its namespace and subscribes to switches to
// re-key it.
package branch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/entrhq/recall/pkg/logging"
)

const headRefPrefix = "ref: refs/heads/"

// Detect reads .git/HEAD under dir and returns the current branch name.
// A detached HEAD or a non-git workspace yields "".
func Detect(dir string) string {
	raw, err := os.ReadFile(filepath.Join(dir, ".git", "HEAD"))
	if err != nil {
		return ""
	}
	head := strings.TrimSpace(string(raw))
	if name, ok := strings.CutPrefix(head, headRefPrefix); ok {
		return name
	}
	return ""
}

// Watcher notifies a callback when the workspace's git branch changes.
// Git replaces .git/HEAD atomically, so the watch is placed on the .git
// directory and events are debounced before re-reading HEAD.
type Watcher struct {
	dir      string
	onChange func(branch string)
	log      *logging.Logger
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	last    string
	timer   *time.Timer
	closed  bool
	closeCh chan struct{}
}

const debounceDelay = 100 * time.Millisecond

// NewWatcher starts watching dir's git HEAD. onChange is invoked with the
// new branch name after every switch; it runs on the debounce timer
// goroutine, never the caller's. log may be nil. Failing to establish the
// watch is returned as an error so callers can degrade to the initially
// detected branch.
func NewWatcher(dir string, log *logging.Logger, onChange func(branch string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	gitDir := filepath.Join(dir, ".git")
	if err := fsw.Add(gitDir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		dir:      dir,
		onChange: onChange,
		log:      log,
		fsw:      fsw,
		last:     Detect(dir),
		closeCh:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != "HEAD" {
				continue
			}
			w.scheduleCheck()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warnf("branch watcher error: %v", err)
			}
		case <-w.closeCh:
			return
		}
	}
}

func (w *Watcher) scheduleCheck() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, w.check)
}

func (w *Watcher) check() {
	current := Detect(w.dir)

	w.mu.Lock()
	if w.closed || current == w.last {
		w.mu.Unlock()
		return
	}
	w.last = current
	w.mu.Unlock()

	if w.log != nil {
		w.log.Infof("detected branch switch to %q", current)
	}
	w.onChange(current)
}

// Close stops the watcher. Safe to call once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.closeCh)
	return w.fsw.Close()
}
