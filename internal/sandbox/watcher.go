package sandbox

import (
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc receives filesystem events from a watched workspace. The path
// is relative to the workspace root.
type ChangeFunc func(sandboxID, relPath string, op fsnotify.Op)

// Watcher observes a sandbox workspace for file mutations so the engine
// can record what a plan actually touched.
type Watcher struct {
	sandboxID string
	root      string
	fw        *fsnotify.Watcher
	done      chan struct{}
}

// WatchWorkspace starts watching a sandbox's workspace tree. Directories
// created later are added to the watch as they appear. The callback runs on
// the watcher goroutine and must not block.
func WatchWorkspace(sb Sandbox, onChange ChangeFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		sandboxID: sb.ID,
		root:      sb.WorkspacePath,
		fw:        fw,
		done:      make(chan struct{}),
	}

	if err := w.addDirs(sb.WorkspacePath); err != nil {
		fw.Close()
		return nil, err
	}

	go w.loop(onChange)
	return w, nil
}

func (w *Watcher) addDirs(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // vanished mid-walk, not worth failing over
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return w.fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop(onChange ChangeFunc) {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.fw.Add(ev.Name); err != nil {
						log.Printf("[sandbox] WARNING: failed to watch new dir %s: %v", ev.Name, err)
					}
				}
			}
			rel, err := filepath.Rel(w.root, ev.Name)
			if err != nil {
				rel = ev.Name
			}
			if onChange != nil {
				onChange(w.sandboxID, rel, ev.Op)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("[sandbox] WARNING: watcher error for %s: %v", w.sandboxID, err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
