package runtimeconfig

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay matches the donor's watchConfig debounce window.
const debounceDelay = 150 * time.Millisecond

// Watcher watches a config file's parent directory for atomic-rename
// writes and republishes the reloaded RuntimeConfig on Changes(). Watching
// the directory rather than the file itself, per the donor's comment, is
// what lets this survive editors/Save that replace the file via
// temp-plus-rename instead of writing in place.
type Watcher struct {
	path   string
	fsw    *fsnotify.Watcher
	out    chan RuntimeConfig
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher starts watching path. Call Close to stop.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:   path,
		fsw:    fsw,
		out:    make(chan RuntimeConfig, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

// Changes delivers each successfully reloaded config. The channel is
// buffered at one and reloads coalesce, matching the donor's
// non-blocking-send-or-skip reload queue.
func (w *Watcher) Changes() <-chan RuntimeConfig { return w.out }

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer w.fsw.Close()

	filename := filepath.Base(w.path)

	var mu sync.Mutex
	var timer *time.Timer
	triggerReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, func() {
			cfg, err := Load(w.path)
			if err != nil {
				log.Printf("runtimeconfig: reload failed, keeping current config: %v", err)
				return
			}
			select {
			case w.out <- cfg:
			default:
				// a reload is already pending; the queued one will pick up
				// whatever is on disk by the time it's consumed.
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				triggerReload()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("runtimeconfig: watch error: %v", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	w.cancel()
	<-w.done
	return nil
}
