// Package watch feeds newly arrived photos in a directory to a handler.
//
// Create and write events are debounced per path, so a file copied in
// several writes is handled once, after it has been quiet for the debounce
// interval. Hidden files, unsupported extensions and derived outputs are
// ignored; the latter keeps a run from re-processing what it just wrote.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-derive/internal/filehandler"
)

// DefaultDebounce is how long a path must be quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

// Handler processes one newly arrived source path.
type Handler func(ctx context.Context, path string)

// Watcher monitors one directory (not its subdirectories).
type Watcher struct {
	dir      string
	suffixes []string
	debounce time.Duration
	fs       *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New starts watching dir. Files whose names end in one of suffixes are
// treated as derived outputs and ignored.
func New(dir string, suffixes []string, opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch folder %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      dir,
		suffixes: suffixes,
		debounce: DefaultDebounce,
		fs:       fsWatcher,
	}
	for _, opt := range opts {
		opt(w)
	}
	log.Info().Str("dir", dir).Dur("debounce", w.debounce).Msg("Watching folder")
	return w, nil
}

// Accept reports whether path is a source the watcher should hand on.
func (w *Watcher) Accept(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if !filehandler.IsImage(filepath.Ext(base)) {
		return false
	}
	return !filehandler.IsDerived(base, w.suffixes)
}

// Run delivers debounced paths to handle until ctx is done, then waits for
// in-flight handlers and closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	defer w.fs.Close()

	ready := make(chan pending)
	deb := newDebouncer(w.debounce)
	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			deb.stop()
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.Accept(event.Name) {
				continue
			}

			deb.touch(event.Name, func(p pending) {
				select {
				case ready <- p:
				case <-ctx.Done():
				}
			})

		case p := <-ready:
			if !deb.claim(p) {
				continue
			}
			log.Info().Str("path", p.name).Msg("New photo detected")
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				handle(ctx, p.name)
			}()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("dir", w.dir).Msg("Watcher error")
		}
	}
}

// pending is a timer firing for one path. gen identifies the event that
// scheduled it.
type pending struct {
	name string
	gen  uint64
}

type debounced struct {
	timer *time.Timer
	gen   uint64
}

// debouncer keeps the latest timer per path. It is owned by the Run loop
// and is not safe for concurrent use.
type debouncer struct {
	delay  time.Duration
	next   uint64
	timers map[string]debounced
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, timers: make(map[string]debounced)}
}

// touch restarts the quiet period for name. fire runs on the timer's
// goroutine once the period elapses.
func (d *debouncer) touch(name string, fire func(pending)) {
	if cur, ok := d.timers[name]; ok {
		cur.timer.Stop()
	}
	d.next++
	p := pending{name: name, gen: d.next}
	d.timers[name] = debounced{
		gen:   p.gen,
		timer: time.AfterFunc(d.delay, func() { fire(p) }),
	}
}

// claim reports whether p comes from the latest timer for its path and, if
// so, forgets the path. A timer that fired before a later touch could stop
// it is stale and must not be handled.
func (d *debouncer) claim(p pending) bool {
	cur, ok := d.timers[p.name]
	if !ok || cur.gen != p.gen {
		return false
	}
	delete(d.timers, p.name)
	return true
}

func (d *debouncer) stop() {
	for _, cur := range d.timers {
		cur.timer.Stop()
	}
}
