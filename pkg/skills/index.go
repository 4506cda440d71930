package skills

import (
	"context"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/antoinenguyen27/siren/pkg/logger"
)

// Index caches the full listing of a Store and drops the cache whenever the
// skills directory changes. Without a watcher every call reads through.
type Index struct {
	store *Store

	mu      sync.Mutex
	cached  []Entry
	valid   bool
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewIndex creates an index over store. A watcher is started when the
// directory can be created and watched; otherwise the index reads through.
func NewIndex(ctx context.Context, store *Store) *Index {
	idx := &Index{store: store}
	if err := idx.watch(ctx); err != nil {
		logger.G(ctx).WithError(err).Warn("skills index running without a directory watcher")
	}
	return idx
}

func (i *Index) watch(ctx context.Context) error {
	if err := os.MkdirAll(i.store.Dir(), 0o755); err != nil {
		return errors.Wrap(err, "failed to create skills directory")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	if err := watcher.Add(i.store.Dir()); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "failed to watch %s", i.store.Dir())
	}

	i.watcher = watcher
	i.done = make(chan struct{})
	go i.loop(ctx)
	return nil
}

func (i *Index) loop(ctx context.Context) {
	defer close(i.done)
	for {
		select {
		case event, ok := <-i.watcher.Events:
			if !ok {
				return
			}
			logger.G(ctx).WithField("event", event.String()).Debug("skills directory changed")
			i.Invalidate()
		case err, ok := <-i.watcher.Errors:
			if !ok {
				return
			}
			logger.G(ctx).WithError(err).Warn("skills watcher error")
			i.Invalidate()
		}
	}
}

// Watching reports whether the index is backed by a directory watcher.
func (i *Index) Watching() bool {
	return i.watcher != nil
}

// Invalidate drops the cached listing.
func (i *Index) Invalidate() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.valid = false
	i.cached = nil
}

// All returns the listing, loading it from disk when the cache is cold.
func (i *Index) All() ([]Entry, error) {
	if i.watcher == nil {
		return i.store.LoadAll()
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.valid {
		entries, err := i.store.LoadAll()
		if err != nil {
			return nil, err
		}
		i.cached = entries
		i.valid = true
	}
	out := make([]Entry, len(i.cached))
	copy(out, i.cached)
	return out, nil
}

// Metadata returns listing metadata for every stored skill.
func (i *Index) Metadata() ([]Metadata, error) {
	entries, err := i.All()
	if err != nil {
		return nil, err
	}
	out := make([]Metadata, 0, len(entries))
	for _, e := range entries {
		out = append(out, MetadataOf(e))
	}
	return out, nil
}

// Close stops the watcher.
func (i *Index) Close() error {
	if i.watcher == nil {
		return nil
	}
	err := i.watcher.Close()
	<-i.done
	return err
}
