// Package supergraphsource watches for changes to the composed supergraph
// SDL this router serves, emitting events the schema-reload path consumes
// to rebuild and atomically swap in a new schema.State.
//
// No teacher precedent: n9te9-go-graphql-federation-gateway reads its
// schema files once at startup and never reloads. Grounded on
// fsnotify's well-known Watcher API (Add/Events/Errors), the only
// filesystem-watching library in the pack's dependency surface.
package supergraphsource

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SourceEvent is one notification emitted by a Source's Watch channel.
type SourceEvent struct {
	// Changed is non-nil SDL bytes when the source's content changed
	// since the last event.
	Changed []byte
	// Unchanged is true for a notification that triggered a re-read but
	// found identical content (a debounce false-positive).
	Unchanged bool
	// Err is non-nil when the source failed to read or watch; Watch
	// keeps running after an Err event rather than closing the channel.
	Err error
}

// Source produces a stream of supergraph SDL change notifications.
type Source interface {
	Watch(ctx context.Context) (<-chan SourceEvent, error)
}

// FileSupergraphSource watches one SDL file on disk via fsnotify,
// debouncing bursts of filesystem events into a single re-read.
type FileSupergraphSource struct {
	Path          string
	DebounceDelay time.Duration
}

// NewFileSource builds a FileSupergraphSource with the default 250ms
// debounce window, matching the common atomic-rename-based deployment of
// config/SDL files (temp file write + rename produces Create then Remove
// then Create in quick succession).
func NewFileSource(path string) *FileSupergraphSource {
	return &FileSupergraphSource{Path: path, DebounceDelay: 250 * time.Millisecond}
}

// Watch starts watching the SDL file's parent directory (not the file
// itself: editors and atomic-rename deploys replace the inode, which
// would silently stop a watch registered on the old inode) and emits an
// initial Changed event for the file's current content before any
// filesystem event fires.
func (s *FileSupergraphSource) Watch(ctx context.Context) (<-chan SourceEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("supergraphsource: creating watcher: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("supergraphsource: watching %q: %w", dir, err)
	}

	out := make(chan SourceEvent, 1)
	go s.run(ctx, watcher, out)
	return out, nil
}

func (s *FileSupergraphSource) run(ctx context.Context, watcher *fsnotify.Watcher, out chan<- SourceEvent) {
	defer close(out)
	defer watcher.Close()

	var lastHash [32]byte
	var hasHash bool

	emit := func() {
		content, err := os.ReadFile(s.Path)
		if err != nil {
			select {
			case out <- SourceEvent{Err: fmt.Errorf("supergraphsource: reading %q: %w", s.Path, err)}:
			case <-ctx.Done():
			}
			return
		}

		hash := sha256.Sum256(content)
		if hasHash && hash == lastHash {
			select {
			case out <- SourceEvent{Unchanged: true}:
			case <-ctx.Done():
			}
			return
		}

		lastHash = hash
		hasHash = true
		select {
		case out <- SourceEvent{Changed: content}:
		case <-ctx.Done():
		}
	}

	emit()

	// debounce fires emit back on this goroutine (never from the timer's
	// own goroutine) so lastHash/hasHash are only ever touched here,
	// avoiding a race between a fired timer and a fresh Events burst.
	timer := time.NewTimer(s.DebounceDelay)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.Path) {
				continue
			}
			// A Remove immediately followed by a Create (the atomic-rename
			// pattern) is a potential change, not a fatal error; debounce
			// collapses the pair into one re-read.
			if pending {
				if !timer.Stop() {
					<-timer.C
				}
			}
			pending = true
			timer.Reset(s.DebounceDelay)

		case <-timer.C:
			pending = false
			emit()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			select {
			case out <- SourceEvent{Err: fmt.Errorf("supergraphsource: watch error: %w", err)}:
			case <-ctx.Done():
				return
			}
		}
	}
}
