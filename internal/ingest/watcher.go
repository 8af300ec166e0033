package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long a file must stay quiet after the last write
// before it is picked up. Uploads via cp or scp arrive as a burst of
// write events; ingesting on the first one would read a partial file.
const settleDelay = 500 * time.Millisecond

// Watcher monitors a drop directory and ingests every CSV that lands
// in it.
type Watcher struct {
	ingestor *Ingestor
	dir      string
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher creates a Watcher for dir. The directory is created if it
// does not exist.
func NewWatcher(ingestor *Ingestor, dir string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Watcher{
		ingestor: ingestor,
		dir:      dir,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Run watches the drop directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching drop directory", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isCSV(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

// schedule (re)arms the settle timer for path. Every further write
// pushes ingestion back until the file stops changing.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(settleDelay)
		return
	}
	w.timers[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.pickUp(path)
	})
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) pickUp(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Error("reading dropped file", "path", path, "error", err)
		return
	}

	ds, err := w.ingestor.IngestCSV(filepath.Base(path), data)
	if err != nil {
		w.logger.Error("ingesting dropped file", "path", path, "error", err)
		return
	}
	w.logger.Info("picked up dropped file", "path", path, "dataset", ds.ID)
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}
