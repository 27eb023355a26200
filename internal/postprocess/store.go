package postprocess

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/star/spacesim/internal/metrics"
)

// Store holds the active settings. Readers take a snapshot once per frame, so a
// reload never changes the chain halfway through one.
type Store struct {
	current atomic.Pointer[Settings]
	version atomic.Uint64
}

// NewStore returns a store holding s.
func NewStore(s Settings) *Store {
	st := &Store{}
	st.Set(s)
	return st
}

// Load returns the current settings and their version. The version increases
// on every Set, so callers can tell when to rebuild their plan.
func (st *Store) Load() (Settings, uint64) {
	return *st.current.Load(), st.version.Load()
}

// Set validates and publishes s.
func (st *Store) Set(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	st.current.Store(&s)
	st.version.Add(1)
	return nil
}

// Watch reloads the settings from path whenever the file is written or
// replaced, until ctx is done. A file that fails to parse is logged and the
// previous settings stay active. The directory is watched rather than the file
// so editors that save by rename keep working.
func (st *Store) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating settings watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", path, err)
	}

	logger = logger.With("component", "postprocess", "path", path)
	base := filepath.Base(path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				st.reload(path, logger)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("settings watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (st *Store) reload(path string, logger *slog.Logger) {
	s, err := LoadSettings(path)
	if err == nil {
		err = st.Set(s)
	}
	metrics.RecordSettingsReload(err)
	if err != nil {
		logger.Warn("postprocess settings reload failed, keeping previous", "error", err)
		return
	}
	_, v := st.Load()
	logger.Info("postprocess settings reloaded",
		"downsample", s.Downsample.Iterations,
		"kawase_passes", len(s.Kawase.Kernels),
		"lens_flare", s.LensFlare.Enabled,
		"version", v,
	)
}
