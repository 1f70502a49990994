// Package persist owns everything that outlives the process: the warm cache
// that survives restarts, the daily flight archive, the SQLite history index
// over it, and the periodic stats heartbeat. Every error here is best-effort:
// persistence failures are logged and the feed keeps running on memory alone.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"swimfeed/internal/state"
)

const (
	cacheFileName = "flights.json"

	// SaveInterval is how often the warm cache is rewritten. A final save
	// also happens on shutdown.
	SaveInterval = 5 * time.Minute

	// maxCacheAge bounds how stale a cache file may be and still be loaded.
	// Anything older describes traffic that has long since landed.
	maxCacheAge = 60 * time.Minute
)

type cacheFile struct {
	SavedAt time.Time            `json:"savedAt"`
	Flights []state.FlightRecord `json:"flights"`
}

// Cache saves and restores the en-route picture across restarts.
type Cache struct {
	dir   string
	store *state.Store
	log   *slog.Logger
}

// NewCache returns a cache rooted at dir. The directory is created on the
// first save.
func NewCache(dir string, store *state.Store, log *slog.Logger) *Cache {
	return &Cache{dir: dir, store: store, log: log}
}

func (c *Cache) path() string { return filepath.Join(c.dir, cacheFileName) }

// Save snapshots every non-cancelled flight to the cache file: temp file,
// fsync, atomic rename. Derived fields are backfilled first so a restore
// doesn't lose them.
func (c *Cache) Save() error {
	recs := c.store.FlightSnapshots(func(f *state.FlightRecord) bool {
		return f.Status != state.StatusCancelled
	})
	for i := range recs {
		backfillFlightType(&recs[i])
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, "flights-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(cacheFile{SavedAt: time.Now().UTC(), Flights: recs}); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path()); err != nil {
		return fmt.Errorf("rename cache: %w", err)
	}
	return nil
}

// Load restores the cache into the store if the file exists and is recent
// enough. It returns the number of restored flights. Call before the feeds
// start; RestoreFlight assumes no concurrent traffic.
func (c *Cache) Load() (int, error) {
	data, err := os.ReadFile(c.path())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cache: %w", err)
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return 0, fmt.Errorf("decode cache: %w", err)
	}
	if age := time.Since(cf.SavedAt); age > maxCacheAge {
		c.log.Info("persist: cache too old, skipping", "age", age.Round(time.Second))
		return 0, nil
	}

	for i := range cf.Flights {
		c.store.RestoreFlight(&cf.Flights[i])
	}
	return len(cf.Flights), nil
}

// Run saves the cache on a timer and once more on shutdown.
func (c *Cache) Run(ctx context.Context) error {
	t := time.NewTicker(SaveInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := c.Save(); err != nil {
				c.log.Error("persist: final cache save failed", "error", err)
			} else {
				c.log.Info("persist: cache saved on shutdown")
			}
			return ctx.Err()
		case <-t.C:
			if err := c.Save(); err != nil {
				c.log.Error("persist: cache save failed", "error", err)
			}
		}
	}
}

// backfillFlightType fills an empty flight type from the event log, so the
// distinction between filed flights and radar-only tracks survives the
// round trip through the cache file.
func backfillFlightType(rec *state.FlightRecord) {
	if rec.FlightType != "" {
		return
	}
	for _, ev := range rec.Events {
		if ev.Source == state.SourceFlightPlan {
			rec.FlightType = "FILED"
			return
		}
	}
	rec.FlightType = "RADAR_ONLY"
}
