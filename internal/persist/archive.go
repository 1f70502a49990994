package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"swimfeed/internal/state"
)

const (
	// DefaultBudget is the archive directory's size ceiling.
	DefaultBudget int64 = 14 << 30

	budgetInterval = time.Hour
	dayFormat      = "2006-01-02"
)

// archiveRecord is one JSONL line: the final record snapshot plus the full
// event archive, which the in-memory record keeps out of serialization.
type archiveRecord struct {
	state.FlightRecord
	AllEvents  []state.FlightEvent `json:"allEvents,omitempty"`
	ArchivedAt time.Time           `json:"archivedAt"`
}

// Archive appends end-of-flight records to one JSONL file per day and keeps
// the directory under its size budget.
type Archive struct {
	dir     string
	budget  int64
	history *History // optional; nil disables the index
	log     *slog.Logger

	// mu serializes appends and the compress/delete sweep.
	mu sync.Mutex
}

// NewArchive returns an archive rooted at dir. A zero budget takes the
// default. history may be nil.
func NewArchive(dir string, budget int64, history *History, log *slog.Logger) *Archive {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Archive{dir: dir, budget: budget, history: history, log: log}
}

// Append writes one line per record to the current day's file and indexes
// each in the history database. It is the hub's OnFlightPurge sink.
func (a *Archive) Append(recs []state.FlightRecord) {
	if len(recs) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	day := time.Now().UTC().Format(dayFormat)
	if err := a.appendDay(day, recs); err != nil {
		a.log.Error("persist: archive append failed", "error", err)
	}
	if a.history != nil {
		for i := range recs {
			if err := a.history.Insert(&recs[i], day); err != nil {
				a.log.Error("persist: history insert failed", "gufi", recs[i].GUFI, "error", err)
			}
		}
	}
}

func (a *Archive) appendDay(day string, recs []state.FlightRecord) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(a.dir, day+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open day file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	now := time.Now().UTC()
	for i := range recs {
		line := archiveRecord{
			FlightRecord: recs[i],
			AllEvents:    recs[i].EventArchive,
			ArchivedAt:   now,
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	return nil
}

// Run enforces the size budget hourly until ctx is cancelled.
func (a *Archive) Run(ctx context.Context) error {
	t := time.NewTicker(budgetInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			a.enforceBudget(time.Now().UTC())
		}
	}
}

// enforceBudget compresses every non-current day file, then deletes the
// oldest files until the directory fits the budget. The current day's file
// is never touched.
func (a *Archive) enforceBudget(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	today := now.Format(dayFormat) + ".jsonl"

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			a.log.Error("persist: archive scan failed", "error", err)
		}
		return
	}

	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".jsonl") && name != today {
			if err := a.compress(name); err != nil {
				a.log.Error("persist: archive compress failed", "file", name, "error", err)
			}
		}
	}

	type dayFile struct {
		name string
		size int64
	}
	entries, err = os.ReadDir(a.dir)
	if err != nil {
		return
	}
	var files []dayFile
	var total int64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".jsonl") && !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, dayFile{name: name, size: info.Size()})
		total += info.Size()
	}
	// Day-stamped names sort oldest first.
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })

	for _, f := range files {
		if total <= a.budget {
			break
		}
		if f.name == today {
			continue
		}
		if err := os.Remove(filepath.Join(a.dir, f.name)); err != nil {
			a.log.Error("persist: archive delete failed", "file", f.name, "error", err)
			continue
		}
		total -= f.size
		a.log.Info("persist: archive over budget, deleted", "file", f.name)
	}
}

// compress rewrites one finished day file as zstd and removes the original.
func (a *Archive) compress(name string) error {
	src, err := os.Open(filepath.Join(a.dir, name))
	if err != nil {
		return err
	}
	defer src.Close()

	dstPath := filepath.Join(a.dir, name+".zst")
	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(dst)
	if err != nil {
		_ = dst.Close()
		return err
	}
	if _, err := io.Copy(zw, src); err != nil {
		_ = zw.Close()
		_ = dst.Close()
		_ = os.Remove(dstPath)
		return err
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(filepath.Join(a.dir, name))
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

// ReadDay streams one day's records, transparently decompressing. The
// callback returns false to stop early.
func (a *Archive) ReadDay(day string, fn func(json.RawMessage) bool) error {
	var r io.ReadCloser
	f, err := os.Open(filepath.Join(a.dir, day+".jsonl"))
	if err == nil {
		r = f
	} else {
		zf, zerr := os.Open(filepath.Join(a.dir, day+".jsonl.zst"))
		if zerr != nil {
			return err
		}
		zr, zerr := zstd.NewReader(zf)
		if zerr != nil {
			_ = zf.Close()
			return zerr
		}
		r = readCloser{Reader: zr, close: func() error {
			zr.Close()
			return zf.Close()
		}}
	}
	defer r.Close()

	dec := json.NewDecoder(r)
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if !fn(raw) {
			return nil
		}
	}
}
