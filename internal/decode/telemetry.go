package decode

import (
	"sort"
	"sync"
	"time"
)

const (
	maxPaths          = 4096
	maxSamplesPerKind = 4
	maxSampleBytes    = 64 * 1024
)

// Telemetry records every element path and attribute name observed on the
// wire, plus a small sample of raw payloads per source tag. Both maps are
// bounded so hostile or malformed input cannot grow them without limit.
type Telemetry struct {
	mu      sync.Mutex
	paths   map[string]int64
	samples map[string][]Sample
	drops   map[string]int64
}

// Sample is one captured raw payload.
type Sample struct {
	At      time.Time `json:"at"`
	Payload string    `json:"payload"`
}

// NewTelemetry returns an empty telemetry recorder.
func NewTelemetry() *Telemetry {
	return &Telemetry{
		paths:   make(map[string]int64),
		samples: make(map[string][]Sample),
		drops:   make(map[string]int64),
	}
}

// RecordTree walks a parsed document and counts every element path and
// path@attribute combination under the given root prefix.
func (t *Telemetry) RecordTree(root *Node) {
	if root == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordNode(root, "")
}

func (t *Telemetry) recordNode(n *Node, prefix string) {
	path := prefix + "/" + n.Name
	t.bump(path)
	for _, a := range n.Attrs {
		t.bump(path + "@" + a.Name)
	}
	for _, c := range n.Children {
		t.recordNode(c, path)
	}
}

func (t *Telemetry) bump(key string) {
	if _, ok := t.paths[key]; !ok && len(t.paths) >= maxPaths {
		return
	}
	t.paths[key]++
}

// RecordSample keeps up to maxSamplesPerKind payloads per kind, truncated to
// a sane size. Later payloads replace nothing; the first few win, which is
// what you want when chasing a new message variant.
func (t *Telemetry) RecordSample(kind, payload string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples[kind]) >= maxSamplesPerKind {
		return
	}
	if len(payload) > maxSampleBytes {
		payload = payload[:maxSampleBytes]
	}
	t.samples[kind] = append(t.samples[kind], Sample{At: time.Now().UTC(), Payload: payload})
}

// CountDrop increments the drop counter for the given reason.
func (t *Telemetry) CountDrop(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drops[reason]++
}

// Paths returns the observed element paths sorted by name.
type PathCount struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

func (t *Telemetry) Paths() []PathCount {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PathCount, 0, len(t.paths))
	for p, c := range t.paths {
		out = append(out, PathCount{Path: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Samples returns the captured payloads for a kind.
func (t *Telemetry) Samples(kind string) []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sample(nil), t.samples[kind]...)
}

// SampleKinds lists the kinds with at least one captured sample.
func (t *Telemetry) SampleKinds() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	kinds := make([]string, 0, len(t.samples))
	for k := range t.samples {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Drops returns a copy of the drop counters.
func (t *Telemetry) Drops() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.drops))
	for k, v := range t.drops {
		out[k] = v
	}
	return out
}
