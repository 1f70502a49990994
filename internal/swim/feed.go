package swim

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"swimfeed/internal/decode"
	"swimfeed/internal/state"
)

// Feed owns the broker sessions and routes every payload to its decoder and
// on into the store.
type Feed struct {
	store    *state.Store
	tel      *decode.Telemetry
	log      *slog.Logger
	sessions []*Session
}

// New returns a feed with no sessions configured yet.
func New(store *state.Store, tel *decode.Telemetry, log *slog.Logger) *Feed {
	return &Feed{store: store, tel: tel, log: log}
}

// AddEnRoute configures the SFDPS session.
func (f *Feed) AddEnRoute(cfg SessionConfig) {
	f.sessions = append(f.sessions, NewSession(cfg, f.handleEnRoute, f.log))
}

// AddTerminalSurface configures the combined SMES/TAIS/TDES session.
func (f *Feed) AddTerminalSurface(cfg SessionConfig) {
	f.sessions = append(f.sessions, NewSession(cfg, f.handleTracks, f.log))
}

// Run starts every configured session and blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range f.sessions {
		s := s
		g.Go(func() error { return s.Run(ctx) })
	}
	return g.Wait()
}

// Statuses reports every session's health, for the stats heartbeat.
func (f *Feed) Statuses() []Status {
	out := make([]Status, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s.Status())
	}
	return out
}

// handleEnRoute decodes one SFDPS payload and applies every flight it
// carries.
func (f *Feed) handleEnRoute(topic string, payload []byte) {
	text := string(payload)
	partials, dropped, err := decode.DecodeEnRoute(text)
	if err != nil {
		f.tel.CountDrop("sfdps-parse")
		f.tel.RecordSample("sfdps-parse-error", text)
		return
	}
	for i := 0; i < dropped; i++ {
		f.tel.CountDrop("sfdps-no-identifier")
	}
	for _, p := range partials {
		f.store.ApplyFlight(p)
	}
}

// handleTracks demultiplexes the terminal/surface session by topic prefix.
func (f *Feed) handleTracks(topic string, payload []byte) {
	text := string(payload)
	switch {
	case hasTopicPrefix(topic, "SMES"):
		reports, err := decode.DecodeSurface(text)
		if f.countDecodeErr("smes", text, err) {
			return
		}
		for _, p := range reports {
			f.store.ApplySurface(p)
		}
	case hasTopicPrefix(topic, "TAIS"):
		_, records, err := decode.DecodeTerminal(text)
		if f.countDecodeErr("tais", text, err) {
			return
		}
		for _, p := range records {
			f.store.ApplyTerminal(p)
		}
	case hasTopicPrefix(topic, "TDES"):
		p, err := decode.DecodeTower(text)
		if f.countDecodeErr("tdes", text, err) {
			return
		}
		f.store.ApplyTower(p)
	default:
		f.tel.CountDrop("unknown-topic")
		f.tel.RecordSample("unknown-topic", topic+"\n"+text)
	}
}

// countDecodeErr counts and samples a decode failure. Ignored roots count
// without a sample; they are expected traffic.
func (f *Feed) countDecodeErr(kind, text string, err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, decode.ErrIgnoredRoot):
		f.tel.CountDrop(kind + "-ignored-root")
	case errors.Is(err, decode.ErrUnexpectedRoot):
		f.tel.CountDrop(kind + "-unexpected-root")
		f.tel.RecordSample(kind+"-unexpected-root", text)
		if root, perr := decode.Parse(text); perr == nil {
			f.tel.RecordTree(root)
		}
	default:
		f.tel.CountDrop(kind + "-parse")
		f.tel.RecordSample(kind+"-parse-error", text)
	}
	return true
}

// hasTopicPrefix matches both slash- and dot-delimited topic spellings.
func hasTopicPrefix(topic, prefix string) bool {
	return topic == prefix ||
		strings.HasPrefix(topic, prefix+"/") ||
		strings.HasPrefix(topic, prefix+".")
}
