package fanout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"swimfeed/internal/correlate"
	"swimfeed/internal/state"
)

// Options are the hub's timing knobs. Zero values take the defaults.
type Options struct {
	FlushInterval time.Duration // dirty-set drain tick

	FlightIdle   time.Duration // en-route purge window
	SurfaceIdle  time.Duration
	TerminalIdle time.Duration
	TowerIdle    time.Duration

	FlightSweep time.Duration // staleness sweep intervals
	TrackSweep  time.Duration

	PointoutMaxAge time.Duration

	// SnapshotMaxPosAge drops en-route records with an older last position
	// from connect snapshots.
	SnapshotMaxPosAge time.Duration
}

func (o *Options) defaults() {
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	if o.FlightIdle <= 0 {
		o.FlightIdle = 60 * time.Minute
	}
	if o.SurfaceIdle <= 0 {
		o.SurfaceIdle = 5 * time.Minute
	}
	if o.TerminalIdle <= 0 {
		o.TerminalIdle = 5 * time.Minute
	}
	if o.TowerIdle <= 0 {
		o.TowerIdle = 60 * time.Minute
	}
	if o.FlightSweep <= 0 {
		o.FlightSweep = 60 * time.Second
	}
	if o.TrackSweep <= 0 {
		o.TrackSweep = 10 * time.Second
	}
	if o.PointoutMaxAge <= 0 {
		o.PointoutMaxAge = 3 * time.Minute
	}
	if o.SnapshotMaxPosAge <= 0 {
		o.SnapshotMaxPosAge = 60 * time.Second
	}
}

// Hub routes merged state to subscribers, scope by scope.
type Hub struct {
	store *state.Store
	corr  *correlate.Correlator
	opts  Options
	log   *slog.Logger

	mu   sync.RWMutex
	subs map[*Subscriber]struct{}

	// onFlightPurge receives snapshots of purged active/dropped flights,
	// for the daily archive.
	onFlightPurge func([]state.FlightRecord)
}

// NewHub wires the fanout to the store and correlator.
func NewHub(store *state.Store, corr *correlate.Correlator, opts Options, log *slog.Logger) *Hub {
	opts.defaults()
	return &Hub{
		store: store,
		corr:  corr,
		opts:  opts,
		log:   log,
		subs:  make(map[*Subscriber]struct{}),
	}
}

// OnFlightPurge registers the archive sink for purged flights. Register
// before Run.
func (h *Hub) OnFlightPurge(fn func([]state.FlightRecord)) { h.onFlightPurge = fn }

// Subscribe registers a consumer and immediately queues its snapshot.
func (h *Hub) Subscribe(scope Scope, codec Codec) *Subscriber {
	s := newSubscriber(scope, codec)
	s.send(Envelope{Type: TypeSnapshot, Data: h.snapshotFor(scope)})

	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.log.Info("fanout: subscribed", "id", s.ID, "scope", scope.Kind, "subscribers", n)
	return s
}

// Unsubscribe removes a consumer and closes its channel.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	h.mu.Unlock()
	if ok {
		s.close()
		h.log.Info("fanout: unsubscribed", "id", s.ID, "dropped", s.Dropped())
	}
}

// SubscriberCount returns the number of connected consumers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// PublishStats broadcasts a stats envelope to every subscriber.
func (h *Hub) PublishStats(data any) {
	h.broadcast(func(*Subscriber) bool { return true }, Envelope{Type: TypeStats, Data: data})
}

// Run flushes dirty records and sweeps stale ones until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	flush := time.NewTicker(h.opts.FlushInterval)
	trackSweep := time.NewTicker(h.opts.TrackSweep)
	flightSweep := time.NewTicker(h.opts.FlightSweep)
	defer flush.Stop()
	defer trackSweep.Stop()
	defer flightSweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-flush.C:
			h.flush()
		case <-trackSweep.C:
			h.sweepTracks(time.Now().UTC())
		case <-flightSweep.C:
			h.sweepFlights(time.Now().UTC())
		}
	}
}

// snapshotFor builds the connect-time snapshot for one scope: positioned,
// non-cancelled records only, and for en-route nothing with a stale
// position.
func (h *Hub) snapshotFor(scope Scope) any {
	switch scope.Kind {
	case ScopeFlights:
		cutoff := time.Now().UTC().Add(-h.opts.SnapshotMaxPosAge)
		return h.store.FlightSnapshots(func(f *state.FlightRecord) bool {
			return f.Status != state.StatusCancelled &&
				(f.Lat != 0 || f.Lon != 0) &&
				!f.LastPosition.Before(cutoff)
		})
	case ScopeSurface:
		tracks := h.store.SurfaceSnapshots(scope.Airport)
		tracks = positionedSurface(tracks)
		if h.corr != nil {
			h.corr.EnrichBatch(tracks)
		}
		return tracks
	case ScopeTerminal:
		return positionedTerminal(h.store.TerminalSnapshots(scope.Facility))
	case ScopeTower:
		return h.store.TowerSnapshots(scope.Airport)
	case ScopeProto:
		return scopeSnapshot(positionedTerminal(h.store.TerminalSnapshots(scope.Facility)))
	}
	return nil
}

func positionedSurface(in []state.SurfaceTrack) []state.SurfaceTrack {
	out := in[:0]
	for _, t := range in {
		if t.Lat != 0 || t.Lon != 0 {
			out = append(out, t)
		}
	}
	return out
}

func positionedTerminal(in []state.TerminalTrack) []state.TerminalTrack {
	out := in[:0]
	for _, t := range in {
		if t.Lat != 0 || t.Lon != 0 {
			out = append(out, t)
		}
	}
	return out
}

// flush drains all four dirty sets into per-scope batch envelopes.
func (h *Hub) flush() {
	if gufis := h.store.DirtyFlights.Drain(); len(gufis) > 0 {
		var recs []state.FlightRecord
		for _, g := range gufis {
			if r := h.store.Flight(g); r != nil {
				recs = append(recs, r.Snapshot())
			}
		}
		if len(recs) > 0 {
			h.broadcast(func(s *Subscriber) bool { return s.Scope.Kind == ScopeFlights },
				Envelope{Type: TypeBatch, Data: recs})
		}
	}

	if keys := h.store.DirtySurface.Drain(); len(keys) > 0 {
		byAirport := make(map[string][]state.SurfaceTrack)
		for _, k := range keys {
			if t, ok := h.store.Surface(k); ok {
				byAirport[k.Airport] = append(byAirport[k.Airport], t)
			}
		}
		for airport, tracks := range byAirport {
			if h.corr != nil {
				h.corr.EnrichBatch(tracks)
			}
			airport := airport
			h.broadcast(func(s *Subscriber) bool {
				return s.Scope.Kind == ScopeSurface && s.Scope.Airport == airport
			}, Envelope{Type: TypeBatch, Data: tracks})
		}
	}

	if keys := h.store.DirtyTerminal.Drain(); len(keys) > 0 {
		byFacility := make(map[string][]state.TerminalTrack)
		for _, k := range keys {
			if t, ok := h.store.Terminal(k); ok {
				byFacility[k.Facility] = append(byFacility[k.Facility], t)
			}
		}
		for facility, tracks := range byFacility {
			facility := facility
			h.broadcast(func(s *Subscriber) bool {
				return s.Scope.Kind == ScopeTerminal && s.Scope.Facility == facility
			}, Envelope{Type: TypeBatch, Data: tracks})
			h.broadcastScopeProto(facility, tracks)
		}
	}

	if keys := h.store.DirtyTower.Drain(); len(keys) > 0 {
		byAirport := make(map[string][]state.TowerAircraft)
		for _, k := range keys {
			if t, ok := h.store.Tower(k); ok {
				byAirport[k.Airport] = append(byAirport[k.Airport], t)
			}
		}
		for airport, acs := range byAirport {
			airport := airport
			h.broadcast(func(s *Subscriber) bool {
				return s.Scope.Kind == ScopeTower && s.Scope.Airport == airport
			}, Envelope{Type: TypeBatch, Data: acs})
		}
	}
}

// sweepTracks purges stale surface, terminal and tower records and tells
// subscribers to remove them. Point-out expiry rides the same tick.
func (h *Hub) sweepTracks(now time.Time) {
	h.store.ExpirePointouts(h.opts.PointoutMaxAge, now)

	if removed := h.store.PurgeSurface(h.opts.SurfaceIdle, now); len(removed) > 0 {
		byAirport := make(map[string][]state.SurfaceKey)
		for _, k := range removed {
			byAirport[k.Airport] = append(byAirport[k.Airport], k)
		}
		for airport, keys := range byAirport {
			airport := airport
			h.broadcast(func(s *Subscriber) bool {
				return s.Scope.Kind == ScopeSurface && s.Scope.Airport == airport
			}, Envelope{Type: TypeRemove, Data: keys})
		}
	}

	if removed := h.store.PurgeTerminal(h.opts.TerminalIdle, now); len(removed) > 0 {
		byFacility := make(map[string][]state.TerminalTrack)
		for _, t := range removed {
			byFacility[t.Facility] = append(byFacility[t.Facility], t)
		}
		for facility, tracks := range byFacility {
			facility := facility
			keys := make([]state.TerminalKey, len(tracks))
			for i, t := range tracks {
				keys[i] = state.TerminalKey{Facility: t.Facility, TrackNum: t.TrackNum}
			}
			h.broadcast(func(s *Subscriber) bool {
				return s.Scope.Kind == ScopeTerminal && s.Scope.Facility == facility
			}, Envelope{Type: TypeRemove, Data: keys})
			h.broadcast(func(s *Subscriber) bool {
				return s.Scope.Kind == ScopeProto && s.Scope.Facility == facility
			}, Envelope{Type: TypeRemove, Data: scopeDeletes(tracks)})
		}
	}

	if removed := h.store.PurgeTower(h.opts.TowerIdle, now); len(removed) > 0 {
		byAirport := make(map[string][]state.TowerKey)
		for _, k := range removed {
			byAirport[k.Airport] = append(byAirport[k.Airport], k)
		}
		for airport, keys := range byAirport {
			airport := airport
			h.broadcast(func(s *Subscriber) bool {
				return s.Scope.Kind == ScopeTower && s.Scope.Airport == airport
			}, Envelope{Type: TypeRemove, Data: keys})
		}
	}
}

// sweepFlights purges idle en-route records, hands active/dropped ones to
// the archive sink, and tells subscribers to remove them all.
func (h *Hub) sweepFlights(now time.Time) {
	purged := h.store.PurgeFlights(h.opts.FlightIdle, now)
	if len(purged) == 0 {
		return
	}

	gufis := make([]string, 0, len(purged))
	var archive []state.FlightRecord
	for _, rec := range purged {
		gufis = append(gufis, rec.GUFI)
		if rec.Status != state.StatusCancelled {
			archive = append(archive, rec)
		}
	}
	if h.onFlightPurge != nil && len(archive) > 0 {
		h.onFlightPurge(archive)
	}
	h.broadcast(func(s *Subscriber) bool { return s.Scope.Kind == ScopeFlights },
		Envelope{Type: TypeRemove, Data: gufis})
	h.log.Info("fanout: purged flights", "count", len(purged))
}

// broadcast serializes once per codec and fans out to matching subscribers.
func (h *Hub) broadcast(match func(*Subscriber) bool, e Envelope) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for s := range h.subs {
		if match(s) {
			subs = append(subs, s)
		}
	}
	h.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	frames := make(map[Codec][]byte)
	for _, s := range subs {
		frame, ok := frames[s.codec]
		if !ok {
			var err error
			frame, err = s.codec.Marshal(e)
			if err != nil {
				h.log.Warn("fanout: marshal failed", "type", e.Type, "error", err)
				continue
			}
			frames[s.codec] = frame
		}
		s.sendFrame(frame)
	}
}

// broadcastScopeProto converts one terminal batch to scope-protocol
// updates and fans them out.
func (h *Hub) broadcastScopeProto(facility string, tracks []state.TerminalTrack) {
	msgs := scopeUpdates(tracks)
	if len(msgs) == 0 {
		return
	}
	h.broadcast(func(s *Subscriber) bool {
		return s.Scope.Kind == ScopeProto && s.Scope.Facility == facility
	}, Envelope{Type: TypeUpdate, Data: msgs})
}
