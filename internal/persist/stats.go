package persist

import (
	"context"
	"log/slog"
	"time"

	"swimfeed/internal/fanout"
	"swimfeed/internal/state"
)

const (
	heartbeatInterval = 5 * time.Second
	silenceWarnAfter  = 60 * time.Second
)

// SessionStatus is one broker session's health, as the feed layer reports it.
type SessionStatus struct {
	Name        string    `json:"name"`
	Connected   bool      `json:"connected"`
	Messages    uint64    `json:"messages"`
	LastMessage time.Time `json:"lastMessage,omitzero"`
}

// StatsMessage is the payload of the periodic stats broadcast.
type StatsMessage struct {
	Connected      bool            `json:"connected"`
	TotalMessages  uint64          `json:"totalMessages"`
	Rate           float64         `json:"rate"` // messages per second over the last tick
	ElapsedSeconds int64           `json:"elapsedSeconds"`
	ActiveFlights  int             `json:"activeFlights"`
	Subscribers    int             `json:"subscribers"`
	Sessions       []SessionStatus `json:"sessions,omitempty"`
}

// Heartbeat broadcasts a stats message every few seconds and warns about
// broker sessions that have gone quiet.
type Heartbeat struct {
	hub      *fanout.Hub
	store    *state.Store
	sessions func() []SessionStatus // may be nil
	log      *slog.Logger

	start     time.Time
	lastTotal uint64
	lastTick  time.Time
}

// NewHeartbeat wires the heartbeat to the hub, the store and the feed
// layer's session reporter.
func NewHeartbeat(hub *fanout.Hub, store *state.Store, sessions func() []SessionStatus, log *slog.Logger) *Heartbeat {
	now := time.Now().UTC()
	return &Heartbeat{
		hub:      hub,
		store:    store,
		sessions: sessions,
		log:      log,
		start:    now,
		lastTick: now,
	}
}

// Run emits stats until ctx is cancelled. The silence check rides every
// twelfth tick so it fires once a minute.
func (h *Heartbeat) Run(ctx context.Context) error {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			now := time.Now().UTC()
			h.hub.PublishStats(h.collect(now))
			ticks++
			if ticks%12 == 0 {
				h.warnSilent(now)
			}
		}
	}
}

// collect builds one stats message and advances the rate window.
func (h *Heartbeat) collect(now time.Time) StatsMessage {
	var sessions []SessionStatus
	if h.sessions != nil {
		sessions = h.sessions()
	}

	var total uint64
	connected := len(sessions) > 0
	for _, s := range sessions {
		total += s.Messages
		if !s.Connected {
			connected = false
		}
	}

	elapsed := now.Sub(h.lastTick).Seconds()
	var rate float64
	if elapsed > 0 && total >= h.lastTotal {
		rate = float64(total-h.lastTotal) / elapsed
	}
	h.lastTotal = total
	h.lastTick = now

	return StatsMessage{
		Connected:      connected,
		TotalMessages:  total,
		Rate:           rate,
		ElapsedSeconds: int64(now.Sub(h.start).Seconds()),
		ActiveFlights:  h.store.FlightCount(),
		Subscribers:    h.hub.SubscriberCount(),
		Sessions:       sessions,
	}
}

// warnSilent logs every connected session that hasn't delivered a message
// for the silence window. The feed layer's own watchdog tears the session
// down after 90 s; this is the early operator-facing signal.
func (h *Heartbeat) warnSilent(now time.Time) {
	if h.sessions == nil {
		return
	}
	for _, s := range h.sessions() {
		if s.Connected && !s.LastMessage.IsZero() && now.Sub(s.LastMessage) > silenceWarnAfter {
			h.log.Warn("persist: broker session silent",
				"session", s.Name,
				"silent", now.Sub(s.LastMessage).Round(time.Second))
		}
	}
}
