// Package swim maintains the broker sessions that carry the FAA data feeds
// and dispatches each delivered payload to the matching decoder. One session
// serves the en-route feed; a second serves the combined terminal/surface
// feed, demultiplexed by topic prefix.
package swim

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	watchdogInterval = 10 * time.Second
	silenceLimit     = 90 * time.Second
	reconnectDelay   = 10 * time.Second
)

var errSilent = errors.New("swim: session silent past limit")

// Handler receives one delivered message: its topic and raw payload.
type Handler func(topic string, payload []byte)

// SessionConfig names one broker subscription.
type SessionConfig struct {
	Name     string   // session label for logs and stats
	URL      string   // broker URL
	User     string
	Pass     string
	Queue    string   // durable queue group
	Subjects []string // subscription subjects
}

// Status is a point-in-time view of one session's health.
type Status struct {
	Name        string    `json:"name"`
	Connected   bool      `json:"connected"`
	Messages    uint64    `json:"messages"`
	LastMessage time.Time `json:"lastMessage,omitzero"`
}

// Session is one durable broker subscription with its own watchdog. It
// reconnects forever until its context is cancelled.
type Session struct {
	cfg    SessionConfig
	handle Handler
	log    *slog.Logger

	mu          sync.Mutex
	connected   bool
	messages    uint64
	lastMessage time.Time
}

// NewSession returns an unstarted session.
func NewSession(cfg SessionConfig, handle Handler, log *slog.Logger) *Session {
	return &Session{cfg: cfg, handle: handle, log: log}
}

// Status returns the session's current health.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Name:        s.cfg.Name,
		Connected:   s.connected,
		Messages:    s.messages,
		LastMessage: s.lastMessage,
	}
}

// Run connects, subscribes and receives until ctx is cancelled. Connect
// failures and watchdog teardowns both retry after the reconnect delay.
func (s *Session) Run(ctx context.Context) error {
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("swim: session down, reconnecting",
			"session", s.cfg.Name, "error", err, "delay", reconnectDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Session) runOnce(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name("swimfeed-" + s.cfg.Name),
		// The watchdog owns reconnection; the client must not race it.
		nats.MaxReconnects(0),
	}
	if s.cfg.User != "" {
		opts = append(opts, nats.UserInfo(s.cfg.User, s.cfg.Pass))
	}
	nc, err := nats.Connect(s.cfg.URL, opts...)
	if err != nil {
		return err
	}
	defer nc.Close()

	for _, subj := range s.cfg.Subjects {
		sub, err := nc.QueueSubscribe(subj, s.cfg.Queue, func(m *nats.Msg) {
			s.deliver(m.Subject, m.Data)
		})
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
	}

	s.setConnected(true)
	defer s.setConnected(false)
	s.touch(time.Now().UTC()) // silence clock starts at connect
	s.log.Info("swim: session connected", "session", s.cfg.Name, "subjects", s.cfg.Subjects)

	wd := time.NewTicker(watchdogInterval)
	defer wd.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = nc.Drain()
			return ctx.Err()
		case <-wd.C:
			if !nc.IsConnected() {
				return nats.ErrConnectionClosed
			}
			if silence := time.Since(s.last()); silence > silenceLimit {
				s.log.Warn("swim: watchdog tearing session down",
					"session", s.cfg.Name, "silent", silence.Round(time.Second))
				return errSilent
			}
		}
	}
}

func (s *Session) deliver(topic string, payload []byte) {
	s.mu.Lock()
	s.messages++
	s.lastMessage = time.Now().UTC()
	s.mu.Unlock()
	s.handle(topic, payload)
}

func (s *Session) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *Session) touch(at time.Time) {
	s.mu.Lock()
	if at.After(s.lastMessage) {
		s.lastMessage = at
	}
	s.mu.Unlock()
}

func (s *Session) last() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessage
}
