// Package fanout delivers merged state to subscribers: web map clients over
// WebSocket or NDJSON and downstream scopes over the msgpack protocol. Each
// subscriber owns a bounded queue with drop-oldest overflow so one slow
// consumer can never stall the feed.
package fanout

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// queueCap bounds each subscriber's pending messages.
const queueCap = 512

// Message types on the wire. The envelope is the same for every scope.
const (
	TypeSnapshot = "snapshot"
	TypeBatch    = "batch"
	TypeUpdate   = "update"
	TypeRemove   = "remove"
	TypeStats    = "stats"
)

// Envelope is the source-independent wire frame.
type Envelope struct {
	Type string `json:"type" msgpack:"type"`
	Data any    `json:"data" msgpack:"data"`
}

// ScopeKind selects which record family a subscriber sees.
type ScopeKind string

const (
	ScopeFlights  ScopeKind = "flights"  // all en-route flights
	ScopeSurface  ScopeKind = "surface"  // one airport's surface picture
	ScopeTerminal ScopeKind = "terminal" // one facility's terminal picture
	ScopeTower    ScopeKind = "tower"    // one airport's tower events
	ScopeProto    ScopeKind = "scope"    // downstream scope protocol, one facility
)

// Scope is a subscriber's view: the kind plus its airport or facility
// filter where the kind needs one.
type Scope struct {
	Kind     ScopeKind `json:"kind"`
	Airport  string    `json:"airport,omitempty"`
	Facility string    `json:"facility,omitempty"`
}

// Codec serializes envelopes for one subscriber family.
type Codec interface {
	Marshal(Envelope) ([]byte, error)
}

// JSONCodec is the web-client wire format.
type JSONCodec struct{}

func (JSONCodec) Marshal(e Envelope) ([]byte, error) { return json.Marshal(e) }

// MsgpackCodec is the downstream scope-protocol wire format.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(e Envelope) ([]byte, error) { return msgpack.Marshal(e) }

// Subscriber is one connected consumer. Out delivers serialized frames;
// when the queue is full the oldest frame is dropped, not the newest.
type Subscriber struct {
	ID    string
	Scope Scope

	codec Codec
	out   chan []byte

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

func newSubscriber(scope Scope, codec Codec) *Subscriber {
	return &Subscriber{
		ID:    uuid.NewString(),
		Scope: scope,
		codec: codec,
		out:   make(chan []byte, queueCap),
	}
}

// Out is the subscriber's frame channel. It is closed on unsubscribe.
func (s *Subscriber) Out() <-chan []byte { return s.out }

// Dropped returns how many frames overflow has discarded.
func (s *Subscriber) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// send serializes and enqueues one envelope, dropping the oldest queued
// frame on overflow.
func (s *Subscriber) send(e Envelope) {
	frame, err := s.codec.Marshal(e)
	if err != nil {
		return
	}
	s.sendFrame(frame)
}

func (s *Subscriber) sendFrame(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.out <- frame:
			return
		default:
			select {
			case <-s.out:
				s.dropped++
			default:
			}
		}
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}
