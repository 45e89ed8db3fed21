package app

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/webcall/internal/core"
	"github.com/dkeye/webcall/internal/domain"
	"github.com/dkeye/webcall/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Engine is the relay: it owns the registry and the speaker lock and is the
// only place that mutates them. Control messages and disconnects take the
// write lock; audio forwarding takes the read lock, so a frame is never
// relayed across a floor change.
type Engine struct {
	mu       sync.RWMutex
	registry *Registry
	floor    *SpeakerLock
	policy   Policy
	limiter  *FloorRateLimiter
}

type Option func(*Engine)

func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithFloorRateLimit answers excess request_talk with talk_denied.
// A non-positive limit disables it.
func WithFloorRateLimit(limit int, interval time.Duration) Option {
	return func(e *Engine) {
		if limit > 0 && interval > 0 {
			e.limiter = NewFloorRateLimiter(limit, interval)
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		registry: NewRegistry(),
		floor:    NewSpeakerLock(),
		policy:   SimplePolicy{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnConnect must run once per connection before any of its frames.
func (e *Engine) OnConnect(conn core.Conn, key domain.GroupKey) domain.ParticipantID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Register(conn, key)
}

// OnMessage handles one inbound frame. Frames from unknown connections are dropped.
func (e *Engine) OnMessage(cid core.ConnID, f core.Frame) {
	if f.Kind == core.BinaryFrame {
		e.relayAudio(cid, f)
		return
	}

	msg, err := protocol.Decode(f.Payload)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			log.Debug().Err(err).Str("module", "app.engine").Str("conn", string(cid)).Msg("ignored message")
		} else {
			log.Warn().Err(err).Str("module", "app.engine").Str("conn", string(cid)).Msg("bad message")
		}
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	self, ok := e.registry.Lookup(cid)
	if !ok {
		log.Debug().Str("module", "app.engine").Str("conn", string(cid)).Str("type", string(msg.Type())).Msg("message for closed connection")
		return
	}

	switch m := msg.(type) {
	case protocol.Join:
		e.handleJoin(self, m)
	case protocol.RequestTalk:
		e.handleRequestTalk(self)
	case protocol.ReleaseTalk:
		e.handleReleaseTalk(self)
	default:
		log.Warn().Str("module", "app.engine").Str("type", string(msg.Type())).Msg("unhandled message")
	}
}

func (e *Engine) handleJoin(self Member, m protocol.Join) {
	p, ok := e.registry.SetIdentity(self.ConnID, m.Username, m.Number)
	if !ok {
		return
	}
	self.Participant = p

	e.deliver(self, protocol.Joined(p.ID))
	e.broadcast(p.GroupKey, e.roster(p.GroupKey), "")
	e.deliver(self, protocol.Speaker(e.holderID(p.GroupKey)))
}

func (e *Engine) handleRequestTalk(self Member) {
	p := self.Participant
	if !p.Identified() {
		log.Debug().Str("module", "app.engine").Str("conn", string(self.ConnID)).Msg("request_talk before join")
		return
	}
	if e.limiter != nil && !e.limiter.Allow(self.ConnID) {
		log.Warn().Str("module", "app.engine").Str("conn", string(self.ConnID)).Msg("request_talk rate limited, dropped")
		return
	}
	if !e.floor.TryAcquire(p.GroupKey, self.ConnID) {
		e.deliver(self, protocol.TalkDenied())
		return
	}
	e.deliver(self, protocol.TalkGranted())
	e.broadcast(p.GroupKey, protocol.Speaker(&p.ID), self.ConnID)
}

func (e *Engine) handleReleaseTalk(self Member) {
	key := self.Participant.GroupKey
	if !e.floor.Release(key, self.ConnID) {
		return
	}
	e.broadcast(key, protocol.Speaker(nil), "")
}

// OnDisconnect frees the floor, removes the connection, then tells the
// remaining group. Safe to call more than once.
func (e *Engine) OnDisconnect(cid core.ConnID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	self, ok := e.registry.Lookup(cid)
	if !ok {
		return
	}
	key := self.Participant.GroupKey

	released := e.floor.ForceRelease(key, cid)
	e.registry.Unregister(cid)
	if e.limiter != nil {
		e.limiter.Forget(cid)
	}

	if released {
		e.broadcast(key, protocol.Speaker(nil), "")
	}
	e.broadcast(key, e.roster(key), "")
	log.Info().Str("module", "app.engine").Str("conn", string(cid)).Int64("participant", int64(self.Participant.ID)).Bool("was_speaker", released).Msg("disconnected")
}

// CurrentHolder resolves the floor holder of key to its participant.
func (e *Engine) CurrentHolder(key domain.GroupKey) (domain.Participant, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.holder(key)
}

func (e *Engine) holder(key domain.GroupKey) (domain.Participant, bool) {
	cid, ok := e.floor.Holder(key)
	if !ok {
		return domain.Participant{}, false
	}
	m, ok := e.registry.Lookup(cid)
	if !ok {
		return domain.Participant{}, false
	}
	return m.Participant, true
}

func (e *Engine) holderID(key domain.GroupKey) *domain.ParticipantID {
	p, ok := e.holder(key)
	if !ok {
		return nil
	}
	return &p.ID
}

func (e *Engine) roster(key domain.GroupKey) core.Frame {
	entries := lo.FilterMap(e.registry.GroupMembers(key), func(m Member, _ int) (protocol.RosterEntry, bool) {
		return protocol.RosterEntry{ID: m.Participant.ID, Username: m.Participant.Name()}, m.Participant.Identified()
	})
	return protocol.Clients(entries)
}

// GroupInfo is a read-only view for APIs.
type GroupInfo struct {
	Group   domain.GroupKey       `json:"group"`
	Members int                   `json:"members"`
	Speaker *domain.ParticipantID `json:"speaker"`
}

func (e *Engine) Groups() []GroupInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return lo.Map(e.registry.Groups(), func(key domain.GroupKey, _ int) GroupInfo {
		return GroupInfo{
			Group:   key,
			Members: len(e.registry.GroupMembers(key)),
			Speaker: e.holderID(key),
		}
	})
}
