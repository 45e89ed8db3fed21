package app

import (
	"errors"

	"github.com/dkeye/webcall/internal/core"
	"github.com/dkeye/webcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// relayAudio forwards f verbatim to the sender's group mates iff the sender
// holds the floor. Anything else is dropped without a reply.
func (e *Engine) relayAudio(cid core.ConnID, f core.Frame) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	self, ok := e.registry.Lookup(cid)
	if !ok {
		return
	}
	key := self.Participant.GroupKey
	holder, held := e.floor.Holder(key)
	if !held || holder != cid {
		log.Debug().Str("module", "app.relay").Str("conn", string(cid)).Int("bytes", len(f.Payload)).Msg("audio from non-holder dropped")
		return
	}

	sent := e.broadcast(key, f, cid)
	log.Debug().Str("module", "app.relay").Str("conn", string(cid)).Int("bytes", len(f.Payload)).Int("sent_to", sent).Msg("audio relayed")
}

// broadcast sends f to every member of key except skip and reports how many
// sends succeeded. A failing recipient never stops the loop.
func (e *Engine) broadcast(key domain.GroupKey, f core.Frame, skip core.ConnID) int {
	sent := 0
	for _, m := range e.registry.GroupMates(key, skip) {
		if e.deliver(m, f) {
			sent++
		}
	}
	return sent
}

func (e *Engine) deliver(m Member, f core.Frame) bool {
	err := m.Conn.TrySend(f)
	if err == nil {
		return true
	}
	if !errors.Is(err, core.ErrBackpressure) {
		log.Warn().Err(err).Str("module", "app.relay").Str("conn", string(m.ConnID)).Str("kind", f.Kind.String()).Msg("send failed")
		return false
	}

	action := e.policy.OnBackPressure(m.Participant, f)
	log.Warn().Str("module", "app.relay").Str("conn", string(m.ConnID)).Str("kind", f.Kind.String()).Stringer("action", action).Msg("backpressure")
	if action == KickMember {
		m.Conn.Close()
	}
	return false
}
