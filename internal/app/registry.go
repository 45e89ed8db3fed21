package app

import (
	"slices"
	"sync"

	"github.com/dkeye/webcall/internal/core"
	"github.com/dkeye/webcall/internal/domain"
	"github.com/rs/zerolog/log"
)

type registryEntry struct {
	participant *domain.Participant
	conn        core.Conn
}

// Member is a read-only snapshot of one registry entry.
type Member struct {
	ConnID      core.ConnID
	Participant domain.Participant
	Conn        core.Conn
}

// Registry maps live connections to participants and indexes them by group.
// Entries of a group are kept in registration order.
type Registry struct {
	mu      sync.RWMutex
	lastID  domain.ParticipantID
	entries map[core.ConnID]*registryEntry
	groups  map[domain.GroupKey][]core.ConnID
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[core.ConnID]*registryEntry),
		groups:  make(map[domain.GroupKey][]core.ConnID),
	}
}

// Register assigns the next participant id to conn.
// Registering the same connection twice returns the existing id.
func (r *Registry) Register(conn core.Conn, key domain.GroupKey) domain.ParticipantID {
	r.mu.Lock()
	defer r.mu.Unlock()
	cid := conn.ID()
	if e, ok := r.entries[cid]; ok {
		log.Warn().Str("module", "app.registry").Str("conn", string(cid)).Msg("connection already registered")
		return e.participant.ID
	}
	r.lastID++
	p := &domain.Participant{ID: r.lastID, GroupKey: key}
	r.entries[cid] = &registryEntry{participant: p, conn: conn}
	r.groups[key] = append(r.groups[key], cid)
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Int64("participant", int64(p.ID)).Str("group", string(key)).Msg("registered")
	return p.ID
}

// SetIdentity is a no-op for connections that are not registered.
func (r *Registry) SetIdentity(cid core.ConnID, displayName, number string) (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[cid]
	if !ok {
		return domain.Participant{}, false
	}
	e.participant.SetIdentity(displayName, number)
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("username", e.participant.Name()).Msg("identity set")
	return *e.participant, true
}

// Unregister is idempotent: the second call reports false.
func (r *Registry) Unregister(cid core.ConnID) (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[cid]
	if !ok {
		return domain.Participant{}, false
	}
	delete(r.entries, cid)

	key := e.participant.GroupKey
	members := slices.DeleteFunc(r.groups[key], func(id core.ConnID) bool { return id == cid })
	if len(members) == 0 {
		delete(r.groups, key)
	} else {
		r.groups[key] = members
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Int64("participant", int64(e.participant.ID)).Msg("unregistered")
	return *e.participant, true
}

func (r *Registry) Lookup(cid core.ConnID) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[cid]
	if !ok {
		return Member{}, false
	}
	return Member{ConnID: cid, Participant: *e.participant, Conn: e.conn}, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
