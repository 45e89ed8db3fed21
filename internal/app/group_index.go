package app

import (
	"slices"

	"github.com/dkeye/webcall/internal/core"
	"github.com/dkeye/webcall/internal/domain"
	"github.com/samber/lo"
)

// GroupMembers is a fresh snapshot of everyone sharing key, in registration order.
func (r *Registry) GroupMembers(key domain.GroupKey) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.groups[key]
	out := make([]Member, 0, len(ids))
	for _, cid := range ids {
		e := r.entries[cid]
		out = append(out, Member{ConnID: cid, Participant: *e.participant, Conn: e.conn})
	}
	return out
}

// GroupMates is GroupMembers without cid.
func (r *Registry) GroupMates(key domain.GroupKey, cid core.ConnID) []Member {
	return lo.Filter(r.GroupMembers(key), func(m Member, _ int) bool {
		return m.ConnID != cid
	})
}

// Groups lists the keys with at least one live member, sorted.
func (r *Registry) Groups() []domain.GroupKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := lo.Keys(r.groups)
	slices.Sort(keys)
	return keys
}
