package app

import (
	"sync"

	"github.com/dkeye/webcall/internal/core"
	"github.com/dkeye/webcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// SpeakerLock records at most one floor holder per group.
// A missing key means the floor is free.
type SpeakerLock struct {
	mu      sync.Mutex
	holders map[domain.GroupKey]core.ConnID
}

func NewSpeakerLock() *SpeakerLock {
	return &SpeakerLock{holders: make(map[domain.GroupKey]core.ConnID)}
}

// TryAcquire grants the floor iff nobody holds it, including cid itself.
func (l *SpeakerLock) TryAcquire(key domain.GroupKey, cid core.ConnID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.holders[key]; held {
		return false
	}
	l.holders[key] = cid
	log.Info().Str("module", "app.floor").Str("group", string(key)).Str("conn", string(cid)).Msg("floor acquired")
	return true
}

// Release clears the floor only when cid is the exact holder.
func (l *SpeakerLock) Release(key domain.GroupKey, cid core.ConnID) bool {
	return l.release(key, cid, "floor released")
}

// ForceRelease is Release on behalf of a departing connection.
func (l *SpeakerLock) ForceRelease(key domain.GroupKey, cid core.ConnID) bool {
	return l.release(key, cid, "floor force released")
}

func (l *SpeakerLock) release(key domain.GroupKey, cid core.ConnID, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	holder, held := l.holders[key]
	if !held || holder != cid {
		return false
	}
	delete(l.holders, key)
	log.Info().Str("module", "app.floor").Str("group", string(key)).Str("conn", string(cid)).Msg(msg)
	return true
}

func (l *SpeakerLock) Holder(key domain.GroupKey) (core.ConnID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cid, ok := l.holders[key]
	return cid, ok
}
