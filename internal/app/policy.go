package app

import (
	"github.com/dkeye/webcall/internal/core"
	"github.com/dkeye/webcall/internal/domain"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

func (a BackpressureAction) String() string {
	if a == KickMember {
		return "kick"
	}
	return "drop"
}

// Policy decides what happens to a recipient whose outbound queue is full.
// The broadcast to the other recipients continues either way.
type Policy interface {
	OnBackPressure(member domain.Participant, frame core.Frame) BackpressureAction
}

type SimplePolicy struct {
	KickSlow bool
}

func (p SimplePolicy) OnBackPressure(domain.Participant, core.Frame) BackpressureAction {
	if p.KickSlow {
		return KickMember
	}
	return DropFrame
}
