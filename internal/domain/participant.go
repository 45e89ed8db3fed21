// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxDisplayNameLen  = 36
	DefaultDisplayName = "Anonymous"
)

var ErrEmptyGroupKey = errors.New("group key empty")

// ParticipantID is assigned once per connection and never reused.
type ParticipantID int64

// GroupKey partitions participants into independent relay scopes.
// Derived by the transport from the client network origin.
type GroupKey string

func NewGroupKey(origin string) (GroupKey, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", ErrEmptyGroupKey
	}
	return GroupKey(origin), nil
}

// Participant is one live connection's meta.
// DisplayName stays nil until the first join.
type Participant struct {
	ID          ParticipantID
	DisplayName *string
	Number      string
	GroupKey    GroupKey
}

func (p *Participant) Identified() bool { return p.DisplayName != nil }

func (p *Participant) Name() string {
	if p.DisplayName == nil {
		return ""
	}
	return *p.DisplayName
}

// SetIdentity overwrites name and number; a repeated join wins.
func (p *Participant) SetIdentity(displayName, number string) {
	name := NormalizeDisplayName(displayName)
	p.DisplayName = &name
	p.Number = number
}

// NormalizeDisplayName trims, applies the placeholder and caps the length in runes.
func NormalizeDisplayName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return DefaultDisplayName
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		name = string([]rune(name)[:MaxDisplayNameLen])
	}
	return name
}
