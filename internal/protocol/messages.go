// Package protocol is the text control-message schema: one JSON object per frame.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/webcall/internal/core"
	"github.com/dkeye/webcall/internal/domain"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

type Type string

const (
	TypeJoin        Type = "join"
	TypeRequestTalk Type = "request_talk"
	TypeReleaseTalk Type = "release_talk"

	TypeJoined      Type = "joined"
	TypeClients     Type = "clients"
	TypeSpeaker     Type = "speaker"
	TypeTalkGranted Type = "talk_granted"
	TypeTalkDenied  Type = "talk_denied"
)

// Inbound is the closed set of messages a client may send.
type Inbound interface {
	Type() Type
}

type Join struct {
	Username string
	Number   string
}

type RequestTalk struct{}

type ReleaseTalk struct{}

func (Join) Type() Type        { return TypeJoin }
func (RequestTalk) Type() Type { return TypeRequestTalk }
func (ReleaseTalk) Type() Type { return TypeReleaseTalk }

type envelope struct {
	Type     Type            `json:"type"`
	Username json.RawMessage `json:"username"`
	Number   json.RawMessage `json:"number"`
}

// Decode parses one text frame. Errors wrap ErrMalformed or ErrUnknownType.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeJoin:
		return Join{
			Username: decodeUsername(env.Username),
			Number:   decodeNumber(env.Number),
		}, nil
	case TypeRequestTalk:
		return RequestTalk{}, nil
	case TypeReleaseTalk:
		return ReleaseTalk{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// decodeUsername keeps a JSON string and turns anything else into "",
// which the domain later replaces with the default name.
func decodeUsername(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// decodeNumber accepts a JSON string or number. Anything else means "".
func decodeNumber(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}

// RosterEntry is one identified participant in a clients broadcast.
type RosterEntry struct {
	ID       domain.ParticipantID `json:"id"`
	Username string               `json:"username"`
}

type joinedMsg struct {
	Type Type                 `json:"type"`
	ID   domain.ParticipantID `json:"id"`
}

type clientsMsg struct {
	Type    Type          `json:"type"`
	Clients []RosterEntry `json:"clients"`
}

type speakerMsg struct {
	Type Type                  `json:"type"`
	ID   *domain.ParticipantID `json:"id"`
}

type bareMsg struct {
	Type Type `json:"type"`
}

func Joined(id domain.ParticipantID) core.Frame {
	return encode(joinedMsg{Type: TypeJoined, ID: id})
}

func Clients(roster []RosterEntry) core.Frame {
	if roster == nil {
		roster = []RosterEntry{}
	}
	return encode(clientsMsg{Type: TypeClients, Clients: roster})
}

// Speaker announces the floor holder; nil means the floor is free.
func Speaker(id *domain.ParticipantID) core.Frame {
	return encode(speakerMsg{Type: TypeSpeaker, ID: id})
}

func TalkGranted() core.Frame { return encode(bareMsg{Type: TypeTalkGranted}) }
func TalkDenied() core.Frame  { return encode(bareMsg{Type: TypeTalkDenied}) }

// encode only sees the fixed structs above, which always marshal.
func encode(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal %T: %v", v, err))
	}
	return core.Text(b)
}
