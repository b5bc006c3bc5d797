package wire

import "fmt"

// Message kinds carried in the TYPE field.
const (
	TypeSend       = "SEND"
	TypeBroadcast  = "BROADCAST"
	TypeReceive    = "RECEIVE"
	TypeRegistered = "REGISTERED"
	TypeCreateRoom = "CREATE_ROOM"
	TypeJoinRoom   = "JOIN_ROOM"
	TypeConnected  = "CONNECTED"
	TypeRejoin     = "REJOIN"
	TypeCheck      = "CHECK"
	TypeError      = "ERROR"
	TypeDisconnect = "DISCONNECT"

	// TypeRegister is a legacy alias for a SEND registration frame, still
	// emitted by older clients.
	TypeRegister = "REGISTER"
)

var knownTypes = map[string]struct{}{
	TypeSend:       {},
	TypeBroadcast:  {},
	TypeReceive:    {},
	TypeRegistered: {},
	TypeCreateRoom: {},
	TypeJoinRoom:   {},
	TypeConnected:  {},
	TypeRejoin:     {},
	TypeCheck:      {},
	TypeError:      {},
	TypeDisconnect: {},
	TypeRegister:   {},
}

// RoomSummary is the per-room entry of a CHAT_ROOMS snapshot.
type RoomSummary struct {
	Owner string   `json:"OWNER"`
	Users []string `json:"USERS"`
}

// Payload is one frame body. The schema is closed on purpose: decoding into
// a fixed struct instead of a free-form map keeps a hostile peer from
// smuggling arbitrary object graphs through the codec. Unknown keys sent by
// older clients (OWNER, TO) are ignored.
type Payload struct {
	Type     string                 `json:"TYPE"`
	Name     string                 `json:"NAME,omitempty"`
	From     string                 `json:"FROM,omitempty"`
	Message  string                 `json:"MESSAGE,omitempty"`
	RoomName string                 `json:"ROOM_NAME,omitempty"`
	Password string                 `json:"PASSWORD,omitempty"`
	Rooms    map[string]RoomSummary `json:"CHAT_ROOMS,omitempty"`
	InRoom   *bool                  `json:"IN_ROOM,omitempty"`
}

// Validate checks that the payload is structurally usable: a known,
// non-empty TYPE. Field semantics are left to the session layer.
func (p *Payload) Validate() error {
	if p.Type == "" {
		return fmt.Errorf("%w: missing TYPE", ErrProtocol)
	}
	if _, ok := knownTypes[p.Type]; !ok {
		return fmt.Errorf("%w: unknown TYPE %q", ErrProtocol, p.Type)
	}
	return nil
}

// Bool returns a pointer suitable for the IN_ROOM field.
func Bool(v bool) *bool {
	return &v
}

// Notice builds a BROADCAST-style system notice.
func Notice(body string) *Payload {
	return &Payload{Type: TypeBroadcast, Message: body}
}

// Receive builds a RECEIVE chat message from a named sender.
func Receive(from, body string) *Payload {
	return &Payload{Type: TypeReceive, From: from, Message: body}
}
