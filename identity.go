package relaychat

import (
	"sync"
	"time"

	"relaychat/tcpd"
	"relaychat/wire"
)

// Identity is a currently connected, uniquely named participant. It owns
// the connection's transport handle for the lifetime of the session and
// tracks which room, if any, the session is assigned to.
type Identity struct {
	conn    *tcpd.Conn
	name    string
	created time.Time

	mu   sync.Mutex
	room string
}

// NewIdentity binds a registered name to its connection.
func NewIdentity(name string, conn *tcpd.Conn) *Identity {
	return &Identity{
		conn:    conn,
		name:    name,
		created: time.Now(),
	}
}

// Name returns the display name. Names are case-sensitive and unique among
// currently connected users.
func (i *Identity) Name() string {
	return i.name
}

// Joined returns when the identity registered.
func (i *Identity) Joined() time.Time {
	return i.created
}

// Send queues a payload on the identity's connection.
func (i *Identity) Send(p *wire.Payload) error {
	return i.conn.Send(p)
}

// RoomName returns the assigned room, or empty while room selection is
// pending.
func (i *Identity) RoomName() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.room
}

// SetRoomName assigns the identity to a room; empty clears the assignment.
func (i *Identity) SetRoomName(room string) {
	i.mu.Lock()
	i.room = room
	i.mu.Unlock()
}
