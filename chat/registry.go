package chat

import (
	"errors"
	"sync"

	"relaychat/wire"
)

// The error returned when creating a room whose name is already in use.
var ErrRoomExists = errors.New("room already exists")

// Registry maps room names to live rooms. Create, Get and Delete on a name
// are linearizable: the registry mutex is held only for the map update,
// never across delivery or I/O.
type Registry struct {
	roster   Roster
	commands Commands

	mu          sync.Mutex
	rooms       map[string]*Room
	maxRoomSize int
}

// NewRegistry creates an empty room registry. Rooms created through it
// deliver via roster and interpret commands via commands.
func NewRegistry(roster Roster, commands Commands) *Registry {
	return &Registry{
		roster:   roster,
		commands: commands,
		rooms:    map[string]*Room{},
	}
}

// SetMaxRoomSize caps membership of rooms created afterwards; zero means
// unlimited.
func (reg *Registry) SetMaxRoomSize(n int) {
	reg.mu.Lock()
	reg.maxRoomSize = n
	reg.mu.Unlock()
}

// Create makes a new room owned by owner. Exactly one concurrent Create for
// a given name succeeds; the rest get ErrRoomExists.
func (reg *Registry) Create(name, owner, password string) (*Room, error) {
	// Hashing the password is the expensive part; do it before taking the
	// registry lock. A losing racer just discards its room.
	r, err := NewRoom(name, owner, password, reg.roster, reg.commands)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.rooms[name]; exists {
		return nil, ErrRoomExists
	}
	if reg.maxRoomSize > 0 {
		r.SetMaxMembers(reg.maxRoomSize)
	}
	// The room signals its own removal once its last member leaves.
	r.onEmpty = func() { reg.Delete(name) }
	reg.rooms[name] = r

	logger.Printf("room created: %s (owner %s)", name, owner)
	return r, nil
}

// Get returns the room registered under name.
func (reg *Registry) Get(name string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[name]
	return r, ok
}

// Delete removes the room registered under name. Idempotent.
func (reg *Registry) Delete(name string) {
	reg.mu.Lock()
	_, existed := reg.rooms[name]
	delete(reg.rooms, name)
	reg.mu.Unlock()

	if existed {
		logger.Printf("room deleted: %s", name)
	}
}

// Len returns the number of live rooms.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// Snapshot captures the registry for a CHAT_ROOMS field.
func (reg *Registry) Snapshot() map[string]wire.RoomSummary {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	// Summaries take each room's lock, so build them outside the registry
	// lock.
	out := make(map[string]wire.RoomSummary, len(rooms))
	for _, r := range rooms {
		out[r.Name()] = wire.RoomSummary{
			Owner: r.Owner(),
			Users: r.Members(),
		}
	}
	return out
}
