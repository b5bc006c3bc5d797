package relaychat

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"relaychat/chat"
	"relaychat/tcpd"
	"relaychat/wire"
)

// Host is the bridge between tcpd and chat modules: it runs the session
// protocol for each connection against the shared client and room
// registries.
type Host struct {
	server   *tcpd.Server
	clients  *ClientRegistry
	rooms    *chat.Registry
	commands chat.Commands

	// Version string to report on !version
	Version string

	mu      sync.Mutex
	motd    string
	logging io.Writer

	started time.Time
}

// NewHost creates a Host on top of an existing listener.
func NewHost(server *tcpd.Server) *Host {
	h := &Host{
		server:   server,
		clients:  NewClientRegistry(),
		commands: chat.Commands{},
		started:  time.Now(),
	}

	// Make our own commands registry instance.
	chat.InitCommands(&h.commands)
	h.InitCommands(&h.commands)
	h.rooms = chat.NewRegistry(h.clients, h.commands)

	return h
}

// SetMotd sets the notice pushed to every user right after registration.
func (h *Host) SetMotd(motd string) {
	h.mu.Lock()
	h.motd = motd
	h.mu.Unlock()
}

// SetMaxRoomSize caps membership of newly created rooms; zero means
// unlimited.
func (h *Host) SetMaxRoomSize(n int) {
	h.rooms.SetMaxRoomSize(n)
}

// SetLogging sets the sink for the chat transcript, one line per relayed
// message. Nil disables it.
func (h *Host) SetLogging(w io.Writer) {
	h.mu.Lock()
	h.logging = w
	h.mu.Unlock()
}

func (h *Host) logChat(room, from, body string) {
	h.mu.Lock()
	w := h.logging
	h.mu.Unlock()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "%s [%s] %s: %s\n", time.Now().UTC().Format(time.RFC3339), room, from, body)
}

// Serve runs the host on its listener. Blocks.
func (h *Host) Serve() {
	h.server.HandlerFunc = h.Connect
	h.server.Serve()
}

// Shutdown pushes a DISCONNECT notice to every connection and closes the
// listener.
func (h *Host) Shutdown() {
	h.server.EachConn(func(c *tcpd.Conn) {
		c.Send(&wire.Payload{Type: wire.TypeDisconnect, Message: "Server shutting down."})
	})
	h.server.Close()
}

// Connect runs the session protocol for one connection: registration, room
// assignment, relay loop, cleanup. One goroutine per connection.
func (h *Host) Connect(c *tcpd.Conn) {
	id, err := h.register(c)
	if err != nil {
		logger.Debugf("[%s] registration failed: %s", c.ID(), err)
		return
	}
	defer h.cleanup(id, c)

	logger.Infof("[%s] registered: %s", c.ID(), id.Name())

	for {
		p, err := c.ReadPayload()
		if err == io.EOF {
			// Closed
			return
		} else if err != nil {
			logger.Errorf("[%s] read error for %s: %s", c.ID(), id.Name(), err)
			return
		}

		switch p.Type {
		case wire.TypeCreateRoom:
			h.handleCreate(id, p)
		case wire.TypeJoinRoom:
			h.handleJoin(id, p)
		case wire.TypeSend, wire.TypeBroadcast:
			h.handleChat(id, p)
		case wire.TypeCheck:
			id.Send(&wire.Payload{Type: wire.TypeCheck, InRoom: wire.Bool(id.RoomName() != "")})
		case wire.TypeDisconnect:
			return
		default:
			// Anything else mid-session is a protocol violation; tear the
			// connection down rather than guess.
			id.Send(&wire.Payload{Type: wire.TypeError, Message: fmt.Sprintf("unexpected message type: %s", p.Type)})
			return
		}
	}
}

// register performs the handshake: the first frame must carry a name. On a
// name collision the client is told once and the connection ends, matching
// the protocol's no-retry registration.
func (h *Host) register(c *tcpd.Conn) (*Identity, error) {
	p, err := c.ReadPayload()
	if err != nil {
		return nil, err
	}
	// REGISTER is the legacy alias still sent by the older clients.
	if (p.Type != wire.TypeSend && p.Type != wire.TypeRegister) || p.Name == "" {
		c.Send(&wire.Payload{Type: wire.TypeError, Message: "Invalid registration message"})
		return nil, ErrInvalidName
	}

	id := NewIdentity(p.Name, c)
	if err := h.clients.Register(id); err != nil {
		c.Send(&wire.Payload{Type: wire.TypeError, Message: "Name already taken"})
		return nil, err
	}

	id.Send(&wire.Payload{
		Type:    wire.TypeRegistered,
		Message: fmt.Sprintf("Welcome to the relay server, %s!", id.Name()),
		Rooms:   h.rooms.Snapshot(),
	})

	h.mu.Lock()
	motd := h.motd
	h.mu.Unlock()
	if motd != "" {
		id.Send(wire.Notice(motd))
	}
	return id, nil
}

// cleanup releases everything a session held. Safe to run after any exit
// path, including a second time.
func (h *Host) cleanup(id *Identity, c *tcpd.Conn) {
	h.clients.Unregister(id.Name())

	if roomName := id.RoomName(); roomName != "" {
		if room, ok := h.rooms.Get(roomName); ok {
			if _, err := room.Leave(id.Name()); err == nil {
				room.Send(wire.Notice(fmt.Sprintf("%s left the room", id.Name())), id.Name())
			}
		}
		id.SetRoomName("")
	}

	logger.Infof("[%s] unregistered: %s (connected %s)", c.ID(), id.Name(), humanize.Time(id.Joined()))
}

func (h *Host) handleCreate(id *Identity, p *wire.Payload) {
	if id.RoomName() != "" {
		id.Send(wire.Notice("you are already in a room"))
		return
	}
	if p.RoomName == "" {
		h.rejoin(id, "room name required")
		return
	}

	room, err := h.rooms.Create(p.RoomName, id.Name(), p.Password)
	if err != nil {
		h.rejoin(id, err.Error())
		return
	}

	id.SetRoomName(room.Name())
	id.Send(&wire.Payload{Type: wire.TypeConnected, RoomName: room.Name()})
	room.Send(wire.Notice(fmt.Sprintf("Welcome to the chat room, %s!", id.Name())), "")
}

func (h *Host) handleJoin(id *Identity, p *wire.Payload) {
	if id.RoomName() != "" {
		id.Send(wire.Notice("you are already in a room"))
		return
	}

	room, ok := h.rooms.Get(p.RoomName)
	if !ok {
		h.rejoin(id, fmt.Sprintf("room not found: %s", p.RoomName))
		return
	}
	if err := room.Join(id.Name(), p.Password); err != nil {
		if err == chat.ErrRoomClosed {
			// Lost a race with the room's teardown.
			h.rejoin(id, fmt.Sprintf("room not found: %s", p.RoomName))
			return
		}
		h.rejoin(id, err.Error())
		return
	}

	id.SetRoomName(room.Name())
	id.Send(&wire.Payload{Type: wire.TypeConnected, RoomName: room.Name()})
	// Welcome announcement reaches the joiner too.
	room.Send(wire.Notice(fmt.Sprintf("Welcome to the chat room, %s!", id.Name())), "")
}

func (h *Host) handleChat(id *Identity, p *wire.Payload) {
	roomName := id.RoomName()
	if roomName == "" {
		h.rejoin(id, "you are not in a room")
		return
	}
	room, ok := h.rooms.Get(roomName)
	if !ok {
		h.rejoin(id, "your room no longer exists")
		return
	}
	if p.Message == "" {
		// Silently ignore empty lines.
		return
	}
	h.logChat(roomName, id.Name(), p.Message)
	room.HandleInput(id.Name(), p.Message)
}

// rejoin clears the identity's room assignment and sends the
// return-to-room-selection instruction with a fresh snapshot.
func (h *Host) rejoin(id *Identity, reason string) {
	id.SetRoomName("")
	id.Send(&wire.Payload{
		Type:    wire.TypeRejoin,
		Message: reason,
		Rooms:   h.rooms.Snapshot(),
	})
}

// evicted tells a user it lost its room membership and must pick a room
// again.
func (h *Host) evicted(name, reason string) {
	id, ok := h.clients.Lookup(name)
	if !ok {
		return
	}
	h.rejoin(id, reason)
}

// InitCommands adds the commands that need host state (registries,
// snapshots, server info) on top of the room-only ones.
func (h *Host) InitCommands(c *chat.Commands) {
	c.Add(chat.Command{
		Admin:       true,
		Prefix:      "!remove",
		PrefixHelp:  "USER",
		TakesTarget: true,
		Help:        "Evict USER from the room.",
		Handler: func(room *chat.Room, in chat.CommandInput) error {
			if err := room.Remove(in.Target); err != nil {
				return err
			}
			h.evicted(in.Target, fmt.Sprintf("You were removed from %s by %s.", room.Name(), in.From))
			room.Send(wire.Notice(fmt.Sprintf("%s was removed by %s", in.Target, in.From)), in.Target)
			return nil
		},
	})

	c.Add(chat.Command{
		Admin:       true,
		Prefix:      "!ban",
		PrefixHelp:  "USER [DURATION]",
		TakesTarget: true,
		Help:        "Evict USER and forbid rejoining, optionally only for DURATION.",
		Handler: func(room *chat.Room, in chat.CommandInput) error {
			var until time.Duration
			if len(in.Args) > 1 {
				until, _ = time.ParseDuration(in.Args[1])
			}
			if err := room.Ban(in.Target, until); err != nil {
				return err
			}
			h.evicted(in.Target, fmt.Sprintf("You were banned from %s by %s.", room.Name(), in.From))
			room.Send(wire.Notice(fmt.Sprintf("%s was banned by %s", in.Target, in.From)), in.Target)
			logger.Debugf("banned from %s: %s (for %s)", room.Name(), in.Target, until)
			return nil
		},
	})

	c.Add(chat.Command{
		Prefix: "!leave",
		Help:   "Leave this room.",
		Handler: func(room *chat.Room, in chat.CommandInput) error {
			empty, err := room.Leave(in.From)
			if err != nil {
				return err
			}
			h.evicted(in.From, fmt.Sprintf("You left %s.", room.Name()))
			if !empty {
				room.Send(wire.Notice(fmt.Sprintf("%s left the room", in.From)), in.From)
			}
			return nil
		},
	})

	// Hidden commands
	c.Add(chat.Command{
		Prefix: "!version",
		Handler: func(room *chat.Room, in chat.CommandInput) error {
			h.notify(in.From, h.Version)
			return nil
		},
	})

	c.Add(chat.Command{
		Prefix: "!uptime",
		Handler: func(room *chat.Room, in chat.CommandInput) error {
			h.notify(in.From, humanize.Time(h.started))
			return nil
		},
	})
}

// notify sends a notice straight to a connected user, outside any room.
func (h *Host) notify(name, body string) {
	id, ok := h.clients.Lookup(name)
	if !ok {
		return
	}
	id.Send(wire.Notice(body))
}
