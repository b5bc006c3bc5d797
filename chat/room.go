package chat

import (
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"relaychat/set"
	"relaychat/wire"
)

// The error returned when a user attempts to join with an invalid name, such
// as empty string.
var ErrInvalidName = errors.New("invalid name")

// The error returned when a banned user attempts to join.
var ErrBanned = errors.New("banned from this room")

// The error returned when the supplied room password does not match.
var ErrWrongPassword = errors.New("wrong password")

// The error returned when a room has reached its member limit.
var ErrRoomFull = errors.New("room is full")

// The error returned when an operation targets a room whose last member
// already left.
var ErrRoomClosed = errors.New("room closed")

// The error returned when a joining user is already a member.
var ErrAlreadyMember = errors.New("already a member")

// The error returned when an operation targets a name that is not a member.
var ErrNotMember = errors.New("not a member")

// Sender accepts payloads for delivery to one connected user.
type Sender interface {
	Name() string
	Send(p *wire.Payload) error
}

// Roster resolves a user name to its transport handle. Implemented by the
// server's client registry.
type Roster interface {
	Sender(name string) (Sender, bool)
}

// Room is a named channel with ordered membership, an admin set, an
// optional password gate and a ban list. All state mutations serialize
// through the room's own mutex; the lock is never held across delivery.
type Room struct {
	name     string
	roster   Roster
	commands Commands
	onEmpty  func()

	mu         sync.Mutex
	users      []string // insertion order; users[0] is the owner
	admins     *set.Set
	banlist    *set.Set
	passHash   []byte
	maxMembers int
	closed     bool
}

// NewRoom creates a room with owner as its only member and admin. A
// non-empty password makes the room password-protected; an empty one makes
// an open room.
func NewRoom(name, owner, password string, roster Roster, commands Commands) (*Room, error) {
	if name == "" || owner == "" {
		return nil, ErrInvalidName
	}

	r := &Room{
		name:     name,
		roster:   roster,
		commands: commands,
		users:    []string{owner},
		admins:   set.New(),
		banlist:  set.New(),
	}
	r.admins.Add(set.StringItem(owner))

	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		r.passHash = hash
	}
	return r, nil
}

// SetMaxMembers caps membership; zero means unlimited.
func (r *Room) SetMaxMembers(n int) {
	r.mu.Lock()
	r.maxMembers = n
	r.mu.Unlock()
}

// Name of the room.
func (r *Room) Name() string {
	return r.name
}

// Owner returns the original creator, or the current fallback admin once
// the creator has left.
func (r *Room) Owner() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.users) == 0 {
		return ""
	}
	return r.users[0]
}

// Members returns the member names in join order.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.users...)
}

// Admins returns the admin names, sorted.
func (r *Room) Admins() []string {
	return r.admins.Keys()
}

// Banned returns the banned names, sorted. Expired timed bans are omitted.
func (r *Room) Banned() []string {
	return r.banlist.Keys()
}

// HasMember reports whether name is currently a member.
func (r *Room) HasMember(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexOf(name) >= 0
}

// IsAdmin reports whether name holds admin privilege in this room.
func (r *Room) IsAdmin(name string) bool {
	return r.admins.In(name)
}

// Protected reports whether joining requires a password.
func (r *Room) Protected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.passHash) > 0
}

// Empty reports whether the room has no members left.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users) == 0
}

func (r *Room) indexOf(name string) int {
	for i, u := range r.users {
		if u == name {
			return i
		}
	}
	return -1
}

// Join admits name as a plain member. Ban check first, then password, then
// capacity; joining never grants admin.
func (r *Room) Join(name, password string) error {
	if name == "" {
		return ErrInvalidName
	}
	if r.banlist.In(name) {
		return ErrBanned
	}
	// passHash is immutable after creation, so the expensive compare runs
	// without holding the room lock.
	if len(r.passHash) > 0 {
		if bcrypt.CompareHashAndPassword(r.passHash, []byte(password)) != nil {
			return ErrWrongPassword
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}
	if r.maxMembers > 0 && len(r.users) >= r.maxMembers {
		return ErrRoomFull
	}
	if r.indexOf(name) >= 0 {
		return ErrAlreadyMember
	}
	r.users = append(r.users, name)
	return nil
}

// evictLocked removes name from users and admins and keeps the admin set
// non-empty while members remain. Reports whether the room emptied.
func (r *Room) evictLocked(name string) (empty bool, err error) {
	i := r.indexOf(name)
	if i < 0 {
		return false, ErrNotMember
	}
	r.users = append(r.users[:i], r.users[i+1:]...)
	r.admins.Remove(name)

	if len(r.users) == 0 {
		r.closed = true
		return true, nil
	}
	if r.admins.Len() == 0 {
		r.admins.Add(set.StringItem(r.users[0]))
		logger.Printf("[%s] promoted %s to admin", r.name, r.users[0])
	}
	return false, nil
}

func (r *Room) evict(name string) (bool, error) {
	r.mu.Lock()
	empty, err := r.evictLocked(name)
	r.mu.Unlock()

	if empty && r.onEmpty != nil {
		r.onEmpty()
	}
	return empty, err
}

// Leave removes name from the room and reports whether the room emptied
// (and therefore ended its registry life).
func (r *Room) Leave(name string) (empty bool, err error) {
	return r.evict(name)
}

// Remove evicts name from the room. Admin status of the target gets no
// special casing beyond keeping the admin set non-empty.
func (r *Room) Remove(name string) error {
	_, err := r.evict(name)
	return err
}

// Ban evicts name and forbids rejoining. A non-zero duration makes the ban
// expire on its own.
func (r *Room) Ban(name string, d time.Duration) error {
	r.mu.Lock()
	empty, err := r.evictLocked(name)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if d > 0 {
		r.banlist.Add(set.Expire(set.StringItem(name), d))
	} else {
		r.banlist.Add(set.StringItem(name))
	}
	r.mu.Unlock()

	if empty && r.onEmpty != nil {
		r.onEmpty()
	}
	return nil
}

// Promote grants admin privilege to an existing member.
func (r *Room) Promote(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(name) < 0 {
		return ErrNotMember
	}
	r.admins.Add(set.StringItem(name))
	return nil
}

// HandleInput routes one line of inbound chat text from a member: commands
// are dispatched, everything else is relayed to the rest of the room. Input
// from a name that is no longer a member is dropped; this defends against
// the race between an eviction and an in-flight message from the evicted
// session.
func (r *Room) HandleInput(from, body string) {
	if !r.HasMember(from) {
		logger.Printf("[%s] dropped input from non-member %s", r.name, from)
		return
	}
	if strings.HasPrefix(body, "!") {
		r.commands.Run(r, ParseCommand(from, body))
		return
	}
	r.Send(wire.Receive(from, body), from)
}

// Send delivers p to every member except exclude; an empty exclude delivers
// to everyone, which is how join announcements reach the joiner too. The
// member list is snapshotted under the lock and delivery happens outside
// it; recipients with no resolvable handle are skipped.
func (r *Room) Send(p *wire.Payload, exclude string) {
	for _, name := range r.Members() {
		if exclude != "" && name == exclude {
			continue
		}
		s, ok := r.roster.Sender(name)
		if !ok {
			// Disconnected but not yet cleaned up.
			continue
		}
		if err := s.Send(p); err != nil {
			logger.Printf("[%s] delivery to %s failed: %s", r.name, name, err)
		}
	}
}

// reply sends a notice to a single user.
func (r *Room) reply(to, body string) {
	s, ok := r.roster.Sender(to)
	if !ok {
		return
	}
	if err := s.Send(wire.Notice(body)); err != nil {
		logger.Printf("[%s] reply to %s failed: %s", r.name, to, err)
	}
}
