package chat

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"relaychat/wire"
)

// MockSender collects delivered payloads, used for testing.
type MockSender struct {
	name string

	mu       sync.Mutex
	payloads []*wire.Payload
}

func (s *MockSender) Name() string {
	return s.name
}

func (s *MockSender) Send(p *wire.Payload) error {
	s.mu.Lock()
	s.payloads = append(s.payloads, p)
	s.mu.Unlock()
	return nil
}

func (s *MockSender) All() []*wire.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*wire.Payload{}, s.payloads...)
}

func (s *MockSender) Last() *wire.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.payloads) == 0 {
		return nil
	}
	return s.payloads[len(s.payloads)-1]
}

func (s *MockSender) Reset() {
	s.mu.Lock()
	s.payloads = nil
	s.mu.Unlock()
}

type MockRoster map[string]*MockSender

func (r MockRoster) Sender(name string) (Sender, bool) {
	s, ok := r[name]
	if !ok {
		return nil, false
	}
	return s, true
}

func (r MockRoster) add(name string) *MockSender {
	s := &MockSender{name: name}
	r[name] = s
	return s
}

func newTestRoom(t *testing.T, name, owner, password string, roster MockRoster) *Room {
	t.Helper()
	commands := Commands{}
	InitCommands(&commands)
	r, err := NewRoom(name, owner, password, roster, commands)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRoomCreateOwnerIsAdmin(t *testing.T) {
	roster := MockRoster{}
	roster.add("alice")
	r := newTestRoom(t, "lobby", "alice", "", roster)

	if expected := []string{"alice"}; !reflect.DeepEqual(r.Members(), expected) {
		t.Errorf("Got: %v; Expected: %v", r.Members(), expected)
	}
	if !r.IsAdmin("alice") {
		t.Error("owner is not an admin")
	}
	if r.Owner() != "alice" {
		t.Errorf("Got: %q; Expected: %q", r.Owner(), "alice")
	}
	if r.Protected() {
		t.Error("room with no password reads as protected")
	}
}

func TestRoomChatSkipsSender(t *testing.T) {
	roster := MockRoster{}
	alice := roster.add("alice")
	bob := roster.add("bob")
	r := newTestRoom(t, "lobby", "alice", "", roster)
	if err := r.Join("bob", ""); err != nil {
		t.Fatal(err)
	}

	r.HandleInput("alice", "hi")

	if got := alice.All(); len(got) != 0 {
		t.Errorf("Got: %d payloads to sender; Expected: 0", len(got))
	}
	got := bob.Last()
	if got == nil {
		t.Fatal("bob received nothing")
	}
	if got.Type != wire.TypeReceive || got.From != "alice" || got.Message != "hi" {
		t.Errorf("Got: %+v; Expected: RECEIVE from alice: hi", got)
	}
}

func TestRoomSendAllWhenFromEmpty(t *testing.T) {
	roster := MockRoster{}
	alice := roster.add("alice")
	bob := roster.add("bob")
	r := newTestRoom(t, "lobby", "alice", "", roster)
	if err := r.Join("bob", ""); err != nil {
		t.Fatal(err)
	}

	r.Send(wire.Notice("Welcome to the chat room bob!"), "")

	for _, s := range []*MockSender{alice, bob} {
		got := s.Last()
		if got == nil || got.Type != wire.TypeBroadcast {
			t.Errorf("%s: Got: %+v; Expected: BROADCAST welcome", s.Name(), got)
		}
	}
}

func TestRoomPasswordGate(t *testing.T) {
	roster := MockRoster{}
	roster.add("alice")
	r := newTestRoom(t, "vip", "alice", "x", roster)

	if !r.Protected() {
		t.Error("room with password reads as open")
	}
	if err := r.Join("bob", "y"); err != ErrWrongPassword {
		t.Errorf("Got: %v; Expected: %v", err, ErrWrongPassword)
	}
	if r.HasMember("bob") {
		t.Error("bob joined with wrong password")
	}
	if err := r.Join("bob", "x"); err != nil {
		t.Errorf("Got: %v; Expected: nil", err)
	}
	if !r.HasMember("bob") {
		t.Error("bob missing after correct password")
	}
	if r.IsAdmin("bob") {
		t.Error("joining granted admin")
	}
}

func TestRoomPasswordCaseSensitive(t *testing.T) {
	roster := MockRoster{}
	roster.add("alice")
	r := newTestRoom(t, "vip", "alice", "Secret", roster)

	if err := r.Join("bob", "secret"); err != ErrWrongPassword {
		t.Errorf("Got: %v; Expected: %v", err, ErrWrongPassword)
	}
}

func TestRoomBanExclusion(t *testing.T) {
	roster := MockRoster{}
	roster.add("alice")
	roster.add("bob")
	r := newTestRoom(t, "lobby", "alice", "x", roster)
	if err := r.Join("bob", "x"); err != nil {
		t.Fatal(err)
	}

	if err := r.Ban("bob", 0); err != nil {
		t.Fatal(err)
	}
	if r.HasMember("bob") {
		t.Error("bob still a member after ban")
	}
	if expected := []string{"bob"}; !reflect.DeepEqual(r.Banned(), expected) {
		t.Errorf("Got: %v; Expected: %v", r.Banned(), expected)
	}
	// Banned beats a correct password.
	if err := r.Join("bob", "x"); err != ErrBanned {
		t.Errorf("Got: %v; Expected: %v", err, ErrBanned)
	}
}

func TestRoomTimedBanExpires(t *testing.T) {
	roster := MockRoster{}
	roster.add("alice")
	roster.add("bob")
	r := newTestRoom(t, "lobby", "alice", "", roster)
	if err := r.Join("bob", ""); err != nil {
		t.Fatal(err)
	}

	if err := r.Ban("bob", time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := r.Join("bob", ""); err != ErrBanned {
		t.Errorf("Got: %v; Expected: %v", err, ErrBanned)
	}

	time.Sleep(5 * time.Millisecond)
	if err := r.Join("bob", ""); err != nil {
		t.Errorf("Got: %v; Expected: rejoin after ban expiry", err)
	}
}

func TestRoomAdminPromotionOnDeparture(t *testing.T) {
	roster := MockRoster{}
	roster.add("alice")
	roster.add("bob")
	r := newTestRoom(t, "lobby", "alice", "", roster)
	if err := r.Join("bob", ""); err != nil {
		t.Fatal(err)
	}

	empty, err := r.Leave("alice")
	if err != nil {
		t.Fatal(err)
	}
	if empty {
		t.Error("room reported empty with bob remaining")
	}
	if expected := []string{"bob"}; !reflect.DeepEqual(r.Members(), expected) {
		t.Errorf("Got: %v; Expected: %v", r.Members(), expected)
	}
	if !r.IsAdmin("bob") {
		t.Error("bob was not promoted after last admin left")
	}
}

func TestRoomAdminNeverEmptyWhileOccupied(t *testing.T) {
	roster := MockRoster{}
	for _, name := range []string{"alice", "bob", "carol"} {
		roster.add(name)
	}
	r := newTestRoom(t, "lobby", "alice", "", roster)
	r.Join("bob", "")
	r.Join("carol", "")

	// Evict members in varying order; the admin set must stay non-empty
	// after every mutation while users remain.
	if err := r.Remove("bob"); err != nil {
		t.Fatal(err)
	}
	if len(r.Admins()) == 0 {
		t.Fatal("admins empty after removing a plain member")
	}
	if _, err := r.Leave("alice"); err != nil {
		t.Fatal(err)
	}
	if len(r.Admins()) == 0 {
		t.Fatal("admins empty with carol still in the room")
	}
	if !r.IsAdmin("carol") {
		t.Error("carol was not promoted")
	}
}

func TestRoomEmptyClosesAndSignals(t *testing.T) {
	roster := MockRoster{}
	roster.add("alice")
	r := newTestRoom(t, "lobby", "alice", "", roster)

	signalled := false
	r.onEmpty = func() { signalled = true }

	empty, err := r.Leave("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !empty {
		t.Error("room did not report empty")
	}
	if !signalled {
		t.Error("room did not signal its removal")
	}
	// A join racing with teardown is refused.
	if err := r.Join("bob", ""); err != ErrRoomClosed {
		t.Errorf("Got: %v; Expected: %v", err, ErrRoomClosed)
	}
}

func TestRoomDropsInputFromEvicted(t *testing.T) {
	roster := MockRoster{}
	alice := roster.add("alice")
	roster.add("bob")
	r := newTestRoom(t, "lobby", "alice", "", roster)
	r.Join("bob", "")
	if err := r.Remove("bob"); err != nil {
		t.Fatal(err)
	}
	alice.Reset()

	// In-flight message from the evicted session.
	r.HandleInput("bob", "still here?")

	if got := alice.All(); len(got) != 0 {
		t.Errorf("Got: %d payloads; Expected: 0 after evicted sender", len(got))
	}
}

func TestRoomSkipsUnresolvableRecipient(t *testing.T) {
	roster := MockRoster{}
	roster.add("alice")
	carol := roster.add("carol")
	r := newTestRoom(t, "lobby", "alice", "", roster)
	r.Join("bob", "") // bob has no roster entry: disconnected, not yet cleaned up
	r.Join("carol", "")

	r.HandleInput("alice", "hi")

	got := carol.Last()
	if got == nil || got.Message != "hi" {
		t.Errorf("Got: %+v; Expected: delivery despite unresolvable bob", got)
	}
}

func TestRoomMaxMembers(t *testing.T) {
	roster := MockRoster{}
	roster.add("alice")
	r := newTestRoom(t, "lobby", "alice", "", roster)
	r.SetMaxMembers(2)

	if err := r.Join("bob", ""); err != nil {
		t.Fatal(err)
	}
	if err := r.Join("carol", ""); err != ErrRoomFull {
		t.Errorf("Got: %v; Expected: %v", err, ErrRoomFull)
	}
}
