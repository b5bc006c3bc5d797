package relaychat

import (
	"errors"

	"relaychat/chat"
	"relaychat/set"
)

// The error returned when registering a name that is already connected.
var ErrNameTaken = errors.New("name already taken")

// The error returned when registering an empty name.
var ErrInvalidName = errors.New("invalid name")

// ClientRegistry tracks connected identities by name. Registration is
// atomic: of any number of concurrent registrations for one name, exactly
// one succeeds.
type ClientRegistry struct {
	clients *set.Set
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: set.New(),
	}
}

// Register claims the identity's name. Fails with ErrNameTaken if another
// connected identity holds it.
func (r *ClientRegistry) Register(id *Identity) error {
	if id.Name() == "" {
		return ErrInvalidName
	}
	if err := r.clients.AddNew(set.Itemize(id.Name(), id)); err != nil {
		return ErrNameTaken
	}
	return nil
}

// Lookup resolves a connected name to its identity.
func (r *ClientRegistry) Lookup(name string) (*Identity, bool) {
	item, err := r.clients.Get(name)
	if err != nil {
		return nil, false
	}
	id, ok := item.Value().(*Identity)
	return id, ok
}

// Unregister releases a name. Idempotent, so a double disconnect is
// harmless.
func (r *ClientRegistry) Unregister(name string) {
	r.clients.Remove(name)
}

// Len returns the number of connected identities.
func (r *ClientRegistry) Len() int {
	return r.clients.Len()
}

// Sender implements chat.Roster so rooms can resolve recipients.
func (r *ClientRegistry) Sender(name string) (chat.Sender, bool) {
	id, ok := r.Lookup(name)
	if !ok {
		return nil, false
	}
	return id, true
}
