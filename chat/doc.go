/*
Package chat is a transport-agnostic implementation of the relay's room
engine: room membership, admin and ban bookkeeping, password gating, and the
in-room command interpreter.

This package should not know anything about sockets. Delivery goes through
the Roster interface, which resolves a member name to something that can
accept a wire payload.
*/
package chat
