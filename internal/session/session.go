// Package session tracks who is signed in for one client and how far the
// authentication provider has got in telling us.
package session

import (
	"github.com/gofrs/uuid"
)

type State int

const (
	// Resolving is the state before the provider's first notification.
	Resolving State = iota
	Unauthenticated
	Authenticated
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

type Identity struct {
	UserID    uuid.UUID `json:"user_id"`
	SessionID uuid.UUID `json:"session_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
}

// Snapshot is an immutable view of a Store at one point in time.
type Snapshot struct {
	State    State
	Identity *Identity
}

func (s Snapshot) Loading() bool {
	return s.State == Resolving
}

// ChangeFunc receives the provider's view of the session: an identity when
// signed in, nil otherwise.
type ChangeFunc func(identity *Identity)

// Provider is the authentication side of the session. Watch delivers the
// current identity for token asynchronously and keeps delivering on every
// later change (sign-out, revocation) until the returned stop func is called.
type Provider interface {
	Watch(token string, fn ChangeFunc) (stop func())
}
