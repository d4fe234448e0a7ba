// Package identity defines the pluggable Identity collaborator spec.md §1 keeps external to
// this module (user accounts, password hashing, session tokens) while still giving the gateway
// something concrete to call during development and in tests.
//
// Grounded in the teacher's AuthStrategy interface (options.go), generalized from "produce an
// Authorization header value" to "resolve a user and a per-device permission grade."
package identity

import (
	"context"
	"errors"

	"github.com/fleetbridge/devicegw"
)

// Grade is the pluggable permission ordering spec §3/§GLOSSARY defines: R < W < V < M < O. Only
// R (read/subscribe) is checked anywhere in this module; the rest of the ordering is part of the
// contract with the external collaborator, not something this module enforces itself.
type Grade int

const (
	GradeNone Grade = iota
	GradeR
	GradeW
	GradeV
	GradeM
	GradeO
)

func ParseGrade(s string) (Grade, bool) {
	switch s {
	case "R":
		return GradeR, true
	case "W":
		return GradeW, true
	case "V":
		return GradeV, true
	case "M":
		return GradeM, true
	case "O":
		return GradeO, true
	}
	return GradeNone, false
}

// Meets reports whether the receiver grade satisfies a minimum requirement under the R < W < V <
// M < O ordering.
func (g Grade) Meets(minimum Grade) bool { return g >= minimum }

// User is the identity resolved for a subscriber channel attach.
type User struct {
	UserID      string
	DisplayName string
}

// ErrNoSuchUser is returned by Resolve when a token does not map to a known user.
var ErrNoSuchUser = errors.New("identity: no such user")

// Identity is the pluggable collaborator the Subscriber Channel (C8) authorises against. A real
// deployment backs this with a session-token/cookie service; this module never persists
// credentials itself.
type Identity interface {
	// Resolve maps an opaque auth token (e.g. a signed cookie value) to a User. An empty token
	// is valid input and should resolve to the guest identity by convention of the caller, not
	// by this method - ResolveGuest exists for that.
	Resolve(ctx context.Context, token string) (User, error)

	// PermissionGrade returns the grade userID holds for deviceID. Implementations may grant R
	// to all authenticated users for system/discovered/MAC-keyed ids per spec §4.8 step 1; that
	// policy decision belongs to the implementation, not this interface.
	PermissionGrade(ctx context.Context, userID string, deviceID devicegw.DeviceID) (Grade, error)
}

// Guest is the identity used for an unauthenticated attach (spec §4.8: "Guest currently
// bypasses" authorization).
const Guest = "guest"

// ResolveGuest returns the guest User used when no auth token is present.
func ResolveGuest() User { return User{UserID: Guest, DisplayName: "Guest"} }
