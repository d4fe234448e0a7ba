package identity

import (
	"context"
	"sync"

	"github.com/fleetbridge/devicegw"
)

// Static is a development-profile Identity: it grants every resolved token a configured grade
// on every device, and assigns a stable display name the first time a user_id is seen. It is not
// suitable for production auth decisions - it exists so the gateway is runnable end-to-end
// without a real Identity service (spec §1's Non-goals keep that service external, they do not
// forbid a harmless stand-in), mirroring the teacher's StaticAuth.
type Static struct {
	DefaultGrade Grade

	mu    sync.Mutex
	names map[string]string
}

// NewStatic constructs a Static identity provider granting defaultGrade to every user.
func NewStatic(defaultGrade Grade) *Static {
	return &Static{DefaultGrade: defaultGrade, names: make(map[string]string)}
}

func (s *Static) Resolve(_ context.Context, token string) (User, error) {
	if token == "" {
		return ResolveGuest(), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.names[token]
	if !ok {
		name = token
		s.names[token] = name
	}
	return User{UserID: token, DisplayName: name}, nil
}

func (s *Static) PermissionGrade(_ context.Context, _ string, _ devicegw.DeviceID) (Grade, error) {
	return s.DefaultGrade, nil
}
