package channel

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/fleetbridge/devicegw/internal/discovery"
	"github.com/fleetbridge/devicegw/internal/eventstore"
	"github.com/fleetbridge/devicegw/internal/identity"
	"github.com/fleetbridge/devicegw/internal/manager"
)

// AuthCookieName is the signed session cookie spec §6 describes; its absence yields guest.
const AuthCookieName = "devicegw_session"

// Handler upgrades HTTP connections on the `/channel` path (spec §6) to the duplex subscriber
// protocol.
type Handler struct {
	Upgrader  websocket.Upgrader
	Manager   *manager.Manager
	Store     *eventstore.Store
	Identity  identity.Identity
	Discovery *discovery.Browser
	Log       *logrus.Entry
}

// NewHandler constructs a Handler with a permissive same-process Upgrader; deployments behind a
// reverse proxy are expected to enforce origin checks upstream.
func NewHandler(mgr *manager.Manager, store *eventstore.Store, id identity.Identity, disc *discovery.Browser, log *logrus.Entry) *Handler {
	return &Handler{
		Upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		Manager:   mgr,
		Store:     store,
		Identity:  id,
		Discovery: disc,
		Log:       log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := identity.ResolveGuest()
	if h.Identity != nil {
		if cookie, err := r.Cookie(AuthCookieName); err == nil && cookie.Value != "" {
			if resolved, err := h.Identity.Resolve(r.Context(), cookie.Value); err == nil {
				user = resolved
			} else {
				h.Log.WithError(err).Debug("identity resolve failed, falling back to guest")
			}
		}
	}

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := newClient(conn, user, h.Manager, h.Store, h.Identity, h.Discovery, h.Log)
	go c.run()
}
