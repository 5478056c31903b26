// Package guard gates navigation. For every navigation attempt it
// decides — synchronously, from the stored credential alone — whether
// to render the requested surface, redirect, or force-expire a stale
// session. It never makes a network call: all the information it needs
// is embedded in the token claims.
package guard

import (
	"strings"
	"time"

	"github.com/danti/wastewatch/internal/model"
	"github.com/danti/wastewatch/internal/session"
)

// Kind classifies a navigation surface.
type Kind int

const (
	// KindPublic surfaces render only for anonymous visitors; an
	// authenticated user is bounced to their role landing route.
	KindPublic Kind = iota
	// KindProtected surfaces require a valid session and an allowed role.
	KindProtected
	// KindPrint surfaces are protected print layouts (reports without
	// navigation chrome); access rules match KindProtected.
	KindPrint
)

// Route is one entry in the navigation surface table.
type Route struct {
	Path  string
	Kind  Kind
	Roles []model.Role // empty means any authenticated role
}

// Link is a navigation entry shown in the dashboard chrome.
type Link struct {
	Label string
	Path  string
	Roles []model.Role
}

// Decision is the outcome of one navigation attempt. Exactly one of
// Render or RedirectTo is meaningful.
type Decision struct {
	Render     bool
	RedirectTo string
	// Notice, when set, must be surfaced as a blocking message before
	// the redirect is followed. Only session expiry sets it.
	Notice string
}

// SessionExpiredNotice is the blocking message shown when a stale
// session is force-expired.
const SessionExpiredNotice = "Session Expired"

const (
	loginPath       = "/login"
	homePath        = "/"
	adminLanding    = "/admin/"
	contribLanding  = "/contributor/"
	adminPrefix     = "/admin/"
	contribPrefix   = "/contributor/"
)

// DefaultRoutes is the client's routing surface: the public group, the
// admin subtree, the contributor subtree, and the print layouts.
func DefaultRoutes() []Route {
	admin := []model.Role{model.RoleAdmin}
	contrib := []model.Role{model.RoleContributor}
	return []Route{
		{Path: "/", Kind: KindPublic},
		{Path: "/login", Kind: KindPublic},
		{Path: "/sign-up", Kind: KindPublic},
		{Path: "/about", Kind: KindPublic},

		{Path: "/admin/", Kind: KindProtected, Roles: admin},
		{Path: "/admin/user-management", Kind: KindProtected, Roles: admin},
		{Path: "/admin/data-entry", Kind: KindProtected, Roles: admin},
		{Path: "/admin/settings", Kind: KindProtected, Roles: admin},
		{Path: "/admin/reports", Kind: KindProtected, Roles: admin},
		{Path: "/admin/reports/print", Kind: KindPrint, Roles: admin},

		{Path: "/contributor/", Kind: KindProtected, Roles: contrib},
		{Path: "/contributor/data-entry", Kind: KindProtected, Roles: contrib},
		{Path: "/contributor/settings", Kind: KindProtected, Roles: contrib},
	}
}

// DefaultLinks is the full navigation link set across both roles; the
// chrome renders the subset VisibleLinks returns for the current role.
func DefaultLinks() []Link {
	admin := []model.Role{model.RoleAdmin}
	contrib := []model.Role{model.RoleContributor}
	return []Link{
		{Label: "Dashboard", Path: "/admin/", Roles: admin},
		{Label: "User Management", Path: "/admin/user-management", Roles: admin},
		{Label: "Data Entry", Path: "/admin/data-entry", Roles: admin},
		{Label: "Reports", Path: "/admin/reports", Roles: admin},
		{Label: "Settings", Path: "/admin/settings", Roles: admin},
		{Label: "Dashboard", Path: "/contributor/", Roles: contrib},
		{Label: "Data Entry", Path: "/contributor/data-entry", Roles: contrib},
		{Label: "Settings", Path: "/contributor/settings", Roles: contrib},
	}
}

// Guard evaluates navigation attempts against the session.
type Guard struct {
	session *session.Manager
	routes  []Route
	links   []Link
	now     func() time.Time
}

// New returns a Guard over the default routing surface. now may be nil,
// in which case time.Now is used (tests inject a fixed clock).
func New(sess *session.Manager, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{
		session: sess,
		routes:  DefaultRoutes(),
		links:   DefaultLinks(),
		now:     now,
	}
}

// RoleLanding returns the landing route for a role. Anything that is
// not an administrator lands on the contributor dashboard.
func RoleLanding(role model.Role) string {
	if role == model.RoleAdmin {
		return adminLanding
	}
	return contribLanding
}

// Resolve evaluates one navigation attempt to path.
//
// The session is in exactly one of three states, checked in order:
//
//	NoSession      — nothing stored, or the stored token does not decode.
//	ExpiredSession — token decodes but exp (seconds) * 1000 <= now (ms).
//	ValidSession   — token decodes and is not yet expired.
//
// ExpiredSession clears the credential before redirecting, so a repeat
// navigation lands in NoSession — one clear, one redirect, no loop.
func (g *Guard) Resolve(path string) Decision {
	route := g.match(path)

	if !g.session.IsAuthenticated() {
		if route.Kind == KindPublic {
			if g.known(route.Path) {
				return Decision{Render: true}
			}
			// Catch-all: unknown public paths go home.
			return Decision{RedirectTo: homePath}
		}
		return Decision{RedirectTo: loginPath}
	}

	// No clock-skew tolerance: a server-issued exp is compared against
	// the local clock as-is, matching the observed behavior.
	if g.session.Expiration()*1000 <= g.now().UnixMilli() {
		g.session.Clear()
		return Decision{RedirectTo: loginPath, Notice: SessionExpiredNotice}
	}

	role, _ := g.session.Role()
	switch route.Kind {
	case KindPublic:
		// An authenticated user never sees the login form (or any other
		// public-only page); they land on their dashboard instead.
		return Decision{RedirectTo: RoleLanding(role)}
	default:
		if g.known(route.Path) && roleAllowed(route.Roles, role) {
			return Decision{Render: true}
		}
		// Wrong subtree or an unknown protected path: back to the
		// role's own landing route rather than an error page.
		return Decision{RedirectTo: RoleLanding(role)}
	}
}

// VisibleLinks returns the navigation links whose allowed roles include
// role. It filters the declared set on every call — never cached — so a
// role change takes effect on the next paint.
func (g *Guard) VisibleLinks(role model.Role) []Link {
	visible := make([]Link, 0, len(g.links))
	for _, l := range g.links {
		if roleAllowed(l.Roles, role) {
			visible = append(visible, l)
		}
	}
	return visible
}

// match finds the route table entry for path, or synthesizes one for
// paths not in the table: unknown paths under a protected prefix stay
// protected (with that subtree's roles), everything else falls through
// to the public catch-all.
func (g *Guard) match(path string) Route {
	path = normalize(path)
	for _, r := range g.routes {
		if r.Path == path {
			return r
		}
	}
	if strings.HasPrefix(path, adminPrefix) {
		return Route{Path: path, Kind: KindProtected, Roles: []model.Role{model.RoleAdmin}}
	}
	if strings.HasPrefix(path, contribPrefix) {
		return Route{Path: path, Kind: KindProtected, Roles: []model.Role{model.RoleContributor}}
	}
	return Route{Path: path, Kind: KindPublic}
}

// known reports whether path is an entry in the declared table (as
// opposed to a synthesized catch-all match).
func (g *Guard) known(path string) bool {
	for _, r := range g.routes {
		if r.Path == path {
			return true
		}
	}
	return false
}

// normalize maps subtree index paths ("/admin") onto their canonical
// trailing-slash form ("/admin/") so both spellings hit the same route.
func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if path == "/admin" || path == "/contributor" {
		return path + "/"
	}
	return path
}

func roleAllowed(allowed []model.Role, role model.Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
