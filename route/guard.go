package route

import (
	"slices"

	"github.com/tablewait/waitlist-admin/auth"
	"github.com/tablewait/waitlist-admin/session"
)

// Decision is the outcome of a navigation.
type Decision struct {
	// Loading is set while the session is still being restored; nothing
	// should be rendered yet.
	Loading bool
	// Route is the screen to render.
	Route ID
	// Redirect is set when Route differs from the requested route.
	Redirect bool
	// NoAccess is set for an authenticated session whose role reaches no
	// route at all. Route is empty.
	NoAccess bool
}

// Guard answers navigation and menu questions from a Table.
type Guard struct {
	table Table
}

// NewGuard returns a Guard over t, or over DefaultTable when t is nil.
func NewGuard(t Table) *Guard {
	if t == nil {
		t = DefaultTable()
	}
	return &Guard{table: t}
}

// Resolve decides what to render when requested is navigated to.
func (g *Guard) Resolve(st session.State, ready bool, requested ID) Decision {
	if !ready || st.Status == session.StatusInitializing {
		return Decision{Loading: true}
	}

	if !st.IsAuthenticated() {
		if requested == Login {
			return Decision{Route: Login}
		}
		return Decision{Route: Login, Redirect: true}
	}

	if len(g.routes(st.Role)) == 0 {
		return Decision{NoAccess: true}
	}
	home := g.home(st)
	if requested == "" || requested == Login {
		return Decision{Route: home, Redirect: true}
	}
	if g.Reachable(st, requested) {
		return Decision{Route: requested}
	}
	return Decision{Route: home, Redirect: true}
}

// Reachable reports whether an authenticated session may open id.
func (g *Guard) Reachable(st session.State, id ID) bool {
	if !st.IsAuthenticated() {
		return false
	}
	return slices.Contains(g.routes(st.Role), id)
}

// Menu lists the routes reachable by st in table order.
func (g *Guard) Menu(st session.State) []ID {
	if !st.IsAuthenticated() {
		return []ID{}
	}
	return slices.Clone(g.routes(st.Role))
}

// ShowBusinessSelector reports whether a business picker is meaningful:
// platform admins are not scoped to businesses, and a single business
// leaves nothing to choose.
func (g *Guard) ShowBusinessSelector(st session.State) bool {
	if !st.IsAuthenticated() || st.Role == auth.RolePlatformAdmin {
		return false
	}
	distinct := make(map[string]struct{}, len(st.BusinessScope))
	for _, id := range st.BusinessScope {
		distinct[id] = struct{}{}
	}
	return len(distinct) > 1
}

func (g *Guard) routes(role auth.Role) []ID {
	if ids, ok := g.table[role]; ok && role != "" {
		return ids
	}
	return g.table[AnyRole]
}

func (g *Guard) home(st session.State) ID {
	routes := g.routes(st.Role)
	if slices.Contains(routes, Dashboard) {
		return Dashboard
	}
	return routes[0]
}
