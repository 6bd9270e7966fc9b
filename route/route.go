// Package route decides which admin screens a session may reach.
//
// Reachability is data: a Table maps each role to its routes and a single
// Guard consults it for every navigation.
package route

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/tablewait/waitlist-admin/auth"
	"gopkg.in/yaml.v3"
)

// ID names a screen.
type ID string

const (
	Login         ID = "login"
	Dashboard     ID = "dashboard"
	Businesses    ID = "businesses"
	Reservations  ID = "reservations"
	Waitlist      ID = "waitlist"
	Customers     ID = "customers"
	Users         ID = "users"
	Subscriptions ID = "subscriptions"
	PlatformAdmin ID = "platform-admin"
)

// All lists every known route in menu order.
func All() []ID {
	return []ID{Login, Dashboard, Businesses, Reservations, Waitlist, Customers, Users, Subscriptions, PlatformAdmin}
}

// Known reports whether id names a route.
func (id ID) Known() bool {
	return slices.Contains(All(), id)
}

// AnyRole keys the routes of sessions whose role is absent or not in the table.
const AnyRole auth.Role = "*"

// Table maps a role to the routes it may reach, in menu order.
type Table map[auth.Role][]ID

// DefaultTable mirrors the API's authorization rules.
func DefaultTable() Table {
	return Table{
		auth.RolePlatformAdmin: {Dashboard, Businesses, Reservations, Waitlist, Customers, Users, Subscriptions, PlatformAdmin},
		auth.RoleBusinessOwner: {Dashboard, Businesses, Reservations, Waitlist, Customers, Users},
		auth.RoleBusinessStaff: {Dashboard, Reservations, Waitlist, Customers},
		AnyRole:                {Dashboard},
	}
}

// Validate rejects unknown route ids and the login route, which is never
// role-gated. The AnyRole entry must grant at least one route so that every
// authenticated session has a landing screen.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("route: empty table")
	}
	if len(t[AnyRole]) == 0 {
		return fmt.Errorf("route: %q entry must grant at least one route", AnyRole)
	}
	for role, ids := range t {
		if role == "" {
			return fmt.Errorf("route: empty role name")
		}
		for _, id := range ids {
			if !id.Known() {
				return fmt.Errorf("route: role %s: unknown route %q", role, id)
			}
			if id == Login {
				return fmt.Errorf("route: role %s: %q cannot be granted", role, id)
			}
		}
	}
	return nil
}

// LoadTable parses a YAML document of the form
//
//	PLATFORM_ADMIN: [dashboard, businesses]
//	"*": [dashboard]
//
// and validates it.
func LoadTable(r io.Reader) (Table, error) {
	var raw map[string][]string
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("route: empty table")
		}
		return nil, fmt.Errorf("route: decode table: %w", err)
	}

	t := make(Table, len(raw))
	for role, ids := range raw {
		routes := make([]ID, 0, len(ids))
		for _, id := range ids {
			routes = append(routes, ID(id))
		}
		t[auth.Role(role)] = routes
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
