package auth

// Role is the authorization role carried by a token. Values outside the
// known set are preserved verbatim.
type Role string

const (
	RolePlatformAdmin Role = "PLATFORM_ADMIN"
	RoleBusinessOwner Role = "BUSINESS_OWNER"
	RoleBusinessStaff Role = "BUSINESS_STAFF"
)

// knownRoles is ordered by fallback scan priority.
var knownRoles = []Role{RolePlatformAdmin, RoleBusinessOwner, RoleBusinessStaff}

// KnownRoles returns the closed set of roles in priority order.
func KnownRoles() []Role { return append([]Role(nil), knownRoles...) }

// Known reports whether r is one of the three platform roles.
func (r Role) Known() bool {
	for _, k := range knownRoles {
		if r == k {
			return true
		}
	}
	return false
}

// Scoped reports whether sessions with this role act on specific businesses.
func (r Role) Scoped() bool {
	return r == RoleBusinessOwner || r == RoleBusinessStaff
}

func (r Role) String() string { return string(r) }
