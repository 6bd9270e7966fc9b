package session

import (
	"slices"

	"github.com/tablewait/waitlist-admin/auth"
)

// Status is the lifecycle position of the session.
type Status int

const (
	StatusUnauthenticated Status = iota
	StatusInitializing
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusInitializing:
		return "initializing"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of the session. Snapshots handed out by the
// Manager share no memory with its internal copy.
type State struct {
	Status Status
	// Role is empty when the token carries no recognizable role.
	Role auth.Role
	// BusinessScope keeps the token's order, duplicates included.
	BusinessScope []string
	// ActiveBusinessID is nil or an element of BusinessScope.
	ActiveBusinessID *string

	token string
}

// IsAuthenticated reports whether a validated token backs this state.
func (s State) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated
}

// ActiveBusiness returns the selected business, if any.
func (s State) ActiveBusiness() (string, bool) {
	if s.ActiveBusinessID == nil {
		return "", false
	}
	return *s.ActiveBusinessID, true
}

// InScope reports whether id is one of the businesses the token grants.
func (s State) InScope(id string) bool {
	return slices.Contains(s.BusinessScope, id)
}

func (s State) clone() State {
	out := s
	out.BusinessScope = slices.Clone(s.BusinessScope)
	if out.BusinessScope == nil {
		out.BusinessScope = []string{}
	}
	if s.ActiveBusinessID != nil {
		id := *s.ActiveBusinessID
		out.ActiveBusinessID = &id
	}
	return out
}

func (s State) equal(o State) bool {
	if s.Status != o.Status || s.Role != o.Role || s.token != o.token {
		return false
	}
	if !slices.Equal(s.BusinessScope, o.BusinessScope) {
		return false
	}
	a, aok := s.ActiveBusiness()
	b, bok := o.ActiveBusiness()
	return aok == bok && a == b
}

func unauthenticated() State {
	return State{Status: StatusUnauthenticated, BusinessScope: []string{}}
}

// resolveActiveBusiness keeps persisted when it is still in scope, otherwise
// falls back to the first scoped business, otherwise nil.
func resolveActiveBusiness(persisted *string, scope []string) *string {
	if persisted != nil && slices.Contains(scope, *persisted) {
		id := *persisted
		return &id
	}
	if len(scope) > 0 {
		id := scope[0]
		return &id
	}
	return nil
}
