// Package session owns the client-side authentication state of the waitlist
// admin tools.
//
// A Manager holds the bearer token together with what is derived from it: the
// role, the businesses the token is scoped to and the business currently
// being administered. Only the token and the active business id are
// persisted; role and scope are decoded from the token every time it is
// loaded.
//
// Typical use:
//
//	m, err := session.New(store, api, checker)
//	if err != nil { ... }
//	_ = m.Initialize(ctx)
//	<-m.Ready()
//	if !m.State().IsAuthenticated() {
//		err = m.Login(ctx, auth.Credentials{Username: u, Password: p})
//	}
//
// The active business is resolved the same way after a restore and after a
// login: a previously selected business is kept while the token still grants
// it, otherwise the first business of the scope is selected.
//
// Login and Resync refuse to start while another mutation is running and
// return ErrOperationInFlight. Initialize, Logout, SetActiveBusiness and
// HandleUnauthorized wait their turn.
package session
