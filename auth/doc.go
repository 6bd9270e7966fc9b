// Package auth decodes the claims a waitlist platform bearer token carries
// and checks whether a token is still usable.
//
// # Decoding
//
// DecodeRole and DecodeBusinessScope read the unverified payload of a compact
// JWT. They never fail: a token that cannot be read simply carries no claims.
//
//	role, ok := auth.DecodeRole(tok)
//	if ok && role == auth.RolePlatformAdmin { /* platform-wide screens */ }
//	scope := auth.DecodeBusinessScope(tok) // []string{"b-1", "b-2"}
//
// The role claim is read from "role" when present. Tokens issued by the login
// endpoint instead carry a "roles" authority list; its serialized form is
// scanned for the known role names in the order PLATFORM_ADMIN,
// BUSINESS_OWNER, BUSINESS_STAFF. The scan matches substrings, so a claim
// value that happens to embed another role's name is matched too.
//
// # Validity
//
// A ValidityChecker decides whether a stored token may still be used. Two
// local implementations are provided: NewExpiryChecker inspects the exp claim
// without verifying the signature, and NewJWKSChecker verifies the signature
// against a JWKS endpoint as well. ChainCheckers combines them with a remote
// check such as the API client's token validation endpoint.
package auth
