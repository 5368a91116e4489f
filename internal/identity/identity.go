// Package identity declares the external credential-store collaborator. The
// auth core never implements password hashing or storage; it consumes the
// verified identity this interface returns.
package identity

import "context"

// Result is the verified identity supplied by the credential store.
type Result struct {
	SubjectID  string
	Role       string
	IsActive   bool
	IsVerified bool
}

// Verifier checks submitted credentials against the external store.
// Implementations must return models.ErrUnauthorized semantics via a nil
// result and an error; the core treats the result as opaque input.
type Verifier interface {
	VerifyCredentials(ctx context.Context, identity, credential string) (*Result, error)
}
