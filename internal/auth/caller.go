package auth

// Caller is the authenticated identity behind a request. It is established
// once by the authentication middleware and never mutated afterwards.
type Caller struct {
	UID   string
	Email string
	Role  Role
}

// Authenticated reports whether c carries a verified identity.
func (c Caller) Authenticated() bool { return c.UID != "" }
