package authz

// Capabilities is the permission set carried by an access credential,
// computed once from the snapshot claims. It replaces ad-hoc membership
// checks scattered across handlers.
type Capabilities map[string]struct{}

// NewCapabilities builds a capability set from snapshot permissions.
func NewCapabilities(permissions []string) Capabilities {
	caps := make(Capabilities, len(permissions))
	for _, p := range permissions {
		caps[p] = struct{}{}
	}
	return caps
}

// Authorize reports whether the set grants the required permission.
func (c Capabilities) Authorize(required string) bool {
	_, ok := c[required]
	return ok
}

// HasRole reports whether any of the snapshot roles matches name.
func HasRole(roles []string, name string) bool {
	for _, r := range roles {
		if r == name {
			return true
		}
	}
	return false
}
