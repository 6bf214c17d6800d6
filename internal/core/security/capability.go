// Package security maps organizational roles to capability sets.
//
// Authorization is decided against capabilities, never by re-deriving
// behavior from raw role strings at each call site. The mapping is
// evaluated once, when a token is validated into a user context.
package security

// Capability names a single permitted action.
type Capability string

const (
	CapSubmissionCreate Capability = "submission:create"
	CapSubmissionCount  Capability = "submission:count"
	CapSubmissionReview Capability = "submission:review"
	CapSubmissionRead   Capability = "submission:read"
)

// Role is an organizational role carried in the JWT.
type Role string

const (
	// RoleFieldStaff performs physical counts at a branch.
	RoleFieldStaff Role = "field_staff"

	// RoleBranchHead runs a branch and reviews its checks.
	RoleBranchHead Role = "branch_head"

	// RoleInventoryAdmin oversees stock across all branches.
	RoleInventoryAdmin Role = "inventory_admin"

	// RoleOwner has read access to everything.
	RoleOwner Role = "owner"
)

// CapabilitySet supports O(1) capability checks.
type CapabilitySet map[Capability]struct{}

// Has reports whether the set contains c.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the capabilities as strings, for claims and logging.
func (s CapabilitySet) List() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, string(c))
	}
	return out
}

var roleCapabilities = map[Role][]Capability{
	RoleFieldStaff: {
		CapSubmissionCreate,
		CapSubmissionCount,
		CapSubmissionRead,
	},
	RoleBranchHead: {
		CapSubmissionCreate,
		CapSubmissionCount,
		CapSubmissionReview,
		CapSubmissionRead,
	},
	RoleInventoryAdmin: {
		CapSubmissionCreate,
		CapSubmissionReview,
		CapSubmissionRead,
	},
	RoleOwner: {
		CapSubmissionRead,
	},
}

// CapabilitiesFor returns the capability set for a role.
// Unknown roles get an empty set, not an error: a token with an
// unrecognized role authenticates but can do nothing.
func CapabilitiesFor(role Role) CapabilitySet {
	caps := roleCapabilities[role]
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// KnownRole reports whether the role is one the service recognizes.
func KnownRole(role Role) bool {
	_, ok := roleCapabilities[role]
	return ok
}
