// Package identity carries the authenticated actor and the capability checks
// the governance workflows consult before mutating state.
package identity

// Role classifies an authenticated actor.
type Role string

const (
	RoleAdmin            Role = "admin"
	RoleValidator        Role = "validator"
	RoleGlobalApprover   Role = "global_approver"
	RoleRegionalApprover Role = "regional_approver"
	RoleUser             Role = "user"
)

// CurrentUser is the actor attached to every inbound request. Authentication
// itself happens upstream; this service only consumes the resolved identity.
type CurrentUser struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Regions []string `json:"regions,omitempty"` // regions a regional approver is authorized for
}

func (u CurrentUser) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u CurrentUser) IsValidator() bool {
	return u.Role == RoleValidator || u.Role == RoleAdmin
}

func (u CurrentUser) IsGlobalApprover() bool {
	return u.Role == RoleGlobalApprover
}

func (u CurrentUser) IsRegionalApprover() bool {
	return u.Role == RoleRegionalApprover
}

// HasRegion reports whether the actor is authorized for the given region.
func (u CurrentUser) HasRegion(regionID string) bool {
	for _, r := range u.Regions {
		if r == regionID {
			return true
		}
	}
	return false
}
