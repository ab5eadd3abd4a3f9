package identity

import "fmt"

// Decision is a classified permission check result. Workflow transition
// guards consume only Allowed; Reason is surfaced to the caller on denial.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// CanActAsValidator gates the validator half of the first-stage review gate.
func CanActAsValidator(user CurrentUser) Decision {
	if user.IsValidator() {
		return allow()
	}
	return deny("user %s is not a validator", user.ID)
}

// CanActAsOwner gates the owner half of the first-stage review gate. The
// model owner and any authorized delegate may sign; admins may sign on
// their behalf.
func CanActAsOwner(user CurrentUser, ownerID string, delegateIDs []string) Decision {
	if user.IsAdmin() || user.ID == ownerID {
		return allow()
	}
	for _, id := range delegateIDs {
		if id == user.ID {
			return allow()
		}
	}
	return deny("user %s is neither the model owner nor an authorized delegate", user.ID)
}

// CanManageRequest gates update and withdraw on a request: its creator or an
// admin.
func CanManageRequest(user CurrentUser, createdBy string) Decision {
	if user.IsAdmin() || user.ID == createdBy {
		return allow()
	}
	return deny("user %s did not create this request and is not an admin", user.ID)
}

// CanSubmitGlobalApproval gates decisions on GLOBAL second-stage rows.
func CanSubmitGlobalApproval(user CurrentUser) Decision {
	if user.IsAdmin() || user.IsGlobalApprover() {
		return allow()
	}
	return deny("user %s is not a global approver", user.ID)
}

// CanSubmitRegionalApproval gates decisions on REGIONAL second-stage rows:
// the actor must be authorized for the row's region.
func CanSubmitRegionalApproval(user CurrentUser, regionID string) Decision {
	if user.IsAdmin() {
		return allow()
	}
	if user.IsRegionalApprover() && user.HasRegion(regionID) {
		return allow()
	}
	return deny("user %s is not a regional approver for region %s", user.ID, regionID)
}

// CanAdminister gates admin-only operations (manual override clears, rule
// management, admin declines and approval voids).
func CanAdminister(user CurrentUser) Decision {
	if user.IsAdmin() {
		return allow()
	}
	return deny("user %s is not an admin", user.ID)
}
