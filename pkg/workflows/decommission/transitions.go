package decommission

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/modelrisk/governor/pkg/models"
)

var requestTransitions = map[models.DecommissionStatus][]models.DecommissionStatus{
	models.DecommissionStatusPending: {
		models.DecommissionStatusValidatorApproved,
		models.DecommissionStatusRejected,
		models.DecommissionStatusWithdrawn,
	},
	models.DecommissionStatusValidatorApproved: {
		models.DecommissionStatusApproved,
		models.DecommissionStatusRejected,
		models.DecommissionStatusWithdrawn,
	},
	models.DecommissionStatusApproved:  {},
	models.DecommissionStatusRejected:  {},
	models.DecommissionStatusWithdrawn: {},
}

// CanTransition returns true when a transition is allowed.
func CanTransition(from, to models.DecommissionStatus) bool {
	allowed, ok := requestTransitions[from]
	if !ok {
		return false
	}
	for _, candidate := range allowed {
		if candidate == to {
			return true
		}
	}
	return false
}

// ValidateTransition ensures a request status transition is valid. The error
// carries the current status so callers see why the action was refused.
func ValidateTransition(from, to models.DecommissionStatus) error {
	if !CanTransition(from, to) {
		return httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("cannot move decommission request from %s to %s", from, to))
	}
	return nil
}
