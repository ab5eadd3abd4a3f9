package validation

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/modelrisk/governor/pkg/models"
)

var requestTransitions = map[models.ValidationStatus][]models.ValidationStatus{
	models.ValidationStatusRequested: {
		models.ValidationStatusInProgress,
		models.ValidationStatusDeclined,
		models.ValidationStatusCancelled,
	},
	models.ValidationStatusInProgress: {
		models.ValidationStatusInReview,
		models.ValidationStatusDeclined,
		models.ValidationStatusCancelled,
	},
	models.ValidationStatusInReview: {
		models.ValidationStatusApproved,
		models.ValidationStatusDeclined,
		models.ValidationStatusCancelled,
	},
	models.ValidationStatusApproved:  {},
	models.ValidationStatusDeclined:  {},
	models.ValidationStatusCancelled: {},
}

// CanTransition returns true when a transition is allowed.
func CanTransition(from, to models.ValidationStatus) bool {
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

// ValidateTransition ensures a validation status transition is valid.
func ValidateTransition(from, to models.ValidationStatus) error {
	if !CanTransition(from, to) {
		return httperror.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("cannot move validation request from %s to %s", from, to))
	}
	return nil
}
