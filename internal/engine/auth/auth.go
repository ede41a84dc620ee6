package auth

import (
	"errors"
	"fmt"
	"strings"

	"hireline/internal/domain"
)

const (
	PermCandidateCreate     = "candidate.create"
	PermCandidateRead       = "candidate.read"
	PermCandidateTransition = "candidate.transition"
	PermLinkIssue           = "link.issue"
	PermFormRead            = "form.read"
	PermFormReview          = "form.review"
	PermFormReopen          = "form.reopen"
	PermHRDRead             = "hrd.read"
	PermHRDDecide           = "hrd.decide"
	PermEventsRead          = "events.read"
)

// ErrUnauthenticated is returned when no actor identity was resolved.
var ErrUnauthenticated = errors.New("authenticated actor required")

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Require checks that actor is resolved for a tenant and holds perm.
func Require(actor domain.Actor, perm string) error {
	if strings.TrimSpace(actor.UserID) == "" || strings.TrimSpace(actor.TenantID) == "" {
		return ErrUnauthenticated
	}
	if !actor.Has(perm) {
		return ForbiddenError{Permission: perm}
	}
	return nil
}

// CandidateActor is the audit identity used when a candidate acts through their link.
func CandidateActor(candidateID string) string {
	return "candidate:" + candidateID
}
