package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hireline/internal/domain"
	"hireline/internal/engine/auth"
)

func TestRequire(t *testing.T) {
	actor := domain.Actor{TenantID: "acme", UserID: "rina", Permissions: []string{auth.PermHRDDecide}}
	assert.NoError(t, auth.Require(actor, auth.PermHRDDecide))

	err := auth.Require(actor, auth.PermCandidateTransition)
	var fe auth.ForbiddenError
	assert.ErrorAs(t, err, &fe)
	assert.Equal(t, auth.PermCandidateTransition, fe.Permission)

	assert.ErrorIs(t, auth.Require(domain.Actor{UserID: "rina"}, auth.PermHRDDecide), auth.ErrUnauthenticated)
	assert.ErrorIs(t, auth.Require(domain.Actor{TenantID: "acme"}, auth.PermHRDDecide), auth.ErrUnauthenticated)
}
