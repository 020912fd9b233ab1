package errmap_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"pairbench/server/pkg/errmap"
)

func TestHTTPStatusPerCode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		code errmap.Code
		want int
	}{
		{errmap.CodeValidation, http.StatusBadRequest},
		{errmap.CodeUnauthenticated, http.StatusUnauthorized},
		{errmap.CodeAccessDenied, http.StatusForbidden},
		{errmap.CodeNotFound, http.StatusNotFound},
		{errmap.CodeLockConflict, http.StatusLocked},
		{errmap.CodeJoinConflict, http.StatusConflict},
		{errmap.CodeQueueFull, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		got := errmap.HTTPStatus(errmap.New(tc.code, "", nil))
		require.Equal(t, tc.want, got, "code %s", tc.code)
	}
}

func TestMapPassesThroughMappedErrors(t *testing.T) {
	t.Parallel()
	orig := errmap.New(errmap.CodeLockConflict, "held elsewhere", nil)
	wrapped := fmt.Errorf("handler: %w", orig)

	mapped := errmap.Map(wrapped)
	require.Equal(t, errmap.CodeLockConflict, errmap.CodeOf(mapped))
}

func TestMapClassifiesContextErrors(t *testing.T) {
	t.Parallel()
	require.Equal(t, errmap.CodeCanceled, errmap.CodeOf(errmap.Map(context.Canceled)))
	require.Equal(t, errmap.CodeExecutionTimeout, errmap.CodeOf(errmap.Map(context.DeadlineExceeded)))
}

func TestUnwrapPreservesCause(t *testing.T) {
	t.Parallel()
	cause := errors.New("row missing")
	err := errmap.New(errmap.CodeNotFound, "file not found", cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "file not found", err.Error())
}

func TestHumanizedMessageWhenEmpty(t *testing.T) {
	t.Parallel()
	err := errmap.New(errmap.CodeQueueFull, "", nil)
	require.Equal(t, "execution queue is full", err.Error())
}

func TestMapConstraintErrorsAreScoped(t *testing.T) {
	t.Parallel()

	membership := errors.New("constraint failed: UNIQUE constraint failed: workspace_members.workspace_id, workspace_members.user_id")
	require.Equal(t, errmap.CodeJoinConflict, errmap.CodeOf(errmap.Map(membership)))

	// A uniqueness violation on any other table is a server defect, never a
	// client-facing join conflict.
	other := errors.New("constraint failed: UNIQUE constraint failed: users.email")
	require.Equal(t, errmap.CodeUnexpected, errmap.CodeOf(errmap.Map(other)))
}
