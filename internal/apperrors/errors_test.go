package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentinelMatchingSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("create user: %w", ErrEmailTaken)
	require.ErrorIs(t, err, ErrEmailTaken)
	require.NotErrorIs(t, err, ErrUsernameTaken)
	require.Equal(t, KindConflict, KindOf(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("pq: boom")
	err := Wrap(KindInternal, "query failed", cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "query failed: pq: boom", err.Error())
	// Only the message crosses the API boundary.
	require.Equal(t, "query failed", Message(err))
}

func TestKindOfPlainError(t *testing.T) {
	require.Equal(t, KindInternal, KindOf(errors.New("dial tcp: refused")))
	require.Equal(t, "internal server error", Message(errors.New("dial tcp: refused")))
}

func TestTokenKindsAreDistinct(t *testing.T) {
	require.NotErrorIs(t, ErrTokenExpired, ErrTokenSignature)
	require.NotErrorIs(t, ErrTokenSignature, ErrTokenMalformed)
	require.NotErrorIs(t, ErrTokenMalformed, ErrTokenMissing)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindConflict:        http.StatusConflict,
		KindAuthentication:  http.StatusUnauthorized,
		KindTokenMissing:    http.StatusUnauthorized,
		KindTokenMalformed:  http.StatusUnauthorized,
		KindTokenSignature:  http.StatusUnauthorized,
		KindTokenExpired:    http.StatusUnauthorized,
		KindInactiveAccount: http.StatusForbidden,
		KindAuthorization:   http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, HTTPStatus(kind), "kind %s", kind)
	}
}
