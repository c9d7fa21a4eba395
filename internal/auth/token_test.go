package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)

	token, expires, err := issuer.Issue(7, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	id, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestVerifyRejects(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, _, err := issuer.Issue(7, "alice")
	require.NoError(t, err)

	_, err = NewIssuer("other", time.Hour).Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	expired := NewIssuer("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue(7, "alice")
	require.NoError(t, err)
	_, err = issuer.Verify(old)
	require.ErrorIs(t, err, ErrInvalidToken)
}
