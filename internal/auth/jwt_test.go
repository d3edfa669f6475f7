package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	token, exp, err := Issue("id-1", "student", "classattend", "secret", 7*24*time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), exp, 5*time.Second)

	claims, err := Parse(token, "secret", "classattend")
	require.NoError(t, err)
	assert.Equal(t, "id-1", claims.IdentityID)
	assert.Equal(t, "student", claims.Role)
	assert.Equal(t, "classattend", claims.Issuer)
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, _, err := Issue("id-1", "student", "classattend", "secret", time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "other-secret", "classattend")
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	token, _, err := Issue("id-1", "student", "other-app", "secret", time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "secret", "classattend")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	token, _, err := Issue("id-1", "student", "classattend", "secret", -time.Minute)
	require.NoError(t, err)

	_, err = Parse(token, "secret", "classattend")
	assert.Error(t, err)
}
