package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleStudent.Valid())
	assert.True(t, RoleTeacher.Valid())
	assert.False(t, Role("admin").Valid())
	assert.False(t, Role("").Valid())
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", normalizeEmail("  A@X.COM "))
	assert.Equal(t, "a@x.com", normalizeEmail("a@x.com"))
}
