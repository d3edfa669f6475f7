package httpmiddleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhausts(t *testing.T) {
	l := NewTokenBucket(3, 60)

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("1.2.3.4"), "request %d within capacity", i)
	}
	assert.False(t, l.allow("1.2.3.4"), "capacity exhausted")
}

func TestTokenBucketIsolatesKeys(t *testing.T) {
	l := NewTokenBucket(1, 60)

	assert.True(t, l.allow("1.2.3.4"))
	assert.False(t, l.allow("1.2.3.4"))
	assert.True(t, l.allow("5.6.7.8"), "other clients are unaffected")
}
