package bridge

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// TestKindRoundTrip checks that every kind survives its wire code and that unknown codes collapse to internal.
func TestKindRoundTrip(t *testing.T) {
	for _, k := range []Kind{KindValidation, KindDuplicate, KindNotFound, KindUnavailable, KindTimeout, KindInternal} {
		assert.Equal(t, k, KindFromCode(k.String()))
	}
	assert.Equal(t, KindInternal, KindFromCode("actor_mailbox_overflow")) // node detail must not leak through
	assert.Equal(t, KindInternal, KindFromCode(""))
}

// TestKindOf checks classification through wrapping and for foreign errors.
func TestKindOf(t *testing.T) {
	err := NewError(KindDuplicate, "request already processed")
	assert.Equal(t, KindDuplicate, KindOf(err))
	assert.True(t, IsDuplicate(errors.Wrap(err, "submit")))
	assert.False(t, IsNotFound(err))

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.True(t, IsTimeout(Errorf(KindTimeout, "deadline after %ds", 15)))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "not_found: subject", NewError(KindNotFound, "subject").Error())
	assert.Equal(t, "unavailable", NewError(KindUnavailable, "").Error())
}
