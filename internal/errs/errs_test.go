package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, NotFound, KindOf(New(NotFound, "gone")))
	assert.Equal(t, Internal, KindOf(errors.New("plain")))

	// Kind survives fmt wrapping.
	wrapped := fmt.Errorf("context: %w", New(Conflict, "taken"))
	assert.Equal(t, Conflict, KindOf(wrapped))
	assert.True(t, Is(wrapped, Conflict))
	assert.False(t, Is(wrapped, NotFound))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "NotFound: no such record", New(NotFound, "no such record").Error())

	cause := errors.New("disk full")
	err := Wrap(BackendUnavailable, "write failed", cause)
	assert.Equal(t, "BackendUnavailable: write failed: disk full", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}
