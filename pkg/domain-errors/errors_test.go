package domainerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errKind = errors.New("kind")

func TestWrap_KeepsCauseReachable(t *testing.T) {
	err := Wrap(errKind, CodeValidation, "title too long")

	assert.True(t, errors.Is(err, errKind))
	assert.True(t, HasCode(err, CodeValidation))
	assert.Equal(t, "title too long: kind", err.Error())
	assert.Equal(t, "title too long", Message(err))
}

func TestCodeOf(t *testing.T) {
	t.Run("outermost code wins", func(t *testing.T) {
		inner := New(CodeNotFound, "missing")
		outer := Wrap(inner, CodeInternal, "load failed")
		assert.Equal(t, CodeInternal, CodeOf(outer))
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeForbidden, "not owner"))
		assert.Equal(t, CodeForbidden, CodeOf(err))
		assert.True(t, Is(err, CodeForbidden))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(context.DeadlineExceeded))
		assert.False(t, HasCode(context.DeadlineExceeded, CodeTimeout))
	})
}
