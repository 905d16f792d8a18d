package common

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

func TestErrorCause(t *testing.T) {
	err := errors.Wrapf(ErrTimeout, "query %s", "get_online_count")
	assert.T(t, IsTimeout(err), "wrapped timeout should be a timeout")
	assert.T(t, !IsChannelClosed(err), "timeout is not channel closed")
	assert.T(t, IsChannelClosed(errors.Wrap(ErrChannelClosed, "x")), "should be channel closed")
	assert.T(t, IsNotFound(errors.Wrap(ErrNotFound, "service")), "should be not found")
	assert.T(t, !IsTimeout(nil), "nil is no error")
}
