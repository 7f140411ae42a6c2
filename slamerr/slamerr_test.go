package slamerr

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestSentinelsSurviveWrapping(t *testing.T) {
	wrapped := errors.Wrap(ErrDegenerateMatch, "mapping")
	test.That(t, errors.Is(wrapped, ErrDegenerateMatch), test.ShouldBeTrue)
	test.That(t, errors.Is(wrapped, ErrExcessiveMotion), test.ShouldBeFalse)
}
