package storageopt

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

func TestWrapPrimary(t *testing.T) {
	cause := errors.New("connection refused")

	assert.NoError(t, WrapPrimary("xtest", nil, false))

	err := WrapPrimary("xtest", cause, false)
	assert.ErrorIs(t, err, xgeo.ErrPrimaryUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, xgeo.ErrInvalidQuery)

	err = WrapPrimary("xtest", cause, true)
	assert.ErrorIs(t, err, xgeo.ErrInvalidQuery)
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("query: %w", context.DeadlineExceeded)
	assert.Same(t, wrapped, WrapPrimary("xtest", wrapped, false))

	// 已分类的错误不重复包装
	assert.Same(t, xgeo.ErrInvalidFilter, WrapPrimary("xtest", xgeo.ErrInvalidFilter, false))
}
