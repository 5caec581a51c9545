package storageopt

import (
	"context"
	"errors"
	"fmt"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

// WrapPrimary 将 PrimaryStore 后端错误映射到 xgeo 错误分类。
//
// context 错误原样返回；invalid 为 true 时包装 ErrInvalidQuery，
// 其余包装 ErrPrimaryUnavailable。两种包装都保留原始错误链。
func WrapPrimary(component string, err error, invalid bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, xgeo.ErrInvalidQuery) || errors.Is(err, xgeo.ErrPrimaryUnavailable) {
		return err
	}
	if invalid {
		return fmt.Errorf("%w: %s: %w", xgeo.ErrInvalidQuery, component, err)
	}
	return fmt.Errorf("%w: %s: %w", xgeo.ErrPrimaryUnavailable, component, err)
}
