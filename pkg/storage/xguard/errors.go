package xguard

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

var (
	// ErrNilStore 表示被包装的 PrimaryStore 为 nil。
	ErrNilStore = errors.New("xguard: primary store cannot be nil")

	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xguard: context cannot be nil")

	// ErrClosed 表示 Primary 已关闭。
	ErrClosed = errors.New("xguard: primary closed")
)

// BreakerError 表示请求被熔断器拦截，下游未被访问。
//
// 同时匹配 xgeo.ErrPrimaryUnavailable 与 gobreaker 的原始错误
// （ErrOpenState 或 ErrTooManyRequests）。
type BreakerError struct {
	Err   error
	Name  string
	State State
}

func (e *BreakerError) Error() string {
	return fmt.Sprintf("xguard: breaker %s: %v", e.Name, e.Err)
}

// Unwrap 同时暴露错误分类与熔断器原始错误。
func (e *BreakerError) Unwrap() []error {
	return []error{xgeo.ErrPrimaryUnavailable, e.Err}
}

// wrapBreakerError 只包装熔断器直接返回的哨兵错误，其余原样返回。
// 状态由错误推导，避免 Execute 返回后再查询 State 的竞态。
func wrapBreakerError(err error, name string) error {
	switch err {
	case gobreaker.ErrOpenState:
		return &BreakerError{Err: err, Name: name, State: StateOpen}
	case gobreaker.ErrTooManyRequests:
		return &BreakerError{Err: err, Name: name, State: StateHalfOpen}
	default:
		return err
	}
}

// IsBreakerError 判断请求是否被熔断器拦截。
func IsBreakerError(err error) bool {
	var be *BreakerError
	return errors.As(err, &be)
}

// IsOpen 判断错误是否由打开状态的熔断器产生。
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState)
}
