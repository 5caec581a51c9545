package xguard

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

type (
	// State 熔断器状态
	State = gobreaker.State

	// Counts 熔断器统计计数
	Counts = gobreaker.Counts
)

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

func (p *Primary) buildBreaker() *gobreaker.CircuitBreaker[[]xgeo.Entity] {
	o := p.options
	return gobreaker.NewCircuitBreaker[[]xgeo.Entity](gobreaker.Settings{
		Name:        o.Name,
		MaxRequests: o.HalfOpenRequests,
		Interval:    o.Interval,
		Timeout:     o.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= o.FailureThreshold
		},
		IsExcluded:    isExcluded,
		OnStateChange: p.onStateChange,
	})
}

func (p *Primary) onStateChange(name string, from, to State) {
	p.options.Logger.Warn("primary store breaker state changed",
		"breaker", name, "from", from.String(), "to", to.String())
	if p.options.OnStateChange != nil {
		p.options.OnStateChange(name, from, to)
	}
}

// isExcluded 判断结果是否与下游健康无关：非法请求与调用方取消。
func isExcluded(err error) bool {
	return errors.Is(err, xgeo.ErrInvalidQuery) || errors.Is(err, context.Canceled)
}

// isRetryable 判断失败的尝试是否值得再来一次。
func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, xgeo.ErrInvalidQuery),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		IsBreakerError(err):
		return false
	default:
		return true
	}
}
