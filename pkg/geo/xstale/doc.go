// Package xstale 提供缓存条目的过期判定策略。
//
// 策略必须是 (lastRefreshed, now) 与策略自身状态的纯函数，不做任何 I/O，
// 因此可以在不修改协调器的情况下替换：
//
//	policy := xstale.NewMaxAge(time.Hour)
//	policy.SetMaxAge(10 * time.Minute) // 配置热更新
//
//	byKind := xstale.NewPerKind(time.Hour, map[string]time.Duration{
//		"fuel_station": 5 * time.Minute,
//	})
package xstale
