package xgeo

import (
	"fmt"
	"math"
	"strconv"
)

// FilterOperator 是过滤运算符，只有等值与区间两种。
type FilterOperator uint8

const (
	// OpEquals 要求属性值与操作数相等。
	OpEquals FilterOperator = iota + 1
	// OpRange 要求数值属性落在闭区间 [Min, Max] 内。
	OpRange
)

// Valid 报告运算符是否已定义。
func (op FilterOperator) Valid() bool {
	return op == OpEquals || op == OpRange
}

func (op FilterOperator) String() string {
	switch op {
	case OpEquals:
		return "eq"
	case OpRange:
		return "range"
	default:
		return "FilterOperator(" + strconv.Itoa(int(op)) + ")"
	}
}

// Filter 是一个属性过滤条件。
//
// OpEquals 使用 Value；OpRange 使用 Min/Max，开区间端点用 ±Inf 表示。
type Filter struct {
	Attr  string
	Op    FilterOperator
	Value Value
	Min   float64
	Max   float64
}

// Eq 构造等值过滤条件。
func Eq(attr string, v Value) Filter {
	return Filter{Attr: attr, Op: OpEquals, Value: v}
}

// Between 构造闭区间过滤条件。
func Between(attr string, lo, hi float64) Filter {
	return Filter{Attr: attr, Op: OpRange, Min: lo, Max: hi}
}

// AtLeast 构造 attr >= lo 的过滤条件。
func AtLeast(attr string, lo float64) Filter {
	return Between(attr, lo, math.Inf(1))
}

// AtMost 构造 attr <= hi 的过滤条件。
func AtMost(attr string, hi float64) Filter {
	return Between(attr, math.Inf(-1), hi)
}

// Validate 做结构校验（不依赖 Schema）。
func (f Filter) Validate() error {
	if f.Attr == "" {
		return fmt.Errorf("%w: empty attribute name", ErrInvalidFilter)
	}
	switch f.Op {
	case OpEquals:
		if !f.Value.Valid() {
			return fmt.Errorf("%w: %s has no operand", ErrInvalidFilter, f.Attr)
		}
	case OpRange:
		if math.IsNaN(f.Min) || math.IsNaN(f.Max) {
			return fmt.Errorf("%w: %s range bound is NaN", ErrInvalidFilter, f.Attr)
		}
		if f.Min > f.Max {
			return fmt.Errorf("%w: %s range min %v > max %v", ErrInvalidFilter, f.Attr, f.Min, f.Max)
		}
	default:
		return fmt.Errorf("%w: %s has unknown operator %s", ErrInvalidFilter, f.Attr, f.Op)
	}
	return nil
}

// Match 报告实体是否满足该条件。缺失属性视为不满足。
func (f Filter) Match(e Entity) bool {
	v, ok := e.Attrs[f.Attr]
	if !ok {
		return false
	}
	switch f.Op {
	case OpEquals:
		return v.Equal(f.Value)
	case OpRange:
		n, ok := v.AsNumber()
		return ok && n >= f.Min && n <= f.Max
	default:
		return false
	}
}

// HasLowerBound 报告区间条件是否有有限下界。
func (f Filter) HasLowerBound() bool { return !math.IsInf(f.Min, -1) }

// HasUpperBound 报告区间条件是否有有限上界。
func (f Filter) HasUpperBound() bool { return !math.IsInf(f.Max, 1) }

func (f Filter) String() string {
	switch f.Op {
	case OpEquals:
		return f.Attr + "=" + f.Value.String()
	case OpRange:
		return fmt.Sprintf("%s in [%g, %g]", f.Attr, f.Min, f.Max)
	default:
		return f.Attr + " " + f.Op.String()
	}
}

// MatchAll 报告实体是否满足全部条件。
func MatchAll(filters []Filter, e Entity) bool {
	for _, f := range filters {
		if !f.Match(e) {
			return false
		}
	}
	return true
}
