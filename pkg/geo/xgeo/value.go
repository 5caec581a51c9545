package xgeo

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueKind 标识 Value 的实际类型。
type ValueKind uint8

const (
	// ValueInvalid 是零值 Value 的类型。
	ValueInvalid ValueKind = iota
	ValueString
	ValueNumber
	ValueBool
)

func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	case ValueBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Value 是属性值的标签联合：字符串、数值或布尔。
type Value struct {
	kind ValueKind
	s    string
	n    float64
	b    bool
}

// StringValue 构造字符串属性值。
func StringValue(s string) Value { return Value{kind: ValueString, s: s} }

// NumberValue 构造数值属性值。
func NumberValue(n float64) Value { return Value{kind: ValueNumber, n: n} }

// BoolValue 构造布尔属性值。
func BoolValue(b bool) Value { return Value{kind: ValueBool, b: b} }

// Kind 返回值类型。
func (v Value) Kind() ValueKind { return v.kind }

// Valid 报告值是否已赋值。数值 NaN 视为无效。
func (v Value) Valid() bool {
	switch v.kind {
	case ValueString, ValueBool:
		return true
	case ValueNumber:
		return !math.IsNaN(v.n)
	default:
		return false
	}
}

// AsString 返回字符串值；类型不符时 ok 为 false。
func (v Value) AsString() (string, bool) { return v.s, v.kind == ValueString }

// AsNumber 返回数值；类型不符时 ok 为 false。
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == ValueNumber }

// AsBool 返回布尔值；类型不符时 ok 为 false。
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == ValueBool }

// Equal 报告两个值类型相同且内容相等。
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case ValueString:
		return v.s == other.s
	case ValueNumber:
		return v.n == other.n
	case ValueBool:
		return v.b == other.b
	default:
		return true
	}
}

// Compare 比较两个数值，ok 为 false 表示至少一方不是数值。
func (v Value) Compare(other Value) (c int, ok bool) {
	if v.kind != ValueNumber || other.kind != ValueNumber {
		return 0, false
	}
	return cmp.Compare(v.n, other.n), true
}

// String 返回规范文本形式，用作二级索引的 key 片段。
func (v Value) String() string {
	switch v.kind {
	case ValueString:
		return v.s
	case ValueNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Any 返回底层 Go 值（string、float64、bool 或 nil）。
func (v Value) Any() any {
	switch v.kind {
	case ValueString:
		return v.s
	case ValueNumber:
		return v.n
	case ValueBool:
		return v.b
	default:
		return nil
	}
}

// ValueOf 将 Go 值转换为 Value，支持字符串、布尔及常见数值类型。
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case float64:
		return NumberValue(t), nil
	case float32:
		return NumberValue(float64(t)), nil
	case int:
		return NumberValue(float64(t)), nil
	case int32:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case uint32:
		return NumberValue(float64(t)), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}
		return NumberValue(n), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported attribute type %T", ErrInvalidFilter, x)
	}
}

// MarshalJSON 按值的实际类型编码为 JSON 字符串、数值或布尔。
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON 从 JSON 字符串、数值或布尔解码。
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		*v = Value{}
		return nil
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
