package xgeo

import (
	"fmt"
	"math"
	"strings"
)

// Unit 是距离单位。
type Unit string

const (
	UnitMeters     Unit = "m"
	UnitKilometers Unit = "km"
	UnitMiles      Unit = "mi"
	UnitFeet       Unit = "ft"
)

// Valid 报告单位是否受支持。
func (u Unit) Valid() bool {
	switch u {
	case UnitMeters, UnitKilometers, UnitMiles, UnitFeet:
		return true
	default:
		return false
	}
}

func (u Unit) meters() float64 {
	switch u {
	case UnitKilometers:
		return 1000
	case UnitMiles:
		return 1609.344
	case UnitFeet:
		return 0.3048
	default:
		return 1
	}
}

// FromMeters 将米换算为本单位。
func (u Unit) FromMeters(m float64) float64 {
	return m / u.meters()
}

// ParseUnit 解析单位字符串（大小写不敏感），空字符串返回 UnitMeters。
func ParseUnit(s string) (Unit, error) {
	if s == "" {
		return UnitMeters, nil
	}
	u := Unit(strings.ToLower(strings.TrimSpace(s)))
	if !u.Valid() {
		return "", fmt.Errorf("%w: unknown unit %q", ErrInvalidRadius, s)
	}
	return u, nil
}

// Distance 是带单位的距离。
type Distance struct {
	Value float64
	Unit  Unit
}

// Km 返回以千米为单位的距离。
func Km(v float64) Distance { return Distance{Value: v, Unit: UnitKilometers} }

// M 返回以米为单位的距离。
func M(v float64) Distance { return Distance{Value: v, Unit: UnitMeters} }

// Meters 返回换算为米的数值。
func (d Distance) Meters() float64 {
	return d.Value * d.Unit.meters()
}

// In 返回换算为 u 单位的数值。
func (d Distance) In(u Unit) float64 {
	return u.FromMeters(d.Meters())
}

// Validate 校验距离为正的有限值且单位受支持。
func (d Distance) Validate() error {
	if !d.Unit.Valid() {
		return fmt.Errorf("%w: unknown unit %q", ErrInvalidRadius, d.Unit)
	}
	if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) || d.Value <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidRadius, d.Value)
	}
	return nil
}

func (d Distance) String() string {
	return fmt.Sprintf("%g%s", d.Value, d.Unit)
}
