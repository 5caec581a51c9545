package xgeo

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// AttrKind 是属性的比较类型。
type AttrKind uint8

const (
	// AttrEquality 属性仅支持等值过滤，索引实现为其维护二级索引。
	AttrEquality AttrKind = iota + 1
	// AttrRange 属性为数值，支持区间与等值过滤。
	AttrRange
)

func (k AttrKind) String() string {
	switch k {
	case AttrEquality:
		return "equality"
	case AttrRange:
		return "range"
	default:
		return "AttrKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseAttrKind 解析 "equality" / "range"。
func ParseAttrKind(s string) (AttrKind, error) {
	switch s {
	case "equality", "eq":
		return AttrEquality, nil
	case "range":
		return AttrRange, nil
	default:
		return 0, fmt.Errorf("%w: unknown attribute kind %q", ErrInvalidSchema, s)
	}
}

var (
	// ErrInvalidSchema 表示属性声明非法。
	ErrInvalidSchema = errors.New("xgeo: invalid schema")
	// ErrDuplicateAttr 表示同名属性被重复声明。
	ErrDuplicateAttr = errors.New("xgeo: duplicate attribute")
)

// IndexManager 收集属性索引声明，启动时调用一次 Build 生成不可变的 Schema。
// 不在查询热路径上使用。
type IndexManager struct {
	kinds map[string]AttrKind
	errs  []error
}

// NewIndexManager 创建空的 IndexManager。
func NewIndexManager() *IndexManager {
	return &IndexManager{kinds: make(map[string]AttrKind)}
}

// Declare 声明一个可过滤属性，支持链式调用。错误在 Build 时统一返回。
func (m *IndexManager) Declare(name string, kind AttrKind) *IndexManager {
	switch {
	case name == "":
		m.errs = append(m.errs, fmt.Errorf("%w: empty attribute name", ErrInvalidSchema))
	case kind != AttrEquality && kind != AttrRange:
		m.errs = append(m.errs, fmt.Errorf("%w: attribute %s has kind %s", ErrInvalidSchema, name, kind))
	default:
		if _, dup := m.kinds[name]; dup {
			m.errs = append(m.errs, fmt.Errorf("%w: %s", ErrDuplicateAttr, name))
			return m
		}
		m.kinds[name] = kind
	}
	return m
}

// Build 生成 Schema。
func (m *IndexManager) Build() (*Schema, error) {
	if err := errors.Join(m.errs...); err != nil {
		return nil, err
	}
	s := &Schema{kinds: make(map[string]AttrKind, len(m.kinds))}
	for name, kind := range m.kinds {
		s.kinds[name] = kind
		s.names = append(s.names, name)
	}
	slices.Sort(s.names)
	return s, nil
}

// Schema 是不可变的属性索引能力集，可并发读取。
//
// nil *Schema 表示未声明任何属性：Validate 只做结构校验。
type Schema struct {
	kinds map[string]AttrKind
	names []string
}

// Kind 返回属性类型。
func (s *Schema) Kind(name string) (AttrKind, bool) {
	if s == nil {
		return 0, false
	}
	k, ok := s.kinds[name]
	return k, ok
}

// Names 返回按字典序排列的属性名。
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.names)
}

// EqualityAttrs 返回等值属性名（有序）。
func (s *Schema) EqualityAttrs() []string {
	return s.namesOf(AttrEquality)
}

// RangeAttrs 返回区间属性名（有序）。
func (s *Schema) RangeAttrs() []string {
	return s.namesOf(AttrRange)
}

func (s *Schema) namesOf(kind AttrKind) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, n := range s.names {
		if s.kinds[n] == kind {
			out = append(out, n)
		}
	}
	return out
}

// Validate 校验过滤条件与已声明属性一致。
func (s *Schema) Validate(filters []Filter) error {
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return err
		}
		if s == nil {
			continue
		}
		kind, ok := s.kinds[f.Attr]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAttr, f.Attr)
		}
		switch {
		case f.Op == OpRange && kind != AttrRange:
			return fmt.Errorf("%w: %s is an equality attribute", ErrInvalidFilter, f.Attr)
		case f.Op == OpEquals && kind == AttrRange && f.Value.Kind() != ValueNumber:
			return fmt.Errorf("%w: %s expects a number", ErrInvalidFilter, f.Attr)
		}
	}
	return nil
}
