package xgeo

import "errors"

// =============================================================================
// 错误分类
// =============================================================================

var (
	// ErrInvalidQuery 表示请求非法（坐标越界、半径或 limit 非法、过滤条件不合法）。
	// 该错误在访问任何存储之前返回，不应重试。
	ErrInvalidQuery = errors.New("xgeo: invalid query")

	// ErrIndexUnavailable 表示 FastIndex 不可达。
	// 与"无匹配结果"（空结果、无错误）严格区分。
	ErrIndexUnavailable = errors.New("xgeo: fast index unavailable")

	// ErrPrimaryUnavailable 表示 PrimaryStore 不可达。
	ErrPrimaryUnavailable = errors.New("xgeo: primary store unavailable")

	// ErrPopulateFailed 表示回写 FastIndex 失败。
	ErrPopulateFailed = errors.New("xgeo: populate failed")
)

// =============================================================================
// 校验错误
// =============================================================================

var (
	// ErrInvalidGeoKey 表示坐标缺失或越界。
	ErrInvalidGeoKey = &queryError{msg: "xgeo: invalid geo key"}

	// ErrInvalidRadius 表示半径非正或单位未知。
	ErrInvalidRadius = &queryError{msg: "xgeo: radius must be positive with a known unit"}

	// ErrInvalidLimit 表示 limit 为负数。
	ErrInvalidLimit = &queryError{msg: "xgeo: limit must not be negative"}

	// ErrInvalidFilter 表示过滤条件非法。
	ErrInvalidFilter = &queryError{msg: "xgeo: invalid filter"}

	// ErrUnknownAttr 表示过滤条件引用了未声明的属性。
	ErrUnknownAttr = &queryError{msg: "xgeo: unknown attribute"}

	// ErrEmptyID 表示实体 ID 为空。
	ErrEmptyID = &queryError{msg: "xgeo: empty entity id"}
)

// queryError 是校验类错误，同时匹配 ErrInvalidQuery。
type queryError struct {
	msg string
}

func (e *queryError) Error() string { return e.msg }

// Is 使所有校验错误都能被 errors.Is(err, ErrInvalidQuery) 识别。
func (e *queryError) Is(target error) bool {
	return target == ErrInvalidQuery
}
