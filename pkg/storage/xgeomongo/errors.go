package xgeomongo

import "errors"

var (
	// ErrNilCollection 表示传入的 collection 为 nil。
	ErrNilCollection = errors.New("xgeomongo: nil collection")

	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xgeomongo: context must not be nil")

	// ErrClosed 表示存储已关闭。
	ErrClosed = errors.New("xgeomongo: store closed")

	// ErrCorruptDocument 表示文档无法还原为实体（缺少坐标或属性类型不支持）。
	ErrCorruptDocument = errors.New("xgeomongo: corrupt document")
)
