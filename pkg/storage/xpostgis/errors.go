package xpostgis

import "errors"

var (
	// ErrNilDB 表示传入的 *sql.DB 为 nil。
	ErrNilDB = errors.New("xpostgis: nil db")

	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xpostgis: context must not be nil")

	// ErrClosed 表示存储已关闭。
	ErrClosed = errors.New("xpostgis: store closed")

	// ErrInvalidTable 表示表名为空。
	ErrInvalidTable = errors.New("xpostgis: empty table name")

	// ErrCorruptRow 表示行无法还原为实体。
	ErrCorruptRow = errors.New("xpostgis: corrupt row")
)
