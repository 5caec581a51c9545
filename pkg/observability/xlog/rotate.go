package xlog

import (
	"fmt"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// 轮转默认值
const (
	DefaultMaxSizeMB  = 100
	DefaultMaxBackups = 7
	DefaultMaxAgeDays = 30

	maxSizeMB  = 10240
	maxBackups = 1024
	maxAgeDays = 3650
)

// Rotation 是基于大小的日志轮转配置。零值字段使用默认值。
type Rotation struct {
	// Filename 日志文件路径，空表示不轮转。
	Filename string
	// MaxSizeMB 单个文件上限（MB），超过时轮转。
	MaxSizeMB int
	// MaxBackups 保留的备份数量。
	MaxBackups int
	// MaxAgeDays 备份保留天数。
	MaxAgeDays int
	// Compress 是否 gzip 压缩备份。
	Compress bool
	// LocalTime 备份文件名是否使用本地时间，默认 UTC。
	LocalTime bool
}

func (r Rotation) withDefaults() Rotation {
	if r.MaxSizeMB == 0 {
		r.MaxSizeMB = DefaultMaxSizeMB
	}
	if r.MaxBackups == 0 {
		r.MaxBackups = DefaultMaxBackups
	}
	if r.MaxAgeDays == 0 {
		r.MaxAgeDays = DefaultMaxAgeDays
	}
	return r
}

func (r Rotation) validate() error {
	switch {
	case filepath.Base(r.Filename) == "." || filepath.Base(r.Filename) == string(filepath.Separator):
		return fmt.Errorf("%w: filename %q is not a file", ErrInvalidRotation, r.Filename)
	case r.MaxSizeMB < 0 || r.MaxSizeMB > maxSizeMB:
		return fmt.Errorf("%w: max size %dMB out of range [1, %d]", ErrInvalidRotation, r.MaxSizeMB, maxSizeMB)
	case r.MaxBackups < 0 || r.MaxBackups > maxBackups:
		return fmt.Errorf("%w: max backups %d out of range [0, %d]", ErrInvalidRotation, r.MaxBackups, maxBackups)
	case r.MaxAgeDays < 0 || r.MaxAgeDays > maxAgeDays:
		return fmt.Errorf("%w: max age %d days out of range [0, %d]", ErrInvalidRotation, r.MaxAgeDays, maxAgeDays)
	}
	return nil
}

func newRotator(r Rotation) (*lumberjack.Logger, error) {
	r = r.withDefaults()
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   filepath.Clean(r.Filename),
		MaxSize:    r.MaxSizeMB,
		MaxBackups: r.MaxBackups,
		MaxAge:     r.MaxAgeDays,
		Compress:   r.Compress,
		LocalTime:  r.LocalTime,
	}, nil
}
