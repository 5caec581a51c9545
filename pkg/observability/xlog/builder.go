package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 是带动态级别控制的 *slog.Logger。
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// SetLevel 动态设置日志级别，派生 logger 同步生效。
func (l *Logger) SetLevel(level Level) { l.level.Set(slog.Level(level)) }

// GetLevel 返回当前日志级别。
func (l *Logger) GetLevel() Level { return Level(l.level.Level()) }

// Builder 日志配置构建器，一次性使用。
type Builder struct {
	output    io.Writer
	level     *slog.LevelVar
	format    string
	addSource bool
	attrs     []slog.Attr
	rotator   *lumberjack.Logger
	err       error
}

// New 创建配置构建器：stderr、Info 级别、json 格式。
func New() *Builder {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	return &Builder{
		output: os.Stderr,
		level:  level,
		format: "json",
	}
}

// SetOutput 设置日志输出目标
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if b.err != nil {
		return b
	}
	if w == nil {
		b.err = ErrNilOutput
		return b
	}
	b.output = w
	return b
}

// SetLevel 设置日志级别
func (b *Builder) SetLevel(level Level) *Builder {
	if b.err == nil {
		b.level.Set(slog.Level(level))
	}
	return b
}

// SetLevelString 通过字符串设置日志级别，空字符串为 info。
func (b *Builder) SetLevelString(s string) *Builder {
	if b.err != nil {
		return b
	}
	level, err := ParseLevel(s)
	if err != nil {
		b.err = err
		return b
	}
	return b.SetLevel(level)
}

// SetFormat 设置输出格式：text 或 json，空字符串保持默认。
func (b *Builder) SetFormat(format string) *Builder {
	if b.err != nil {
		return b
	}
	normalized := strings.ToLower(strings.TrimSpace(format))
	switch normalized {
	case "":
	case "text", "json":
		b.format = normalized
	default:
		b.err = fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return b
}

// SetAddSource 是否在日志中添加源码位置
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetAttrs 添加每条日志都携带的固定属性（如 instance）。
func (b *Builder) SetAttrs(attrs ...slog.Attr) *Builder {
	b.attrs = append(b.attrs, attrs...)
	return b
}

// SetRotation 设置日志轮转；Filename 为空时保持原输出。
func (b *Builder) SetRotation(r Rotation) *Builder {
	if b.err != nil || r.Filename == "" {
		return b
	}
	rotator, err := newRotator(r)
	if err != nil {
		b.err = err
		return b
	}
	b.rotator = rotator
	b.output = rotator
	return b
}

// Build 构建 Logger。cleanup 关闭轮转文件，可重复调用。
func (b *Builder) Build() (*Logger, func() error, error) {
	if b.err != nil {
		return nil, nil, b.err
	}

	opts := &slog.HandlerOptions{
		Level:     b.level,
		AddSource: b.addSource,
	}
	var handler slog.Handler
	switch b.format {
	case "text":
		handler = slog.NewTextHandler(b.output, opts)
	default:
		handler = slog.NewJSONHandler(b.output, opts)
	}
	if len(b.attrs) > 0 {
		handler = handler.WithAttrs(b.attrs)
	}

	var once sync.Once
	rotator := b.rotator
	cleanup := func() error {
		var err error
		once.Do(func() {
			if rotator != nil {
				err = rotator.Close()
			}
		})
		return err
	}
	return &Logger{Logger: slog.New(handler), level: b.level}, cleanup, nil
}
