package diag

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger: 结构化事件日志（单行 JSON），底层为 zap。
// 事件字段：level ts corr_id comp stage code dur_ms count file_id pass msg kv。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// NewLogger 按 level 初始化，写入 logs/mojifix-current.txt，10MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	sink := NewRotatingFile("logs", 10*1024*1024)
	l := NewLoggerTo(corrID, level, zapcore.Lock(sink))
	l.sink = sink
	return l
}

// NewLoggerTo 写到任意 WriteSyncer（测试或 stderr 输出）。
func NewLoggerTo(corrID, level string, ws zapcore.WriteSyncer) *Logger {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		lvl.SetLevel(zapcore.InfoLevel)
	}
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "ts",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcRFC3339,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	// sink 写失败的报错输出到 stderr
	core := zapcore.NewCore(enc, ws, lvl)
	z := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr))).With(zap.String("corr_id", corrID))
	return &Logger{z: z}
}

// Nop 返回丢弃一切的 Logger。
func Nop() *Logger {
	return &Logger{z: zap.NewNop()}
}

func utcRFC3339(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

// Sync 刷新缓冲；Close 额外关闭日志文件。
func (l *Logger) Sync() error { return l.z.Sync() }

func (l *Logger) Close() error {
	_ = l.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// event 拼装公共字段；空值省略。
func event(comp, stage, code, fileID string, dur time.Duration, count int64, kv map[string]string) []zap.Field {
	fs := make([]zap.Field, 0, 7)
	fs = append(fs, zap.String("comp", comp), zap.String("stage", stage))
	if code != "" {
		fs = append(fs, zap.String("code", code))
	}
	if dur > 0 {
		fs = append(fs, zap.Int64("dur_ms", dur.Milliseconds()))
	}
	if count != 0 {
		fs = append(fs, zap.Int64("count", count))
	}
	if fileID != "" {
		fs = append(fs, zap.String("file_id", fileID))
	}
	if len(kv) > 0 {
		fs = append(fs, zap.Any("kv", kv))
	}
	return fs
}

func since(t *time.Time) time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(*t)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.z.Info(msg, event(comp, "start", "", "", 0, 0, nil)...)
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 file_id 的 start。
func (l *Logger) StartWith(comp, msg, fileID string) *Timer {
	l.z.Info(msg, event(comp, "start", "", fileID, 0, 0, nil)...)
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// StartWithKV 记录带 file_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID string, kv map[string]string) *Timer {
	l.z.Info(msg, event(comp, "start", "", fileID, 0, 0, kv)...)
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// Warn 记录告警（如替换表片段重叠）。
func (l *Logger) Warn(comp, msg string, kv map[string]string) {
	l.z.Warn(msg, event(comp, "warn", "", "", 0, 0, kv)...)
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.z.Error(msg, event(comp, "error", code, "", since(durSince), 0, nil)...)
}

// ErrorWith 支持 file_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID string) {
	l.z.Error(msg, event(comp, "error", code, fileID, since(durSince), 0, nil)...)
}

// ErrorWithKV 支持附带键值对（例如 pass 名、字节偏移）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID string, kv map[string]string) {
	l.z.Error(msg, event(comp, "error", code, fileID, since(durSince), 0, kv)...)
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID string, kv map[string]string) {
	if !l.z.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	l.z.Debug(msg, event(comp, "start", "", fileID, 0, 0, kv)...)
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.z.Info(msg, event(t.comp, "finish", "", t.fileID, time.Since(t.t0), count, nil)...)
}

// Since 返回计时起点，配合 Error* 的 durSince。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}
