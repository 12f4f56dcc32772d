package diag

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"mojifix/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown      Code = "unknown"
	CodeNotFound     Code = "not_found"
	CodeDecode       Code = "decode"
	CodeUnreversible Code = "unreversible"
	CodeInvariant    Code = "invariant"
	CodeCancel       Code = "cancel"
	CodeIO           Code = "io"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrFileNotFound) || errors.Is(err, fs.ErrNotExist) {
		return CodeNotFound
	}
	if errors.Is(err, contract.ErrDecode) {
		return CodeDecode
	}
	if errors.Is(err, contract.ErrRoundTripUnreversible) {
		return CodeUnreversible
	}
	// 不变量
	if errors.Is(err, contract.ErrPatternConflict) ||
		errors.Is(err, contract.ErrInvalidInput) ||
		errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	// I/O
	if errors.Is(err, contract.ErrWrite) {
		return CodeIO
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}
