package contract

import "errors"

// 最小错误分类（用于上层策略判定与日志归类）。
// 组件以 fmt.Errorf("...: %w", ErrX) 包装，调用方以 errors.Is 判定。
var (
	// ErrFileNotFound: 输入根或目录项不存在。
	ErrFileNotFound = errors.New("file not found")
	// ErrDecode: 内容不是合法 UTF-8 文本。
	ErrDecode = errors.New("decode error")
	// ErrRoundTripUnreversible: 码点超出单字节编码，或重解释后的字节不是合法 UTF-8。
	ErrRoundTripUnreversible = errors.New("round trip unreversible")
	// ErrWrite: 保存失败（临时文件/同步/替换）。
	ErrWrite = errors.New("write error")
	// ErrPatternConflict: 替换表冲突或不收敛。
	ErrPatternConflict = errors.New("pattern conflict")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 参数/选项非法。
	ErrInvalidInput = errors.New("invalid input")
)
