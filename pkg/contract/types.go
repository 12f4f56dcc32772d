package contract

// FileID: 逻辑文件ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Status: 单文件处理结论。
type Status string

const (
	StatusFixed     Status = "fixed"
	StatusUnchanged Status = "unchanged"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

// Outcome: 单个修复 Pass 的输出。
// 约束：Changed 当且仅当 Text 与输入不同。
type Outcome struct {
	Text          string
	Changed       bool
	Substitutions int
}

// PassResult: 结构化的 Pass 结果（用于报告/审计）。
// Err 为非致命原因（如 ErrRoundTripUnreversible）时文件仍继续后续 Pass。
type PassResult struct {
	Pass          string
	Changed       bool
	Substitutions int
	Err           error
}

// FileResult: 单文件最终结果。无持久状态，文件本身即状态。
type FileResult struct {
	FileID FileID
	Status Status
	Passes []PassResult
	Err    error
}

// Modified 报告文件内容是否被（或在 dry-run 下将被）改写。
func (r FileResult) Modified() bool { return r.Status == StatusFixed }

// Summary: 一次批处理的汇总；Results 按 FileID 升序。
type Summary struct {
	Fixed     int
	Unchanged int
	Skipped   int
	Errored   int
	Results   []FileResult
}

// Add 计入一个文件结果。
func (s *Summary) Add(r FileResult) {
	switch r.Status {
	case StatusFixed:
		s.Fixed++
	case StatusSkipped:
		s.Skipped++
	case StatusError:
		s.Errored++
	default:
		s.Unchanged++
	}
	s.Results = append(s.Results, r)
}

// Total 返回已计入的文件数。
func (s Summary) Total() int { return s.Fixed + s.Unchanged + s.Skipped + s.Errored }
