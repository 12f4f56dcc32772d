package table

import (
	"context"
	"fmt"

	"mojifix/internal/mojibake"
	"mojifix/internal/patterns"
	"mojifix/pkg/contract"
)

// DefaultTables: 未配置 tables 时按此顺序合并内置表。
var DefaultTables = []string{"builtin:accents", "builtin:emoji", "builtin:replacement-words"}

// Options 为替换表 Pass 的可选配置。
type Options struct {
	// Tables: 表引用列表，builtin:<name> 或 YAML 文件路径；按序合并。
	Tables []string `json:"tables"`
	// MaxRounds: 最多替换轮数；超过仍未收敛视为冲突。默认 8。
	MaxRounds int `json:"max_rounds"`
}

// Pass 以编译后的替换表做最长优先的片段替换。
type Pass struct {
	table     *patterns.Table
	maxRounds int
}

// New 加载并合并表；表冲突在此处（启动期）暴露。
func New(opts *Options) (*Pass, error) {
	if opts == nil {
		opts = &Options{}
	}
	refs := opts.Tables
	if len(refs) == 0 {
		refs = DefaultTables
	}
	t, err := patterns.ResolveAll(refs)
	if err != nil {
		return nil, fmt.Errorf("table pass: %w", err)
	}
	return FromTable(t, opts.MaxRounds), nil
}

// FromTable 直接以已编译的表构造；maxRounds<=0 使用默认轮数。
func FromTable(t *patterns.Table, maxRounds int) *Pass {
	if maxRounds <= 0 {
		maxRounds = mojibake.DefaultMaxRounds
	}
	return &Pass{table: t, maxRounds: maxRounds}
}

var _ contract.Pass = (*Pass)(nil)

func (p *Pass) Name() string { return "table" }

// Table 返回合并后的表。
func (p *Pass) Table() *patterns.Table { return p.table }

// Repair 返回替换总次数；不收敛时返回原文与 ErrPatternConflict。
func (p *Pass) Repair(ctx context.Context, fileID contract.FileID, text string) (contract.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return contract.Outcome{Text: text}, err
	}
	fixed, n, err := mojibake.ApplyTableRounds(text, p.table, p.maxRounds)
	if err != nil {
		return contract.Outcome{Text: text}, fmt.Errorf("%s: %w", fileID, err)
	}
	return contract.Outcome{Text: fixed, Changed: fixed != text, Substitutions: n}, nil
}
