package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs      []string `json:"inputs"`
	Concurrency int      `json:"concurrency"`
	// DryRun: 只报告不写出；Diff 在 DryRun 下输出 unified diff。
	DryRun  bool    `json:"dry_run"`
	Diff    bool    `json:"diff"`
	Logging Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// Passes: 有序修复步骤；为空使用 DefaultPasses。
	Passes []PassSpec `json:"passes"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader string `json:"reader"`
	Writer string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader json.RawMessage `json:"reader"`
	Writer json.RawMessage `json:"writer"`
}

// PassSpec: 一个修复步骤。
// Kind 为注册表中的 Pass 实现名；Name 用于报告，缺省等于 Kind。
// When: always（默认）或 unchanged。
type PassSpec struct {
	Name    string          `json:"name,omitempty"`
	Kind    string          `json:"kind"`
	When    string          `json:"when,omitempty"`
	Options json.RawMessage `json:"options,omitempty"`
}

// DisplayName 返回用于报告的名称。
func (p PassSpec) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Kind
}
