package config

import (
	"errors"
	"fmt"
	"strings"

	"mojifix/internal/pipeline"
	"mojifix/pkg/contract"
	"mojifix/pkg/registry"
	ptb "mojifix/plugins/pass/table"
)

var logLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate 对最小必要边界做静态校验。
// 失败统一包装 ErrInvalidInput。
func Validate(cfg Config) error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("%w: %w", contract.ErrInvalidInput, err)
	}
	return nil
}

func validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if cfg.Diff && !cfg.DryRun {
		return errors.New("config: diff requires dry_run")
	}
	if !logLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Level))] {
		return fmt.Errorf("config: unknown logging.level %q", cfg.Logging.Level)
	}
	d := Defaults()
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered (have %v)", name, registry.Names(registry.Reader))
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered (have %v)", name, registry.Names(registry.Writer))
	}
	passes := cfg.Passes
	if len(passes) == 0 {
		passes = d.Passes
	}
	seen := make(map[string]bool, len(passes))
	for i, p := range passes {
		if registry.Pass[p.Kind] == nil {
			return fmt.Errorf("config: passes[%d]: kind %q not registered (have %v)", i, p.Kind, registry.Names(registry.Pass))
		}
		if _, err := pipeline.ParseWhen(p.When); err != nil {
			return fmt.Errorf("config: passes[%d]: %w", i, err)
		}
		n := p.DisplayName()
		if seen[n] {
			return fmt.Errorf("config: passes[%d]: duplicate name %q", i, n)
		}
		seen[n] = true
	}
	return nil
}

// StdinMode 报告输入是否为 STDIN 过滤器模式。
func StdinMode(cfg Config) bool {
	return len(cfg.Inputs) == 1 && strings.TrimSpace(cfg.Inputs[0]) == "-"
}

// WriterName 返回生效的 Writer 名称。
// STDIN 模式下 fs 自动替换为 stdout（"-" 无法映射为路径）。
func WriterName(cfg Config) string {
	n := effName(cfg.Components.Writer, Defaults().Components.Writer)
	if StdinMode(cfg) && n == "fs" {
		return "stdout"
	}
	return n
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry （工厂）层进行；此处只传 raw JSON。
// 替换表冲突在这里暴露（ErrPatternConflict）。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	rn := effName(cfg.Components.Reader, Defaults().Components.Reader)
	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("reader %s: %w", rn, invalid(err))
	}
	wn := WriterName(cfg)
	wopts := cfg.Options.Writer
	if wn != effName(cfg.Components.Writer, Defaults().Components.Writer) {
		// 自动切换时 fs 的选项不适用
		wopts = nil
	}
	w, err := registry.Writer[wn](wopts)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("writer %s: %w", wn, invalid(err))
	}

	specs := cfg.Passes
	if len(specs) == 0 {
		specs = DefaultPasses()
	}
	stages := make([]pipeline.Stage, 0, len(specs))
	for _, ps := range specs {
		p, err := registry.Pass[ps.Kind](ps.Options)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("pass %s: %w", ps.DisplayName(), invalid(err))
		}
		when, _ := pipeline.ParseWhen(ps.When)
		stages = append(stages, pipeline.Stage{Name: ps.DisplayName(), Pass: p, When: when})
	}

	comp := pipeline.Components{Reader: r, Stages: stages, Writer: w}
	set := pipeline.Settings{
		Inputs:      cloneStrings(cfg.Inputs),
		Concurrency: cfg.Concurrency,
		DryRun:      cfg.DryRun,
		Diff:        cfg.DryRun && cfg.Diff,
	}
	return comp, set, nil
}

// invalid 为 JSON 选项错误补上 ErrInvalidInput 分类；已分类的错误原样返回。
func invalid(err error) error {
	if errors.Is(err, contract.ErrPatternConflict) || errors.Is(err, contract.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %w", contract.ErrInvalidInput, err)
}

// TableWarnings 收集各替换表 Pass 编译期的重叠告警。
func TableWarnings(comp pipeline.Components) map[string][]string {
	out := map[string][]string{}
	for _, st := range comp.Stages {
		tp, ok := st.Pass.(*ptb.Pass)
		if !ok || tp.Table() == nil || len(tp.Table().Warnings) == 0 {
			continue
		}
		out[st.Name] = append([]string(nil), tp.Table().Warnings...)
	}
	return out
}

// PassNames 返回各步骤的报告名称。
func PassNames(comp pipeline.Components) []string {
	out := make([]string, 0, len(comp.Stages))
	for _, st := range comp.Stages {
		out = append(out, st.Name)
	}
	return out
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
