package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// EnvPrefix: 环境变量覆盖前缀。
const EnvPrefix = "MOJIFIX_"

// DefaultPasses: 先整体往返，再替换表兜底。
func DefaultPasses() []PassSpec {
	return []PassSpec{
		{Kind: "roundtrip", When: "always"},
		{Kind: "table", When: "always"},
	}
}

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Inputs 不设默认（必须由 JSON/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Concurrency: 1,
		Logging:     Logging{Level: "info"},
		Components: Components{
			Reader: "fs",
			Writer: "fs",
		},
		Passes: DefaultPasses(),
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config json: %w", err)
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
// 布尔项只能由覆盖层开启，不能关闭。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if over.DryRun {
		out.DryRun = true
	}
	if over.Diff {
		out.Diff = true
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Passes 整体替换
	if len(over.Passes) > 0 {
		out.Passes = clonePasses(over.Passes)
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 MOJIFIX_；集合之外的键忽略。
// 支持：INPUTS, CONCURRENCY, DRY_RUN, DIFF, LOG_LEVEL, COMPONENTS_{READER,WRITER},
// OPTIONS_{READER,WRITER}_JSON, PASSES_JSON。
// 数值/布尔解析失败忽略；JSON 非法返回错误。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		nk := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := kv[eq+1:]
		switch nk {
		case "INPUTS":
			if val != "" {
				over.Inputs = splitComma(val)
			}
		case "CONCURRENCY":
			if v, err := atoi(val); err == nil {
				over.Concurrency = v
			}
		case "DRY_RUN":
			if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
				over.DryRun = b
			}
		case "DIFF":
			if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
				over.Diff = b
			}
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		case "OPTIONS_READER_JSON":
			// 空值视为未设置，避免清空 config.json 中的配置
			if strings.TrimSpace(val) != "" {
				if !json.Valid([]byte(val)) {
					return over, fmt.Errorf("%s%s: invalid json", EnvPrefix, nk)
				}
				over.Options.Reader = json.RawMessage(val)
			}
		case "OPTIONS_WRITER_JSON":
			if strings.TrimSpace(val) != "" {
				if !json.Valid([]byte(val)) {
					return over, fmt.Errorf("%s%s: invalid json", EnvPrefix, nk)
				}
				over.Options.Writer = json.RawMessage(val)
			}
		case "PASSES_JSON":
			if strings.TrimSpace(val) == "" {
				continue
			}
			dec := json.NewDecoder(strings.NewReader(val))
			dec.DisallowUnknownFields()
			var ps []PassSpec
			if err := dec.Decode(&ps); err != nil {
				return over, fmt.Errorf("%s%s: %w", EnvPrefix, nk, err)
			}
			over.Passes = ps
		}
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func clonePasses(in []PassSpec) []PassSpec {
	out := make([]PassSpec, len(in))
	for i, p := range in {
		p.Options = cloneRaw(p.Options)
		out[i] = p
	}
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
