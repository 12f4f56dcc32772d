package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	cfgpkg "mojifix/internal/config"
)

// overlay: 各子命令的 CLI 覆盖项；零值表示未设置。
type overlay struct {
	roots       []string
	concurrency int
	dryRun      bool
	diff        bool
	codec       string
	outputDir   *string
	tables      []string
}

// loadConfig 按 Defaults < JSON（文件或 MOJIFIX_CONFIG_JSON）< ENV < CLI 合并。
func loadConfig(g *globalFlags, o overlay) (cfgpkg.Config, error) {
	var cfgJSON []byte
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); s != "" {
		cfgJSON = []byte(s)
	}
	path := g.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	// 默认读取工作目录下 config.json（若存在）
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}

	cfg := cfgpkg.Defaults()
	if path != "" || len(cfgJSON) > 0 {
		base, err := cfgpkg.LoadJSON(path, cfgJSON)
		if err != nil {
			return cfg, fmt.Errorf("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, fmt.Errorf("环境变量解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	// CLI 覆盖
	cfg = cfgpkg.Merge(cfg, cfgpkg.Config{
		Inputs:      o.roots,
		Concurrency: o.concurrency,
		DryRun:      o.dryRun || o.diff,
		Diff:        o.diff,
		Logging:     cfgpkg.Logging{Level: g.logLevel},
	})
	if len(g.exts) > 0 {
		if cfg.Options.Reader, err = setOption(cfg.Options.Reader, "extensions", g.exts); err != nil {
			return cfg, fmt.Errorf("options.reader: %w", err)
		}
	}
	if o.outputDir != nil {
		if cfg.Options.Writer, err = setOption(cfg.Options.Writer, "output_dir", *o.outputDir); err != nil {
			return cfg, fmt.Errorf("options.writer: %w", err)
		}
	}
	for i := range cfg.Passes {
		p := &cfg.Passes[i]
		switch {
		case p.Kind == "roundtrip" && o.codec != "":
			p.Options, err = setOption(p.Options, "codec", o.codec)
		case p.Kind == "table" && len(o.tables) > 0:
			p.Options, err = setOption(p.Options, "tables", o.tables)
		}
		if err != nil {
			return cfg, fmt.Errorf("passes[%d]: %w", i, err)
		}
	}
	return cfg, nil
}

// setOption 在原样 JSON 对象上设置一个键，其余键保持不变。
func setOption(raw json.RawMessage, key string, v any) (json.RawMessage, error) {
	m := map[string]json.RawMessage{}
	if t := bytes.TrimSpace(raw); len(t) > 0 && string(t) != "null" {
		if err := json.Unmarshal(t, &m); err != nil {
			return nil, err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m[key] = b
	return json.Marshal(m)
}

// tableRefs 返回配置中首个 table Pass 的表引用；未配置时为 nil（使用默认）。
func tableRefs(cfg cfgpkg.Config) ([]string, error) {
	for _, p := range cfg.Passes {
		if p.Kind != "table" {
			continue
		}
		var o struct {
			Tables []string `json:"tables"`
		}
		if len(bytes.TrimSpace(p.Options)) > 0 {
			if err := json.Unmarshal(p.Options, &o); err != nil {
				return nil, fmt.Errorf("passes %s: %w", p.DisplayName(), err)
			}
		}
		return o.Tables, nil
	}
	return nil, nil
}

func dumpConfig(w io.Writer, c cfgpkg.Config) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(w, "有效配置:\n%s\n", b)
}

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)且为镜像模式时，启动前检查输出目录可写性。
// - 若目录已存在：尝试创建并删除临时文件；失败则判为不可写。
// - 若目录不存在：检查父目录是否可写（尝试在父目录创建并删除临时目录）。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	if cfg.DryRun || cfgpkg.WriterName(cfg) != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		// 原地覆盖：逐文件写入时再报错
		return nil
	}
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	} else if err == nil && !st.IsDir() {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	} else if !os.IsNotExist(err) {
		return err
	}
	parent := filepath.Dir(dir)
	if parent == "" || parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
