package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	cfgpkg "mojifix/internal/config"
)

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a default config.json and .env template (never overwrites)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fail(exitConfig, "生成默认配置失败: %w", err)
			}
			out := cmd.OutOrStdout()
			cfgPath := filepath.Join(dir, "config.json")
			wrote, err := writeConfig(cfgPath, cfgpkg.DefaultTemplateConfig())
			if err != nil {
				return fail(exitConfig, "生成默认配置失败: %w", err)
			}
			report(out, cfgPath, wrote)
			envPath := filepath.Join(dir, ".env")
			wrote, err = writeNew(envPath, []byte(cfgpkg.DotEnvTemplate()))
			if err != nil {
				// .env 为可选项
				fmt.Fprintf(cmd.ErrOrStderr(), "提示：.env 生成失败（已跳过）：%v\n", err)
				return nil
			}
			report(out, envPath, wrote)
			return nil
		},
	}
}

func report(w io.Writer, path string, wrote bool) {
	if wrote {
		fmt.Fprintf(w, "[init] 已生成 %s\n", path)
		return
	}
	fmt.Fprintf(w, "[init] 已存在，跳过 %s\n", path)
}

// writeConfig 以缩进 JSON 写出配置；path 为 "-" 时写到 stdout。
func writeConfig(path string, c cfgpkg.Config) (bool, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return false, err
	}
	b = append(b, '\n')
	if path == "-" {
		_, err = os.Stdout.Write(b)
		return err == nil, err
	}
	return writeNew(path, b)
}

// writeNew 仅在文件不存在时创建；已存在返回 (false, nil)。
func writeNew(path string, b []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}
