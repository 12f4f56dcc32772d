package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "mojifix/internal/config"
	"mojifix/internal/diag"
	"mojifix/internal/inspect"
	"mojifix/internal/patterns"
	"mojifix/pkg/registry"
	ptb "mojifix/plugins/pass/table"
)

func newInspectCmd(g *globalFlags) *cobra.Command {
	var (
		asJSON bool
		strict bool
		tables []string
	)
	cmd := &cobra.Command{
		Use:   "inspect [roots...]",
		Short: "Report suspicious byte sequences without changing files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, overlay{roots: args, tables: tables})
			if err != nil {
				return &exitError{code: exitConfig, err: err}
			}
			if err := cfgpkg.Validate(cfg); err != nil {
				return fail(exitConfig, "配置校验失败: %w", err)
			}
			refs, err := tableRefs(cfg)
			if err != nil {
				return &exitError{code: exitConfig, err: err}
			}
			if len(refs) == 0 {
				refs = ptb.DefaultTables
			}
			table, err := patterns.ResolveAll(refs)
			if err != nil {
				return fail(exitConfig, "替换表加载失败: %w", err)
			}
			r, err := registry.Reader[cfg.Components.Reader](cfg.Options.Reader)
			if err != nil {
				return fail(exitConfig, "装配失败: %w", err)
			}

			logger := diag.NewLogger(g.corrID, cfg.Logging.Level)
			defer logger.Close()
			reps, err := inspect.Run(cmd.Context(), r, cfg.Inputs, table, logger)
			if err != nil {
				return fail(exitFailed, "扫描失败: %w", err)
			}
			if asJSON {
				err = inspect.WriteJSON(cmd.OutOrStdout(), reps)
			} else {
				err = inspect.WriteText(cmd.OutOrStdout(), reps)
			}
			if err != nil {
				return fail(exitFailed, "输出失败: %w", err)
			}

			failed := 0
			for _, rep := range reps {
				if rep.Err != "" {
					failed++
				}
			}
			n := inspect.Count(reps)
			if !g.quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "[inspect] 文件 %d | 发现 %d | 错误 %d\n", len(reps), n, failed)
			}
			switch {
			case failed > 0:
				return &exitError{code: exitFailed}
			case strict && n > 0:
				return &exitError{code: exitFailed}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	cmd.Flags().BoolVar(&strict, "strict", false, "存在任何发现时以 1 退出（CI 使用）")
	cmd.Flags().StringSliceVar(&tables, "table", nil, "替换表引用（可重复，覆盖配置）")
	return cmd
}
