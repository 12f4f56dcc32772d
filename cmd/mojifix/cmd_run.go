package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "mojifix/internal/config"
	"mojifix/internal/diag"
	"mojifix/internal/pipeline"
)

type runFlags struct {
	concurrency int
	codec       string
	dryRun      bool
	diff        bool
	outputDir   string
	tables      []string
	statuses    []string
	metrics     bool
}

func (f *runFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.IntVar(&f.concurrency, "concurrency", 0, "并发度（覆盖配置）")
	fl.StringVar(&f.codec, "codec", "", "往返重解码使用的编码 latin1|windows-1252（覆盖配置）")
	fl.BoolVar(&f.dryRun, "dry-run", false, "只报告不写出")
	fl.BoolVar(&f.diff, "diff", false, "输出 unified diff（隐含 --dry-run）")
	fl.StringVar(&f.outputDir, "output-dir", "", "镜像输出目录；缺省原地覆盖")
	fl.StringSliceVar(&f.tables, "table", nil, "替换表引用 builtin:<name> 或 YAML 路径（可重复，覆盖配置）")
	fl.StringSliceVar(&f.statuses, "status", nil, "只报告这些状态的文件 fixed,unchanged,skipped,error（缺省全部）")
	fl.BoolVar(&f.metrics, "metrics", false, "结束时输出进程内指标汇总（stderr）")
}

func (f *runFlags) overlay(cmd *cobra.Command, roots []string) overlay {
	o := overlay{
		roots:       roots,
		concurrency: f.concurrency,
		dryRun:      f.dryRun,
		diff:        f.diff,
		codec:       f.codec,
		tables:      f.tables,
	}
	if cmd.Flags().Changed("output-dir") {
		o.outputDir = &f.outputDir
	}
	return o
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [roots...]",
		Short: "Repair mojibake in files, directories, or stdin (-)",
		Long: `Runs the configured passes over every file under the roots and writes back
only the files whose text changed. Use "-" to filter stdin to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, g, f, args)
		},
	}
	f.bind(cmd)
	return cmd
}

// session: 一次装配完成的运行上下文（run 与 watch 共用）。
type session struct {
	cfg    cfgpkg.Config
	comp   pipeline.Components
	set    pipeline.Settings
	logger *diag.Logger
	term   *diag.Terminal
}

// prepare 加载、校验并装配；失败返回退出码 3。
func prepare(cmd *cobra.Command, g *globalFlags, f *runFlags, roots []string) (*session, error) {
	start := time.Now()
	cfg, err := loadConfig(g, f.overlay(cmd, roots))
	if err != nil {
		return nil, &exitError{code: exitConfig, err: err}
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		dumpConfig(cmd.ErrOrStderr(), cfg)
		return nil, fail(exitConfig, "配置校验失败: %w", err)
	}
	statuses, err := diag.ParseStatuses(f.statuses)
	if err != nil {
		return nil, &exitError{code: exitConfig, err: err}
	}
	logger := diag.NewLogger(g.corrID, cfg.Logging.Level)
	if err := preflightCheckOutputDir(cfg); err != nil {
		logger.Error("config", string(diag.Classify(err)), "preflight: "+err.Error(), &start)
		_ = logger.Close()
		return nil, fail(exitConfig, "输出目录不可写或无法创建: %w", err)
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), "assemble: "+err.Error(), &start)
		_ = logger.Close()
		return nil, fail(exitConfig, "装配失败: %w", err)
	}
	set.DiffOut = cmd.OutOrStdout()

	term := diag.NewTerminal(cmd.ErrOrStderr(), !g.quiet)
	term.Show(statuses)
	for name, ws := range cfgpkg.TableWarnings(comp) {
		for _, w := range ws {
			logger.Warn("patterns", "overlap", map[string]string{"pass": name, "detail": w})
		}
	}
	logger.DebugStart("config", "effective", "", map[string]string{
		"inputs_count": strconv.Itoa(len(cfg.Inputs)),
		"concurrency":  strconv.Itoa(cfg.Concurrency),
		"reader":       cfg.Components.Reader,
		"writer":       cfgpkg.WriterName(cfg),
		"passes":       strings.Join(cfgpkg.PassNames(comp), ","),
		"dry_run":      strconv.FormatBool(cfg.DryRun),
	})
	return &session{cfg: cfg, comp: comp, set: set, logger: logger, term: term}, nil
}

// batch 执行一轮流水线并输出报告；返回错误文件数。
func (s *session) batch(ctx context.Context, inputs []string) (errored int, err error) {
	start := time.Now()
	set := s.set
	if inputs != nil {
		set.Inputs = inputs
	}
	s.term.RunStart(set.Concurrency, cfgpkg.PassNames(s.comp), set.DryRun)
	t := s.logger.Start("pipeline", "run")
	sum, err := pipelineRun(ctx, s.comp, set, s.logger)
	s.term.Report(sum.Results)
	s.term.RunFinish(sum, time.Since(start))
	diag.ObserveDuration("pipeline", "run", time.Since(start).Milliseconds())
	if err != nil {
		code := string(diag.Classify(err))
		s.logger.Error("pipeline", code, "run failed: "+err.Error(), t.Since())
		diag.IncOp("pipeline", "run", "error")
		return sum.Errored, err
	}
	t.Finish("run", int64(sum.Total()))
	diag.IncOp("pipeline", "run", "success")
	return sum.Errored, nil
}

func (s *session) close() { _ = s.logger.Close() }

func runRun(cmd *cobra.Command, g *globalFlags, f *runFlags, roots []string) error {
	s, err := prepare(cmd, g, f, roots)
	if err != nil {
		return err
	}
	defer s.close()

	var coll *diag.Collector
	if f.metrics {
		if coll, err = diag.InstallCollector(); err != nil {
			return fail(exitFailed, "metrics: %w", err)
		}
		defer func() {
			_ = coll.WriteTo(context.Background(), cmd.ErrOrStderr())
			_ = coll.Shutdown(context.Background())
		}()
	}

	diag.SetTerminal(s.term)
	defer diag.SetTerminal(nil)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errored, err := s.batch(ctx, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return &exitError{code: exitFailed, err: err}
		}
		return fail(exitFailed, "运行失败: %w", err)
	}
	if errored > 0 {
		return &exitError{code: exitFailed, err: fmt.Errorf("%d 个文件处理失败", errored)}
	}
	return nil
}
