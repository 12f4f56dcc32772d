package diag

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// 指标（OpenTelemetry）；未安装 MeterProvider 时为 no-op。
// - mojifix.op_total{comp,stage,result}
// - mojifix.error_total{comp,code}
// - mojifix.op_duration_ms{comp,stage}
const meterName = "mojifix/internal/diag"

type instruments struct {
	ops  metric.Int64Counter
	errs metric.Int64Counter
	dur  metric.Int64Histogram
}

var (
	instMu sync.RWMutex
	inst   *instruments
)

// UseMeter 以指定 Meter 重建指标（测试或自定义导出）。
func UseMeter(m metric.Meter) error {
	in, err := newInstruments(m)
	if err != nil {
		return err
	}
	instMu.Lock()
	inst = in
	instMu.Unlock()
	return nil
}

func newInstruments(m metric.Meter) (*instruments, error) {
	ops, err := m.Int64Counter("mojifix.op_total", metric.WithDescription("Completed operations by component and stage"))
	if err != nil {
		return nil, err
	}
	errs, err := m.Int64Counter("mojifix.error_total", metric.WithDescription("Errors by component and classification code"))
	if err != nil {
		return nil, err
	}
	dur, err := m.Int64Histogram("mojifix.op_duration_ms", metric.WithUnit("ms"), metric.WithDescription("Stage duration in milliseconds"))
	if err != nil {
		return nil, err
	}
	return &instruments{ops: ops, errs: errs, dur: dur}, nil
}

func current() *instruments {
	instMu.RLock()
	in := inst
	instMu.RUnlock()
	if in != nil {
		return in
	}
	instMu.Lock()
	defer instMu.Unlock()
	if inst == nil {
		// 全局 provider 支持延迟委托，后续 SetMeterProvider 仍生效
		in, err := newInstruments(otel.GetMeterProvider().Meter(meterName))
		if err != nil {
			return nil
		}
		inst = in
	}
	return inst
}

// IncOp 累加操作计数（result=success|error|<status>）。
func IncOp(comp, stage, result string) {
	if in := current(); in != nil {
		in.ops.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("comp", comp), attribute.String("stage", stage), attribute.String("result", result)))
	}
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	if in := current(); in != nil {
		in.errs.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("comp", comp), attribute.String("code", code)))
	}
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	if in := current(); in != nil {
		in.dur.Record(context.Background(), durMS, metric.WithAttributes(
			attribute.String("comp", comp), attribute.String("stage", stage)))
	}
}

// Collector 以 ManualReader 安装进程内指标，运行结束时汇总输出（--metrics）。
type Collector struct {
	reader *sdkmetric.ManualReader
	mp     *sdkmetric.MeterProvider
}

// InstallCollector 安装进程内 MeterProvider 并切换指标到其上。
func InstallCollector() (*Collector, error) {
	r := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(r))
	if err := UseMeter(mp.Meter(meterName)); err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, err
	}
	return &Collector{reader: r, mp: mp}, nil
}

// WriteTo 输出当前累计值，每行 `name{k=v,...} value`，按行排序。
// 直方图输出 count 与 sum。
func (c *Collector) WriteTo(ctx context.Context, w io.Writer) error {
	var rm metricdata.ResourceMetrics
	if err := c.reader.Collect(ctx, &rm); err != nil {
		return err
	}
	var lines []string
	enc := attribute.DefaultEncoder()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch d := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range d.DataPoints {
					lines = append(lines, fmt.Sprintf("%s{%s} %d", m.Name, dp.Attributes.Encoded(enc), dp.Value))
				}
			case metricdata.Histogram[int64]:
				for _, dp := range d.DataPoints {
					lines = append(lines, fmt.Sprintf("%s{%s} count=%d sum=%d", m.Name, dp.Attributes.Encoded(enc), dp.Count, dp.Sum))
				}
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown 关闭 MeterProvider。
func (c *Collector) Shutdown(ctx context.Context) error { return c.mp.Shutdown(ctx) }
