package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type providerStat struct {
	calls    int64
	failures int64
}

var (
	errorsFetch  int64
	errorsWriter int64
	warnsFetch   int64
	warnsWriter  int64
	pullsOK      int64
	pullsFailed  int64
	s3Writes     int64
	providers    sync.Map // map[string]*providerStat
)

func recordWarn(component string) {
	if strings.Contains(component, "writer") {
		atomic.AddInt64(&warnsWriter, 1)
	} else if strings.Contains(component, "fetch") || strings.Contains(component, "provider") {
		atomic.AddInt64(&warnsFetch, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "writer") {
		atomic.AddInt64(&errorsWriter, 1)
	} else if strings.Contains(component, "fetch") || strings.Contains(component, "provider") {
		atomic.AddInt64(&errorsFetch, 1)
	}
}

// IncrementPull counts one completed provider attempt in the periodic report.
func IncrementPull(provider string, ok bool) {
	if ok {
		atomic.AddInt64(&pullsOK, 1)
	} else {
		atomic.AddInt64(&pullsFailed, 1)
	}
	v, _ := providers.LoadOrStore(provider, &providerStat{})
	ps := v.(*providerStat)
	atomic.AddInt64(&ps.calls, 1)
	if !ok {
		atomic.AddInt64(&ps.failures, 1)
	}
}

// IncrementS3Write counts one uploaded output object.
func IncrementS3Write() {
	atomic.AddInt64(&s3Writes, 1)
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and pull statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	providerData := map[string]map[string]int64{}
	providers.Range(func(k, v any) bool {
		name := k.(string)
		ps := v.(*providerStat)
		providerData[name] = map[string]int64{
			"calls":    atomic.LoadInt64(&ps.calls),
			"failures": atomic.LoadInt64(&ps.failures),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"errors_fetch":  atomic.LoadInt64(&errorsFetch),
		"errors_writer": atomic.LoadInt64(&errorsWriter),
		"warns_fetch":   atomic.LoadInt64(&warnsFetch),
		"warns_writer":  atomic.LoadInt64(&warnsWriter),
		"pulls_ok":      atomic.LoadInt64(&pullsOK),
		"pulls_failed":  atomic.LoadInt64(&pullsFailed),
		"s3_writes":     atomic.LoadInt64(&s3Writes),
		"goroutines":    runtime.NumGoroutine(),
		"cpu_percent":   cpuPct,
		"memory_mb":     int64(memStats.Used) / 1024 / 1024,
		"disk_mb":       int64(diskStats.Used) / 1024 / 1024,
		"providers":     providerData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("QF-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("QF-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("QF-PullsOK"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&pullsOK)))},
		cwtypes.MetricDatum{MetricName: aws.String("QF-PullsFailed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&pullsFailed)))},
		cwtypes.MetricDatum{MetricName: aws.String("QF-ErrorsFetch"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsFetch)))},
		cwtypes.MetricDatum{MetricName: aws.String("QF-ErrorsWriter"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsWriter)))},
		cwtypes.MetricDatum{MetricName: aws.String("QF-S3Writes"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&s3Writes)))},
	)

	for name, stats := range providerData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("QF-ProviderCalls"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Provider"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["calls"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("QF-ProviderFailures"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Provider"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["failures"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
