package main

import (
	"context"
	"flag"
	"runtime"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/prop.go/pkg/framework"
	"github.com/robotalks/prop.go/pkg/platform"
	"github.com/robotalks/prop.go/pkg/prop"
)

const sampleInterval = 5 * time.Second

var (
	outputChip = platform.DefaultChip
	outputLine = 5
)

func setupDiagnosticFlags() {
	flag.StringVar(&outputChip, "output-chip", outputChip, "GPIO chip of the output line")
	flag.IntVar(&outputLine, "output-line", outputLine, "GPIO line driven high while running, -1 to disable")
}

// diagnostic is the template application: it samples runtime stats
// and drives one output line which a reset brings back low.
type diagnostic struct {
	dev        *prop.Device
	output     platform.Line
	lastSample time.Time
}

func newDiagnostic() *diagnostic {
	return &diagnostic{}
}

func (a *diagnostic) Init(ctx context.Context, dev *prop.Device) error {
	a.dev = dev
	if outputLine >= 0 {
		line, err := platform.OpenOutput(outputChip, outputLine, 1)
		if err != nil {
			glog.Warningf("output %s:%d unavailable: %v", outputChip, outputLine, err)
		} else {
			a.output = line
		}
	}
	dev.Logf("diagnostic ready")
	return nil
}

func (a *diagnostic) Tick(ctx context.Context) error {
	now := a.dev.Clock.Now()
	if now.Sub(a.lastSample) < sampleInterval {
		return nil
	}
	a.lastSample = now
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	a.dev.Logf("[Diagnostic] heap %d KiB, sys %d KiB, goroutines %d, uptime %v",
		mem.HeapAlloc/1024, mem.Sys/1024, runtime.NumGoroutine(),
		a.dev.Uptime().Truncate(time.Second))
	return nil
}

func (a *diagnostic) Reset(ctx context.Context) error {
	a.dev.Logf("[Reset] Resetting prop to initial state...")
	if a.output != nil {
		if err := a.output.SetValue(0); err != nil {
			return err
		}
	}
	a.dev.Logf("[Reset] Complete")
	return nil
}

func (a *diagnostic) Shutdown(ctx context.Context) error {
	if a.output == nil {
		return nil
	}
	var errs fx.AggregatedError
	errs.Add(a.output.SetValue(0), a.output.Close())
	return errs.Aggregate()
}

func (a *diagnostic) OnMessage(topic string, payload []byte) {
	a.dev.Logf("[Message] %s: %s", topic, payload)
}
