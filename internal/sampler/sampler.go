// Package sampler implements the host sampler collaborator:
// SampleHostMetrics() -> AppState. Unlike the orchestrator and
// analytics-store collaborators, the host sampler sits on the gossip
// critical path every cycle, so it is implemented here with gopsutil
// rather than left as a bare interface.
package sampler

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"github.com/aryanbagade/gossip-fabric/internal/model"
)

// Sampler produces one AppState snapshot on demand. It is pure with
// respect to gossip state: calling Sample never mutates the store.
type Sampler struct {
	diskPath string
	log      *zap.SugaredLogger
}

// New creates a Sampler that reports usage of diskPath (e.g. "/") for
// the storage field.
func New(diskPath string, log *zap.SugaredLogger) *Sampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Sampler{diskPath: diskPath, log: log}
}

// Sample reads instantaneous CPU, memory, network and disk counters.
// A failing field is omitted from the returned AppState rather than
// aborting the whole sample; idempotency across calls within the
// same cycle is not required.
func (s *Sampler) Sample(ctx context.Context) model.AppState {
	var out model.AppState

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil || len(pct) == 0 {
		s.logFailure("cpu", err)
	} else {
		out.CPU = fmt.Sprintf("%.2f", pct[0])
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.logFailure("memory", err)
	} else {
		out.Memory = fmt.Sprintf("%.2f", vm.UsedPercent)
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err != nil || len(counters) == 0 {
		s.logFailure("network", err)
	} else {
		out.Network = fmt.Sprintf("%d", counters[0].BytesSent+counters[0].BytesRecv)
	}

	if usage, err := disk.UsageWithContext(ctx, s.diskPath); err != nil {
		s.logFailure("storage", err)
	} else {
		out.Storage = fmt.Sprintf("%.2f", usage.UsedPercent)
	}

	return out
}

func (s *Sampler) logFailure(field string, err error) {
	if s.log == nil {
		return
	}
	s.log.Warnw("host sampler field failed, omitting from record", "field", field, "error", err)
}
