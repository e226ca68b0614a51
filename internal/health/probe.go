package health

import (
	"context"
	"os"
	"sync"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	procOnce sync.Once
	proc     *process.Process
	procErr  error
)

// probeProcess samples system memory pressure and this process's CPU usage.
func probeProcess(ctx context.Context) (float64, float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	procOnce.Do(func() {
		proc, procErr = process.NewProcess(int32(os.Getpid()))
	})
	if procErr != nil {
		return vm.UsedPercent, 0, procErr
	}
	cpuPct, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return vm.UsedPercent, 0, err
	}
	return vm.UsedPercent, cpuPct, nil
}
