package system

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// MemoryReport is a snapshot of process and system memory.
type MemoryReport struct {
	ProcessRSS  uint64
	HeapAlloc   uint64
	SystemTotal uint64
	SystemUsed  uint64
	UsedPercent float64
}

// ReadMemory collects a MemoryReport for the current process.
func ReadMemory() (MemoryReport, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	r := MemoryReport{HeapAlloc: ms.HeapAlloc}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return r, fmt.Errorf("system memory: %w", err)
	}
	r.SystemTotal = vm.Total
	r.SystemUsed = vm.Used
	r.UsedPercent = vm.UsedPercent

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return r, fmt.Errorf("process handle: %w", err)
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return r, fmt.Errorf("process memory: %w", err)
	}
	r.ProcessRSS = info.RSS
	return r, nil
}

func (r MemoryReport) String() string {
	return fmt.Sprintf(
		"--- [MEMORY REPORT] ---\n"+
			"Process RSS: %.2f GB\n"+
			"Go heap: %.2f GB\n"+
			"System: %.2f / %.2f GB (%.1f%%)\n"+
			"-----------------------\n",
		gb(r.ProcessRSS), gb(r.HeapAlloc), gb(r.SystemUsed), gb(r.SystemTotal), r.UsedPercent,
	)
}

func gb(b uint64) float64 {
	return float64(b) / 1e9
}
