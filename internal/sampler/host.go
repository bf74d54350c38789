package sampler

import (
	"runtime"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"procsim/internal/models"
)

// HostSampler reads host-wide gauges for the dashboard. Network rates are
// computed against the previous call.
type HostSampler struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	diskPath string
	lastNet  *net.IOCountersStat
	lastAt   time.Time
}

func NewHostSampler(clock clockwork.Clock) *HostSampler {
	return &HostSampler{clock: clock, diskPath: rootPath()}
}

// rootPath is the filesystem whose usage the dashboard reports.
func rootPath() string {
	if runtime.GOOS == "windows" {
		return "C:\\"
	}
	return "/"
}

func (h *HostSampler) Sample() (models.HostMetrics, error) {
	var out models.HostMetrics

	pct, err := cpu.Percent(0, false)
	if err != nil {
		return out, errors.Wrap(err, "reading cpu percent")
	}
	if len(pct) > 0 {
		out.CPUPercent = pct[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return out, errors.Wrap(err, "reading virtual memory")
	}
	out.MemoryPercent = vm.UsedPercent

	du, err := disk.Usage(h.diskPath)
	if err != nil {
		return out, errors.Wrapf(err, "reading disk usage of %s", h.diskPath)
	}
	out.DiskPercent = du.UsedPercent

	counters, err := net.IOCounters(false)
	if err != nil {
		return out, errors.Wrap(err, "reading network counters")
	}
	if len(counters) > 0 {
		h.applyNet(&out, counters[0])
	}
	return out, nil
}

func (h *HostSampler) applyNet(out *models.HostMetrics, now net.IOCountersStat) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out.NetBytesSent = now.BytesSent
	out.NetBytesRecv = now.BytesRecv

	at := h.clock.Now()
	if h.lastNet != nil {
		secs := at.Sub(h.lastAt).Seconds()
		if secs > 0 && now.BytesSent >= h.lastNet.BytesSent && now.BytesRecv >= h.lastNet.BytesRecv {
			out.UploadKBps = float64(now.BytesSent-h.lastNet.BytesSent) / 1024 / secs
			out.DownloadKBps = float64(now.BytesRecv-h.lastNet.BytesRecv) / 1024 / secs
		}
	}
	h.lastNet = &now
	h.lastAt = at
}

// SystemInfo describes the machine procsim runs on.
func SystemInfo() (models.SystemInfo, error) {
	var out models.SystemInfo

	hi, err := host.Info()
	if err != nil {
		return out, errors.Wrap(err, "reading host info")
	}
	out.OS = hi.OS
	out.Platform = hi.Platform
	out.PlatformVersion = hi.PlatformVersion
	out.KernelVersion = hi.KernelVersion
	out.Arch = hi.KernelArch

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		out.CPUModel = infos[0].ModelName
		out.CPUMhz = infos[0].Mhz
	}
	if n, err := cpu.Counts(false); err == nil {
		out.PhysicalCores = n
	}
	if n, err := cpu.Counts(true); err == nil {
		out.LogicalCores = n
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return out, errors.Wrap(err, "reading virtual memory")
	}
	out.MemoryTotal = vm.Total
	out.MemoryAvailable = vm.Available

	if du, err := disk.Usage(rootPath()); err == nil {
		out.DiskTotal = du.Total
		out.DiskUsed = du.Used
	}
	return out, nil
}
