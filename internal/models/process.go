package models

// Process is the dashboard view of one simulated process
type Process struct {
	Pid            int        `json:"pid"`
	Name           string     `json:"name"`
	State          string     `json:"state"`
	Priority       string     `json:"priority"`
	Progress       int        `json:"progress"`
	MemoryMB       int        `json:"memory_mb"`
	Threads        int        `json:"threads"`
	CPUConsuming   bool       `json:"cpu_consuming"`
	ResidentBytes  uint64     `json:"resident_bytes"`
	Resident       string     `json:"resident"`
	OSThreads      int32      `json:"os_threads"`
	ThreadIDs      []string   `json:"thread_ids"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
	Uptime         string     `json:"uptime"`
	StartedAt      string     `json:"started_at"`
	Log            []LogEntry `json:"log,omitempty"`
}

// LogEntry represents a log entry
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Level     string `json:"level"`
	Process   string `json:"process,omitempty"`
}

// HostMetrics are the host-wide gauges shown next to the process list
type HostMetrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	NetBytesSent  uint64  `json:"net_bytes_sent"`
	NetBytesRecv  uint64  `json:"net_bytes_recv"`
	UploadKBps    float64 `json:"upload_kbps"`
	DownloadKBps  float64 `json:"download_kbps"`
}

// SystemInfo describes the host machine
type SystemInfo struct {
	OS              string  `json:"os"`
	Platform        string  `json:"platform"`
	PlatformVersion string  `json:"platform_version"`
	KernelVersion   string  `json:"kernel_version"`
	Arch            string  `json:"arch"`
	CPUModel        string  `json:"cpu_model"`
	CPUMhz          float64 `json:"cpu_mhz"`
	PhysicalCores   int     `json:"physical_cores"`
	LogicalCores    int     `json:"logical_cores"`
	MemoryTotal     uint64  `json:"memory_total"`
	MemoryAvailable uint64  `json:"memory_available"`
	DiskTotal       uint64  `json:"disk_total"`
	DiskUsed        uint64  `json:"disk_used"`
}
