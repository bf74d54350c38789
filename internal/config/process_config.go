package config

import (
	"procsim/internal/sim"
)

// ProcessConfig is a simulated process spawned when the server starts.
type ProcessConfig struct {
	Name         string `yaml:"name"`
	MemoryMB     *int   `yaml:"memory_mb,omitempty"`
	Threads      int    `yaml:"threads,omitempty"`
	CPUConsuming *bool  `yaml:"cpu,omitempty"`
	Priority     string `yaml:"priority,omitempty"`
}

func (p *ProcessConfig) setDefaults() {
	if p.MemoryMB == nil {
		mb := sim.DefaultMemoryMB
		p.MemoryMB = &mb
	}
	if p.Threads == 0 {
		p.Threads = sim.MinThreads
	}
	if p.CPUConsuming == nil {
		cpu := true
		p.CPUConsuming = &cpu
	}
}

func (p ProcessConfig) Spec(maxMemoryMB int) (sim.Spec, error) {
	p.setDefaults()
	prio, err := sim.ParsePriority(p.Priority)
	if err != nil {
		return sim.Spec{}, err
	}
	spec := sim.Spec{
		Name:         p.Name,
		MemoryMB:     *p.MemoryMB,
		Threads:      p.Threads,
		CPUConsuming: *p.CPUConsuming,
		Priority:     prio,
	}
	if err := spec.Validate(maxMemoryMB); err != nil {
		return sim.Spec{}, err
	}
	return spec, nil
}
