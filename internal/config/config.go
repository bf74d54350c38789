package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Simulation SimulationConfig `yaml:"simulation"`
	Log        LogConfig        `yaml:"log"`
	Processes  []ProcessConfig  `yaml:"processes"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

type SimulationConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	TerminateTimeout time.Duration `yaml:"terminate_timeout"`
	MaxMemoryMB      int           `yaml:"max_memory_mb"`
	// FinishedRetention drops terminated records older than this on each
	// poll tick. Zero keeps them until they are dismissed.
	FinishedRetention time.Duration `yaml:"finished_retention"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	cfg.applyEnv()
	return cfg
}

// LoadConfig reads a YAML file, fills in defaults and applies environment
// overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}

	cfg.setDefaults()
	cfg.applyEnv()

	for i := range cfg.Processes {
		if _, err := cfg.Processes[i].Spec(cfg.Simulation.MaxMemoryMB); err != nil {
			return nil, errors.Wrapf(err, "process #%d (%s) in %s", i+1, cfg.Processes[i].Name, path)
		}
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Simulation.PollInterval <= 0 {
		c.Simulation.PollInterval = time.Second
	}
	if c.Simulation.TerminateTimeout <= 0 {
		c.Simulation.TerminateTimeout = 5 * time.Second
	}
	if c.Simulation.MaxMemoryMB == 0 {
		c.Simulation.MaxMemoryMB = 4096
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	for i := range c.Processes {
		c.Processes[i].setDefaults()
	}
}

func (c *Config) applyEnv() {
	if address := os.Getenv("SERVER_ADDRESS"); address != "" {
		c.Server.Address = address
	}
	if level := os.Getenv("PROCSIM_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}
